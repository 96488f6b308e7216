// Package config holds the typed configuration for the documentation
// service. Every subsystem receives its piece of this struct; there are no
// ambient singletons.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server,omitempty"`
	Logging    LoggingConfig    `yaml:"logging,omitempty"`
	LLM        LLMConfig        `yaml:"llm,omitempty"`
	GitHub     GitHubConfig     `yaml:"github,omitempty"`
	Store      StoreConfig      `yaml:"store,omitempty"`
	Vector     VectorConfig     `yaml:"vector,omitempty"`
	Generation GenerationConfig `yaml:"generation,omitempty"`
	Embedding  EmbeddingConfig  `yaml:"embedding,omitempty"`
	Agent      AgentConfig      `yaml:"agent,omitempty"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host           string   `yaml:"host,omitempty"`
	Port           int      `yaml:"port,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if len(c.AllowedOrigins) == 0 {
		if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
			c.AllowedOrigins = strings.Split(origins, ",")
		}
	}
}

func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// Address returns the listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
}

// GitHubConfig configures the source host adapter.
type GitHubConfig struct {
	// Token is a personal access token. Supports ${VAR} expansion.
	Token string `yaml:"token,omitempty"`
}

func (c *GitHubConfig) SetDefaults() {
	if c.Token == "" {
		c.Token = os.Getenv("GITHUB_API_KEY")
	}
}

// StoreProvider identifies the document store backend.
type StoreProvider string

const (
	StoreProviderFirestore StoreProvider = "firestore"
	StoreProviderMemory    StoreProvider = "memory"
)

// StoreConfig configures the document store.
type StoreConfig struct {
	Provider        StoreProvider `yaml:"provider,omitempty"`
	ProjectID       string        `yaml:"project_id,omitempty"`
	CredentialsFile string        `yaml:"credentials_file,omitempty"`
	// Bucket is the blob bucket for oversized payloads.
	Bucket string `yaml:"bucket,omitempty"`
}

func (c *StoreConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = StoreProviderMemory
	}
	if c.ProjectID == "" {
		c.ProjectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if c.Bucket == "" {
		c.Bucket = os.Getenv("CLOUD_STORAGE_BUCKET")
	}
}

func (c *StoreConfig) Validate() error {
	switch c.Provider {
	case StoreProviderFirestore:
		if c.ProjectID == "" {
			return fmt.Errorf("store: project_id is required for firestore")
		}
	case StoreProviderMemory, "":
	default:
		return fmt.Errorf("store: unknown provider %q (valid: firestore, memory)", c.Provider)
	}
	return nil
}

// VectorProvider identifies the vector index backend.
type VectorProvider string

const (
	VectorProviderPinecone VectorProvider = "pinecone"
	VectorProviderChromem  VectorProvider = "chromem"
)

// VectorConfig configures the vector index.
type VectorConfig struct {
	Provider VectorProvider `yaml:"provider,omitempty"`
	APIKey   string         `yaml:"api_key,omitempty"`
	// IndexName is the pinecone index holding all repo namespaces.
	IndexName string `yaml:"index_name,omitempty"`
	// Path is the persistence directory for the chromem backend.
	// Empty means in-memory.
	Path string `yaml:"path,omitempty"`
	// Dimension of the embedding vectors.
	Dimension int `yaml:"dimension,omitempty"`
}

func (c *VectorConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = VectorProviderChromem
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("PINECONE_API_KEY")
	}
	if c.IndexName == "" {
		c.IndexName = os.Getenv("PINECONE_INDEX")
	}
	if c.Dimension == 0 {
		c.Dimension = 1024
	}
}

func (c *VectorConfig) Validate() error {
	switch c.Provider {
	case VectorProviderPinecone:
		if c.APIKey == "" {
			return fmt.Errorf("vector: api_key is required for pinecone")
		}
		if c.IndexName == "" {
			return fmt.Errorf("vector: index_name is required for pinecone")
		}
	case VectorProviderChromem, "":
	default:
		return fmt.Errorf("vector: unknown provider %q (valid: pinecone, chromem)", c.Provider)
	}
	return nil
}

// SetDefaults applies defaults across the whole tree.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Logging.SetDefaults()
	c.LLM.SetDefaults()
	c.GitHub.SetDefaults()
	c.Store.SetDefaults()
	c.Vector.SetDefaults()
	c.Generation.SetDefaults()
	c.Embedding.SetDefaults()
	c.Agent.SetDefaults()
}

// Validate checks the whole tree.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Vector.Validate(); err != nil {
		return err
	}
	if err := c.Generation.Validate(); err != nil {
		return err
	}
	if err := c.Embedding.Validate(); err != nil {
		return err
	}
	return nil
}

// Load reads a YAML config file, expands ${ENV_VAR} references, applies
// defaults and validates. An empty path yields a default config built from
// the environment alone.
func Load(path string) (*Config, error) {
	// Best effort; a missing .env is not an error.
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		expanded := ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
