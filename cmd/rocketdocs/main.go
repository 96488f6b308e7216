// Command rocketdocs serves the repository documentation API.
//
// Usage:
//
//	rocketdocs serve --config config.yaml
//	rocketdocs version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/rocketdocs/rocketdocs/pkg/agent"
	"github.com/rocketdocs/rocketdocs/pkg/auth"
	"github.com/rocketdocs/rocketdocs/pkg/chunker"
	"github.com/rocketdocs/rocketdocs/pkg/config"
	"github.com/rocketdocs/rocketdocs/pkg/embedding"
	"github.com/rocketdocs/rocketdocs/pkg/generator"
	"github.com/rocketdocs/rocketdocs/pkg/github"
	"github.com/rocketdocs/rocketdocs/pkg/identifier"
	"github.com/rocketdocs/rocketdocs/pkg/jobs"
	"github.com/rocketdocs/rocketdocs/pkg/llms"
	"github.com/rocketdocs/rocketdocs/pkg/logger"
	"github.com/rocketdocs/rocketdocs/pkg/scheduler"
	"github.com/rocketdocs/rocketdocs/pkg/search"
	"github.com/rocketdocs/rocketdocs/pkg/server"
	"github.com/rocketdocs/rocketdocs/pkg/store"
	"github.com/rocketdocs/rocketdocs/pkg/utils"
	"github.com/rocketdocs/rocketdocs/pkg/vector"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Start the documentation API server."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (text or json)." default:"text"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("rocketdocs version %s\n", version)
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port int `help:"Port to listen on (overrides config)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	level, _ := logger.ParseLevel(cli.LogLevel)
	format := cli.LogFormat
	if format == "" {
		format = cfg.Logging.Format
	}
	logger.Init(level, os.Stderr, format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := newStore(ctx, &cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	index, err := vector.NewIndexFromConfig(&cfg.Vector)
	if err != nil {
		return err
	}
	defer index.Close()

	registry, err := llms.NewRegistryFromConfig(&cfg.LLM)
	if err != nil {
		return err
	}
	defer registry.Close()

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return err
	}

	counter, err := utils.NewTokenCounter(cfg.Embedding.Model)
	if err != nil {
		return err
	}

	gh := github.NewClientFromConfig(&cfg.GitHub)
	ident := identifier.New(gh, st)
	gen := generator.New(st, gh, registry, &cfg.Generation)
	sched := scheduler.New(st, gen, &cfg.Generation)
	pipeline := embedding.New(st, index, registry,
		chunker.NewFromConfig(&cfg.Embedding, counter), &cfg.Embedding)
	searcher := search.New(index, registry, &cfg.Embedding, &cfg.Agent)
	chatter := agent.New(st, searcher, registry, &cfg.Agent)
	controller := jobs.New(st, ident, sched, pipeline, gen, gh, &cfg.Generation)

	srv := server.New(&cfg.Server, &cfg.Agent, verifier, st,
		controller, ident, searcher, chatter, index)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("Shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
	if err := controller.Shutdown(shutdownCtx); err != nil {
		slog.Error("Background jobs did not drain", "error", err)
	}
	return nil
}

func newStore(ctx context.Context, cfg *config.StoreConfig) (store.Store, error) {
	switch cfg.Provider {
	case config.StoreProviderFirestore:
		return store.NewFirestoreStoreFromConfig(ctx, cfg)
	default:
		return store.NewMemoryStore(), nil
	}
}

// newVerifier picks Firebase verification when the store is Firestore.
// The memory store pairs with static tokens from STATIC_AUTH_TOKENS
// ("token:user,token:user"), which keeps local runs credential-free.
func newVerifier(ctx context.Context, cfg *config.Config) (auth.Verifier, error) {
	if cfg.Store.Provider == config.StoreProviderFirestore {
		return auth.NewFirebaseVerifier(ctx, &cfg.Store)
	}

	tokens := make(map[string]string)
	for _, pair := range strings.Split(os.Getenv("STATIC_AUTH_TOKENS"), ",") {
		token, user, ok := strings.Cut(pair, ":")
		if ok && token != "" && user != "" {
			tokens[token] = user
		}
	}
	if len(tokens) == 0 {
		tokens["dev-token"] = "dev-user"
		slog.Warn("No STATIC_AUTH_TOKENS set, using dev-token/dev-user")
	}
	return auth.NewStaticVerifier(tokens), nil
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("rocketdocs"),
		kong.Description("Repository documentation and retrieval service."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
