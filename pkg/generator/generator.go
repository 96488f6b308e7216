// Package generator produces the documentation for a single file or
// directory document: prompt construction, content trimming, the dual
// Markdown+JSON pipeline and the status transitions around it.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mitchellh/mapstructure"

	"github.com/rocketdocs/rocketdocs/pkg/config"
	"github.com/rocketdocs/rocketdocs/pkg/llms"
	"github.com/rocketdocs/rocketdocs/pkg/observability"
	"github.com/rocketdocs/rocketdocs/pkg/store"
	"github.com/rocketdocs/rocketdocs/pkg/utils"
)

// SourceReader is the slice of the source host adapter the generator
// needs: file content addressed by blob URL.
type SourceReader interface {
	ReadFileURL(ctx context.Context, fileURL string) (string, error)
}

// Gateway is the slice of the LLM gateway the generator needs.
type Gateway interface {
	GenerateText(ctx context.Context, req llms.TextRequest) (*llms.Completion, error)
	GenerateJSON(ctx context.Context, req llms.JSONRequest) (*llms.JSONCompletion, error)
}

// FileDoc is the structured half of a generated document.
type FileDoc struct {
	Description string `json:"description" jsonschema:"required,description=A one-paragraph description of what this file or folder does"`
}

// Generator turns one document at a time into markdown plus extracted
// JSON, moving the document through IN_PROGRESS to a terminal state.
type Generator struct {
	store   store.Store
	source  SourceReader
	gateway Gateway
	cfg     *config.GenerationConfig
}

func New(st store.Store, source SourceReader, gateway Gateway, cfg *config.GenerationConfig) *Generator {
	return &Generator{
		store:   st,
		source:  source,
		gateway: gateway,
		cfg:     cfg,
	}
}

// Generate documents one node. For directories, childIDs names the
// already-completed children whose descriptions seed the prompt. Any
// failure moves the document to FAILED and is returned to the caller.
func (g *Generator) Generate(ctx context.Context, docID, model string, childIDs []string) error {
	doc, err := g.store.GetDoc(ctx, docID)
	if err != nil {
		return err
	}

	var system, prompt string
	switch doc.Kind {
	case store.KindFile:
		system = fileSystemPrompt
		prompt, err = g.buildFilePrompt(ctx, doc, model)
	case store.KindDir:
		system = folderSystemPrompt
		prompt, err = g.buildFolderPrompt(ctx, doc, childIDs)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedKind, doc.Kind)
	}
	if err != nil {
		return g.fail(ctx, doc, err)
	}

	doc.Status = store.StatusInProgress
	if err := g.store.UpdateDoc(ctx, doc); err != nil {
		return err
	}
	started := time.Now()

	slog.Info("Generating documentation",
		"doc_id", doc.ID,
		"path", doc.RelativePath,
		"kind", doc.Kind,
		"model", model)

	completion, err := g.gateway.GenerateText(ctx, llms.TextRequest{
		Model:       model,
		System:      system,
		Prompt:      prompt,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxCompletionTokens,
	})
	if err != nil {
		return g.fail(ctx, doc, err)
	}
	markdown := completion.Text
	if strings.TrimSpace(markdown) == "" {
		return g.fail(ctx, doc, ErrMarkdownEmpty)
	}

	usage := completion.Usage
	extracted, err := g.extract(ctx, doc, model, markdown, &usage)
	if err != nil {
		return g.fail(ctx, doc, err)
	}

	doc.Status = store.StatusCompleted
	doc.Markdown = markdown
	doc.Extracted = extracted
	doc.Usage = usage
	if err := g.store.UpdateDoc(ctx, doc); err != nil {
		return err
	}

	observability.DocsGenerated.Inc()
	observability.GenerationDuration.Observe(time.Since(started).Seconds())
	observability.ObserveUsage(usage.PromptTokens, usage.CompletionTokens)
	return nil
}

func (g *Generator) fail(ctx context.Context, doc *store.Document, cause error) error {
	slog.Error("Documentation generation failed",
		"doc_id", doc.ID,
		"path", doc.RelativePath,
		"error", cause)

	doc.Status = store.StatusFailed
	if err := g.store.UpdateDoc(ctx, doc); err != nil {
		slog.Error("Failed to record FAILED status", "doc_id", doc.ID, "error", err)
	}
	observability.DocsFailed.Inc()
	return cause
}

func (g *Generator) buildFilePrompt(ctx context.Context, doc *store.Document, model string) (string, error) {
	content, err := g.source.ReadFileURL(ctx, doc.SourceURL)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyInput, doc.RelativePath)
	}

	counter, err := utils.NewTokenCounter(model)
	if err != nil {
		return "", err
	}
	content = g.trim(counter, content)

	return fmt.Sprintf("Document the following code file titled %s\n\n%s", doc.RelativePath, content), nil
}

func (g *Generator) buildFolderPrompt(ctx context.Context, doc *store.Document, childIDs []string) (string, error) {
	if len(childIDs) == 0 {
		return "", fmt.Errorf("%w: folder %s has no children", ErrDependencyNotReady, doc.RelativePath)
	}

	var sb strings.Builder
	for _, childID := range childIDs {
		child, err := g.store.GetDoc(ctx, childID)
		if err != nil {
			return "", err
		}
		if child.Status != store.StatusCompleted {
			return "", fmt.Errorf("%w: %s is %s", ErrDependencyNotReady, child.RelativePath, child.Status)
		}
		fmt.Fprintf(&sb, "- %s: %s\n", child.RelativePath, child.Description())
	}

	title := doc.RelativePath
	if title == "" {
		title = "the repository root"
	}
	return fmt.Sprintf("Document the following folder titled %s\n\n%s", title, sb.String()), nil
}

// trim cuts content down to the input token budget. A first conservative
// cut estimates 4 characters per excess token; the 400-character loop
// then walks the tail in until the count fits. Trimmed content is marked
// with a trailing ellipsis.
func (g *Generator) trim(counter *utils.TokenCounter, content string) string {
	budget := g.cfg.MaxInputTokens
	tokens := counter.Count(content)
	if tokens <= budget {
		return content
	}

	cut := (tokens - budget) * 4
	if cut < len(content) {
		content = cutTail(content, cut)
	}
	for counter.Count(content) > budget && len(content) > 0 {
		if len(content) <= 400 {
			content = ""
			break
		}
		content = cutTail(content, 400)
	}
	return content + "\n..."
}

// cutTail drops n bytes from the end, then any dangling partial rune,
// so the cut never produces invalid UTF-8.
func cutTail(s string, n int) string {
	s = s[:len(s)-n]
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size > 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}

// extract produces the structured half. The schema-constrained call is
// the primary strategy; on failure the first non-top heading's body is
// lifted out of the markdown instead.
func (g *Generator) extract(ctx context.Context, doc *store.Document, model, markdown string, usage *llms.Usage) (map[string]any, error) {
	system := fileJSONSystemPrompt
	if doc.Kind == store.KindDir {
		system = folderJSONSystemPrompt
	}

	completion, err := g.gateway.GenerateJSON(ctx, llms.JSONRequest{
		Model:       model,
		System:      system,
		Prompt:      markdown,
		Schema:      llms.SchemaFor[FileDoc](),
		Temperature: g.cfg.Temperature,
		MaxRetries:  g.cfg.JSONMaxRetries,
		MaxTokens:   g.cfg.MaxCompletionTokens,
	})
	if err == nil {
		var parsed FileDoc
		if decodeErr := mapstructure.Decode(completion.Object, &parsed); decodeErr != nil {
			err = fmt.Errorf("%w: %v", llms.ErrParse, decodeErr)
		} else if strings.TrimSpace(parsed.Description) == "" {
			err = fmt.Errorf("%w: description is empty", llms.ErrParse)
		} else {
			usage.Add(completion.Usage)
			return completion.Object, nil
		}
	}

	slog.Warn("Structured extraction failed, falling back to markdown headings",
		"doc_id", doc.ID,
		"error", err)

	if description := firstSubheadingBody(markdown); description != "" {
		return map[string]any{"description": description}, nil
	}
	return nil, err
}

// firstSubheadingBody returns the prose under the first non-top heading.
func firstSubheadingBody(markdown string) string {
	lines := strings.Split(markdown, "\n")

	inSection := false
	var body []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		isHeading := strings.HasPrefix(trimmed, "#")
		if !inSection {
			if isHeading && !strings.HasPrefix(trimmed, "# ") {
				inSection = true
			}
			continue
		}
		if isHeading {
			break
		}
		body = append(body, trimmed)
	}
	return strings.TrimSpace(strings.Join(body, "\n"))
}
