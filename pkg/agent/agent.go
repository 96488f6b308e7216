// Package agent is a bounded ReAct loop over the repository's embedded
// documentation: think, search, observe, answer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rocketdocs/rocketdocs/pkg/config"
	"github.com/rocketdocs/rocketdocs/pkg/llms"
	"github.com/rocketdocs/rocketdocs/pkg/search"
	"github.com/rocketdocs/rocketdocs/pkg/store"
)

// Action names emitted in events.
const (
	ActionSearch = "Search"
	ActionFinish = "Finish"
)

const fallbackApology = "Sorry, I ran into a problem while answering. Please try asking again."

var (
	errWrongFormatting = errors.New("cannot extract Thought and Action steps")
	errInvalidAction   = errors.New("action must be Search[...] or Finish[...]")
	errSearchExhausted = errors.New("agent must Finish after a Search result")
)

// Event is one step of the agent, streamed to the caller. The stream is
// finite and ends with exactly one Finish.
type Event struct {
	Action string `json:"action"`
	Output string `json:"output"`
}

// Searcher is the retrieval half of the agent.
type Searcher interface {
	Search(ctx context.Context, repoID, query string) ([]search.Result, error)
}

// Chatter is the slice of the LLM gateway the agent needs.
type Chatter interface {
	GenerateChat(ctx context.Context, req llms.ChatRequest) (*llms.Completion, error)
}

// Agent answers questions about one repository.
type Agent struct {
	store    store.Store
	searcher Searcher
	gateway  Chatter
	cfg      *config.AgentConfig
}

func New(st store.Store, searcher Searcher, gateway Chatter, cfg *config.AgentConfig) *Agent {
	return &Agent{
		store:    st,
		searcher: searcher,
		gateway:  gateway,
		cfg:      cfg,
	}
}

// Chat runs the loop and streams events. Malformed model output, an
// exhausted step budget or a second Search all leave the loop and take
// the fallback path: one retrieval, one plain completion, one Finish.
func (a *Agent) Chat(ctx context.Context, userID, repoID, query, model string) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		a.run(ctx, events, userID, repoID, query, model)
	}()
	return events
}

// emit delivers one event unless the consumer is gone. Sends must never
// outlive the request context or an abandoned stream leaks the goroutine.
func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (a *Agent) run(ctx context.Context, events chan<- Event, userID, repoID, query, model string) {
	history := []llms.Message{
		{Role: "system", Content: chatSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Question: %s", query)},
	}

	searched := false
	for step := 0; step < a.cfg.MaxSteps; step++ {
		completion, err := a.gateway.GenerateChat(ctx, llms.ChatRequest{
			Model:       model,
			Messages:    history,
			Temperature: 0.4,
			MaxTokens:   1024,
		})
		if err != nil {
			a.fallback(ctx, events, userID, repoID, query, model, err)
			return
		}

		thought, action, err := parseStep(completion.Text)
		if err == nil {
			var name, input string
			name, input, err = extractAction(action)
			if err == nil && name == ActionSearch && searched {
				err = errSearchExhausted
			}
			if err == nil {
				if !emit(ctx, events, Event{Action: name, Output: input}) {
					return
				}
				if name == ActionFinish {
					return
				}

				var result string
				result, err = a.searchObservation(ctx, userID, repoID, input)
				if err == nil {
					searched = true
					history = append(history,
						llms.Message{Role: "assistant", Content: fmt.Sprintf("Thought: %s\n\nAction: %s", thought, action)},
						llms.Message{Role: "user", Content: fmt.Sprintf("Result: %s", result)},
					)
					continue
				}
			}
		}

		// The prompt is good enough that misformats are rare; correcting
		// the agent mid-flight doubles the runtime for comparable answers,
		// so any slip goes straight to the fallback.
		a.fallback(ctx, events, userID, repoID, query, model, err)
		return
	}

	a.fallback(ctx, events, userID, repoID, query, model, nil)
}

// fallback answers with one retrieval and a plain completion.
func (a *Agent) fallback(ctx context.Context, events chan<- Event, userID, repoID, query, model string, cause error) {
	if cause != nil {
		slog.Warn("Agent loop left the rails, using fallback", "repo_id", repoID, "error", cause)
	}

	observation, err := a.searchObservation(ctx, userID, repoID, query)
	if err != nil {
		slog.Error("Fallback retrieval failed", "repo_id", repoID, "error", err)
		emit(ctx, events, Event{Action: ActionFinish, Output: fallbackApology})
		return
	}

	completion, err := a.gateway.GenerateChat(ctx, llms.ChatRequest{
		Model: model,
		Messages: []llms.Message{
			{Role: "system", Content: chatFallbackSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Question: %s\n%s", query, observation)},
		},
		Temperature: 0.4,
		MaxTokens:   512,
	})
	if err != nil {
		slog.Error("Fallback completion failed", "repo_id", repoID, "error", err)
		emit(ctx, events, Event{Action: ActionFinish, Output: fallbackApology})
		return
	}

	emit(ctx, events, Event{Action: ActionFinish, Output: completion.Text})
}

// searchObservation retrieves chunks, keeps strong matches (score above
// the threshold), de-duplicates by document and formats the documents'
// markdown as the observation fed back to the model.
func (a *Agent) searchObservation(ctx context.Context, userID, repoID, query string) (string, error) {
	results, err := a.searcher.Search(ctx, repoID, query)
	if err != nil {
		return "", err
	}

	type relevantDoc struct {
		score   float32
		content string
		path    string
	}

	seen := make(map[string]bool)
	var docs []relevantDoc
	for _, result := range results {
		if seen[result.DocID] || float64(result.Score) <= a.cfg.ScoreThreshold {
			continue
		}
		doc, err := a.store.GetUserDoc(ctx, userID, result.DocID)
		if err != nil {
			return "", err
		}
		seen[result.DocID] = true
		docs = append(docs, relevantDoc{
			score:   result.Score,
			content: doc.Markdown,
			path:    doc.RelativePath,
		})
	}

	var summary, bodies []string
	for i, doc := range docs {
		summary = append(summary, fmt.Sprintf("%d. %s with a relevancy score of %v.\n", i+1, doc.path, doc.score))
		bodies = append(bodies, doc.content+"\n")
	}
	return fmt.Sprintf("There are %d relevant document(s).\n", len(docs)) +
		strings.Join(summary, "") + "\n" + strings.Join(bodies, "\n\n"), nil
}

// parseStep pulls the Thought and Action parts out of one model reply.
func parseStep(output string) (thought, action string, err error) {
	thoughtStart := strings.Index(output, "Thought")
	actionStart := strings.Index(output, "Action")
	if thoughtStart == -1 || actionStart == -1 || actionStart < thoughtStart {
		return "", "", fmt.Errorf("%w in %q", errWrongFormatting, output)
	}

	thought = extractStep(output[thoughtStart+len("Thought") : actionStart])
	action = extractStep(output[actionStart+len("Action"):])
	return thought, action, nil
}

// extractStep drops the label colon and any outer quotes.
func extractStep(unparsed string) string {
	step := strings.TrimSpace(strings.TrimLeft(unparsed, ":"))
	return strings.Trim(step, `'"`)
}

func extractAction(action string) (name, input string, err error) {
	switch {
	case strings.HasPrefix(action, ActionSearch):
		return ActionSearch, strings.Trim(action[len(ActionSearch):], ` []"'`), nil
	case strings.HasPrefix(action, ActionFinish):
		return ActionFinish, strings.Trim(action[len(ActionFinish):], ` []"'`), nil
	}
	return "", "", fmt.Errorf("%w, got %q", errInvalidAction, action)
}
