package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketdocs/rocketdocs/pkg/config"
	"github.com/rocketdocs/rocketdocs/pkg/llms"
	"github.com/rocketdocs/rocketdocs/pkg/search"
	"github.com/rocketdocs/rocketdocs/pkg/store"
)

type fakeChatter struct {
	responses []string
	err       error
	requests  []llms.ChatRequest
}

func (f *fakeChatter) GenerateChat(ctx context.Context, req llms.ChatRequest) (*llms.Completion, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return &llms.Completion{Text: ""}, nil
	}
	text := f.responses[0]
	f.responses = f.responses[1:]
	return &llms.Completion{Text: text}, nil
}

type fakeSearcher struct {
	results []search.Result
	err     error
	queries []string
}

func (f *fakeSearcher) Search(ctx context.Context, repoID, query string) ([]search.Result, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func agentCfg() *config.AgentConfig {
	cfg := &config.AgentConfig{}
	cfg.SetDefaults()
	return cfg
}

func seedDoc(t *testing.T, st store.Store, id, path string) {
	t.Helper()
	require.NoError(t, st.CreateDoc(context.Background(), &store.Document{
		ID:           id,
		OwnerID:      "user-1",
		RelativePath: path,
		Kind:         store.KindFile,
		Status:       store.StatusCompleted,
		Markdown:     "# " + path + "\n\n## Purpose\n\nDocs for " + path + ".",
	}))
}

func collect(events <-chan Event) []Event {
	var out []Event
	for e := range events {
		out = append(out, e)
	}
	return out
}

func countFinish(events []Event) int {
	n := 0
	for _, e := range events {
		if e.Action == ActionFinish {
			n++
		}
	}
	return n
}

func TestChatDirectFinish(t *testing.T) {
	gateway := &fakeChatter{responses: []string{
		`Thought: I already know this.
Action: Finish["The server starts in main.go."]`,
	}}
	a := New(store.NewMemoryStore(), &fakeSearcher{}, gateway, agentCfg())

	events := collect(a.Chat(context.Background(), "user-1", "repo-1", "where does the server start?", llms.ModelMixtral))

	require.Len(t, events, 1)
	assert.Equal(t, ActionFinish, events[0].Action)
	assert.Equal(t, "The server starts in main.go.", events[0].Output)
}

func TestChatSearchThenFinish(t *testing.T) {
	st := store.NewMemoryStore()
	seedDoc(t, st, "doc-1", "board.py")

	searcher := &fakeSearcher{results: []search.Result{
		{DocID: "doc-1", Score: 0.9, ChunkContent: "board setup"},
	}}
	gateway := &fakeChatter{responses: []string{
		`Thought: I should look this up.
Action: Search["game board creation"]`,
		`Thought: The documentation explains it.
Action: Finish["Use the Board class in board.py."]`,
	}}
	a := New(st, searcher, gateway, agentCfg())

	events := collect(a.Chat(context.Background(), "user-1", "repo-1", "how do I create a board?", llms.ModelMixtral))

	require.Len(t, events, 2)
	assert.Equal(t, Event{Action: ActionSearch, Output: "game board creation"}, events[0])
	assert.Equal(t, Event{Action: ActionFinish, Output: "Use the Board class in board.py."}, events[1])
	assert.Equal(t, 1, countFinish(events))

	assert.Equal(t, []string{"game board creation"}, searcher.queries)

	// Second request carries the rewritten assistant turn and the Result
	// observation.
	require.Len(t, gateway.requests, 2)
	messages := gateway.requests[1].Messages
	require.Len(t, messages, 4)
	assert.Equal(t, "assistant", messages[2].Role)
	assert.Contains(t, messages[2].Content, "Thought: I should look this up.")
	assert.Contains(t, messages[2].Content, `Action: Search["game board creation"]`)
	assert.Equal(t, "user", messages[3].Role)
	assert.Contains(t, messages[3].Content, "Result: There are 1 relevant document(s).")
	assert.Contains(t, messages[3].Content, "board.py with a relevancy score of 0.9")
	assert.Contains(t, messages[3].Content, "Docs for board.py")
}

func TestChatMalformedOutputFallsBack(t *testing.T) {
	st := store.NewMemoryStore()
	seedDoc(t, st, "doc-1", "board.py")

	searcher := &fakeSearcher{results: []search.Result{
		{DocID: "doc-1", Score: 0.8},
	}}
	gateway := &fakeChatter{responses: []string{
		"I will just chat freely without any labels.",
		"The board is created by the Board class.",
	}}
	a := New(st, searcher, gateway, agentCfg())

	events := collect(a.Chat(context.Background(), "user-1", "repo-1", "how do I create a board?", llms.ModelMixtral))

	require.Len(t, events, 1)
	assert.Equal(t, ActionFinish, events[0].Action)
	assert.Equal(t, "The board is created by the Board class.", events[0].Output)

	// Fallback made one retrieval with the original question and used the
	// fallback prompt with the smaller completion budget.
	assert.Equal(t, []string{"how do I create a board?"}, searcher.queries)
	require.Len(t, gateway.requests, 2)
	fallbackReq := gateway.requests[1]
	assert.Equal(t, chatFallbackSystemPrompt, fallbackReq.Messages[0].Content)
	assert.Equal(t, 512, fallbackReq.MaxTokens)
	assert.Contains(t, fallbackReq.Messages[1].Content, "Question: how do I create a board?")
}

func TestChatSecondSearchForcesFallback(t *testing.T) {
	st := store.NewMemoryStore()
	seedDoc(t, st, "doc-1", "board.py")

	searcher := &fakeSearcher{results: []search.Result{
		{DocID: "doc-1", Score: 0.8},
	}}
	gateway := &fakeChatter{responses: []string{
		"Thought: Search first.\nAction: Search[\"boards\"]",
		"Thought: Search again.\nAction: Search[\"more boards\"]",
		"Fallback answer.",
	}}
	a := New(st, searcher, gateway, agentCfg())

	events := collect(a.Chat(context.Background(), "user-1", "repo-1", "boards?", llms.ModelMixtral))

	require.Len(t, events, 2)
	assert.Equal(t, ActionSearch, events[0].Action)
	assert.Equal(t, Event{Action: ActionFinish, Output: "Fallback answer."}, events[1])
	assert.Equal(t, 1, countFinish(events))

	// The second Search was never executed.
	assert.Equal(t, []string{"boards", "boards?"}, searcher.queries)
}

func TestChatStepBudgetExhausted(t *testing.T) {
	st := store.NewMemoryStore()
	seedDoc(t, st, "doc-1", "board.py")

	cfg := agentCfg()
	cfg.MaxSteps = 1

	searcher := &fakeSearcher{results: []search.Result{{DocID: "doc-1", Score: 0.8}}}
	gateway := &fakeChatter{responses: []string{
		"Thought: Look it up.\nAction: Search[\"boards\"]",
		"Budget answer.",
	}}
	a := New(st, searcher, gateway, cfg)

	events := collect(a.Chat(context.Background(), "user-1", "repo-1", "boards?", llms.ModelMixtral))

	require.Len(t, events, 2)
	assert.Equal(t, ActionSearch, events[0].Action)
	assert.Equal(t, Event{Action: ActionFinish, Output: "Budget answer."}, events[1])
}

func TestChatGatewayErrorStillFinishes(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("index down")}
	gateway := &fakeChatter{err: errors.New("llm down")}
	a := New(store.NewMemoryStore(), searcher, gateway, agentCfg())

	events := collect(a.Chat(context.Background(), "user-1", "repo-1", "anything?", llms.ModelMixtral))

	require.Len(t, events, 1)
	assert.Equal(t, ActionFinish, events[0].Action)
	assert.Equal(t, fallbackApology, events[0].Output)
}

func TestChatAbandonedStreamEndsOnCancel(t *testing.T) {
	gateway := &fakeChatter{responses: []string{
		`Thought: I already know this.
Action: Finish["answer"]`,
	}}
	a := New(store.NewMemoryStore(), &fakeSearcher{}, gateway, agentCfg())

	ctx, cancel := context.WithCancel(context.Background())
	events := a.Chat(ctx, "user-1", "repo-1", "anything?", llms.ModelMixtral)

	// Nobody reads the stream; cancelling must still end it instead of
	// leaving the producer blocked on the send.
	cancel()
	time.Sleep(50 * time.Millisecond)

	select {
	case ev, ok := <-events:
		require.False(t, ok, "expected a closed stream, got event %+v", ev)
	case <-time.After(time.Second):
		t.Fatal("event stream still open after cancellation")
	}
}

func TestSearchObservationFiltersAndDedupes(t *testing.T) {
	st := store.NewMemoryStore()
	seedDoc(t, st, "doc-1", "board.py")
	seedDoc(t, st, "doc-2", "game.py")

	searcher := &fakeSearcher{results: []search.Result{
		{DocID: "doc-1", Score: 0.9},
		{DocID: "doc-1", Score: 0.85},
		{DocID: "doc-2", Score: 0.4},
	}}
	a := New(st, searcher, &fakeChatter{}, agentCfg())

	observation, err := a.searchObservation(context.Background(), "user-1", "repo-1", "boards")
	require.NoError(t, err)

	assert.Contains(t, observation, "There are 1 relevant document(s).")
	assert.Contains(t, observation, "1. board.py with a relevancy score of 0.9.")
	assert.NotContains(t, observation, "game.py with a relevancy score")
	assert.Contains(t, observation, "Docs for board.py")
}

func TestParseStep(t *testing.T) {
	thought, action, err := parseStep("Thought: figure it out.\nAction: Search[\"query\"]")
	require.NoError(t, err)
	assert.Equal(t, "figure it out.", thought)
	assert.Equal(t, `Search["query"]`, action)

	_, _, err = parseStep("no labels at all")
	assert.ErrorIs(t, err, errWrongFormatting)

	_, _, err = parseStep("Action: Finish[\"x\"] but Thought comes later")
	assert.ErrorIs(t, err, errWrongFormatting)
}

func TestExtractAction(t *testing.T) {
	name, input, err := extractAction(`Search["how to build"]`)
	require.NoError(t, err)
	assert.Equal(t, ActionSearch, name)
	assert.Equal(t, "how to build", input)

	name, input, err = extractAction(`Finish['done']`)
	require.NoError(t, err)
	assert.Equal(t, ActionFinish, name)
	assert.Equal(t, "done", input)

	_, _, err = extractAction(`Lookup["nope"]`)
	assert.ErrorIs(t, err, errInvalidAction)
}
