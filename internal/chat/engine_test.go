package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"personabot/internal/archive"
	"personabot/internal/compose"
	"personabot/internal/docs"
	"personabot/internal/memory"
	"personabot/internal/persona"
	"personabot/internal/retrieval"
	"personabot/internal/session"
)

type fakeRetriever struct {
	mu       sync.Mutex
	calls    int
	gotQuery string
	passages []retrieval.Passage
	err      error
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, _ int) ([]retrieval.Passage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotQuery = query
	return f.passages, f.err
}

type fakeMatcher struct {
	mu      sync.Mutex
	calls   int
	matches []docs.Match
	err     error
}

func (f *fakeMatcher) Match(_ context.Context, _ string, _ int, _ float64) ([]docs.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.matches, f.err
}

type fakeGen struct {
	mu    sync.Mutex
	reply string
	err   error
}

func (f *fakeGen) Complete(_ context.Context, _ string, _ float32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reply, f.err
}

func testEngine(ret *fakeRetriever, match *fakeMatcher, gen *fakeGen, store archive.Store) *Engine {
	sessions := session.NewManager(time.Minute, func() *memory.Conversation {
		return memory.NewConversation(memory.Options{WindowCapacity: 10})
	})
	return NewEngine(sessions, persona.NewRegistry(), ret, match, compose.New(gen), store, nil, DefaultTuning())
}

func freshPassages() []retrieval.Passage {
	return []retrieval.Passage{
		{Content: "Docker uses layered images.", Score: 0.9, VideoTitle: "Docker Deep Dive", VideoURL: "https://youtube.com/watch?v=abc", StartSeconds: 120},
	}
}

func freshMatches() []docs.Match {
	return []docs.Match{
		{Link: docs.Link{Title: "Docker Docs", URL: "https://docs.docker.com", Difficulty: "beginner"}, Score: 0.8},
	}
}

func TestHandleTurnFreshSearch(t *testing.T) {
	ret := &fakeRetriever{passages: freshPassages()}
	match := &fakeMatcher{matches: freshMatches()}
	gen := &fakeGen{reply: "Docker is a containerization platform."}
	store := archive.NewInMemoryStore()
	e := testEngine(ret, match, gen, store)

	resp := e.HandleTurn(context.Background(), Request{Message: "How do I install Docker?", Personality: "networkchuck"})

	if resp.Classification != "fresh_search" {
		t.Fatalf("classification = %q, want fresh_search", resp.Classification)
	}
	if ret.calls != 1 || match.calls != 1 {
		t.Fatalf("collaborator calls = retriever %d, matcher %d, want 1 each", ret.calls, match.calls)
	}
	if !strings.Contains(strings.ToLower(ret.gotQuery), "docker") {
		t.Fatalf("retriever query = %q, want docker terms", ret.gotQuery)
	}
	if !strings.Contains(resp.Text, "Docker is a containerization platform.") {
		t.Fatalf("response missing generated text: %q", resp.Text)
	}
	if !strings.Contains(resp.Text, retrieval.SourcesMarker) {
		t.Fatalf("response missing citations: %q", resp.Text)
	}
	if !strings.Contains(resp.Text, docs.DocsMarker) {
		t.Fatalf("response missing docs block: %q", resp.Text)
	}
	if strings.Contains(resp.SpeechText, "Source Videos") || strings.Contains(resp.SpeechText, "youtube.com") {
		t.Fatalf("speech text carries citation content: %q", resp.SpeechText)
	}

	sess, err := e.Sessions().Get(resp.SessionID)
	if err != nil {
		t.Fatalf("session lookup: %v", err)
	}
	if sess.Memory.Len() != 1 {
		t.Fatalf("memory len = %d, want 1", sess.Memory.Len())
	}
	if sess.TurnCount != 1 {
		t.Fatalf("turn count = %d, want 1", sess.TurnCount)
	}

	records, err := store.SessionHistory(context.Background(), resp.SessionID, 10)
	if err != nil {
		t.Fatalf("archive history: %v", err)
	}
	if len(records) != 1 || records[0].UserText != "How do I install Docker?" {
		t.Fatalf("archived records = %+v", records)
	}
}

func TestHandleTurnMemoryRecallSkipsCollaborators(t *testing.T) {
	ret := &fakeRetriever{passages: freshPassages()}
	match := &fakeMatcher{matches: freshMatches()}
	gen := &fakeGen{reply: "We talked about Docker."}
	e := testEngine(ret, match, gen, archive.NewInMemoryStore())

	first := e.HandleTurn(context.Background(), Request{Message: "What is Docker?", Personality: "networkchuck"})
	resp := e.HandleTurn(context.Background(), Request{SessionID: first.SessionID, Message: "remind me what we discussed", Personality: "networkchuck"})

	if resp.Classification != "memory_recall" {
		t.Fatalf("classification = %q, want memory_recall", resp.Classification)
	}
	if ret.calls != 1 || match.calls != 1 {
		t.Fatalf("recall turn hit collaborators: retriever %d, matcher %d (want only the first turn's calls)", ret.calls, match.calls)
	}
	if strings.Contains(resp.Text, retrieval.SourcesMarker) || strings.Contains(resp.Text, docs.DocsMarker) {
		t.Fatalf("recall answer carries link blocks: %q", resp.Text)
	}
}

func TestHandleTurnSettingsDisableBlocks(t *testing.T) {
	ret := &fakeRetriever{passages: freshPassages()}
	match := &fakeMatcher{matches: freshMatches()}
	gen := &fakeGen{reply: "answer"}
	e := testEngine(ret, match, gen, archive.NewInMemoryStore())

	settings := compose.DefaultSettings()
	settings.IncludeSources = false
	settings.IncludeDocs = false
	resp := e.HandleTurn(context.Background(), Request{Message: "How do I install Docker?", Settings: &settings})

	if strings.Contains(resp.Text, retrieval.SourcesMarker) || strings.Contains(resp.Text, docs.DocsMarker) {
		t.Fatalf("disabled blocks still present: %q", resp.Text)
	}
}

func TestHandleTurnRetrieverFailureDegrades(t *testing.T) {
	ret := &fakeRetriever{err: errors.New("vector store down")}
	match := &fakeMatcher{err: errors.New("embeddings down")}
	gen := &fakeGen{reply: "best effort answer"}
	e := testEngine(ret, match, gen, archive.NewInMemoryStore())

	resp := e.HandleTurn(context.Background(), Request{Message: "How do I install Docker?"})
	if !strings.Contains(resp.Text, "best effort answer") {
		t.Fatalf("collaborator failure broke the turn: %q", resp.Text)
	}
}

func TestHandleTurnGenerationFailureYieldsApology(t *testing.T) {
	gen := &fakeGen{err: errors.New("upstream 503")}
	e := testEngine(&fakeRetriever{}, &fakeMatcher{}, gen, archive.NewInMemoryStore())

	resp := e.HandleTurn(context.Background(), Request{Message: "How do I install Docker?"})
	if resp.Text != compose.Apology {
		t.Fatalf("response = %q, want apology", resp.Text)
	}
	if strings.Contains(resp.Text, retrieval.SourcesMarker) {
		t.Fatalf("apology should not carry citations")
	}
}

func TestHandleTurnHistoryReplacesMemory(t *testing.T) {
	gen := &fakeGen{reply: "answer"}
	e := testEngine(&fakeRetriever{}, &fakeMatcher{}, gen, archive.NewInMemoryStore())

	first := e.HandleTurn(context.Background(), Request{Message: "What is Kubernetes?"})
	history := []memory.Record{
		{Role: "user", Content: "What is Docker?"},
		{Role: "assistant", Content: "A container platform."},
	}
	resp := e.HandleTurn(context.Background(), Request{SessionID: first.SessionID, Message: "How do I install Docker?", History: history})

	sess, err := e.Sessions().Get(resp.SessionID)
	if err != nil {
		t.Fatalf("session lookup: %v", err)
	}
	// Synced history (1 turn) plus the new exchange.
	if sess.Memory.Len() != 2 {
		t.Fatalf("memory len = %d, want 2", sess.Memory.Len())
	}
	turns := sess.Memory.Turns()
	if turns[0].UserText != "What is Docker?" {
		t.Fatalf("history not authoritative after sync: %+v", turns)
	}
}

func TestHandleTurnCancelledRequestLeavesNoTrace(t *testing.T) {
	gen := &fakeGen{reply: "answer"}
	store := archive.NewInMemoryStore()
	e := testEngine(&fakeRetriever{}, &fakeMatcher{}, gen, store)

	first := e.HandleTurn(context.Background(), Request{Message: "What is Docker?"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.HandleTurn(ctx, Request{SessionID: first.SessionID, Message: "How do I install Docker?"})

	sess, err := e.Sessions().Get(first.SessionID)
	if err != nil {
		t.Fatalf("session lookup: %v", err)
	}
	if sess.Memory.Len() != 1 {
		t.Fatalf("memory len = %d, want 1 (cancelled turn remembered)", sess.Memory.Len())
	}
	if sess.TurnCount != 1 {
		t.Fatalf("turn count = %d, want 1", sess.TurnCount)
	}
	records, err := store.SessionHistory(context.Background(), first.SessionID, 10)
	if err != nil {
		t.Fatalf("archive history: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("archived records = %d, want 1", len(records))
	}
}

func TestHandleTurnUnknownPersonalityFallsBack(t *testing.T) {
	gen := &fakeGen{reply: "answer"}
	e := testEngine(&fakeRetriever{}, &fakeMatcher{}, gen, archive.NewInMemoryStore())

	resp := e.HandleTurn(context.Background(), Request{Message: "hello", Personality: "definitely-not-real"})
	if resp.Personality != "NetworkChuck" {
		t.Fatalf("personality = %q, want default NetworkChuck", resp.Personality)
	}
}
