package archive

import (
	"context"
	"testing"
)

func TestInMemoryStoreRoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for i, q := range []string{"first", "second", "third"} {
		err := s.SaveExchange(ctx, ExchangeRecord{
			SessionID:      "sess-1",
			UserText:       q,
			AssistantText:  "answer",
			Classification: "fresh_search",
		})
		if err != nil {
			t.Fatalf("SaveExchange(%d) error = %v", i, err)
		}
	}

	got, err := s.SessionHistory(ctx, "sess-1", 2)
	if err != nil {
		t.Fatalf("SessionHistory() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("SessionHistory(limit=2) = %d records, want 2", len(got))
	}
	if got[0].UserText != "second" || got[1].UserText != "third" {
		t.Fatalf("history not chronological: %+v", got)
	}
	for _, r := range got {
		if r.ID == "" || r.CreatedAt.IsZero() {
			t.Fatalf("record missing generated fields: %+v", r)
		}
	}
}

func TestInMemoryStoreIsolatesSessions(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.SaveExchange(ctx, ExchangeRecord{SessionID: "a", UserText: "q", AssistantText: "r"}); err != nil {
		t.Fatalf("SaveExchange() error = %v", err)
	}

	got, err := s.SessionHistory(ctx, "b", 10)
	if err != nil {
		t.Fatalf("SessionHistory() error = %v", err)
	}
	if got != nil {
		t.Fatalf("SessionHistory(other session) = %v, want nil", got)
	}
}

func TestNewStoreDefaultsToInMemory(t *testing.T) {
	s, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Fatalf("NewStore(\"\") = %T, want *InMemoryStore", s)
	}
}
