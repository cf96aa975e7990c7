package llm

import (
	"context"
	"strings"
	"testing"
)

func TestNewProviderSelection(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantMock bool
		wantErr  bool
	}{
		{name: "auto without key", cfg: Config{Provider: "auto"}, wantMock: true},
		{name: "empty provider without key", cfg: Config{}, wantMock: true},
		{name: "auto with key", cfg: Config{Provider: "auto", APIKey: "sk-test"}, wantMock: false},
		{name: "explicit mock", cfg: Config{Provider: "mock", APIKey: "sk-test"}, wantMock: true},
		{name: "explicit openai", cfg: Config{Provider: "openai", APIKey: "sk-test"}, wantMock: false},
		{name: "openai without key", cfg: Config{Provider: "openai"}, wantErr: true},
		{name: "unknown provider", cfg: Config{Provider: "vertex"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("New(%+v) expected error", tt.cfg)
				}
				return
			}
			if err != nil {
				t.Fatalf("New(%+v) error = %v", tt.cfg, err)
			}
			_, isMock := c.(*MockClient)
			if isMock != tt.wantMock {
				t.Fatalf("New(%+v) mock = %v, want %v", tt.cfg, isMock, tt.wantMock)
			}
		})
	}
}

func TestMockEmbedDeterministic(t *testing.T) {
	m := NewMockClient()
	ctx := context.Background()

	a, err := m.Embed(ctx, []string{"docker networking", "docker networking", "excel pivot tables"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(a) != 3 {
		t.Fatalf("Embed() returned %d vectors, want 3", len(a))
	}
	for i := range a[0] {
		if a[0][i] != a[1][i] {
			t.Fatalf("equal texts produced different vectors at dim %d", i)
		}
	}
	same := true
	for i := range a[0] {
		if a[0][i] != a[2][i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("distinct texts produced identical vectors")
	}
}

func TestMockCompleteEmptyPrompt(t *testing.T) {
	m := NewMockClient()
	if _, err := m.Complete(context.Background(), "   ", 0.7); err != ErrNoCompletion {
		t.Fatalf("Complete(blank) error = %v, want ErrNoCompletion", err)
	}
}

type fakeGenerator struct {
	gotPrompt string
	gotTemp   float32
	reply     string
	err       error
}

func (f *fakeGenerator) Complete(_ context.Context, prompt string, temperature float32) (string, error) {
	f.gotPrompt = prompt
	f.gotTemp = temperature
	return f.reply, f.err
}

func TestSummarizerIncludesPreviousSummary(t *testing.T) {
	gen := &fakeGenerator{reply: "  merged summary  "}
	s := NewSummarizer(gen, 0.2)

	out, err := s.Summarize(context.Background(), "earlier digest", "User: hi\nAssistant: hello")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if out != "merged summary" {
		t.Fatalf("Summarize() = %q, want trimmed reply", out)
	}
	if gen.gotTemp != 0.2 {
		t.Fatalf("temperature = %v, want 0.2", gen.gotTemp)
	}
	if !strings.Contains(gen.gotPrompt, "earlier digest") {
		t.Fatalf("prompt missing previous summary: %q", gen.gotPrompt)
	}
	if !strings.Contains(gen.gotPrompt, "User: hi") {
		t.Fatalf("prompt missing excerpt: %q", gen.gotPrompt)
	}
}

func TestSummarizerOmitsEmptyPreviousSummary(t *testing.T) {
	gen := &fakeGenerator{reply: "fresh summary"}
	s := NewSummarizer(gen, 0.2)

	if _, err := s.Summarize(context.Background(), "  ", "User: hi"); err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if strings.Contains(gen.gotPrompt, "Existing summary") {
		t.Fatalf("prompt should not mention a previous summary: %q", gen.gotPrompt)
	}
}
