package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

type fakeSummarizer struct {
	calls int
	fail  bool
}

func (f *fakeSummarizer) Summarize(_ context.Context, previous, turnsText string) (string, error) {
	f.calls++
	if f.fail {
		return "", errors.New("summarizer unavailable")
	}
	if previous == "" {
		return "summary v1", nil
	}
	return previous + " +more", nil
}

func TestAppendKeepsWindowBounded(t *testing.T) {
	sum := &fakeSummarizer{}
	c := NewConversation(Options{WindowCapacity: 10, Summarizer: sum})

	for i := 0; i < 13; i++ {
		c.Append(context.Background(), fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i))
		if got := c.Len(); got > 10 {
			t.Fatalf("after append %d: Len() = %d, want <= 10", i, got)
		}
	}

	if got := c.Len(); got != 10 {
		t.Fatalf("Len() = %d, want 10", got)
	}
	if c.Summary() == "" {
		t.Fatalf("Summary() is empty after overflow, want non-empty")
	}
	if sum.calls == 0 {
		t.Fatalf("summarizer was never called")
	}

	// Oldest surviving turn is the one evicted turns precede.
	turns := c.Turns()
	if turns[0].UserText != "question 3" {
		t.Fatalf("oldest live turn = %q, want %q", turns[0].UserText, "question 3")
	}
	if turns[len(turns)-1].SequenceIndex != 12 {
		t.Fatalf("newest sequence index = %d, want 12", turns[len(turns)-1].SequenceIndex)
	}
}

func TestSummarizerFailureDropsWithoutError(t *testing.T) {
	outcomes := []string{}
	c := NewConversation(Options{
		WindowCapacity: 2,
		Summarizer:     &fakeSummarizer{fail: true},
		OnFoldIn:       func(outcome string) { outcomes = append(outcomes, outcome) },
	})

	for i := 0; i < 4; i++ {
		c.Append(context.Background(), fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	if got := c.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	if c.Summary() != "" {
		t.Fatalf("Summary() = %q, want unchanged empty summary on failure", c.Summary())
	}
	for _, outcome := range outcomes {
		if outcome != "fallback" {
			t.Fatalf("fold-in outcome = %q, want fallback", outcome)
		}
	}
	if len(outcomes) == 0 {
		t.Fatalf("no fold-in outcomes recorded")
	}
}

func TestSummaryOnlyClearedByClear(t *testing.T) {
	c := NewConversation(Options{WindowCapacity: 2, Summarizer: &fakeSummarizer{}})
	for i := 0; i < 5; i++ {
		c.Append(context.Background(), fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}
	if c.Summary() == "" {
		t.Fatalf("expected non-empty summary")
	}

	// Further appends must never blank the summary.
	for i := 5; i < 9; i++ {
		c.Append(context.Background(), fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		if c.Summary() == "" {
			t.Fatalf("summary cleared by append %d", i)
		}
	}

	c.Clear()
	if c.Summary() != "" || c.Len() != 0 {
		t.Fatalf("after Clear(): summary=%q len=%d, want empty and 0", c.Summary(), c.Len())
	}
	if got := c.RenderContext(4); got != "" {
		t.Fatalf("RenderContext() after clear = %q, want empty", got)
	}
	if got := c.RenderTopicSummary(); got != "" {
		t.Fatalf("RenderTopicSummary() after clear = %q, want empty", got)
	}
}

func TestRenderContextOrderAndBudget(t *testing.T) {
	c := NewConversation(Options{WindowCapacity: 10, ContextBudget: 200})
	long := strings.Repeat("x", 500)
	c.Append(context.Background(), "first question", long)
	c.Append(context.Background(), "second question", long)

	out := c.RenderContext(4)
	if len(out) > 200 {
		t.Fatalf("RenderContext length = %d, want <= 200", len(out))
	}
	if !strings.Contains(out, "...") {
		t.Fatalf("expected ellipsis-marked truncation, got %q", out)
	}
	first := strings.Index(out, "first question")
	second := strings.Index(out, "second question")
	if first == -1 || second == -1 || first > second {
		t.Fatalf("turns out of order in %q", out)
	}
}

func TestRenderContextTightBudgetIsHardCap(t *testing.T) {
	c := NewConversation(Options{WindowCapacity: 10, ContextBudget: 100})
	long := strings.Repeat("x", 300)
	for i := 0; i < 4; i++ {
		c.Append(context.Background(), long, long)
	}

	out := c.RenderContext(4)
	if len(out) > 100 {
		t.Fatalf("RenderContext length = %d, want <= 100", len(out))
	}
	if out == "" {
		t.Fatalf("RenderContext returned nothing under a tight budget")
	}
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	s := strings.Repeat("café ", 20)
	for max := 1; max < 30; max++ {
		got := truncate(s, max)
		if len(got) > max {
			t.Fatalf("truncate(%d) length = %d", max, len(got))
		}
		if !utf8.ValidString(got) {
			t.Fatalf("truncate(%d) produced invalid UTF-8: %q", max, got)
		}
	}
}

func TestRenderContextLimitsRecentTurns(t *testing.T) {
	c := NewConversation(Options{WindowCapacity: 10})
	for i := 0; i < 6; i++ {
		c.Append(context.Background(), fmt.Sprintf("question %d", i), "fine")
	}
	out := c.RenderContext(2)
	if strings.Contains(out, "question 3") {
		t.Fatalf("RenderContext(2) included older turn: %q", out)
	}
	if !strings.Contains(out, "question 4") || !strings.Contains(out, "question 5") {
		t.Fatalf("RenderContext(2) missing recent turns: %q", out)
	}
}

func TestRenderContextIncludesSummaryFirst(t *testing.T) {
	c := NewConversation(Options{WindowCapacity: 1, Summarizer: &fakeSummarizer{}})
	c.Append(context.Background(), "old question", "old answer")
	c.Append(context.Background(), "new question", "new answer")

	out := c.RenderContext(4)
	sumIdx := strings.Index(out, "summary v1")
	turnIdx := strings.Index(out, "new question")
	if sumIdx == -1 || turnIdx == -1 || sumIdx > turnIdx {
		t.Fatalf("summary must precede live turns: %q", out)
	}
}

func TestRenderTopicSummaryCoversAllTurns(t *testing.T) {
	c := NewConversation(Options{WindowCapacity: 20})
	c.Append(context.Background(), "How do I install Docker?", "Like this.")
	c.Append(context.Background(), "How do I use VLOOKUP in Excel?", "Like that.")
	c.Append(context.Background(), "And pivot tables?", "Sure.")

	out := c.RenderTopicSummary()
	if !strings.Contains(out, "Docker") {
		t.Fatalf("topic summary missing Docker: %q", out)
	}
	if !strings.Contains(out, "Excel") {
		t.Fatalf("topic summary missing Excel: %q", out)
	}
	dockerIdx := strings.Index(out, "Docker")
	excelIdx := strings.Index(out, "Excel")
	if dockerIdx > excelIdx {
		t.Fatalf("topics not in first-mention order: %q", out)
	}
}

func TestRenderTopicSummaryFallsBackToQuestions(t *testing.T) {
	c := NewConversation(Options{WindowCapacity: 20})
	c.Append(context.Background(), "Tell me about beekeeping", "Bees are great.")

	out := c.RenderTopicSummary()
	if !strings.Contains(out, "beekeeping") {
		t.Fatalf("fallback summary missing question text: %q", out)
	}
}

func TestRegisteredTopicIsDetected(t *testing.T) {
	vocab := DefaultVocabulary()
	vocab.Register("Beekeeping", "Keeping bees and harvesting honey", "beekeeping", "apiary")

	c := NewConversation(Options{WindowCapacity: 20, Vocabulary: vocab})
	c.Append(context.Background(), "How do I start an apiary?", "Carefully.")

	out := c.RenderTopicSummary()
	if !strings.Contains(out, "Beekeeping") {
		t.Fatalf("registered topic not detected: %q", out)
	}
}
