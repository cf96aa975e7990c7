package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"unicode/utf8"
)

// Turn is one user utterance plus the assistant reply. Immutable once stored.
type Turn struct {
	UserText      string `json:"user_text"`
	AssistantText string `json:"assistant_text"`
	SequenceIndex int    `json:"sequence_index"`
}

// Summarizer folds evicted turns into a compact running summary.
type Summarizer interface {
	Summarize(ctx context.Context, previousSummary, turnsText string) (string, error)
}

// Options configures a Conversation.
type Options struct {
	// WindowCapacity is the max number of live turns before fold-in.
	WindowCapacity int
	// ContextBudget is the character budget for RenderContext output.
	ContextBudget int
	// Summarizer compresses evicted turns. Nil means evictions are dropped.
	Summarizer Summarizer
	// Vocabulary drives topic detection for RenderTopicSummary.
	// Nil falls back to the built-in vocabulary.
	Vocabulary *TopicVocabulary
	// OnFoldIn is called after each overflow fold-in with "ok" or "fallback".
	OnFoldIn func(outcome string)
}

// Conversation is a bounded, ordered log of turns with a lossy summary of
// everything evicted from the live window. One instance per chat session.
type Conversation struct {
	mu      sync.Mutex
	turns   []Turn
	summary string
	nextSeq int
	opts    Options
}

func NewConversation(opts Options) *Conversation {
	if opts.WindowCapacity <= 0 {
		opts.WindowCapacity = 10
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = 3000
	}
	if opts.Vocabulary == nil {
		opts.Vocabulary = DefaultVocabulary()
	}
	return &Conversation{opts: opts}
}

// Append records one completed exchange. If the live window overflows, the
// oldest excess turns are folded into the summary; a summarization failure
// falls back to dropping them and never reaches the caller.
func (c *Conversation) Append(ctx context.Context, userText, assistantText string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = append(c.turns, Turn{
		UserText:      userText,
		AssistantText: assistantText,
		SequenceIndex: c.nextSeq,
	})
	c.nextSeq++
	c.enforceCapacityLocked(ctx)
}

// Clear atomically empties both the live window and the summary.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
	c.summary = ""
	c.nextSeq = 0
}

// Len reports the number of live turns.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// IsEmpty reports whether the conversation holds no turns and no summary.
func (c *Conversation) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns) == 0 && c.summary == ""
}

// Summary returns the current compressed digest of evicted turns.
func (c *Conversation) Summary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}

// Turns returns a copy of the live window, oldest first.
func (c *Conversation) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// RenderContext produces the deterministic context block handed to the
// generator: summary first, then at most maxRecentTurns most-recent turns,
// oldest first. The output never exceeds the configured character budget;
// when the budget is tight, turn text is truncated with an ellipsis rather
// than whole turns being dropped.
func (c *Conversation) RenderContext(maxRecentTurns int) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.turns) == 0 && c.summary == "" {
		return ""
	}
	if maxRecentTurns <= 0 {
		maxRecentTurns = len(c.turns)
	}

	recent := c.turns
	if len(recent) > maxRecentTurns {
		recent = recent[len(recent)-maxRecentTurns:]
	}

	budget := c.opts.ContextBudget
	var header string
	if c.summary != "" {
		header = "Earlier conversation summary:\n" + c.summary + "\n\n"
		if len(header) > budget/2 {
			header = "Earlier conversation summary:\n" + truncate(c.summary, budget/2) + "\n\n"
		}
		budget -= len(header)
	}

	if len(recent) == 0 {
		return strings.TrimSpace(header)
	}

	// Two messages per turn share the remaining budget evenly, with the
	// fixed role labels paid for first.
	labelOverhead := len("User: ") + len("\nAssistant: ") + len("\n")
	perMessage := 1
	if usable := budget - len(recent)*labelOverhead; usable > len(recent)*2 {
		perMessage = usable / (len(recent) * 2)
	}

	var b strings.Builder
	b.WriteString(header)
	for _, turn := range recent {
		b.WriteString("User: ")
		b.WriteString(truncate(turn.UserText, perMessage))
		b.WriteString("\nAssistant: ")
		b.WriteString(truncate(turn.AssistantText, perMessage))
		b.WriteString("\n")
	}

	out := strings.TrimSpace(b.String())
	// The configured budget is a hard cap, label overhead included.
	if len(out) > c.opts.ContextBudget {
		out = strings.TrimSpace(truncate(out, c.opts.ContextBudget))
	}
	return out
}

// RenderTopicSummary enumerates every distinct topic detected across all
// live turns, oldest first, so recall answers cover the whole conversation
// rather than the recent slice. Returns "" for an empty conversation.
func (c *Conversation) RenderTopicSummary() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.turns) == 0 && c.summary == "" {
		return ""
	}

	hits := c.opts.Vocabulary.DetectAll(c.turns)

	var b strings.Builder
	if c.summary != "" {
		b.WriteString("Earlier conversation summary:\n")
		b.WriteString(c.summary)
		b.WriteString("\n\n")
	}
	if len(hits) > 0 {
		b.WriteString("Topics covered in this conversation:\n")
		for i, hit := range hits {
			fmt.Fprintf(&b, "%d. %s: %s", i+1, hit.Topic, hit.Description)
			if hit.FirstMention != "" {
				fmt.Fprintf(&b, " (first raised as: %q)", truncate(hit.FirstMention, 120))
			}
			b.WriteString("\n")
		}
	} else {
		// No vocabulary hits: fall back to a plain transcript of user questions.
		b.WriteString("Questions asked in this conversation:\n")
		for i, turn := range c.turns {
			fmt.Fprintf(&b, "%d. %s\n", i+1, truncate(turn.UserText, 160))
		}
	}
	return strings.TrimSpace(b.String())
}

func (c *Conversation) enforceCapacityLocked(ctx context.Context) {
	capacity := c.opts.WindowCapacity
	if len(c.turns) <= capacity {
		return
	}

	excess := c.turns[:len(c.turns)-capacity]
	var text strings.Builder
	for _, turn := range excess {
		text.WriteString("User: ")
		text.WriteString(turn.UserText)
		text.WriteString("\nAssistant: ")
		text.WriteString(turn.AssistantText)
		text.WriteString("\n")
	}

	folded := false
	if c.opts.Summarizer != nil {
		updated, err := c.opts.Summarizer.Summarize(ctx, c.summary, text.String())
		if err != nil {
			log.Printf("memory: summarization failed, dropping %d turn(s): %v", len(excess), err)
		} else if strings.TrimSpace(updated) != "" {
			c.summary = strings.TrimSpace(updated)
			folded = true
		}
	}

	c.turns = append([]Turn(nil), c.turns[len(c.turns)-capacity:]...)

	if c.opts.OnFoldIn != nil {
		if folded {
			c.opts.OnFoldIn("ok")
		} else {
			c.opts.OnFoldIn("fallback")
		}
	}
}

// truncate shortens s to at most max bytes, cutting on a rune boundary so
// multi-byte text never renders as invalid UTF-8.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	if max > 3 {
		cut = max - 3
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if max <= 3 {
		return s[:cut]
	}
	return s[:cut] + "..."
}
