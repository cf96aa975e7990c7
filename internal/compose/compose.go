// Package compose builds the generation prompt for a classified turn and
// post-processes the raw model output per content settings.
package compose

import (
	"context"
	"fmt"
	"log"
	"strings"

	"personabot/internal/classify"
	"personabot/internal/llm"
	"personabot/internal/persona"
)

// Apology is returned whenever generation fails. A bad turn must never
// terminate the session.
const Apology = "I'm sorry, I hit a snag putting that answer together. Give me another shot in a moment."

// ContentSettings are per-request output toggles. Zero value means
// everything enabled with defaults applied by the caller.
type ContentSettings struct {
	IncludeSources     bool
	IncludeDocs        bool
	MaxSources         int
	RelevanceThreshold float64
	Temperature        float32
}

// DefaultSettings enables sources and docs with the standard knobs.
func DefaultSettings() ContentSettings {
	return ContentSettings{
		IncludeSources:     true,
		IncludeDocs:        true,
		MaxSources:         3,
		RelevanceThreshold: 0.3,
		Temperature:        0.7,
	}
}

// MemoryView is the read-only slice of conversation memory the composer
// needs.
type MemoryView interface {
	RenderContext(maxRecentTurns int) string
	RenderTopicSummary() string
}

// Composer turns a classified query plus its gathered context into the
// final response text.
type Composer struct {
	gen             llm.Generator
	maxRecentTurns  int
	onGenerateError func(err error)
}

// Option tweaks composer construction.
type Option func(*Composer)

// WithMaxRecentTurns bounds how many recent turns the prompt carries.
func WithMaxRecentTurns(n int) Option {
	return func(c *Composer) {
		if n > 0 {
			c.maxRecentTurns = n
		}
	}
}

// WithGenerateErrorHook installs a callback fired when generation fails and
// the apology fallback is used.
func WithGenerateErrorHook(fn func(err error)) Option {
	return func(c *Composer) { c.onGenerateError = fn }
}

func New(gen llm.Generator, opts ...Option) *Composer {
	c := &Composer{gen: gen, maxRecentTurns: 4}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose builds the prompt for the classification branch, invokes
// generation, and returns the response text. Generation failure yields the
// apology string, never an error.
func (c *Composer) Compose(ctx context.Context, query string, cls classify.Classification, mem MemoryView, retrievedContext string, profile persona.Profile, settings ContentSettings) string {
	var prompt string
	switch cls.Kind {
	case classify.MemoryRecall:
		prompt = c.recallPrompt(query, mem, profile)
	default:
		prompt = c.answerPrompt(query, mem, retrievedContext, profile)
	}

	out, err := c.gen.Complete(ctx, prompt, settings.Temperature)
	if err != nil {
		log.Printf("compose: generation failed (%s): %v", cls.Kind, err)
		if c.onGenerateError != nil {
			c.onGenerateError(err)
		}
		return Apology
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return Apology
	}
	return out
}

// recallPrompt answers "what did we discuss" turns from the exhaustive
// topic summary alone. No retrieved context, no source links.
func (c *Composer) recallPrompt(query string, mem MemoryView, profile persona.Profile) string {
	var b strings.Builder
	b.WriteString(profile.Style)
	b.WriteString("\n\nThe user is asking about your conversation so far. Answer ONLY from the conversation topics below. Cover every topic listed; do not invent topics that are not there.\n\n")
	b.WriteString("CONVERSATION TOPICS:\n")
	topics := mem.RenderTopicSummary()
	if strings.TrimSpace(topics) == "" {
		topics = "(no conversation yet)"
	}
	b.WriteString(topics)
	fmt.Fprintf(&b, "\n\nUSER QUESTION: %s\n", query)
	if profile.FormattingRules != "" {
		fmt.Fprintf(&b, "\nFORMATTING: %s\n", profile.FormattingRules)
	}
	return b.String()
}

// answerPrompt handles fresh-search and follow-up turns. Memory context is
// included for continuity even on fresh questions.
func (c *Composer) answerPrompt(query string, mem MemoryView, retrievedContext string, profile persona.Profile) string {
	var b strings.Builder
	b.WriteString(profile.Style)

	if memCtx := strings.TrimSpace(mem.RenderContext(c.maxRecentTurns)); memCtx != "" {
		b.WriteString("\n\nCONVERSATION SO FAR:\n")
		b.WriteString(memCtx)
	}
	if strings.TrimSpace(retrievedContext) != "" {
		b.WriteString("\n\nREFERENCE MATERIAL:\n")
		b.WriteString(retrievedContext)
	}
	fmt.Fprintf(&b, "\n\nUSER QUESTION: %s\n", query)
	b.WriteString("\nAnswer the question in character. Ground technical claims in the reference material when it is relevant; say so plainly when it is not.\n")
	if profile.FormattingRules != "" {
		fmt.Fprintf(&b, "\nFORMATTING: %s\n", profile.FormattingRules)
	}
	return b.String()
}
