// Package classify labels each user utterance so the chat pipeline knows
// whether to retrieve fresh context, bias retrieval toward the recent
// conversation, or answer purely from memory. The rules are deliberately
// strict about memory recall: ordinary questions must never be answered from
// memory just because they were asked before.
package classify

import (
	"strings"
)

// Kind is the classification variant for one utterance.
type Kind string

const (
	// FreshSearch needs new retrieval; the default for almost everything.
	FreshSearch Kind = "fresh_search"
	// ContextFollowUp needs retrieval biased by the recent conversation.
	ContextFollowUp Kind = "context_follow_up"
	// MemoryRecall is answered entirely from conversation memory.
	MemoryRecall Kind = "memory_recall"
)

// SearchTermsNone is the sentinel carried by MemoryRecall classifications:
// the pipeline must not retrieve for this turn.
const SearchTermsNone = ""

// Classification is the label for one utterance. Computed fresh per turn,
// never persisted.
type Classification struct {
	Kind        Kind
	Reason      string
	SearchTerms string
	AvoidBias   bool
}

// ShouldRetrieve reports whether the pipeline should call the retriever.
func (c Classification) ShouldRetrieve() bool {
	return c.Kind != MemoryRecall
}

// MemoryView is the read-only view of conversation memory the classifier
// consults.
type MemoryView interface {
	IsEmpty() bool
}

// Options tunes classification per request.
type Options struct {
	// NoBias requests personality-neutral retrieval: search terms are
	// scrubbed of personality-flavored vocabulary and the retrieval layer
	// drops passages carrying personality markers.
	NoBias bool
}

// Explicit backward-reference markers. MemoryRecall triggers on these and
// nothing else; "what is X" asked twice is still a fresh question.
var recallMarkers = []string{
	"remind me",
	"what did we discuss",
	"what did we talk about",
	"what were we talking about",
	"what have we discussed",
	"what have we talked about",
	"summarize our conversation",
	"summarise our conversation",
	"recap our conversation",
	"recall our discussion",
	"what topics have we covered",
	"what was that thing you mentioned",
}

// Anaphoric references and incremental phrasings that mark a follow-up when
// the conversation already has content.
var followUpMarkers = []string{
	"what about",
	"how about",
	"and what about",
	"the other one",
	"that one",
	"expand on that",
	"more about that",
	"more on that",
	"tell me more",
	"next step",
	"go deeper",
	"how does that",
	"how does it",
	"why does that",
	"why does it",
	"can it",
	"does it",
	"is that",
	"is it",
}

// Question openers that always mean a fresh information request, repeated or
// not. Checked before follow-up markers so "what is it used for" still leans
// fresh only when it opens with a full subject.
var freshOpeners = []string{
	"what is ",
	"what's ",
	"what are ",
	"how do i ",
	"how to ",
	"how can i ",
	"explain ",
	"tell me about ",
	"show me ",
	"describe ",
	"define ",
}

var greetings = []string{
	"hello", "hi", "hey", "good morning", "good afternoon", "good evening",
	"how are you", "what's up", "thanks", "thank you", "bye", "goodbye",
}

// Stop words removed when deriving search terms from the raw query.
var searchStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"what": true, "whats": true, "how": true, "why": true, "when": true,
	"do": true, "does": true, "did": true, "i": true, "you": true, "we": true,
	"me": true, "my": true, "can": true, "could": true, "please": true,
	"explain": true, "tell": true, "about": true, "show": true, "describe": true,
	"define": true, "to": true, "of": true, "in": true, "on": true, "for": true,
	"and": true, "or": true, "it": true, "this": true, "that": true,
}

// Personality-flavored vocabulary scrubbed from search terms under NoBias.
var personalityVocabulary = []string{
	"coffee", "hey guys", "chuck", "what's up", "bloomy",
}

// Classify labels one utterance. Pure function of the query and the
// read-only memory view.
func Classify(query string, mem MemoryView, opts Options) Classification {
	normalized := normalize(query)

	if marker, ok := matchMarker(normalized, recallMarkers); ok {
		return Classification{
			Kind:        MemoryRecall,
			Reason:      "explicit recall marker: " + marker,
			SearchTerms: SearchTermsNone,
			AvoidBias:   opts.NoBias,
		}
	}

	if isGreeting(normalized) {
		return Classification{
			Kind:        FreshSearch,
			Reason:      "greeting or small talk",
			SearchTerms: deriveSearchTerms(query, opts.NoBias),
			AvoidBias:   opts.NoBias,
		}
	}

	if opensFresh(normalized) {
		return Classification{
			Kind:        FreshSearch,
			Reason:      "direct information request",
			SearchTerms: deriveSearchTerms(query, opts.NoBias),
			AvoidBias:   opts.NoBias,
		}
	}

	if mem != nil && !mem.IsEmpty() {
		if marker, ok := matchMarker(normalized, followUpMarkers); ok {
			return Classification{
				Kind:        ContextFollowUp,
				Reason:      "anaphoric follow-up: " + marker,
				SearchTerms: deriveSearchTerms(query, opts.NoBias),
				AvoidBias:   opts.NoBias,
			}
		}
	}

	return Classification{
		Kind:        FreshSearch,
		Reason:      "default: fresh information request",
		SearchTerms: deriveSearchTerms(query, opts.NoBias),
		AvoidBias:   opts.NoBias,
	}
}

// IsCasual reports whether the utterance is a greeting or pleasantry that
// should not get documentation links appended.
func IsCasual(query string) bool {
	return isGreeting(normalize(query))
}

func normalize(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	q = strings.NewReplacer("?", "", "!", "", ".", "", ",", " ").Replace(q)
	return strings.Join(strings.Fields(q), " ")
}

func matchMarker(normalized string, markers []string) (string, bool) {
	for _, marker := range markers {
		if strings.Contains(normalized, marker) {
			return marker, true
		}
	}
	return "", false
}

func isGreeting(normalized string) bool {
	if normalized == "" {
		return true
	}
	for _, g := range greetings {
		if normalized == g || strings.HasPrefix(normalized, g+" ") {
			// "hi, how do I install docker" is a real question, not a greeting.
			if len(normalized) > len(g)+12 {
				return false
			}
			return true
		}
	}
	return false
}

func opensFresh(normalized string) bool {
	for _, opener := range freshOpeners {
		if strings.HasPrefix(normalized, opener) {
			rest := strings.TrimSpace(strings.TrimPrefix(normalized, opener))
			// "what is it" / "what is that" carry no subject of their own.
			if rest == "it" || rest == "that" || rest == "this" {
				return false
			}
			return true
		}
	}
	return false
}

func deriveSearchTerms(query string, noBias bool) string {
	normalized := normalize(query)
	if noBias {
		for _, phrase := range personalityVocabulary {
			normalized = strings.ReplaceAll(normalized, phrase, " ")
		}
	}

	var kept []string
	for _, word := range strings.Fields(normalized) {
		if searchStopWords[word] {
			continue
		}
		kept = append(kept, word)
	}
	if len(kept) == 0 {
		return normalized
	}
	return strings.Join(kept, " ")
}
