// Package chat orchestrates one conversational turn: sync memory, classify,
// gather context, compose, filter, remember, archive.
package chat

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"personabot/internal/archive"
	"personabot/internal/classify"
	"personabot/internal/compose"
	"personabot/internal/docs"
	"personabot/internal/memory"
	"personabot/internal/observability"
	"personabot/internal/persona"
	"personabot/internal/retrieval"
	"personabot/internal/session"
	"personabot/internal/voice"
)

// Request carries one user turn. History, when present, replaces the
// session's memory before the turn runs; clients that keep their own
// transcript stay authoritative over it.
type Request struct {
	SessionID   string                   `json:"session_id"`
	UserID      string                   `json:"user_id"`
	Message     string                   `json:"message"`
	Personality string                   `json:"personality"`
	NoBias      bool                     `json:"no_bias"`
	History     []memory.Record          `json:"history,omitempty"`
	Settings    *compose.ContentSettings `json:"settings,omitempty"`
}

// Response is the completed turn.
type Response struct {
	SessionID      string `json:"session_id"`
	Personality    string `json:"personality"`
	Classification string `json:"classification"`
	Reason         string `json:"reason"`
	Text           string `json:"text"`
	SpeechText     string `json:"speech_text"`
}

// Tuning bounds the context-gathering stage.
type Tuning struct {
	RetrievalTopK          int
	RelevanceThreshold     float64
	RetrievalContextBudget int
	DocsTopK               int
	DocsMinSimilarity      float64
	MaxSources             int
	GenerationTemperature  float32
	CollaboratorTimeout    time.Duration
}

func DefaultTuning() Tuning {
	return Tuning{
		RetrievalTopK:          5,
		RelevanceThreshold:     0.3,
		RetrievalContextBudget: 3000,
		DocsTopK:               3,
		DocsMinSimilarity:      0.2,
		MaxSources:             3,
		GenerationTemperature:  0.7,
		CollaboratorTimeout:    30 * time.Second,
	}
}

// defaultSettings seeds per-request content settings from the engine tuning.
// Request-supplied settings override all of it.
func (t Tuning) defaultSettings() compose.ContentSettings {
	s := compose.DefaultSettings()
	if t.MaxSources > 0 {
		s.MaxSources = t.MaxSources
	}
	if t.RelevanceThreshold > 0 {
		s.RelevanceThreshold = t.RelevanceThreshold
	}
	if t.GenerationTemperature > 0 {
		s.Temperature = t.GenerationTemperature
	}
	return s
}

// Engine wires the pipeline together. Retriever and matcher may be nil when
// the deployment has no vector store or doc catalog; those stages degrade to
// empty context.
type Engine struct {
	sessions  *session.Manager
	personas  *persona.Registry
	retriever retrieval.Retriever
	matcher   docs.Matcher
	composer  *compose.Composer
	archive   archive.Store
	metrics   *observability.Metrics
	tuning    Tuning
}

func NewEngine(sessions *session.Manager, personas *persona.Registry, retriever retrieval.Retriever, matcher docs.Matcher, composer *compose.Composer, store archive.Store, metrics *observability.Metrics, tuning Tuning) *Engine {
	if tuning.CollaboratorTimeout <= 0 {
		tuning.CollaboratorTimeout = DefaultTuning().CollaboratorTimeout
	}
	return &Engine{
		sessions:  sessions,
		personas:  personas,
		retriever: retriever,
		matcher:   matcher,
		composer:  composer,
		archive:   store,
		metrics:   metrics,
		tuning:    tuning,
	}
}

func (e *Engine) Sessions() *session.Manager { return e.sessions }

func (e *Engine) Personas() *persona.Registry { return e.personas }

// HandleTurn runs the full pipeline for one user message. It always returns
// a response; collaborator failures degrade to empty context or the
// composer's apology, never an error.
func (e *Engine) HandleTurn(ctx context.Context, req Request) Response {
	sess := e.sessions.GetOrCreate(req.SessionID, req.UserID, req.Personality)
	profile := e.personas.Get(req.Personality)

	settings := e.tuning.defaultSettings()
	if req.Settings != nil {
		settings = *req.Settings
	}

	if len(req.History) > 0 {
		sess.Memory.SyncFromHistory(ctx, memory.EntriesFromRecords(req.History))
	}

	cls := classify.Classify(req.Message, sess.Memory, classify.Options{NoBias: req.NoBias})

	passages, matches := e.gatherContext(ctx, cls, req.Message)
	passages = retrieval.FilterByScore(passages, settings.RelevanceThreshold)
	if cls.AvoidBias {
		passages = retrieval.FilterBias(passages)
	}
	retrievedContext := ""
	if cls.ShouldRetrieve() {
		retrievedContext = retrieval.Format(passages, e.tuning.RetrievalContextBudget)
	}

	genStart := time.Now()
	text := e.composer.Compose(ctx, req.Message, cls, sess.Memory, retrievedContext, profile, settings)
	if e.metrics != nil {
		e.metrics.ObserveGenerationLatency(time.Since(genStart))
	}

	if text != compose.Apology && cls.Kind != classify.MemoryRecall {
		if settings.IncludeSources {
			text += retrieval.Citations(passages, settings.MaxSources)
		}
		if settings.IncludeDocs {
			text += docs.FormatLinks(matches)
		}
	}
	text = compose.ApplyFilters(text, settings)

	// A cancelled request discards the turn: nothing is remembered or
	// archived for a reply the client never received.
	if ctx.Err() != nil {
		log.Printf("chat: turn cancelled for session %s: %v", sess.ID, ctx.Err())
		return Response{
			SessionID:      sess.ID,
			Personality:    profile.Name,
			Classification: string(cls.Kind),
			Reason:         cls.Reason,
			Text:           text,
			SpeechText:     voice.SpeechText(text),
		}
	}

	sess.Memory.Append(ctx, req.Message, text)
	if err := e.sessions.RecordTurn(sess.ID); err != nil {
		log.Printf("chat: record turn for session %s: %v", sess.ID, err)
	}
	e.archiveExchange(ctx, sess, req, cls, text)

	if e.metrics != nil {
		e.metrics.TurnsTotal.WithLabelValues(string(cls.Kind)).Inc()
	}

	return Response{
		SessionID:      sess.ID,
		Personality:    profile.Name,
		Classification: string(cls.Kind),
		Reason:         cls.Reason,
		Text:           text,
		SpeechText:     voice.SpeechText(text),
	}
}

// gatherContext runs retrieval and documentation matching concurrently.
// Both are skipped for memory-recall turns, and each failure degrades to an
// empty result for its half only.
func (e *Engine) gatherContext(ctx context.Context, cls classify.Classification, query string) ([]retrieval.Passage, []docs.Match) {
	if !cls.ShouldRetrieve() {
		return nil, nil
	}

	searchTerms := cls.SearchTerms
	if searchTerms == classify.SearchTermsNone {
		searchTerms = query
	}

	var (
		passages []retrieval.Passage
		matches  []docs.Match
	)
	g, gctx := errgroup.WithContext(ctx)

	if e.retriever != nil {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, e.tuning.CollaboratorTimeout)
			defer cancel()

			start := time.Now()
			got, err := e.retriever.Retrieve(callCtx, searchTerms, e.tuning.RetrievalTopK)
			if e.metrics != nil {
				e.metrics.ObserveRetrievalLatency(time.Since(start))
			}
			if err != nil {
				log.Printf("chat: retrieval failed: %v", err)
				if e.metrics != nil {
					e.metrics.CollaboratorErrors.WithLabelValues("retriever", "retrieve").Inc()
				}
				return nil
			}
			passages = got
			return nil
		})
	}

	// Greetings and pleasantries never get documentation links.
	if e.matcher != nil && !classify.IsCasual(query) {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, e.tuning.CollaboratorTimeout)
			defer cancel()

			got, err := e.matcher.Match(callCtx, query, e.tuning.DocsTopK, e.tuning.DocsMinSimilarity)
			if err != nil {
				log.Printf("chat: doc matching failed: %v", err)
				if e.metrics != nil {
					e.metrics.CollaboratorErrors.WithLabelValues("docmatcher", "match").Inc()
				}
				return nil
			}
			matches = got
			return nil
		})
	}

	// Workers swallow their own errors, so Wait only synchronizes.
	_ = g.Wait()
	return passages, matches
}

// archiveExchange persists the turn best-effort. A failed write never fails
// the turn.
func (e *Engine) archiveExchange(ctx context.Context, sess *session.Session, req Request, cls classify.Classification, text string) {
	if e.archive == nil {
		return
	}
	err := e.archive.SaveExchange(ctx, archive.ExchangeRecord{
		SessionID:      sess.ID,
		UserID:         sess.UserID,
		Personality:    req.Personality,
		Classification: string(cls.Kind),
		UserText:       req.Message,
		AssistantText:  text,
	})
	if err != nil {
		log.Printf("chat: archive exchange for session %s: %v", sess.ID, err)
		if e.metrics != nil {
			e.metrics.CollaboratorErrors.WithLabelValues("archive", "save").Inc()
		}
	}
}
