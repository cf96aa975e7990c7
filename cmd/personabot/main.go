package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"personabot/internal/archive"
	"personabot/internal/chat"
	"personabot/internal/compose"
	"personabot/internal/config"
	"personabot/internal/docs"
	"personabot/internal/httpapi"
	"personabot/internal/llm"
	"personabot/internal/memory"
	"personabot/internal/observability"
	"personabot/internal/persona"
	"personabot/internal/retrieval"
	"personabot/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	client, err := llm.New(llm.Config{
		Provider:       cfg.LLMProvider,
		APIKey:         cfg.OpenAIAPIKey,
		Model:          cfg.OpenAIModel,
		EmbeddingModel: cfg.OpenAIEmbeddingModel,
	})
	if err != nil {
		log.Fatalf("llm provider init failed: %v", err)
	}
	if _, ok := client.(*llm.MockClient); ok {
		log.Printf("llm provider: mock (no API key configured)")
	} else {
		log.Printf("llm provider: openai (%s)", cfg.OpenAIModel)
	}

	ctx := context.Background()
	store, err := archive.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("archive store init failed: %v", err)
	}
	defer store.Close()

	registry := persona.NewRegistry()
	if strings.TrimSpace(cfg.PersonaConfigPath) != "" {
		registry, err = persona.NewRegistryFromFile(cfg.PersonaConfigPath)
		if err != nil {
			log.Fatalf("persona config load failed: %v", err)
		}
		log.Printf("personas loaded from %s: %v", cfg.PersonaConfigPath, registry.Names())
	}

	vocab := memory.DefaultVocabulary()
	if strings.TrimSpace(cfg.TopicVocabPath) != "" {
		vocab, err = memory.LoadVocabularyFile(cfg.TopicVocabPath)
		if err != nil {
			log.Fatalf("topic vocabulary load failed: %v", err)
		}
	}

	var retriever retrieval.Retriever
	if strings.TrimSpace(cfg.WeaviateURL) != "" {
		retriever, err = retrieval.NewWeaviateRetriever(cfg.WeaviateURL, cfg.WeaviateClass)
		if err != nil {
			log.Fatalf("weaviate retriever init failed: %v", err)
		}
		log.Printf("retriever: weaviate %s (class %s)", cfg.WeaviateURL, cfg.WeaviateClass)
	} else {
		log.Printf("retriever: disabled (WEAVIATE_URL not set)")
	}

	var matcher docs.Matcher
	if strings.TrimSpace(cfg.DocsCatalogPath) != "" {
		links, err := docs.LoadCatalog(cfg.DocsCatalogPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Printf("docs matcher: disabled (catalog %s not found)", cfg.DocsCatalogPath)
		case err != nil:
			log.Fatalf("docs catalog load failed: %v", err)
		default:
			m, err := docs.NewEmbeddingMatcher(ctx, client, links)
			if err != nil {
				log.Fatalf("docs matcher init failed: %v", err)
			}
			matcher = m
			log.Printf("docs matcher: %d links from %s", len(links), cfg.DocsCatalogPath)
		}
	} else {
		log.Printf("docs matcher: disabled (DOCS_CATALOG_PATH not set)")
	}

	summarizer := llm.NewSummarizer(client, cfg.SummaryTemperature)
	newMemory := func() *memory.Conversation {
		return memory.NewConversation(memory.Options{
			WindowCapacity: cfg.MemoryWindowCapacity,
			ContextBudget:  cfg.MemoryContextBudget,
			Summarizer:     summarizer,
			Vocabulary:     vocab,
			OnFoldIn: func(outcome string) {
				metrics.Summarizations.WithLabelValues(outcome).Inc()
			},
		})
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout, newMemory)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	composer := compose.New(client,
		compose.WithMaxRecentTurns(cfg.MemoryRecentTurns),
		compose.WithGenerateErrorHook(func(error) {
			metrics.CollaboratorErrors.WithLabelValues("generator", "complete").Inc()
		}),
	)

	engine := chat.NewEngine(sessions, registry, retriever, matcher, composer, store, metrics, chat.Tuning{
		RetrievalTopK:          cfg.RetrievalTopK,
		RelevanceThreshold:     cfg.RelevanceThreshold,
		RetrievalContextBudget: cfg.RetrievalContextBudget,
		DocsTopK:               cfg.DocsTopK,
		DocsMinSimilarity:      cfg.DocsMinSimilarity,
		MaxSources:             3,
		GenerationTemperature:  cfg.GenerationTemperature,
		CollaboratorTimeout:    cfg.CollaboratorTimeout,
	})

	api := httpapi.New(cfg, engine, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 30*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
