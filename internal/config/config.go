package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the personality chat service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	SessionInactivityTimeout time.Duration

	MemoryWindowCapacity int
	MemoryContextBudget  int
	MemoryRecentTurns    int

	RetrievalTopK          int
	RelevanceThreshold     float64
	RetrievalContextBudget int

	DocsTopK          int
	DocsMinSimilarity float64
	DocsCatalogPath   string

	GenerationTemperature float32
	SummaryTemperature    float32
	CollaboratorTimeout   time.Duration

	LLMProvider          string
	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIEmbeddingModel string

	WeaviateURL   string
	WeaviateClass string

	DatabaseURL string

	PersonaConfigPath string
	TopicVocabPath    string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "personabot"),
		AllowAnyOrigin:           false,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
		MemoryWindowCapacity:     10,
		MemoryContextBudget:      3000,
		MemoryRecentTurns:        4,
		RetrievalTopK:            5,
		RelevanceThreshold:       0.3,
		RetrievalContextBudget:   3000,
		DocsTopK:                 3,
		DocsMinSimilarity:        0.2,
		DocsCatalogPath:          envOrDefault("DOCS_CATALOG_PATH", "data/documentation_links.json"),
		GenerationTemperature:    0.7,
		SummaryTemperature:       0.2,
		CollaboratorTimeout:      30 * time.Second,
		LLMProvider:              envOrDefault("LLM_PROVIDER", "auto"),
		OpenAIAPIKey:             stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIModel:              envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIEmbeddingModel:     envOrDefault("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		WeaviateURL:              stringsTrimSpace("WEAVIATE_URL"),
		WeaviateClass:            envOrDefault("WEAVIATE_CLASS", "TranscriptChunk"),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		PersonaConfigPath:        stringsTrimSpace("PERSONA_CONFIG_PATH"),
		TopicVocabPath:           stringsTrimSpace("TOPIC_VOCAB_PATH"),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CollaboratorTimeout, err = durationFromEnv("COLLABORATOR_TIMEOUT", cfg.CollaboratorTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryWindowCapacity, err = intFromEnv("MEMORY_WINDOW_CAPACITY", cfg.MemoryWindowCapacity)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryContextBudget, err = intFromEnv("MEMORY_CONTEXT_BUDGET", cfg.MemoryContextBudget)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryRecentTurns, err = intFromEnv("MEMORY_RECENT_TURNS", cfg.MemoryRecentTurns)
	if err != nil {
		return Config{}, err
	}
	cfg.RetrievalTopK, err = intFromEnv("RETRIEVAL_TOP_K", cfg.RetrievalTopK)
	if err != nil {
		return Config{}, err
	}
	cfg.RetrievalContextBudget, err = intFromEnv("RETRIEVAL_CONTEXT_BUDGET", cfg.RetrievalContextBudget)
	if err != nil {
		return Config{}, err
	}
	cfg.RelevanceThreshold, err = floatFromEnv("RELEVANCE_THRESHOLD", cfg.RelevanceThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.DocsTopK, err = intFromEnv("DOCS_TOP_K", cfg.DocsTopK)
	if err != nil {
		return Config{}, err
	}
	cfg.DocsMinSimilarity, err = floatFromEnv("DOCS_MIN_SIMILARITY", cfg.DocsMinSimilarity)
	if err != nil {
		return Config{}, err
	}

	temp, err := floatFromEnv("GENERATION_TEMPERATURE", float64(cfg.GenerationTemperature))
	if err != nil {
		return Config{}, err
	}
	cfg.GenerationTemperature = float32(temp)
	temp, err = floatFromEnv("SUMMARY_TEMPERATURE", float64(cfg.SummaryTemperature))
	if err != nil {
		return Config{}, err
	}
	cfg.SummaryTemperature = float32(temp)

	if cfg.MemoryWindowCapacity <= 0 {
		return Config{}, fmt.Errorf("MEMORY_WINDOW_CAPACITY must be positive")
	}
	if cfg.MemoryContextBudget <= 0 {
		return Config{}, fmt.Errorf("MEMORY_CONTEXT_BUDGET must be positive")
	}
	if cfg.MemoryRecentTurns <= 0 {
		return Config{}, fmt.Errorf("MEMORY_RECENT_TURNS must be positive")
	}
	if cfg.RetrievalTopK <= 0 {
		return Config{}, fmt.Errorf("RETRIEVAL_TOP_K must be positive")
	}
	if cfg.RelevanceThreshold < 0 || cfg.RelevanceThreshold > 1 {
		return Config{}, fmt.Errorf("RELEVANCE_THRESHOLD must be in [0,1]")
	}
	if cfg.DocsMinSimilarity < 0 || cfg.DocsMinSimilarity > 1 {
		return Config{}, fmt.Errorf("DOCS_MIN_SIMILARITY must be in [0,1]")
	}
	if cfg.GenerationTemperature < 0 || cfg.GenerationTemperature > 2 {
		return Config{}, fmt.Errorf("GENERATION_TEMPERATURE must be in [0,2]")
	}
	if cfg.CollaboratorTimeout < time.Second {
		return Config{}, fmt.Errorf("COLLABORATOR_TIMEOUT must be at least 1s")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
