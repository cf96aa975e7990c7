// Package archive persists completed exchanges as a durable transcript,
// independent of the bounded in-session conversation memory. Archival is
// best-effort: a failed write is logged by the caller, never fatal to the
// turn.
package archive

import (
	"context"
	"strings"
	"time"
)

// ExchangeRecord stores one completed user/assistant exchange.
type ExchangeRecord struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Personality    string    `json:"personality"`
	Classification string    `json:"classification"`
	UserText       string    `json:"user_text"`
	AssistantText  string    `json:"assistant_text"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store persists and retrieves archived exchanges.
type Store interface {
	SaveExchange(ctx context.Context, record ExchangeRecord) error
	SessionHistory(ctx context.Context, sessionID string, limit int) ([]ExchangeRecord, error)
	Close() error
}

// NewStore creates a postgres-backed store when configured, otherwise
// in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
