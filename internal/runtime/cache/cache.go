package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is a cached response document together with its retention envelope.
// Payload holds the roadmap JSON for plan requests or the JSON-encoded answer
// string for chat requests.
type Entry struct {
	Payload   json.RawMessage `json:"payload"`
	StoredAt  time.Time       `json:"storedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// ResultCache stores generated documents under their request fingerprints so
// byte-identical requests inside the retention window skip the planner.
type ResultCache interface {
	Lookup(ctx context.Context, key string) (Entry, bool, error)
	Store(ctx context.Context, key string, entry Entry) error
	Size(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}
