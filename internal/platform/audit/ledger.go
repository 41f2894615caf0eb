// Package audit is the append-only ledger of orchestration actions. Entries
// are written once and never updated or deleted.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

// Entry is a single audit_entry row.
type Entry struct {
	ID         uuid.UUID      `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Metadata   map[string]any `json:"metadata"`
	ActorID    string         `json:"actor_id"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Ledger appends audit entries. Implementations must return the store's error
// rather than drop the write.
type Ledger interface {
	Log(ctx context.Context, action, entityType, entityID string, metadata map[string]any, actorID string) error
}

// PGLedger writes entries to the audit_entry table.
type PGLedger struct {
	pool *pgxpool.Pool
}

func NewPGLedger(pool *pgxpool.Pool) *PGLedger {
	return &PGLedger{pool: pool}
}

// Log inserts one entry. When ctx carries a transaction (db.WithTx) the insert
// joins it.
func (l *PGLedger) Log(ctx context.Context, action, entityType, entityID string, metadata map[string]any, actorID string) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("audit: encode metadata: %w", err)
	}

	const query = `
		INSERT INTO audit_entry (id, action, entity_type, entity_id, metadata, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = db.Conn(ctx, l.pool).Exec(ctx, query,
		uuid.New(), action, entityType, entityID, raw, actorID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("audit: insert %s for %s/%s: %w", action, entityType, entityID, err)
	}
	return nil
}

// MemoryLedger keeps entries in process. It backs development runs without a
// database and the orchestration tests.
type MemoryLedger struct {
	mu      sync.Mutex
	entries []Entry
	// FailWith, when set, is returned from every Log call and nothing is stored.
	FailWith error
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (l *MemoryLedger) Log(_ context.Context, action, entityType, entityID string, metadata map[string]any, actorID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.FailWith != nil {
		return l.FailWith
	}

	copied := make(map[string]any, len(metadata))
	for k, v := range metadata {
		copied[k] = v
	}
	l.entries = append(l.entries, Entry{
		ID:         uuid.New(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   copied,
		ActorID:    actorID,
		Timestamp:  time.Now().UTC(),
	})
	return nil
}

// Entries returns a copy of everything logged so far, oldest first.
func (l *MemoryLedger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// ByAction returns the entries recorded under action.
func (l *MemoryLedger) ByAction(action string) []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
