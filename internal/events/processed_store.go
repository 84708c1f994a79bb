package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Deduper claims provider event ids so each webhook event is acted on once.
type Deduper interface {
	// Claim returns true the first time an event id is seen.
	Claim(ctx context.Context, provider, eventID string) (bool, error)
	// Release forgets a claim so a provider retry can be processed.
	Release(ctx context.Context, provider, eventID string) error
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ProcessedStore keeps claims in the processed_events table.
type ProcessedStore struct {
	db execer
}

func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{db: pool}
}

func newProcessedStoreWithExec(db execer) *ProcessedStore {
	return &ProcessedStore{db: db}
}

func (s *ProcessedStore) Claim(ctx context.Context, provider, eventID string) (bool, error) {
	ct, err := s.db.Exec(ctx, `
		INSERT INTO processed_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, provider, eventID)
	if err != nil {
		return false, fmt.Errorf("events: claim %s/%s: %w", provider, eventID, err)
	}
	return ct.RowsAffected() > 0, nil
}

func (s *ProcessedStore) Release(ctx context.Context, provider, eventID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM processed_events WHERE provider = $1 AND event_id = $2`, provider, eventID); err != nil {
		return fmt.Errorf("events: release %s/%s: %w", provider, eventID, err)
	}
	return nil
}

// MemoryDeduper is a process-local Deduper.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]struct{})}
}

func (d *MemoryDeduper) Claim(_ context.Context, provider, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := provider + "/" + eventID
	if _, ok := d.seen[key]; ok {
		return false, nil
	}
	d.seen[key] = struct{}{}
	return true, nil
}

func (d *MemoryDeduper) Release(_ context.Context, provider, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, provider+"/"+eventID)
	return nil
}
