package customers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"
)

var ErrNotFound = errors.New("customers: not found")

// Repository is the customer status mirror.
type Repository interface {
	SetStatus(ctx context.Context, phone string, status Status) error
	Get(ctx context.Context, phone string) (*Customer, error)
	ListByStatus(ctx context.Context, statuses ...Status) ([]Customer, error)
}

// PostgresRepository stores customers via database/sql.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	if db == nil {
		panic("customers: db required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) SetStatus(ctx context.Context, phone string, status Status) error {
	if phone == "" {
		return errors.New("customers: phone required")
	}
	if !status.Valid() {
		return fmt.Errorf("customers: invalid status %q", status)
	}
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customers (phone, status, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (phone) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
	`, phone, string(status), now)
	if err != nil {
		return fmt.Errorf("customers: set status: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, phone string) (*Customer, error) {
	var c Customer
	var status string
	err := r.db.QueryRowContext(ctx, `
		SELECT phone, status, created_at, updated_at FROM customers WHERE phone = $1
	`, phone).Scan(&c.Phone, &status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("customers: get: %w", err)
	}
	c.Status = Status(status)
	return &c, nil
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, statuses ...Status) ([]Customer, error) {
	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT phone, status, created_at, updated_at
		FROM customers
		WHERE status = ANY($1)
		ORDER BY updated_at DESC
	`, pq.Array(values))
	if err != nil {
		return nil, fmt.Errorf("customers: list: %w", err)
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		var c Customer
		var status string
		if err := rows.Scan(&c.Phone, &status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("customers: scan: %w", err)
		}
		c.Status = Status(status)
		out = append(out, c)
	}
	return out, rows.Err()
}

// MemoryRepository is an in-process Repository for tests and local runs.
type MemoryRepository struct {
	mu        sync.RWMutex
	customers map[string]Customer
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{customers: make(map[string]Customer)}
}

func (r *MemoryRepository) SetStatus(_ context.Context, phone string, status Status) error {
	if phone == "" {
		return errors.New("customers: phone required")
	}
	if !status.Valid() {
		return fmt.Errorf("customers: invalid status %q", status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	c, ok := r.customers[phone]
	if !ok {
		c = Customer{Phone: phone, CreatedAt: now}
	}
	c.Status = status
	c.UpdatedAt = now
	r.customers[phone] = c
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, phone string) (*Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.customers[phone]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (r *MemoryRepository) ListByStatus(_ context.Context, statuses ...Status) ([]Customer, error) {
	want := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Customer
	for _, c := range r.customers {
		if want[c.Status] {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phone < out[j].Phone })
	return out, nil
}
