package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Record is one row of deployment history.
type Record struct {
	ID        uuid.UUID `json:"id"`
	Phone     string    `json:"phone"`
	Subdomain string    `json:"subdomain"`
	Label     string    `json:"label"`
	Mode      string    `json:"mode"`
	Status    string    `json:"status"`
	URL       string    `json:"url,omitempty"`
	DeployID  string    `json:"deploy_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Recorder persists deployment history.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository stores deployment records in Postgres.
type Repository struct {
	db pgQuerier
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("deploy: pgx pool required")
	}
	return &Repository{db: pool}
}

func newRepositoryWithQuerier(db pgQuerier) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Record(ctx context.Context, rec Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO deployments (id, phone, subdomain, label, mode, status, url, deploy_id, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.ID, rec.Phone, rec.Subdomain, rec.Label, rec.Mode, rec.Status, rec.URL, rec.DeployID, rec.Error, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("deploy: record deployment: %w", err)
	}
	return nil
}

// ListByPhone returns the newest deployments for a phone.
func (r *Repository) ListByPhone(ctx context.Context, phone string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, phone, subdomain, label, mode, status, url, deploy_id, error, created_at
		FROM deployments
		WHERE phone = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, phone, limit)
	if err != nil {
		return nil, fmt.Errorf("deploy: list deployments: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Phone, &rec.Subdomain, &rec.Label, &rec.Mode, &rec.Status, &rec.URL, &rec.DeployID, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("deploy: scan deployment: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deploy: iterate deployments: %w", err)
	}
	return out, nil
}
