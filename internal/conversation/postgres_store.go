package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the durable Store.
type PostgresStore struct {
	db  pgxQuerier
	now func() time.Time
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return newPostgresStoreWithDB(pool)
}

func newPostgresStoreWithDB(db pgxQuerier) *PostgresStore {
	return &PostgresStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const conversationColumns = `phone, state, site_name, site_type, contact_phone, site_url, site_subdomain,
	site_html, carrier_number, paid_at, expires_at, site_deleted, created_at, updated_at`

func scanConversation(row pgx.Row) (*Conversation, error) {
	var (
		c     Conversation
		state string
		html  *string
	)
	err := row.Scan(&c.Phone, &state, &c.SiteName, &c.SiteType, &c.ContactPhone, &c.SiteURL, &c.SiteSubdomain,
		&html, &c.CarrierNumber, &c.PaidAt, &c.ExpiresAt, &c.SiteDeleted, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.State = State(state)
	if html != nil {
		c.SiteHTML = *html
	}
	return &c, nil
}

func nullableHTML(html string) *string {
	if html == "" {
		return nil
	}
	return &html
}

func (s *PostgresStore) Get(ctx context.Context, phone string) (*Conversation, error) {
	c, err := scanConversation(s.db.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE phone = $1`, phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: get: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, phone, carrierNumber string, initial State) (*Conversation, bool, error) {
	now := s.now()
	tag, err := s.db.Exec(ctx, `
		INSERT INTO conversations (phone, state, carrier_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (phone) DO NOTHING
	`, phone, string(initial), carrierNumber, now)
	if err != nil {
		return nil, false, fmt.Errorf("conversation: create: %w", err)
	}
	created := tag.RowsAffected() > 0
	if !created && carrierNumber != "" {
		if _, err := s.db.Exec(ctx, `
			UPDATE conversations SET carrier_number = $2 WHERE phone = $1 AND carrier_number = ''
		`, phone, carrierNumber); err != nil {
			return nil, false, fmt.Errorf("conversation: backfill carrier: %w", err)
		}
	}
	c, err := s.Get(ctx, phone)
	if err != nil {
		return nil, false, err
	}
	return c, created, nil
}

func (s *PostgresStore) Save(ctx context.Context, conv *Conversation) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE conversations SET
			state = $2,
			site_name = $3,
			site_type = $4,
			contact_phone = CASE WHEN contact_phone = '' THEN $5 ELSE contact_phone END,
			site_url = $6,
			site_subdomain = $7,
			site_html = $8,
			carrier_number = CASE WHEN carrier_number = '' THEN $9 ELSE carrier_number END,
			paid_at = $10,
			expires_at = $11,
			site_deleted = $12,
			updated_at = $13
		WHERE phone = $1 AND NOT (state = 'expired' AND site_deleted AND NOT $12)
	`, conv.Phone, string(conv.State), conv.SiteName, conv.SiteType, conv.ContactPhone, conv.SiteURL, conv.SiteSubdomain,
		nullableHTML(conv.SiteHTML), conv.CarrierNumber, conv.PaidAt, conv.ExpiresAt, conv.SiteDeleted, s.now())
	if err != nil {
		return fmt.Errorf("conversation: save: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStale
	}
	return nil
}

func (s *PostgresStore) SetField(ctx context.Context, phone string, field Field, value string) error {
	var query string
	switch field {
	case FieldSiteName:
		query = `UPDATE conversations SET site_name = $2, updated_at = $3 WHERE phone = $1`
	case FieldSiteType:
		query = `UPDATE conversations SET site_type = $2, updated_at = $3 WHERE phone = $1`
	case FieldContactPhone:
		query = `UPDATE conversations SET contact_phone = $2, updated_at = $3 WHERE phone = $1 AND contact_phone = ''`
	default:
		return fmt.Errorf("conversation: unknown field %q", field)
	}
	if _, err := s.db.Exec(ctx, query, phone, value, s.now()); err != nil {
		return fmt.Errorf("conversation: set %s: %w", field, err)
	}
	return nil
}

func (s *PostgresStore) Reset(ctx context.Context, phone string, state State) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE conversations SET
			state = $2, site_name = '', site_type = '', contact_phone = '', site_url = '',
			site_subdomain = '', site_html = NULL, paid_at = NULL, expires_at = NULL,
			site_deleted = FALSE, updated_at = $3
		WHERE phone = $1
	`, phone, string(state), s.now())
	if err != nil {
		return fmt.Errorf("conversation: reset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SubdomainOwner(ctx context.Context, subdomain string) (string, error) {
	var phone string
	err := s.db.QueryRow(ctx, `SELECT phone FROM conversations WHERE site_subdomain = $1`, subdomain).Scan(&phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("conversation: subdomain owner: %w", err)
	}
	return phone, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, msg Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO messages (id, phone, direction, body, provider_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.Phone, string(msg.Direction), msg.Body, msg.ProviderMessageID, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("conversation: append message: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentMessages(ctx context.Context, phone string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, phone, direction, body, provider_message_id, created_at
		FROM messages
		WHERE phone = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, phone, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: recent messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m   Message
			dir string
		)
		if err := rows.Scan(&m.ID, &m.Phone, &dir, &m.Body, &m.ProviderMessageID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		m.Direction = Direction(dir)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate messages: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *PostgresStore) PurgeMessages(ctx context.Context, phone string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM messages WHERE phone = $1`, phone); err != nil {
		return fmt.Errorf("conversation: purge messages: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time) ([]Conversation, error) {
	rows, err := s.db.Query(ctx, `SELECT `+conversationColumns+` FROM conversations
		WHERE state = 'awaiting_payment' AND site_deleted = FALSE AND expires_at < $1
		ORDER BY expires_at`, now)
	if err != nil {
		return nil, fmt.Errorf("conversation: list expired: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("conversation: scan expired: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkExpired(ctx context.Context, phone string, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE conversations
		SET state = 'expired', site_deleted = TRUE, updated_at = $2
		WHERE phone = $1 AND state = 'awaiting_payment' AND site_deleted = FALSE AND expires_at < $2
	`, phone, now)
	if err != nil {
		return false, fmt.Errorf("conversation: mark expired: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
