package conversation

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists conversations and their message log, keyed by phone.
type Store interface {
	Get(ctx context.Context, phone string) (*Conversation, error)
	GetOrCreate(ctx context.Context, phone, carrierNumber string, initial State) (*Conversation, bool, error)
	// Save writes mutable fields. carrier_number and contact_phone are
	// only written while still empty. A copy loaded before the sweep
	// expired the row is refused with ErrStale.
	Save(ctx context.Context, conv *Conversation) error
	SetField(ctx context.Context, phone string, field Field, value string) error
	// Reset clears profile and site fields and moves phone to state.
	Reset(ctx context.Context, phone string, state State) error
	SubdomainOwner(ctx context.Context, subdomain string) (string, error)

	AppendMessage(ctx context.Context, msg Message) error
	// RecentMessages returns up to limit entries, oldest first.
	RecentMessages(ctx context.Context, phone string, limit int) ([]Message, error)
	PurgeMessages(ctx context.Context, phone string) error

	ListExpired(ctx context.Context, now time.Time) ([]Conversation, error)
	// MarkExpired moves an overdue draft to expired and reports whether
	// this call made the change.
	MarkExpired(ctx context.Context, phone string, now time.Time) (bool, error)
}

// MemoryStore is a mutex-guarded Store for tests and database-less runs.
type MemoryStore struct {
	mu       sync.Mutex
	convs    map[string]*Conversation
	messages map[string][]Message
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		convs:    make(map[string]*Conversation),
		messages: make(map[string][]Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Get(_ context.Context, phone string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[phone]
	if !ok {
		return nil, ErrNotFound
	}
	return c.clone(), nil
}

func (s *MemoryStore) GetOrCreate(_ context.Context, phone, carrierNumber string, initial State) (*Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[phone]; ok {
		if c.CarrierNumber == "" && carrierNumber != "" {
			c.CarrierNumber = carrierNumber
		}
		return c.clone(), false, nil
	}
	now := s.now()
	c := &Conversation{
		Phone:         phone,
		State:         initial,
		CarrierNumber: carrierNumber,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.convs[phone] = c
	return c.clone(), true, nil
}

func (s *MemoryStore) Save(_ context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.convs[conv.Phone]
	next := conv.clone()
	next.UpdatedAt = s.now()
	if ok {
		if existing.State == StateExpired && existing.SiteDeleted && !conv.SiteDeleted {
			return ErrStale
		}
		next.CreatedAt = existing.CreatedAt
		if existing.CarrierNumber != "" {
			next.CarrierNumber = existing.CarrierNumber
		}
		if existing.ContactPhone != "" {
			next.ContactPhone = existing.ContactPhone
		}
	} else if next.CreatedAt.IsZero() {
		next.CreatedAt = next.UpdatedAt
	}
	s.convs[conv.Phone] = next
	return nil
}

func (s *MemoryStore) SetField(_ context.Context, phone string, field Field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[phone]
	if !ok {
		return ErrNotFound
	}
	c.setField(field, value)
	c.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) Reset(_ context.Context, phone string, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[phone]
	if !ok {
		return ErrNotFound
	}
	s.convs[phone] = &Conversation{
		Phone:         phone,
		State:         state,
		CarrierNumber: c.CarrierNumber,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     s.now(),
	}
	return nil
}

func (s *MemoryStore) SubdomainOwner(_ context.Context, subdomain string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for phone, c := range s.convs {
		if c.SiteSubdomain == subdomain {
			return phone, nil
		}
	}
	return "", nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	s.messages[msg.Phone] = append(s.messages[msg.Phone], msg)
	return nil
}

func (s *MemoryStore) RecentMessages(_ context.Context, phone string, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.messages[phone]
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	return append([]Message(nil), log...), nil
}

func (s *MemoryStore) PurgeMessages(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, phone)
	return nil
}

func (s *MemoryStore) ListExpired(_ context.Context, now time.Time) ([]Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Conversation
	for _, c := range s.convs {
		if isOverdue(c, now) {
			out = append(out, *c.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].Phone, out[j].Phone) < 0 })
	return out, nil
}

func (s *MemoryStore) MarkExpired(_ context.Context, phone string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[phone]
	if !ok || !isOverdue(c, now) {
		return false, nil
	}
	c.State = StateExpired
	c.SiteDeleted = true
	c.UpdatedAt = now
	return true, nil
}

func isOverdue(c *Conversation, now time.Time) bool {
	return c.State == StateAwaitingPayment && !c.SiteDeleted && c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}
