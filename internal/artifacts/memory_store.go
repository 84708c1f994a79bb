package artifacts

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store for tests and local runs without disk.
type MemoryStore struct {
	mu    sync.RWMutex
	sites map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sites: make(map[string]string)}
}

func (s *MemoryStore) Put(_ context.Context, subdomain, html string) error {
	if !validSubdomain(subdomain) {
		return fmt.Errorf("artifacts: invalid subdomain %q", subdomain)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites[subdomain] = html
	return nil
}

func (s *MemoryStore) Get(_ context.Context, subdomain string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	html, ok := s.sites[subdomain]
	if !ok {
		return "", ErrNotFound
	}
	return html, nil
}

func (s *MemoryStore) Delete(_ context.Context, subdomain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sites, subdomain)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sites))
	for sub := range s.sites {
		out = append(out, sub)
	}
	sort.Strings(out)
	return out, nil
}
