package artifacts

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when no artifact exists for a subdomain.
var ErrNotFound = errors.New("artifacts: not found")

// Store keeps the rendered HTML of each site keyed by subdomain.
type Store interface {
	Put(ctx context.Context, subdomain, html string) error
	Get(ctx context.Context, subdomain string) (string, error)
	Delete(ctx context.Context, subdomain string) error
	List(ctx context.Context) ([]string, error)
}

func validSubdomain(subdomain string) bool {
	if subdomain == "" || len(subdomain) > 63 {
		return false
	}
	if strings.HasPrefix(subdomain, "-") || strings.HasSuffix(subdomain, "-") {
		return false
	}
	for _, r := range subdomain {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return false
		}
	}
	return true
}
