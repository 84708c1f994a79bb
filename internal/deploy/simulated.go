package deploy

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/marco-site-builder/internal/artifacts"
)

// Simulated stands in for Cloudflare when no credentials are configured.
// Sites are served by this service under {baseURL}/sites/{subdomain}.
type Simulated struct {
	store   artifacts.Store
	baseURL string
}

func NewSimulated(store artifacts.Store, baseURL string) *Simulated {
	if store == nil {
		panic("deploy: artifact store cannot be nil")
	}
	return &Simulated{store: store, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *Simulated) Mode() string { return ModeSimulated }

// LocalURL is where a simulated site is served.
func LocalURL(baseURL, subdomain string) string {
	return strings.TrimRight(baseURL, "/") + "/sites/" + subdomain
}

func (s *Simulated) Deploy(ctx context.Context, subdomain, html, _ string) Result {
	if err := s.store.Put(ctx, subdomain, html); err != nil {
		return failed(fmt.Errorf("deploy: simulated write: %w", err))
	}
	return Result{
		Success:  true,
		URL:      LocalURL(s.baseURL, subdomain),
		DeployID: "sim-" + uuid.NewString(),
	}
}

func (s *Simulated) ListProjects(ctx context.Context) ([]Project, error) {
	subs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("deploy: list simulated projects: %w", err)
	}
	out := make([]Project, 0, len(subs))
	for _, sub := range subs {
		out = append(out, Project{Name: sub, Subdomain: sub, URL: LocalURL(s.baseURL, sub)})
	}
	return out, nil
}
