package deploy

import (
	"context"
	"time"
)

const (
	ModeCloudflare = "cloudflare"
	ModeSimulated  = "simulated"
)

// Result is the outcome of one deployment. Failures are data, not errors.
type Result struct {
	Success  bool
	URL      string
	DeployID string
	Error    string
}

// Project is one deployed site as reported by the backend.
type Project struct {
	Name      string    `json:"name"`
	Subdomain string    `json:"subdomain"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Deployer publishes a single HTML document under a subdomain.
type Deployer interface {
	Deploy(ctx context.Context, subdomain, html, label string) Result
	ListProjects(ctx context.Context) ([]Project, error)
	Mode() string
}

func failed(err error) Result {
	return Result{Success: false, Error: err.Error()}
}
