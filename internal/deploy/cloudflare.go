package deploy

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

var cloudflareTracer = otel.Tracer("marco.internal.deploy.cloudflare")

const (
	defaultCloudflareBaseURL = "https://api.cloudflare.com/client/v4"
	pagesDomain              = "pages.dev"
)

// CloudflareConfig configures the Pages direct-upload client.
type CloudflareConfig struct {
	AccountID     string
	APIToken      string
	ProjectPrefix string
	BaseURL       string
	Timeout       time.Duration
}

// CloudflarePages deploys each site as its own Pages project.
type CloudflarePages struct {
	accountID string
	prefix    string
	http      *resty.Client
	logger    *logging.Logger
}

func NewCloudflarePages(cfg CloudflareConfig, logger *logging.Logger) (*CloudflarePages, error) {
	if strings.TrimSpace(cfg.AccountID) == "" || strings.TrimSpace(cfg.APIToken) == "" {
		return nil, errors.New("deploy: cloudflare account id and api token are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultCloudflareBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(base).
		SetAuthToken(cfg.APIToken).
		SetHeader("User-Agent", "marco-site-builder/1.0").
		SetTimeout(timeout)

	return &CloudflarePages{
		accountID: cfg.AccountID,
		prefix:    cfg.ProjectPrefix,
		http:      client,
		logger:    logger,
	}, nil
}

func (c *CloudflarePages) Mode() string { return ModeCloudflare }

type cfError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type cfEnvelope struct {
	Success bool            `json:"success"`
	Errors  []cfError       `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

func (e cfEnvelope) err(status int) error {
	if len(e.Errors) == 0 {
		return fmt.Errorf("cloudflare api status %d", status)
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, ce := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%d: %s", ce.Code, ce.Message))
	}
	return fmt.Errorf("cloudflare api status %d: %s", status, strings.Join(msgs, "; "))
}

type cfProject struct {
	Name      string    `json:"name"`
	Subdomain string    `json:"subdomain"`
	CreatedOn time.Time `json:"created_on"`
}

type cfDeployment struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ProjectName maps a site subdomain to its Pages project name.
func (c *CloudflarePages) ProjectName(subdomain string) string {
	return c.prefix + subdomain
}

func (c *CloudflarePages) Deploy(ctx context.Context, subdomain, html, label string) Result {
	ctx, span := cloudflareTracer.Start(ctx, "deploy.cloudflare.deploy")
	defer span.End()
	project := c.ProjectName(subdomain)
	span.SetAttributes(attribute.String("marco.project", project))

	if err := c.ensureProject(ctx, project); err != nil {
		span.RecordError(err)
		return failed(fmt.Errorf("deploy: ensure project %s: %w", project, err))
	}

	sum := sha256.Sum256([]byte(html))
	hash := hex.EncodeToString(sum[:16])
	manifest, err := json.Marshal(map[string]string{"/index.html": hash})
	if err != nil {
		return failed(fmt.Errorf("deploy: manifest: %w", err))
	}

	var env cfEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartFormData(map[string]string{
			"manifest":       string(manifest),
			"branch":         "main",
			"commit_message": label,
		}).
		SetMultipartField(hash, "index.html", "text/html", bytes.NewReader([]byte(html))).
		SetResult(&env).
		SetError(&env).
		Post(fmt.Sprintf("/accounts/%s/pages/projects/%s/deployments", c.accountID, project))
	if err != nil {
		span.RecordError(err)
		return failed(fmt.Errorf("deploy: create deployment: %w", err))
	}
	if resp.IsError() || !env.Success {
		derr := env.err(resp.StatusCode())
		span.RecordError(derr)
		return failed(fmt.Errorf("deploy: create deployment: %w", derr))
	}

	var dep cfDeployment
	if err := json.Unmarshal(env.Result, &dep); err != nil {
		return failed(fmt.Errorf("deploy: decode deployment: %w", err))
	}

	c.logger.Info("cloudflare deployment created", "project", project, "deploy_id", dep.ID, "label", label)
	return Result{
		Success:  true,
		URL:      fmt.Sprintf("https://%s.%s", project, pagesDomain),
		DeployID: dep.ID,
	}
}

func (c *CloudflarePages) ensureProject(ctx context.Context, project string) error {
	var env cfEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&env).
		SetError(&env).
		Get(fmt.Sprintf("/accounts/%s/pages/projects/%s", c.accountID, project))
	if err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusOK {
		return nil
	}
	if resp.StatusCode() != http.StatusNotFound {
		return env.err(resp.StatusCode())
	}

	env = cfEnvelope{}
	resp, err = c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"name": project, "production_branch": "main"}).
		SetResult(&env).
		SetError(&env).
		Post(fmt.Sprintf("/accounts/%s/pages/projects", c.accountID))
	if err != nil {
		return err
	}
	if resp.IsError() || !env.Success {
		return env.err(resp.StatusCode())
	}
	c.logger.Info("cloudflare project created", "project", project)
	return nil
}

func (c *CloudflarePages) ListProjects(ctx context.Context) ([]Project, error) {
	var env cfEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&env).
		SetError(&env).
		Get(fmt.Sprintf("/accounts/%s/pages/projects", c.accountID))
	if err != nil {
		return nil, fmt.Errorf("deploy: list projects: %w", err)
	}
	if resp.IsError() || !env.Success {
		return nil, fmt.Errorf("deploy: list projects: %w", env.err(resp.StatusCode()))
	}

	var projects []cfProject
	if err := json.Unmarshal(env.Result, &projects); err != nil {
		return nil, fmt.Errorf("deploy: decode projects: %w", err)
	}
	out := make([]Project, 0, len(projects))
	for _, p := range projects {
		if c.prefix != "" && !strings.HasPrefix(p.Name, c.prefix) {
			continue
		}
		host := p.Subdomain
		if host == "" {
			host = p.Name + "." + pagesDomain
		}
		out = append(out, Project{
			Name:      p.Name,
			Subdomain: strings.TrimPrefix(p.Name, c.prefix),
			URL:       "https://" + host,
			CreatedAt: p.CreatedOn,
		})
	}
	return out, nil
}
