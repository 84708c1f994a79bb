package deploy

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/wolfman30/marco-site-builder/internal/artifacts"
	"github.com/wolfman30/marco-site-builder/internal/observability/metrics"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

// FailureNotifier alerts an operator that a deployment failed.
type FailureNotifier interface {
	NotifyDeployFailure(ctx context.Context, phone, subdomain, reason string) error
}

// PublishRequest stores a site document and optionally deploys it.
type PublishRequest struct {
	Phone     string
	Subdomain string
	HTML      string
	Label     string
	Deploy    bool
}

// PublishResult reports where the site lives after Publish.
type PublishResult struct {
	URL      string
	Deployed bool
	Failed   bool
	Error    string
}

// Service writes site artifacts, deploys them and keeps deployment history.
type Service struct {
	artifacts     artifacts.Store
	deployer      Deployer
	recorder      Recorder
	notifier      FailureNotifier
	metrics       *metrics.Metrics
	logger        *logging.Logger
	baseURL       string
	managedSuffix string
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

func WithFailureNotifier(n FailureNotifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithManagedHostSuffix sets the host suffix that marks URLs served by the deployer.
func WithManagedHostSuffix(suffix string) ServiceOption {
	return func(s *Service) { s.managedSuffix = strings.ToLower(strings.TrimSpace(suffix)) }
}

func NewService(store artifacts.Store, deployer Deployer, baseURL string, logger *logging.Logger, opts ...ServiceOption) *Service {
	if store == nil {
		panic("deploy: artifact store cannot be nil")
	}
	if deployer == nil {
		panic("deploy: deployer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		artifacts:     store,
		deployer:      deployer,
		logger:        logger,
		baseURL:       strings.TrimRight(baseURL, "/"),
		managedSuffix: "." + pagesDomain,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish writes the artifact, then deploys when requested. Deployment
// failures are logged, recorded and reported in the result, never returned.
func (s *Service) Publish(ctx context.Context, req PublishRequest) PublishResult {
	logger := s.logger.With("phone_last4", logging.PhoneLast4(req.Phone), "subdomain", req.Subdomain)

	if err := s.artifacts.Put(ctx, req.Subdomain, req.HTML); err != nil {
		logger.Error("failed to write site artifact", "error", err)
	}
	if !req.Deploy {
		return PublishResult{}
	}

	start := time.Now()
	res := s.deployer.Deploy(ctx, req.Subdomain, req.HTML, req.Label)
	status := StatusSucceeded
	if !res.Success {
		status = StatusFailed
	}
	s.metrics.ObserveDeploy(s.deployer.Mode(), status, time.Since(start).Seconds())

	if s.recorder != nil {
		rec := Record{
			Phone:     req.Phone,
			Subdomain: req.Subdomain,
			Label:     req.Label,
			Mode:      s.deployer.Mode(),
			Status:    status,
			URL:       res.URL,
			DeployID:  res.DeployID,
			Error:     res.Error,
		}
		if err := s.recorder.Record(ctx, rec); err != nil {
			logger.Error("failed to record deployment", "error", err)
		}
	}

	if !res.Success {
		logger.Error("site deployment failed", "mode", s.deployer.Mode(), "label", req.Label, "error", res.Error)
		if s.notifier != nil {
			if err := s.notifier.NotifyDeployFailure(ctx, req.Phone, req.Subdomain, res.Error); err != nil {
				logger.Warn("deploy failure notification failed", "error", err)
			}
		}
		return PublishResult{
			URL:    LocalURL(s.baseURL, req.Subdomain),
			Failed: true,
			Error:  res.Error,
		}
	}

	logger.Info("site deployed", "mode", s.deployer.Mode(), "label", req.Label, "url", res.URL, "deploy_id", res.DeployID)
	return PublishResult{URL: res.URL, Deployed: true}
}

// LoadHTML returns the stored artifact for a subdomain.
func (s *Service) LoadHTML(ctx context.Context, subdomain string) (string, error) {
	return s.artifacts.Get(ctx, subdomain)
}

// Remove deletes the stored artifact for a subdomain.
func (s *Service) Remove(ctx context.Context, subdomain string) error {
	return s.artifacts.Delete(ctx, subdomain)
}

// IsManaged reports whether siteURL is served by the managed deployment host.
func (s *Service) IsManaged(siteURL string) bool {
	if s.managedSuffix == "" || siteURL == "" {
		return false
	}
	u, err := url.Parse(siteURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Hostname()), s.managedSuffix)
}

func (s *Service) ListProjects(ctx context.Context) ([]Project, error) {
	return s.deployer.ListProjects(ctx)
}

func (s *Service) Mode() string {
	return s.deployer.Mode()
}
