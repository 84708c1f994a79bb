package handlers

import (
	"context"
	"net/http"

	"github.com/wolfman30/marco-site-builder/internal/conversation"
	"github.com/wolfman30/marco-site-builder/internal/deploy"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

type projectLister interface {
	ListProjects(ctx context.Context) ([]deploy.Project, error)
	Mode() string
}

type sweeper interface {
	Sweep(ctx context.Context) (conversation.SweepResult, error)
}

// AdminSitesHandler exposes deployment inventory and the expiry sweep trigger.
type AdminSitesHandler struct {
	projects projectLister
	sweeper  sweeper
	logger   *logging.Logger
}

func NewAdminSitesHandler(projects projectLister, sweeper sweeper, logger *logging.Logger) *AdminSitesHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminSitesHandler{projects: projects, sweeper: sweeper, logger: logger}
}

// ListProjects returns every deployed project.
// GET /admin/projects
func (h *AdminSitesHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	if h.projects == nil {
		writeError(w, http.StatusServiceUnavailable, "deployments not configured")
		return
	}
	projects, err := h.projects.ListProjects(r.Context())
	if err != nil {
		h.logger.Error("list projects failed", "error", err)
		writeError(w, http.StatusBadGateway, "failed to list projects")
		return
	}
	if projects == nil {
		projects = []deploy.Project{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":     h.projects.Mode(),
		"projects": projects,
	})
}

// RunExpirySweep expires overdue drafts. It is meant for a scheduler.
// POST /admin/expiry-sweep
func (h *AdminSitesHandler) RunExpirySweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, "sweeper not configured")
		return
	}
	result, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		h.logger.Error("expiry sweep failed", "error", err)
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
