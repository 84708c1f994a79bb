package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/marco-site-builder/internal/artifacts"
	"github.com/wolfman30/marco-site-builder/internal/sitegen"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

type siteLoader interface {
	LoadHTML(ctx context.Context, subdomain string) (string, error)
}

// SitesHandler serves simulated-mode sites straight from the artifact store.
type SitesHandler struct {
	sites  siteLoader
	logger *logging.Logger
}

func NewSitesHandler(sites siteLoader, logger *logging.Logger) *SitesHandler {
	if sites == nil {
		panic("handlers: site loader cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SitesHandler{sites: sites, logger: logger}
}

// Serve handles GET /sites/{subdomain}.
func (h *SitesHandler) Serve(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "subdomain")
	subdomain := sitegen.Slug(raw)
	if subdomain == "" || subdomain != raw {
		http.NotFound(w, r)
		return
	}
	html, err := h.sites.LoadHTML(r.Context(), subdomain)
	if err != nil {
		if errors.Is(err, artifacts.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("failed to load site", "error", err, "subdomain", subdomain)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}
