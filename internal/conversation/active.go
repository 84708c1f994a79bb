package conversation

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/wolfman30/marco-site-builder/internal/deploy"
	"github.com/wolfman30/marco-site-builder/internal/sitegen"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

const (
	editMaxTokens   = 8192
	editTemperature = 0.4
)

// stepActive runs the post-payment edit protocol. The conversation never
// leaves active here.
func (e *Engine) stepActive(ctx context.Context, conv *Conversation, message string) (*StepResult, error) {
	logger := e.logger.With("phone_last4", logging.PhoneLast4(conv.Phone), "state", conv.State)
	message = strings.TrimSpace(message)

	if conv.ContactPhone == "" {
		if phone := extractPhoneNumber(message); phone != "" {
			conv.setField(FieldContactPhone, phone)
		}
	}

	// Without a model the site is read-only.
	if e.llm == nil {
		e.metrics.ObserveSiteEdit("unavailable")
		return &StepResult{Reply: editsUnavailable, Conversation: conv, Persist: true}, nil
	}

	doc, subdomain := e.resolveSite(ctx, conv)

	history, err := e.store.RecentMessages(ctx, conv.Phone, e.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("conversation: load history: %w", err)
	}

	resp, err := e.llm.Complete(ctx, LLMRequest{
		Model:       e.cfg.Model,
		System:      buildDirective(conv, doc, e.cfg),
		Messages:    buildEditContext(history, message),
		MaxTokens:   editMaxTokens,
		Temperature: editTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: active-mode completion: %w", err)
	}

	edit := parseSiteEdit(resp.Text)
	reply := edit.Reply
	switch {
	case edit.Truncated:
		logger.Warn("assistant returned an unterminated site document")
		e.metrics.ObserveSiteEdit("truncated")
		reply = editRejected
	case edit.Found && doc == "":
		logger.Warn("assistant returned a site document but no site could be resolved")
		e.metrics.ObserveSiteEdit("no_site")
		if reply == "" {
			reply = editNoSite
		}
	case edit.Found:
		if err := validateDocument(edit.Doc); err != nil {
			logger.Warn("rejected invalid site document", "error", err)
			e.metrics.ObserveSiteEdit("invalid")
			reply = editRejected
			break
		}
		e.applyEdit(ctx, conv, subdomain, edit.Doc)
		e.metrics.ObserveSiteEdit("applied")
		if reply == "" {
			reply = editConfirmation
		}
	default:
		e.metrics.ObserveSiteEdit("chat")
	}

	if reply == "" {
		reply = editConfirmation
	}
	return &StepResult{Reply: reply, Conversation: conv, Persist: true}, nil
}

// applyEdit makes doc the canonical site. Redeploys only happen for sites
// hosted by the managed deployer, and their failures stay internal.
func (e *Engine) applyEdit(ctx context.Context, conv *Conversation, subdomain, doc string) {
	conv.SiteHTML = doc
	if subdomain == "" {
		return
	}
	res := e.sites.Publish(ctx, deploy.PublishRequest{
		Phone:     conv.Phone,
		Subdomain: subdomain,
		HTML:      doc,
		Label:     siteEditLabel,
		Deploy:    e.sites.IsManaged(conv.SiteURL),
	})
	if res.Failed {
		e.logger.Warn("site redeploy failed", "phone_last4", logging.PhoneLast4(conv.Phone), "subdomain", subdomain, "error", res.Error)
	}
}

// resolveSite finds the current document: the stored copy first, then the
// artifact for the known subdomain, then the artifact for the subdomain in
// the site URL. Artifact hits are backfilled onto conv.
func (e *Engine) resolveSite(ctx context.Context, conv *Conversation) (string, string) {
	subdomain := conv.SiteSubdomain
	if subdomain == "" {
		subdomain = e.subdomainFromURL(conv.SiteURL)
	}
	if conv.SiteHTML != "" {
		return conv.SiteHTML, subdomain
	}

	candidates := []string{conv.SiteSubdomain}
	if fromURL := e.subdomainFromURL(conv.SiteURL); fromURL != "" && fromURL != conv.SiteSubdomain {
		candidates = append(candidates, fromURL)
	}
	for _, sub := range candidates {
		if sub == "" {
			continue
		}
		doc, err := e.sites.LoadHTML(ctx, sub)
		if err != nil {
			e.logger.Debug("site artifact lookup missed", "subdomain", sub, "error", err)
			continue
		}
		conv.SiteHTML = doc
		if conv.SiteSubdomain == "" {
			conv.SiteSubdomain = sub
		}
		return doc, sub
	}
	return "", ""
}

// subdomainFromURL recovers a subdomain from a managed host name
// (prefix-sub.pages.dev) or a simulated URL (/sites/{sub}).
func (e *Engine) subdomainFromURL(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if e.sites.IsManaged(raw) {
		label, _, _ := strings.Cut(strings.ToLower(u.Hostname()), ".")
		label = strings.TrimPrefix(label, strings.ToLower(e.cfg.ProjectPrefix))
		return sitegen.Slug(label)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(segments); i++ {
		if segments[i] == "sites" {
			return sitegen.Slug(segments[i+1])
		}
	}
	return ""
}

// buildEditContext turns the message log into alternating chat turns that
// start with the user and end with the current message.
func buildEditContext(history []Message, current string) []ChatMessage {
	var turns []ChatMessage
	for _, m := range history {
		body := strings.TrimSpace(m.Body)
		if body == "" {
			continue
		}
		role := ChatRoleAssistant
		if m.Direction == DirectionInbound {
			role = ChatRoleUser
		}
		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Content += "\n" + body
			continue
		}
		turns = append(turns, ChatMessage{Role: role, Content: body})
	}
	for len(turns) > 0 && turns[0].Role == ChatRoleAssistant {
		turns = turns[1:]
	}

	current = strings.TrimSpace(current)
	if current == "" {
		return turns
	}
	if n := len(history); n > 0 && history[n-1].Direction == DirectionInbound && strings.TrimSpace(history[n-1].Body) == current {
		return turns
	}
	if n := len(turns); n > 0 && turns[n-1].Role == ChatRoleUser {
		turns[n-1].Content += "\n" + current
		return turns
	}
	return append(turns, ChatMessage{Role: ChatRoleUser, Content: current})
}
