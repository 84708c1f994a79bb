package conversation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/wolfman30/marco-site-builder/internal/customers"
)

// turn carries one inbound message through a state transition.
type turn struct {
	conv    *Conversation
	from    State
	message string
	value   string
	status  customers.Status
}

// ExtractSpec names the field a state collects. Smart fields go through the
// Extractor; the rest use the local rule for the field.
type ExtractSpec struct {
	Field Field
	Smart bool
}

// StateDef describes one node of the onboarding dialogue.
type StateDef struct {
	// Prompt is the text sent when a turn lands in this state.
	Prompt   func(e *Engine, t *turn) string
	Validate func(message string) bool
	Fallback string
	Extract  *ExtractSpec
	Next     func(e *Engine, t *turn) State
	// OnLeave runs before the next state's side effects.
	OnLeave      func(t *turn)
	GenerateSite bool
}

const maxAnswerLength = 200

var referralPattern = regexp.MustCompile(`(?i)\b(referr?al|referred|free|promo|coupon|discount|code|password|friend sent me)\b`)

func nonEmptyAnswer(message string) bool {
	m := strings.TrimSpace(message)
	return m != "" && utf8.RuneCountInString(m) <= maxAnswerLength
}

func staticNext(s State) func(*Engine, *turn) State {
	return func(*Engine, *turn) State { return s }
}

func staticPrompt(text string) func(*Engine, *turn) string {
	return func(*Engine, *turn) string { return text }
}

func defaultStates() map[State]StateDef {
	return map[State]StateDef{
		StateWaitlist: {
			Prompt: staticPrompt(waitlistReply),
			Next:   staticNext(StateWaitlist),
		},
		StateGreeting: {
			Prompt: staticPrompt(entryPrompt),
			Next:   staticNext(StateAskName),
		},
		StateAskName: {
			Prompt: func(_ *Engine, t *turn) string {
				if t.from == StateExpired {
					return reentryPrompt
				}
				return entryPrompt
			},
			Validate: nonEmptyAnswer,
			Fallback: askNameFallback,
			Extract:  &ExtractSpec{Field: FieldSiteName, Smart: true},
			Next:     staticNext(StateAskType),
		},
		StateAskType: {
			Prompt: func(_ *Engine, t *turn) string {
				return askTypePrompt(t.conv.SiteName)
			},
			Validate:     nonEmptyAnswer,
			Fallback:     askTypeFallback,
			Extract:      &ExtractSpec{Field: FieldSiteType, Smart: true},
			Next:         staticNext(StateAwaitingPayment),
			GenerateSite: true,
		},
		StateAwaitingPayment: {
			Prompt: func(e *Engine, t *turn) string {
				if t.from == StateAskType {
					return draftReadyReply(t.conv.SiteURL, e.cfg.PaymentLink, e.cfg.DraftTTL)
				}
				return paymentNag(t.conv.SiteURL, e.cfg.PaymentLink)
			},
			Next: func(e *Engine, t *turn) State {
				switch {
				case e.isSecret(t.message):
					return StateActive
				case referralPattern.MatchString(t.message):
					return StateAskPassword
				}
				return StateAwaitingPayment
			},
		},
		StateAskPassword: {
			Prompt: func(_ *Engine, t *turn) string {
				if t.from == StateAskPassword {
					return passwordRebuff
				}
				return passwordPrompt
			},
			Next: func(e *Engine, t *turn) State {
				if e.isSecret(t.message) {
					return StateActive
				}
				return StateAskPassword
			},
		},
		StateExpired: {
			Prompt: func(_ *Engine, t *turn) string {
				return expiryNotice(t.conv.SiteName)
			},
			Next:    staticNext(StateAskName),
			OnLeave: clearDraft,
		},
		StateActive: {
			Prompt: func(_ *Engine, t *turn) string {
				return activatedReply(t.conv.SiteURL)
			},
		},
	}
}

func clearDraft(t *turn) {
	t.conv.SiteName = ""
	t.conv.SiteType = ""
	t.conv.SiteURL = ""
	t.conv.SiteSubdomain = ""
	t.conv.SiteHTML = ""
	t.conv.ExpiresAt = nil
}
