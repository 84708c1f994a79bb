package conversation

import (
	"fmt"
	"strings"
	"time"
)

const (
	entryPrompt      = "Hey! I'm Marco. I build websites for small businesses right over text. What's the name of your business?"
	reentryPrompt    = "Welcome back! Your last draft expired, but we can start fresh. What's the name of your business?"
	askNameFallback  = "What's the name of your business?"
	askTypeFallback  = "What kind of business is it? A few words is plenty, like \"plumbing\" or \"bakery\"."
	passwordPrompt   = "Nice! What's the password from your referral?"
	passwordRebuff   = "Hmm, that's not it. What's the referral password?"
	waitlistReply    = "Thanks for texting! You're on the waitlist and I'll text you as soon as it's your turn."
	apologyReply     = "Sorry, I'm having trouble right now. Please text me again in a minute."
	editConfirmation = "Done! Your site has been updated."
	editRejected     = "I couldn't apply that change. Could you describe it a different way?"
	editNoSite       = "I couldn't find your site to change it. Tell me what you'd like and I'll take another look."
	editsUnavailable = "Thanks! Site changes by text are paused right now. Your site is still live and we'll follow up soon."
)

func askTypePrompt(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return askTypeFallback
	}
	return fmt.Sprintf("Love it. What kind of business is %s? A few words is plenty, like \"plumbing\" or \"bakery\".", name)
}

func draftReadyReply(siteURL, paymentLink string, ttl time.Duration) string {
	return fmt.Sprintf("Your draft site is ready: %s\n\nI'll hold it for %s. To keep it live, pay here: %s",
		siteURL, humanDuration(ttl), paymentLink)
}

func paymentNag(siteURL, paymentLink string) string {
	if siteURL == "" {
		return fmt.Sprintf("To keep your site live, pay here: %s", paymentLink)
	}
	return fmt.Sprintf("Your draft is at %s. To keep it live, pay here: %s", siteURL, paymentLink)
}

func activatedReply(siteURL string) string {
	if siteURL == "" {
		return "You're all set! Text me any changes you'd like on your site."
	}
	return fmt.Sprintf("You're all set! %s is yours. Text me any changes you'd like, like new colors, hours or services.", siteURL)
}

func expiryNotice(siteName string) string {
	if strings.TrimSpace(siteName) == "" {
		return "Your draft site expired without payment and has been taken down. Text me anytime to build a new one."
	}
	return fmt.Sprintf("Your draft site for %s expired without payment and has been taken down. Text me anytime to build a new one.", siteName)
}

func humanDuration(d time.Duration) string {
	if d <= 0 {
		return "a limited time"
	}
	if d%time.Hour == 0 {
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	return d.Round(time.Minute).String()
}
