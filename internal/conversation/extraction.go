package conversation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Extractor pulls a single named field out of a free-form message.
type Extractor interface {
	Extract(ctx context.Context, message string, field Field) (string, error)
}

var fieldInstructions = map[Field]string{
	FieldSiteName: "Extract the business name from the customer's text message. " +
		"Return only the name exactly as the business would write it, with no quotes or extra words. " +
		"If the message is just a name, return it unchanged.",
	FieldSiteType: "Extract what kind of business this is or what services it offers from the customer's text message. " +
		"Return a short comma-separated list of services in lowercase (for example: plumbing, drain cleaning). " +
		"Return only the list.",
	FieldContactPhone: "Extract the business contact phone number from the customer's text message. " +
		"Return only the digits with an optional leading +. Return an empty string if there is none.",
}

// SmartExtractor asks an LLM for a field value and falls back to the local
// rule when the model answers with nothing usable.
type SmartExtractor struct {
	llm   LLMClient
	model string
}

func NewSmartExtractor(llm LLMClient, model string) *SmartExtractor {
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	return &SmartExtractor{llm: llm, model: model}
}

func (e *SmartExtractor) Extract(ctx context.Context, message string, field Field) (string, error) {
	instruction, ok := fieldInstructions[field]
	if !ok {
		return "", fmt.Errorf("conversation: no extraction contract for field %q", field)
	}
	if strings.TrimSpace(message) == "" {
		return "", errors.New("conversation: empty message")
	}
	resp, err := e.llm.Complete(ctx, LLMRequest{
		Model:       e.model,
		System:      []string{instruction},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: message}},
		MaxTokens:   100,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("conversation: extract %s: %w", field, err)
	}
	value := cleanExtracted(resp.Text)
	if value == "" {
		return localRule(field)(message), nil
	}
	return value, nil
}

// RuleExtractor applies only the local deterministic rules.
type RuleExtractor struct{}

func (RuleExtractor) Extract(_ context.Context, message string, field Field) (string, error) {
	return localRule(field)(message), nil
}

func localRule(field Field) func(string) string {
	switch field {
	case FieldSiteName:
		return extractBusinessName
	case FieldSiteType:
		return extractBusinessType
	case FieldContactPhone:
		return extractPhoneNumber
	}
	return strings.TrimSpace
}

var (
	namePrefix   = regexp.MustCompile(`(?i)^(?:it'?s|it is|my business is|my company is|the business is|the name is|we'?re|we are|we'?re called|called|it'?s called|name'?s|i'?m)\s+`)
	typePrefix   = regexp.MustCompile(`(?i)^(?:it'?s|it is|we do|we are|we'?re|i do|we offer|a|an)\s+`)
	phonePattern = regexp.MustCompile(`\+?1?[\s.-]?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}`)
)

func extractBusinessName(message string) string {
	v := strings.TrimSpace(message)
	for {
		next := namePrefix.ReplaceAllString(v, "")
		if next == v {
			break
		}
		v = strings.TrimSpace(next)
	}
	return strings.Trim(v, " \t\r\n.!?\"'")
}

func extractBusinessType(message string) string {
	v := strings.TrimSpace(message)
	for {
		next := typePrefix.ReplaceAllString(v, "")
		if next == v {
			break
		}
		v = strings.TrimSpace(next)
	}
	return strings.ToLower(strings.Trim(v, " \t\r\n.!?\"'"))
}

func extractPhoneNumber(message string) string {
	match := phonePattern.FindString(message)
	if match == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range match {
		if r >= '0' && r <= '9' || (r == '+' && b.Len() == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func cleanExtracted(text string) string {
	v := strings.TrimSpace(text)
	if i := strings.IndexByte(v, '\n'); i >= 0 {
		v = v[:i]
	}
	v = strings.Trim(v, " \t\"'`")
	if strings.EqualFold(v, "none") || strings.EqualFold(v, "n/a") {
		return ""
	}
	return v
}
