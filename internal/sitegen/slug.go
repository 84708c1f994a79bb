package sitegen

import "strings"

// MaxSlugLength caps subdomain labels well under the DNS label limit.
const MaxSlugLength = 40

// Slug derives a subdomain-safe label from a business name. It is pure, total
// and idempotent: Slug(Slug(x)) == Slug(x). Inputs with no usable characters
// produce "".
func Slug(name string) string {
	lower := strings.ToLower(name)

	var b strings.Builder
	b.Grow(len(lower))
	pendingHyphen := false
	for _, r := range lower {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case r == '-' || r == ' ' || r == '\t' || r == '\n' || r == '\r':
			pendingHyphen = true
		}
	}

	slug := b.String()
	if len(slug) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength], "-")
	}
	return slug
}
