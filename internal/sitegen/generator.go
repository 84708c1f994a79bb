package sitegen

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

// Profile is the business data a site is rendered from.
type Profile struct {
	BusinessName  string
	Services      []string
	BusinessPhone string
}

// Generator renders single-page sites from a registered template set.
type Generator struct {
	templates []Template
	fallback  Template
	page      *template.Template
}

// NewGenerator returns a generator over the built-in templates.
func NewGenerator() *Generator {
	return NewGeneratorWithTemplates(defaultTemplates, genericTemplate)
}

// NewGeneratorWithTemplates registers templates in priority order.
func NewGeneratorWithTemplates(templates []Template, fallback Template) *Generator {
	return &Generator{
		templates: append([]Template(nil), templates...),
		fallback:  fallback,
		page:      template.Must(template.New("site").Parse(pageLayout)),
	}
}

// Select picks the template with the most keyword hits in the services text.
// Ties go to the earlier template; no services or no hits yield the fallback.
func (g *Generator) Select(services []string) Template {
	text := strings.ToLower(strings.Join(services, " "))
	if strings.TrimSpace(text) == "" {
		return g.fallback
	}

	best := g.fallback
	bestScore := 0
	for _, tpl := range g.templates {
		score := 0
		for _, kw := range tpl.Keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > bestScore {
			best = tpl
			bestScore = score
		}
	}
	return best
}

type pageData struct {
	Name     string
	Services []string
	Phone    string
	TelHref  template.URL
	Theme    Template
	Style    template.CSS
}

// Render produces a complete HTML document for the profile.
func (g *Generator) Render(p Profile) (string, error) {
	name := strings.TrimSpace(p.BusinessName)
	if name == "" {
		return "", fmt.Errorf("sitegen: business name is required")
	}

	services := make([]string, 0, len(p.Services))
	for _, s := range p.Services {
		if s = strings.TrimSpace(s); s != "" {
			services = append(services, s)
		}
	}

	data := pageData{
		Name:     name,
		Services: services,
		Theme:    g.Select(services),
	}
	data.Style = stylesheet(data.Theme)
	if phone := strings.TrimSpace(p.BusinessPhone); phone != "" {
		data.Phone = phone
		data.TelHref = template.URL("tel:" + telDigits(phone))
	}

	var buf bytes.Buffer
	if err := g.page.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("sitegen: render %s: %w", data.Theme.Name, err)
	}
	return buf.String(), nil
}

// SplitServices turns a free-text business type into a services list.
func SplitServices(siteType string) []string {
	fields := strings.FieldsFunc(siteType, func(r rune) bool {
		return r == ',' || r == ';' || r == '/' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		f = strings.TrimPrefix(f, "and ")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func stylesheet(t Template) template.CSS {
	return template.CSS(fmt.Sprintf(`body { margin: 0; font-family: %s; background: %s; color: %s; }
header { padding: 64px 24px 48px; text-align: center; }
h1 { font-size: 2.4rem; margin: 0 0 12px; }
.tagline { font-size: 1.15rem; opacity: .8; margin: 0 0 28px; }
.cta { display: inline-block; padding: 14px 28px; border-radius: 999px; background: %s; color: #fff; text-decoration: none; font-weight: 600; }
section { max-width: 720px; margin: 0 auto; padding: 24px; }
ul.services { list-style: none; padding: 0; display: grid; gap: 12px; }
ul.services li { background: #fff; border-left: 4px solid %s; padding: 14px 18px; border-radius: 8px; }
footer { text-align: center; padding: 32px 24px; font-size: .85rem; opacity: .6; }`,
		t.Font, t.Background, t.Text, t.Accent, t.Accent))
}

func telDigits(phone string) string {
	var b strings.Builder
	for i, r := range phone {
		if (r >= '0' && r <= '9') || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

const pageLayout = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Name}}</title>
<style>
{{.Style}}
</style>
</head>
<body data-template="{{.Theme.Name}}">
<header>
  <h1>{{.Name}}</h1>
  <p class="tagline">{{.Theme.Tagline}}</p>
  {{- if .Phone}}
  <a class="cta" href="{{.TelHref}}">Call {{.Phone}}</a>
  {{- end}}
</header>
{{- if .Services}}
<section>
  <h2>What we do</h2>
  <ul class="services">
  {{- range .Services}}
    <li>{{.}}</li>
  {{- end}}
  </ul>
</section>
{{- end}}
<footer>&copy; {{.Name}}</footer>
</body>
</html>
`
