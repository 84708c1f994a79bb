package conversation

import (
	"strings"
	"testing"
)

const sampleDoc = "<!DOCTYPE html><html><head><title>Bob</title></head><body><h1>Bob's Plumbing</h1></body></html>"

func TestParseSiteEditRoundTrip(t *testing.T) {
	raw := "Done! I made the header blue.\n" + HTMLStartMarker + "\n" + sampleDoc + "\n" + HTMLEndMarker + "\nAnything else?"

	edit := parseSiteEdit(raw)
	if !edit.Found || edit.Truncated {
		t.Fatalf("expected a complete edit, got %+v", edit)
	}
	if edit.Doc != sampleDoc {
		t.Fatalf("unexpected doc %q", edit.Doc)
	}
	for _, marker := range []string{HTMLStartMarker, HTMLEndMarker} {
		if strings.Contains(edit.Reply, marker) || strings.Contains(edit.Doc, marker) {
			t.Fatalf("marker %s leaked", marker)
		}
	}
	if edit.Reply != "Done! I made the header blue.\nAnything else?" {
		t.Fatalf("unexpected reply %q", edit.Reply)
	}
}

func TestParseSiteEditVariants(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		found     bool
		truncated bool
		doc       string
		reply     string
	}{
		{
			name:  "no markers",
			raw:   "  Sure, your hours are on the site. ",
			reply: "Sure, your hours are on the site.",
		},
		{
			name:  "markers only",
			raw:   HTMLStartMarker + sampleDoc + HTMLEndMarker,
			found: true,
			doc:   sampleDoc,
		},
		{
			name:  "code fence inside markers",
			raw:   "Updated.\n" + HTMLStartMarker + "\n```html\n" + sampleDoc + "\n```\n" + HTMLEndMarker,
			found: true,
			doc:   sampleDoc,
			reply: "Updated.",
		},
		{
			name:      "missing end marker",
			raw:       "Here you go " + HTMLStartMarker + "<html><body>half",
			truncated: true,
			reply:     "Here you go",
		},
		{
			name:  "stray end marker",
			raw:   "ok " + HTMLEndMarker,
			reply: "ok",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			edit := parseSiteEdit(tc.raw)
			if edit.Found != tc.found || edit.Truncated != tc.truncated {
				t.Fatalf("found/truncated = %v/%v, want %v/%v", edit.Found, edit.Truncated, tc.found, tc.truncated)
			}
			if edit.Doc != tc.doc {
				t.Fatalf("doc = %q, want %q", edit.Doc, tc.doc)
			}
			if edit.Reply != tc.reply {
				t.Fatalf("reply = %q, want %q", edit.Reply, tc.reply)
			}
		})
	}
}

func TestValidateDocument(t *testing.T) {
	if err := validateDocument(sampleDoc); err != nil {
		t.Fatalf("valid document rejected: %v", err)
	}
	if err := validateDocument("<BODY><p>hi</p></BODY>"); err != nil {
		t.Fatalf("uppercase body rejected: %v", err)
	}
	implicitBody := "<!DOCTYPE html><html><head><title>Bob's</title></head><h1>Blue header</h1></html>"
	if err := validateDocument(implicitBody); err != nil {
		t.Fatalf("document without a body tag rejected: %v", err)
	}
	for _, doc := range []string{
		"",
		"   ",
		"<div>fragment</div>",
		"just some words",
		"<!DOCTYPE html><html><head><title>Bob's",
	} {
		if err := validateDocument(doc); err == nil {
			t.Fatalf("expected %q to be rejected", doc)
		}
	}
}
