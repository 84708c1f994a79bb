package conversation

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	HTMLStartMarker = "===HTML_START==="
	HTMLEndMarker   = "===HTML_END==="
)

// siteEdit is an assistant reply split around the replacement document.
type siteEdit struct {
	Doc   string
	Reply string
	Found bool
	// Truncated is set when the start marker appears without an end marker.
	Truncated bool
}

func parseSiteEdit(text string) siteEdit {
	start := strings.Index(text, HTMLStartMarker)
	if start < 0 {
		return siteEdit{Reply: stripMarkers(text)}
	}
	bodyStart := start + len(HTMLStartMarker)
	end := strings.Index(text[bodyStart:], HTMLEndMarker)
	if end < 0 {
		return siteEdit{Reply: stripMarkers(text[:start]), Truncated: true}
	}
	end += bodyStart

	doc := stripCodeFence(strings.TrimSpace(text[bodyStart:end]))
	before := strings.TrimSpace(text[:start])
	after := strings.TrimSpace(text[end+len(HTMLEndMarker):])
	reply := strings.TrimSpace(before + "\n" + after)
	return siteEdit{Doc: doc, Reply: stripMarkers(reply), Found: true}
}

func stripMarkers(text string) string {
	text = strings.ReplaceAll(text, HTMLStartMarker, "")
	text = strings.ReplaceAll(text, HTMLEndMarker, "")
	return strings.TrimSpace(text)
}

func stripCodeFence(doc string) string {
	if !strings.HasPrefix(doc, "```") {
		return doc
	}
	if nl := strings.IndexByte(doc, '\n'); nl >= 0 {
		doc = doc[nl+1:]
	} else {
		return ""
	}
	doc = strings.TrimSpace(doc)
	return strings.TrimSpace(strings.TrimSuffix(doc, "```"))
}

var (
	errNotDocument = errors.New("conversation: not a full html document")
	errEmptyBody   = errors.New("conversation: document body is empty")
)

// validateDocument accepts a full page: the source opens with a doctype,
// <html> or <body>, and the parsed body has visible content. Optional
// tags may be omitted.
func validateDocument(doc string) error {
	if strings.TrimSpace(doc) == "" {
		return errors.New("conversation: empty document")
	}
	if !declaresDocument(doc) {
		return errNotDocument
	}
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return fmt.Errorf("conversation: parse document: %w", err)
	}
	body := findElement(root, atom.Body)
	if body == nil || !hasContent(body) {
		return errEmptyBody
	}
	return nil
}

func declaresDocument(doc string) bool {
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.DoctypeToken:
			return true
		case html.StartTagToken:
			switch z.Token().DataAtom {
			case atom.Html, atom.Body:
				return true
			}
		}
	}
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func hasContent(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			return true
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				return true
			}
		}
	}
	return false
}
