package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const leakedSegmentMinLength = 30

var (
	boundaryLine   = regexp.MustCompile(`(?m)^--[A-Za-z0-9'()+_,./:=?-]+(?:--)?[ \t]*$\n?`)
	mimeHeaderLine = regexp.MustCompile(`(?mi)^Content-(?:Type|Transfer-Encoding):.*$\n?`)
	mimeParamLine  = regexp.MustCompile(`(?mi)^[ \t]*(?:charset|boundary)=.*$\n?`)
	blankRun       = regexp.MustCompile(`\n[ \t]*(?:\n[ \t]*)+`)

	// a tag name (optionally namespaced, as in <o:p>), a comment or a
	// doctype; bracketed addresses and URLs do not match
	htmlTag = regexp.MustCompile(`<(?:/?[A-Za-z][A-Za-z0-9-]*(?::[A-Za-z][A-Za-z0-9-]*)?(?:[\s/][^<>]*)?|![^<>]*)>`)
	anyTag  = regexp.MustCompile(`<[^>]*>`)
)

// CleanBody strips MIME scaffolding that leaked into a text body and
// flattens HTML to text.
func CleanBody(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = boundaryLine.ReplaceAllString(s, "")
	s = mimeHeaderLine.ReplaceAllString(s, "")
	s = mimeParamLine.ReplaceAllString(s, "")
	s = blankRun.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)

	if htmlTag.MatchString(s) {
		s = StripHTML(s)
	}
	return s
}

// StripHTML returns the visible text of an HTML fragment, text nodes
// joined by single spaces.
func StripHTML(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseWhitespace(anyTag.ReplaceAllString(s, " "))
	}
	doc.Find("script, style, head, title").Remove()

	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return collapseWhitespace(strings.Join(parts, " "))
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ExtractLeakedContent handles bodies that still carry a Content-Type
// header after cleaning: the first substantial "--" separated segment
// without one is kept.
func ExtractLeakedContent(body string) string {
	if !strings.Contains(body, "Content-Type:") {
		return body
	}
	parts := strings.Split(body, "--")
	if len(parts) < 2 {
		return body
	}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if len(part) > leakedSegmentMinLength && !strings.Contains(part, "Content-Type:") {
			return part
		}
	}
	return body
}
