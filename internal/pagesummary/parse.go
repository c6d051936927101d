// Package pagesummary pulls the title, hero text and call to action out of
// landing page HTML.
package pagesummary

import (
	"bytes"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"roastbot/internal/core/domain"
)

// Parse reads an HTML document and returns its summary. The hero is the
// first h1, falling back to an element marked data-test="hero". The call to
// action is the first button, falling back to a link with role="button".
func Parse(r io.Reader) (domain.PageSummary, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return domain.PageSummary{}, err
	}

	var summary domain.PageSummary
	if n := find(doc, isTag(atom.Title)); n != nil {
		summary.Title = text(n)
	}
	if n := find(doc, isTag(atom.H1)); n != nil {
		summary.Hero = text(n)
	}
	if summary.Hero == "" {
		if n := find(doc, hasAttr("data-test", "hero")); n != nil {
			summary.Hero = text(n)
		}
	}
	if n := find(doc, func(n *html.Node) bool {
		return isTag(atom.Button)(n) && text(n) != ""
	}); n != nil {
		summary.CTA = text(n)
	}
	if summary.CTA == "" {
		if n := find(doc, hasAttr("role", "button")); n != nil {
			summary.CTA = text(n)
		}
	}
	return summary, nil
}

// ParseBytes is Parse over an in-memory document.
func ParseBytes(b []byte) (domain.PageSummary, error) {
	return Parse(bytes.NewReader(b))
}

// Links returns the href of every anchor in document order, resolved
// against base. Fragments and javascript/mailto links are skipped.
func Links(r io.Reader, base *url.URL) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var out []string
	walk(doc, func(n *html.Node) {
		if !isTag(atom.A)(n) {
			return
		}
		href := strings.TrimSpace(attr(n, "href"))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		out = append(out, u.String())
	})
	return out, nil
}

func isTag(a atom.Atom) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == a
	}
}

func hasAttr(key, val string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, key) == val
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// text returns the visible text under n with whitespace collapsed.
func text(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
