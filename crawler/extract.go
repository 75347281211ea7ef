package crawler

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/lukemcguire/termcrawl/urlutil"
)

// skippedText holds elements whose content is never visible page text.
var skippedText = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Head:     true,
}

// blockElements separate the text of their neighbours with whitespace.
var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Fieldset: true, atom.Figcaption: true, atom.Figure: true, atom.Footer: true,
	atom.Form: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Header: true, atom.Hr: true, atom.Li: true,
	atom.Main: true, atom.Nav: true, atom.Ol: true, atom.P: true, atom.Pre: true,
	atom.Section: true, atom.Table: true, atom.Td: true, atom.Th: true, atom.Tr: true,
	atom.Ul: true, atom.Option: true, atom.Title: true,
}

// ExtractPage parses an HTML document and returns its visible body text and
// every anchor in the body. Hrefs are resolved against the document's
// <base href> when present, otherwise against pageURL. Anchors that resolve
// to non-HTTP schemes are left out.
func ExtractPage(body io.Reader, pageURL *url.URL) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base := pageURL
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if resolved, parseErr := pageURL.Parse(strings.TrimSpace(href)); parseErr == nil {
			base = resolved
		}
	}

	bodySel := doc.Find("body")
	page := &Page{
		URL:  pageURL.String(),
		Text: visibleText(bodySel.Nodes),
	}

	bodySel.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		// An unparseable href keeps an empty URL and is dropped below.
		resolved, _ := urlutil.ResolveReference(base, href)
		page.Links = append(page.Links, Link{Href: href, URL: resolved})
	})

	// Drop anchors that cannot be fetched over HTTP (mailto:, javascript:,
	// unparseable hrefs) but keep empty and fragment hrefs so the crawler can
	// apply its own link rules to them.
	var links []Link
	for _, l := range page.Links {
		if l.Href == "" || strings.HasPrefix(l.Href, "#") || urlutil.IsHTTPScheme(l.URL) {
			links = append(links, l)
		}
	}
	page.Links = links

	return page, nil
}

// visibleText concatenates the text under roots, separating block elements
// and collapsing runs of whitespace into single spaces.
func visibleText(roots []*html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if skippedText[n.DataAtom] {
				return
			}
		case html.CommentNode:
			return
		}

		block := n.Type == html.ElementNode && blockElements[n.DataAtom]
		if block {
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte(' ')
		}
	}

	for _, n := range roots {
		walk(n)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
