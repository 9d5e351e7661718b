// Package web fetches public pages and turns them into text and links.
package web

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Page is the readable form of a fetched document.
type Page struct {
	URL      string `json:"url"`
	FinalURL string `json:"final_url"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	Links    []Link `json:"links"`
}

// Link is an anchor found on a page, resolved to an absolute URL.
type Link struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Template: true,
	atom.Iframe:   true,
	atom.Head:     true,
}

var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Fieldset: true, atom.Figcaption: true, atom.Figure: true, atom.Footer: true,
	atom.Form: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Header: true, atom.Hr: true, atom.Li: true,
	atom.Main: true, atom.Nav: true, atom.Ol: true, atom.P: true, atom.Pre: true,
	atom.Section: true, atom.Table: true, atom.Td: true, atom.Th: true, atom.Tr: true,
	atom.Ul: true,
}

// ParseHTML builds a Page from an HTML document located at base.
func ParseHTML(base string, body []byte) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return pageFromDocument(base, doc), nil
}

// ParseText builds a Page from a plain-text body.
func ParseText(base string, body []byte) *Page {
	return &Page{URL: base, FinalURL: base, Text: normalizeText(string(body))}
}

func pageFromDocument(base string, doc *goquery.Document) *Page {
	baseURL, _ := url.Parse(base)
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok && baseURL != nil {
		if resolved, err := baseURL.Parse(strings.TrimSpace(href)); err == nil {
			baseURL = resolved
		}
	}

	page := &Page{
		URL:      base,
		FinalURL: base,
		Title:    strings.TrimSpace(doc.Find("title").First().Text()),
	}

	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		abs, ok := resolveLink(baseURL, href)
		if !ok || seen[abs] {
			return
		}
		seen[abs] = true
		label := strings.Join(strings.Fields(sel.Text()), " ")
		if label == "" {
			label, _ = sel.Attr("title")
			label = strings.TrimSpace(label)
		}
		page.Links = append(page.Links, Link{URL: abs, Label: label})
	})

	var buf strings.Builder
	for _, node := range doc.Nodes {
		writeText(&buf, node)
	}
	page.Text = normalizeText(buf.String())

	return page
}

func resolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "tel:") {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}
	ref.Fragment = ""
	return ref.String(), true
}

func writeText(buf *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(n.Data)
		return
	case html.ElementNode:
		if skippedElements[n.DataAtom] {
			return
		}
	case html.CommentNode:
		return
	}

	block := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if block {
		buf.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(buf, c)
	}
	if block {
		buf.WriteByte('\n')
	}
}

// normalizeText collapses whitespace inside lines and drops empty lines.
func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// Host returns the lower-cased host of raw without a leading "www.".
func Host(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// SameHost reports whether two URLs share a host, ignoring "www.".
func SameHost(a, b string) bool {
	ha, hb := Host(a), Host(b)
	return ha != "" && ha == hb
}
