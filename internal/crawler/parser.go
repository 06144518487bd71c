package crawler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// ErrParse is returned when a document cannot be parsed. The engine logs it
// and treats the page as having no links.
var ErrParse = errors.New("failed to parse HTML")

// linkAttrs maps elements to the attribute that holds their link target.
var linkAttrs = map[string]string{
	"a":      "href",
	"area":   "href",
	"iframe": "src",
	"frame":  "src",
}

// Parser extracts links from HTML documents.
type Parser struct {
	// baseURL is the URL of the page being parsed, used for resolving
	// relative URLs. A <base href> in the document replaces it.
	baseURL *url.URL
}

// NewParser creates a new HTML parser with the given base URL.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	return &Parser{baseURL: u}, nil
}

// Links parses content and returns the absolute link targets in document
// order, without fragments and without duplicates.
func (p *Parser) Links(content io.Reader) ([]string, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	base := p.baseURL
	if href, ok := findBase(doc); ok {
		if u, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = p.baseURL.ResolveReference(u)
		}
	}

	seen := make(map[string]struct{})
	links := make([]string, 0)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if attr, ok := linkAttrs[n.Data]; ok {
				if resolved := resolveURL(base, getAttr(n, attr)); resolved != "" {
					if _, dup := seen[resolved]; !dup {
						seen[resolved] = struct{}{}
						links = append(links, resolved)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return links, nil
}

// ExtractLinks returns the absolute links of body resolved against baseURL.
// It re-parses body on every call, so repeated calls return the same sequence.
func ExtractLinks(body []byte, baseURL string) ([]string, error) {
	p, err := NewParser(baseURL)
	if err != nil {
		return nil, err
	}
	return p.Links(bytes.NewReader(body))
}

// findBase returns the href of the first <base> element.
func findBase(n *html.Node) (string, bool) {
	if n.Type == html.ElementNode && n.Data == "base" {
		if href := getAttr(n, "href"); href != "" {
			return href, true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if href, ok := findBase(c); ok {
			return href, true
		}
	}
	return "", false
}

// resolveURL resolves href against base and strips the fragment. Links that
// cannot be fetched (scripts, mail, phone, inline data, same-page anchors)
// resolve to "".
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved.String()
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
