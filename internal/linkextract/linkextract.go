// Package linkextract implements the crawler's link-extraction contract
// (spec §4.7): given a response body, its base URL, and its content type,
// return the set of absolute URLs on the same registrable domain as the
// base URL, with fragments stripped and relative references resolved.
package linkextract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/publicsuffix"
)

// Extractor dispatches to an HTML or XML extraction path based on content
// type, filtering the result to links on the same registrable domain as
// base_url.
type Extractor struct{}

// New constructs an Extractor. It holds no state; one instance may be
// shared across goroutines.
func New() *Extractor {
	return &Extractor{}
}

// ExtractLinks implements the external contract. XML dispatch is driven by
// the presence of "xml" in contentType (case-insensitive), mirroring the
// reference parser's BeautifulSoup "xml" vs "html.parser" choice.
func (e *Extractor) ExtractLinks(body, baseURL, contentType string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	var hrefs []string
	if strings.Contains(strings.ToLower(contentType), "xml") {
		hrefs, err = extractXML(body)
	} else {
		hrefs, err = extractHTML(body)
	}
	if err != nil {
		return nil, err
	}

	return resolveAndFilter(base, hrefs), nil
}

func extractHTML(body string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs, nil
}

// hrefExpr matches any element's href attribute, broad enough to cover
// XML dialects (Atom/RSS <link href="...">, XHTML <a href="...">) without
// hard-coding a single vocabulary's element names.
var hrefExpr = xpath.MustCompile("//@href")

func extractXML(body string) ([]string, error) {
	doc, err := htmlquery.Parse(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	var hrefs []string
	for _, n := range htmlquery.QuerySelectorAll(doc, hrefExpr) {
		hrefs = append(hrefs, htmlquery.InnerText(n))
	}
	return hrefs, nil
}

func resolveAndFilter(base *url.URL, hrefs []string) []string {
	seen := make(map[string]bool, len(hrefs))
	out := make([]string, 0, len(hrefs))

	for _, raw := range hrefs {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") ||
			strings.HasPrefix(raw, "javascript:") ||
			strings.HasPrefix(raw, "mailto:") ||
			strings.HasPrefix(raw, "tel:") ||
			strings.HasPrefix(raw, "data:") {
			continue
		}

		ref, err := url.Parse(raw)
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			continue
		}
		resolved.Fragment = ""

		if !sameRegistrableDomain(base, resolved) {
			continue
		}

		abs := resolved.String()
		if !seen[abs] {
			seen[abs] = true
			out = append(out, abs)
		}
	}
	return out
}

// sameRegistrableDomain reports whether a and b share the same
// registrable domain (e.g. "www.example.com" and "blog.example.com" both
// resolve to "example.com"), using the public suffix list rather than a
// naive host-equality check.
func sameRegistrableDomain(a, b *url.URL) bool {
	da, erra := publicsuffix.EffectiveTLDPlusOne(hostOnly(a.Hostname()))
	db, errb := publicsuffix.EffectiveTLDPlusOne(hostOnly(b.Hostname()))
	if erra != nil || errb != nil {
		return strings.EqualFold(a.Hostname(), b.Hostname())
	}
	return strings.EqualFold(da, db)
}

func hostOnly(h string) string {
	return strings.ToLower(h)
}
