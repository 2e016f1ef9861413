// Package sitemap implements sitemap discovery: fetching a site's
// sitemap.xml, validating it is a real sitemap document, and recursing
// into sitemap indexes to collect every leaf URL.
package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gpsitemap "github.com/oxffaa/gopher-parse-sitemap"
)

// validRoots mirrors the reference implementation's accepted root
// elements, namespace stripped.
var validRoots = map[string]bool{"urlset": true, "sitemapindex": true}

// Discoverer fetches and parses sitemap.xml (and any nested sitemaps it
// references) for a base URL.
type Discoverer struct {
	client  *http.Client
	logger  *slog.Logger
	timeout time.Duration
}

// New constructs a Discoverer with a 15s per-request timeout, matching
// the reference implementation's default.
func New(logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger.With("component", "sitemap"),
		timeout: 15 * time.Second,
	}
}

// Discover fetches "/sitemap.xml" relative to baseURL and returns every
// leaf URL found, recursing through sitemap indexes. A failure of the
// top-level sitemap — unreachable host, non-XML content type, malformed
// document — yields a nil slice and a non-nil error; a nested sitemap that
// fails is logged and skipped, and the URLs of the others are still
// returned. Callers treat sitemap seeding as best-effort and log rather
// than fail the crawl.
func (d *Discoverer) Discover(ctx context.Context, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("sitemap: parse base url: %w", err)
	}
	sitemapURL := base.ResolveReference(&url.URL{Path: "/sitemap.xml"}).String()
	return d.fetchSitemap(ctx, sitemapURL)
}

func (d *Discoverer) fetchSitemap(ctx context.Context, sitemapURL string) ([]string, error) {
	body, err := d.fetch(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}

	root, err := rootElement(body)
	if err != nil || !validRoots[root] {
		return nil, fmt.Errorf("sitemap: %q is not a valid sitemap document", sitemapURL)
	}

	if root == "sitemapindex" {
		var nested []string
		err := gpsitemap.ParseIndex(bytes.NewReader(body), func(e gpsitemap.IndexEntry) error {
			nested = append(nested, e.GetLocation())
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("sitemap: parse index %q: %w", sitemapURL, err)
		}

		var urls []string
		for _, loc := range nested {
			leaves, err := d.fetchSitemap(ctx, loc)
			if err != nil {
				d.logger.Warn("nested sitemap unavailable", "url", loc, "error", err)
				continue
			}
			urls = append(urls, leaves...)
		}
		return urls, nil
	}

	var urls []string
	err = gpsitemap.Parse(bytes.NewReader(body), func(e gpsitemap.Entry) error {
		urls = append(urls, e.GetLocation())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sitemap: parse %q: %w", sitemapURL, err)
	}
	return urls, nil
}

func (d *Discoverer) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sitemap: %s returned status %d", target, resp.StatusCode)
	}
	if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "xml") {
		return nil, fmt.Errorf("sitemap: %s is not xml", target)
	}

	return io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
}

// rootElement returns the root element's local name, namespace stripped,
// mirroring the reference implementation's `root.tag.split("}")[-1]`.
func rootElement(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}
