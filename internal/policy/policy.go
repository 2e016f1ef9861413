// Package policy implements the crawler's URL admission predicate: the
// only gate between a discovered link and the durable queue.
package policy

import (
	"net/url"
	"strings"
)

// defaultDenyExtensions mirrors the reference policy's default deny list.
var defaultDenyExtensions = []string{".pdf", ".jpg", ".png", ".zip", ".exe", ".mp4"}

// Config configures a Policy.
type Config struct {
	MaxDepth          int
	DenyExtensions    []string
	AllowPathPrefixes []string
}

// DefaultConfig returns the reference defaults: max depth 3, the standard
// binary/media deny list, and no path allowlist.
func DefaultConfig() Config {
	return Config{
		MaxDepth:       3,
		DenyExtensions: defaultDenyExtensions,
	}
}

// Policy decides whether a discovered URL may be admitted to the queue at
// a given depth.
type Policy struct {
	maxDepth          int
	denyExtensions    []string
	allowPathPrefixes []string
}

// New constructs a Policy from cfg, falling back to the reference deny
// list when cfg.DenyExtensions is empty.
func New(cfg Config) *Policy {
	deny := cfg.DenyExtensions
	if len(deny) == 0 {
		deny = defaultDenyExtensions
	}
	return &Policy{
		maxDepth:          cfg.MaxDepth,
		denyExtensions:    deny,
		allowPathPrefixes: cfg.AllowPathPrefixes,
	}
}

// Allowed implements the external admission contract (§4.6): rejects URLs
// past max depth, rejects denied file extensions, and — when an allowlist
// of path prefixes is configured — rejects any path that doesn't start
// with one of them. Malformed URLs are rejected rather than panicking.
func (p *Policy) Allowed(rawURL string, depth int) bool {
	if depth > p.maxDepth {
		return false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)

	for _, ext := range p.denyExtensions {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}

	if len(p.allowPathPrefixes) > 0 {
		for _, prefix := range p.allowPathPrefixes {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		}
		return false
	}

	return true
}
