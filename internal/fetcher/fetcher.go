// Package fetcher issues HTTP GETs under a dynamically-resizable permit
// pool, reporting round-trip time and success for the concurrency
// controller to learn from.
package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/andybalholm/brotli"
)

// Result is the outcome of a single fetch.
type Result struct {
	Body        string
	RTT         time.Duration
	Success     bool
	ContentType string
}

// Config configures a Fetcher.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int64
	InitialCap  int64
}

// DefaultConfig returns sensible defaults: a 10s timeout and a 10MB body cap.
func DefaultConfig(userAgent string, initialCap int64) Config {
	return Config{
		UserAgent:   userAgent,
		Timeout:     10 * time.Second,
		MaxBodySize: 10 * 1024 * 1024,
		InitialCap:  initialCap,
	}
}

// Fetcher performs GET requests through a single long-lived HTTP client,
// gated by a resizable permit pool that enforces the Controller's current
// target parallelism.
type Fetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	maxBody   int64
	logger    *slog.Logger

	gate *gate
}

// Open acquires the Fetcher's long-lived HTTP session. Call Close on every
// return path, including on error paths in the caller, to release
// connections.
func Open(cfg Config, logger *slog.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{},
		DisableCompression:  true, // we decode gzip/deflate/brotli ourselves
	}

	client := &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   cfg.Timeout,
	}

	initial := cfg.InitialCap
	if initial <= 0 {
		initial = 5
	}

	return &Fetcher{
		client:    client,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		maxBody:   cfg.MaxBodySize,
		logger:    logger.With("component", "fetcher"),
		gate:      newGate(initial),
	}, nil
}

// Close releases idle connections held by the Fetcher's HTTP session.
func (f *Fetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// Resize grows or shrinks the permit pool to newLimit. Growth unblocks any
// fetch waiting to acquire a permit immediately. Shrink is passive:
// outstanding permits are never reclaimed, they simply stop being replaced
// as in-flight fetches release them, so no caller already holding a permit
// is ever cancelled by a shrink.
func (f *Fetcher) Resize(newLimit int64) {
	f.gate.resize(newLimit)
}

// Fetch acquires a permit, issues a GET to url, and reports the outcome.
// Only HTTP 200 is treated as success; any other status, timeout,
// connection error, or decode failure yields success=false with no body,
// and rtt measured from the start of the attempt to the point of failure.
// Errors are swallowed by design — the spec requires this signal to feed
// the Controller, not to propagate as a Go error.
func (f *Fetcher) Fetch(ctx context.Context, url string) Result {
	if err := f.gate.acquire(ctx); err != nil {
		return Result{Success: false}
	}
	defer f.gate.release()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{RTT: time.Since(start), Success: false}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{RTT: time.Since(start), Success: false}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return Result{RTT: time.Since(start), Success: false}
	}

	reader, err := decompressReader(resp, io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return Result{RTT: time.Since(start), Success: false}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return Result{RTT: time.Since(start), Success: false}
	}

	rtt := time.Since(start)
	f.logger.Debug("fetch complete", "url", url, "size", len(body), "rtt", rtt)

	return Result{
		Body:        string(body),
		RTT:         rtt,
		Success:     true,
		ContentType: resp.Header.Get("Content-Type"),
	}
}

func decompressReader(resp *http.Response, r io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(r)
	case "deflate":
		return flate.NewReader(r), nil
	case "br":
		return brotli.NewReader(r), nil
	default:
		return r, nil
	}
}
