// Package coordinator drives the crawl to quiescence under a worker-pool
// discipline: it pulls URLs off the Store's queue, fetches them under the
// Fetcher's permit pool, feeds outcomes to the Controller, and enqueues
// links the Policy admits.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/sqlitecrawl/internal/fetcher"
	"github.com/IshaanNene/sqlitecrawl/internal/store"
)

// Store is the subset of internal/store.Store the coordinator needs.
type Store interface {
	Enqueue(ctx context.Context, url string, depth int) error
	Dequeue(ctx context.Context) (*store.QueueEntry, error)
	IsVisited(ctx context.Context, url string) (bool, error)
	MarkVisited(ctx context.Context, url string, depth int) error
	LogError(ctx context.Context, url, kind, message string) error
	QueueSize(ctx context.Context) (int, error)
}

// Controller is the subset of internal/controller.Controller the
// coordinator needs.
type Controller interface {
	Record(success bool, rttSeconds float64)
	ShouldAdjust() bool
	Adjust() int
}

// Fetcher is the subset of internal/fetcher.Fetcher the coordinator needs.
type Fetcher interface {
	Fetch(ctx context.Context, url string) fetcher.Result
	Resize(newLimit int64)
}

// Metrics is the subset of internal/metrics.Metrics the coordinator needs.
type Metrics interface {
	IncVisited()
	IncError()
}

// LinkExtractor is the external link-extraction contract (§4.7).
type LinkExtractor interface {
	ExtractLinks(body, baseURL, contentType string) ([]string, error)
}

// Policy is the external admission contract (§4.6).
type Policy interface {
	Allowed(url string, depth int) bool
}

// SitemapDiscoverer is the external sitemap contract, used only at seed
// time when sitemap discovery is enabled.
type SitemapDiscoverer interface {
	Discover(ctx context.Context, baseURL string) ([]string, error)
}

// Config configures a Coordinator.
type Config struct {
	WorkerCount     int
	PollInterval    time.Duration
	QuiescencePolls int32 // consecutive empty-and-idle polls before terminating
	EnableSitemap   bool
}

// DefaultConfig returns the spec's defaults: a ~500ms poll and a grace
// period of 3 empty-and-idle polls before quiescence. The polls are counted
// across all workers, so the grace period is ~1.5s with one worker and
// shorter with several.
func DefaultConfig(workerCount int) Config {
	return Config{
		WorkerCount:     workerCount,
		PollInterval:    500 * time.Millisecond,
		QuiescencePolls: 3,
	}
}

// Coordinator is the worker-pool orchestrator.
type Coordinator struct {
	cfg        Config
	store      Store
	controller Controller
	fetcher    Fetcher
	metrics    Metrics
	extractor  LinkExtractor
	policy     Policy
	sitemap    SitemapDiscoverer
	logger     *slog.Logger

	inFlight    atomic.Int64
	emptyStreak atomic.Int32
}

// New constructs a Coordinator. sitemap may be nil when cfg.EnableSitemap
// is false.
func New(cfg Config, store Store, ctrl Controller, f Fetcher, m Metrics, extractor LinkExtractor, policy Policy, sitemap SitemapDiscoverer, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.QuiescencePolls <= 0 {
		cfg.QuiescencePolls = 3
	}
	return &Coordinator{
		cfg:        cfg,
		store:      store,
		controller: ctrl,
		fetcher:    f,
		metrics:    m,
		extractor:  extractor,
		policy:     policy,
		sitemap:    sitemap,
		logger:     logger.With("component", "coordinator"),
	}
}

// QueueSize satisfies metrics.QueueSizer so a Coordinator's Store can back
// the periodic reporter directly.
func (c *Coordinator) QueueSize(ctx context.Context) (int, error) {
	return c.store.QueueSize(ctx)
}

// Run seeds the store with startURL (and, if enabled, sitemap URLs at
// depth 1), then starts the worker pool and blocks until the crawl reaches
// quiescence or ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context, startURL string) error {
	if err := c.store.Enqueue(ctx, startURL, 0); err != nil {
		return err
	}

	if c.cfg.EnableSitemap && c.sitemap != nil {
		urls, err := c.sitemap.Discover(ctx, startURL)
		if err != nil {
			c.logger.Warn("sitemap discovery failed", "error", err)
		}
		for _, u := range urls {
			if err := c.store.Enqueue(ctx, u, 1); err != nil {
				c.logger.Warn("sitemap seed enqueue failed", "url", u, "error", err)
			}
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(c.cfg.WorkerCount)
	for i := 0; i < c.cfg.WorkerCount; i++ {
		go func(id int) {
			defer wg.Done()
			c.worker(runCtx, cancel, id)
		}(i)
	}
	wg.Wait()

	return ctx.Err()
}

// worker runs the dequeue/fetch/extract/enqueue loop until stop is
// triggered, either by the parent context or by this or another worker
// detecting quiescence.
func (c *Coordinator) worker(ctx context.Context, stop context.CancelFunc, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Count this worker as in flight before it dequeues, so no other
		// worker can observe an empty queue and a zero in-flight count while
		// a URL sits between Dequeue and process.
		c.inFlight.Add(1)
		entry, err := c.store.Dequeue(ctx)
		if err != nil {
			c.inFlight.Add(-1)
			c.logger.Error("dequeue failed", "worker", id, "error", err)
			time.Sleep(c.cfg.PollInterval)
			continue
		}

		if entry == nil {
			c.inFlight.Add(-1)
			if c.observeEmptyPoll() {
				stop()
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.PollInterval):
			}
			continue
		}

		c.emptyStreak.Store(0)
		c.process(ctx, *entry)
		c.inFlight.Add(-1)
	}
}

// observeEmptyPoll records one empty-dequeue observation and reports
// whether the coordinator should terminate: the queue was empty AND no
// worker held an in-flight URL on QuiescencePolls empty polls (counted
// across all workers) since the last successful dequeue. A poll that sees
// another worker in flight does not count toward the streak.
func (c *Coordinator) observeEmptyPoll() bool {
	if c.inFlight.Load() != 0 {
		return false
	}
	streak := c.emptyStreak.Add(1)
	return streak >= c.cfg.QuiescencePolls
}

func (c *Coordinator) process(ctx context.Context, entry store.QueueEntry) {
	visited, err := c.store.IsVisited(ctx, entry.URL)
	if err != nil {
		c.logger.Error("visited check failed", "url", entry.URL, "error", err)
		return
	}
	if visited {
		return
	}

	if err := c.store.MarkVisited(ctx, entry.URL, entry.Depth); err != nil {
		c.logger.Error("mark visited failed", "url", entry.URL, "error", err)
		return
	}
	c.metrics.IncVisited()

	result := c.fetcher.Fetch(ctx, entry.URL)
	c.controller.Record(result.Success, result.RTT.Seconds())
	if c.controller.ShouldAdjust() {
		newCap := c.controller.Adjust()
		c.fetcher.Resize(int64(newCap))
		c.logger.Info("resized permit pool", "cap", newCap)
	}

	if !result.Success {
		c.metrics.IncError()
		if err := c.store.LogError(ctx, entry.URL, "fetch_failed", "non-200 status or transport error"); err != nil {
			c.logger.Error("log error row failed", "url", entry.URL, "error", err)
		}
		return
	}

	links, err := c.extractor.ExtractLinks(result.Body, entry.URL, result.ContentType)
	if err != nil {
		c.logger.Warn("link extraction failed", "url", entry.URL, "error", err)
		return
	}

	for _, link := range links {
		if !c.policy.Allowed(link, entry.Depth+1) {
			continue
		}
		if err := c.store.Enqueue(ctx, link, entry.Depth+1); err != nil {
			c.logger.Error("enqueue failed", "url", link, "error", err)
		}
	}
}
