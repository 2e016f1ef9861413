package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/IshaanNene/sqlitecrawl/internal/fetcher"
	"github.com/IshaanNene/sqlitecrawl/internal/store"
)

// fakeStore is an in-memory FIFO queue + visited set for testing the
// coordinator without a real SQLite file.
type fakeStore struct {
	mu      sync.Mutex
	queue   []store.QueueEntry
	visited map[string]int
	errors  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{visited: make(map[string]int)}
}

func (f *fakeStore) Enqueue(ctx context.Context, url string, depth int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.queue {
		if e.URL == url {
			return nil
		}
	}
	if _, ok := f.visited[url]; ok {
		return nil
	}
	f.queue = append(f.queue, store.QueueEntry{URL: url, Depth: depth})
	return nil
}

func (f *fakeStore) Dequeue(ctx context.Context) (*store.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, nil
	}
	e := f.queue[0]
	f.queue = f.queue[1:]
	return &e, nil
}

func (f *fakeStore) IsVisited(ctx context.Context, url string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.visited[url]
	return ok, nil
}

func (f *fakeStore) MarkVisited(ctx context.Context, url string, depth int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visited[url] = depth
	return nil
}

func (f *fakeStore) LogError(ctx context.Context, url, kind, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, url)
	return nil
}

func (f *fakeStore) QueueSize(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue), nil
}

func (f *fakeStore) visitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

type fakeController struct{}

func (fakeController) Record(success bool, rttSeconds float64) {}
func (fakeController) ShouldAdjust() bool                       { return false }
func (fakeController) Adjust() int                              { return 1 }

type fakeFetcher struct {
	links map[string][]string
}

func (f fakeFetcher) Fetch(ctx context.Context, url string) fetcher.Result {
	if _, ok := f.links[url]; !ok {
		return fetcher.Result{Success: false}
	}
	return fetcher.Result{Success: true, Body: url, ContentType: "text/html"}
}

func (f fakeFetcher) Resize(newLimit int64) {}

type fakeMetrics struct {
	visited, errs atomic
}

type atomic struct {
	mu sync.Mutex
	n  int
}

func (a *atomic) inc() {
	a.mu.Lock()
	a.n++
	a.mu.Unlock()
}

func (a *atomic) load() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}

func (m *fakeMetrics) IncVisited() { m.visited.inc() }
func (m *fakeMetrics) IncError()   { m.errs.inc() }

type fakeExtractor struct {
	links map[string][]string
}

func (e fakeExtractor) ExtractLinks(body, baseURL, contentType string) ([]string, error) {
	return e.links[baseURL], nil
}

type allowAllPolicy struct{ maxDepth int }

func (p allowAllPolicy) Allowed(url string, depth int) bool {
	return depth <= p.maxDepth
}

func TestRunSinglePageSiteReachesQuiescence(t *testing.T) {
	fs := newFakeStore()
	links := map[string][]string{
		"https://example.com/": {},
	}
	f := fakeFetcher{links: links}
	m := &fakeMetrics{}
	ex := fakeExtractor{links: links}

	cfg := DefaultConfig(2)
	cfg.PollInterval = 10 * time.Millisecond
	cfg.QuiescencePolls = 2
	c := New(cfg, fs, fakeController{}, f, m, ex, allowAllPolicy{maxDepth: 10}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Run(ctx, "https://example.com/"); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if fs.visitedCount() != 1 {
		t.Errorf("expected 1 visited URL, got %d", fs.visitedCount())
	}
	if m.visited.load() != 1 {
		t.Errorf("expected 1 visited metric, got %d", m.visited.load())
	}
}

func TestRunFollowsLinksWithinDepth(t *testing.T) {
	fs := newFakeStore()
	links := map[string][]string{
		"https://example.com/":  {"https://example.com/a", "https://example.com/b"},
		"https://example.com/a": {"https://example.com/c"},
		"https://example.com/b": {},
		"https://example.com/c": {},
	}
	f := fakeFetcher{links: links}
	m := &fakeMetrics{}
	ex := fakeExtractor{links: links}

	cfg := DefaultConfig(3)
	cfg.PollInterval = 10 * time.Millisecond
	cfg.QuiescencePolls = 2
	c := New(cfg, fs, fakeController{}, f, m, ex, allowAllPolicy{maxDepth: 10}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.Run(ctx, "https://example.com/"); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if fs.visitedCount() != 4 {
		t.Errorf("expected all 4 pages visited, got %d", fs.visitedCount())
	}
}

func TestRunDepthCapExcludesDeepLinks(t *testing.T) {
	fs := newFakeStore()
	links := map[string][]string{
		"https://example.com/":  {"https://example.com/a"},
		"https://example.com/a": {"https://example.com/b"},
		"https://example.com/b": {},
	}
	f := fakeFetcher{links: links}
	m := &fakeMetrics{}
	ex := fakeExtractor{links: links}

	cfg := DefaultConfig(2)
	cfg.PollInterval = 10 * time.Millisecond
	cfg.QuiescencePolls = 2
	// depth cap of 1: seed is depth 0, its links are depth 1 (allowed),
	// links of those are depth 2 (rejected).
	c := New(cfg, fs, fakeController{}, f, m, ex, allowAllPolicy{maxDepth: 1}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Run(ctx, "https://example.com/"); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if fs.visitedCount() != 2 {
		t.Errorf("expected depth cap to exclude the 3rd page, got %d visited", fs.visitedCount())
	}
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	fs := newFakeStore()
	// a fetcher that always returns an empty-link page keeps workers
	// polling without ever reaching quiescence naturally before cancel.
	links := map[string][]string{"https://example.com/": {}}
	f := fakeFetcher{links: links}
	m := &fakeMetrics{}
	ex := fakeExtractor{links: links}

	cfg := DefaultConfig(2)
	cfg.PollInterval = 200 * time.Millisecond
	cfg.QuiescencePolls = 1000 // effectively never
	c := New(cfg, fs, fakeController{}, f, m, ex, allowAllPolicy{maxDepth: 10}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Run(ctx, "https://example.com/")
	if err == nil {
		t.Fatal("expected context deadline error")
	}
}

func TestDedupUnderConcurrentWorkers(t *testing.T) {
	fs := newFakeStore()
	// a diamond graph: seed -> a, b; a -> c; b -> c. c must be visited once.
	links := map[string][]string{
		"https://example.com/":  {"https://example.com/a", "https://example.com/b"},
		"https://example.com/a": {"https://example.com/c"},
		"https://example.com/b": {"https://example.com/c"},
		"https://example.com/c": {},
	}
	f := fakeFetcher{links: links}
	m := &fakeMetrics{}
	ex := fakeExtractor{links: links}

	cfg := DefaultConfig(4)
	cfg.PollInterval = 10 * time.Millisecond
	cfg.QuiescencePolls = 3
	c := New(cfg, fs, fakeController{}, f, m, ex, allowAllPolicy{maxDepth: 10}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.Run(ctx, "https://example.com/"); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if fs.visitedCount() != 4 {
		t.Errorf("expected each of 4 pages visited exactly once, got %d", fs.visitedCount())
	}
}
