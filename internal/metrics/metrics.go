// Package metrics tracks process-wide crawl counters and runs the periodic
// reporter task, with an optional Prometheus exposition endpoint over the
// same counters.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// QueueSizer is the narrow interface the reporter needs from the store.
type QueueSizer interface {
	QueueSize(ctx context.Context) (int, error)
}

// Metrics holds atomic counters for a single crawl process.
type Metrics struct {
	visited atomic.Int64
	errors  atomic.Int64
	start   time.Time

	visitedCounter prometheus.Counter
	errorsCounter  prometheus.Counter
	queueGauge     prometheus.Gauge

	logger *slog.Logger
}

// New creates a Metrics instance. Its Prometheus collectors are never
// registered globally; Registry registers them on a private registry (so
// multiple crawls in the same process never collide on global registration).
func New(logger *slog.Logger) *Metrics {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Metrics{
		start:  time.Now(),
		logger: logger.With("component", "metrics"),
		visitedCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sqlitecrawl_visited_total",
			Help: "Total URLs marked visited.",
		}),
		errorsCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sqlitecrawl_errors_total",
			Help: "Total fetch errors logged.",
		}),
		queueGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sqlitecrawl_queue_depth",
			Help: "Advisory depth of the durable URL queue.",
		}),
	}
	return m
}

// Registry returns a new prometheus.Registry with this Metrics' collectors
// registered, suitable for mounting under an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(m.visitedCounter, m.errorsCounter, m.queueGauge)
	return reg
}

// Handler returns an http.Handler serving this Metrics' counters in
// Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})
}

// IncVisited increments the visited counter. Safe for concurrent use.
func (m *Metrics) IncVisited() {
	m.visited.Add(1)
	m.visitedCounter.Inc()
}

// IncError increments the error counter. Safe for concurrent use.
func (m *Metrics) IncError() {
	m.errors.Add(1)
	m.errorsCounter.Inc()
}

// Snapshot returns the (visited, errors) counts. Each counter is read
// atomically, one after the other; the pair is not read under one lock, so
// increments landing between the two reads can make it a pair the counters
// never held together.
func (m *Metrics) Snapshot() (visited, errors int64) {
	return m.visited.Load(), m.errors.Load()
}

// Uptime returns the time elapsed since the Metrics instance started.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.start)
}

// Report runs exactly one reporter task until ctx is cancelled, emitting a
// human-readable line every interval seconds. It is the caller's
// responsibility to start this at most once per crawl.
func (m *Metrics) Report(ctx context.Context, interval time.Duration, qs QueueSizer) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			visited, errs := m.Snapshot()
			uptime := m.Uptime()

			qsize := 0
			if qs != nil {
				if n, err := qs.QueueSize(ctx); err == nil {
					qsize = n
				} else {
					m.logger.Warn("reporter: queue_size failed", "error", err)
				}
			}
			m.queueGauge.Set(float64(qsize))

			var rate float64
			if uptime.Seconds() > 0 {
				rate = float64(visited) / uptime.Seconds()
			}

			m.logger.Info("crawl progress",
				"visited", visited,
				"errors", errs,
				"queue", qsize,
				"uptime", uptime.Round(time.Second),
				"rate_per_sec", fmt.Sprintf("%.2f", rate),
			)
		}
	}
}
