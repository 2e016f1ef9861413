package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values, including the
// cross-field invariant that worker_count must be able to reach the
// controller's max concurrency.
func Validate(cfg *Config) error {
	if err := ValidateURL(cfg.Crawl.StartURL); err != nil {
		return fmt.Errorf("crawl.start_url: %w", err)
	}
	if cfg.Crawl.WorkerCount < 1 {
		return fmt.Errorf("crawl.worker_count must be >= 1, got %d", cfg.Crawl.WorkerCount)
	}
	if cfg.Crawl.WorkerCount < cfg.Controller.Max {
		return fmt.Errorf("crawl.worker_count (%d) must be >= controller.max (%d), or the parallelism cap can never be reached", cfg.Crawl.WorkerCount, cfg.Controller.Max)
	}
	if cfg.Crawl.PollInterval <= 0 {
		return fmt.Errorf("crawl.poll_interval must be > 0")
	}
	if cfg.Crawl.QuiescencePolls < 1 {
		return fmt.Errorf("crawl.quiescence_polls must be >= 1, got %d", cfg.Crawl.QuiescencePolls)
	}

	if cfg.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}
	if cfg.Store.BatchSize < 1 {
		return fmt.Errorf("store.batch_size must be >= 1, got %d", cfg.Store.BatchSize)
	}
	if cfg.Store.CommitInterval <= 0 {
		return fmt.Errorf("store.commit_interval must be > 0")
	}

	if cfg.Fetcher.Timeout <= 0 {
		return fmt.Errorf("fetcher.timeout must be > 0")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.UserAgent == "" {
		return fmt.Errorf("fetcher.user_agent must not be empty")
	}

	if cfg.Controller.Min < 1 {
		return fmt.Errorf("controller.min must be >= 1, got %d", cfg.Controller.Min)
	}
	if cfg.Controller.Max < cfg.Controller.Min {
		return fmt.Errorf("controller.max (%d) must be >= controller.min (%d)", cfg.Controller.Max, cfg.Controller.Min)
	}
	if cfg.Controller.Initial < cfg.Controller.Min || cfg.Controller.Initial > cfg.Controller.Max {
		return fmt.Errorf("controller.initial (%d) must be within [min, max] = [%d, %d]", cfg.Controller.Initial, cfg.Controller.Min, cfg.Controller.Max)
	}
	if cfg.Controller.Window < 1 {
		return fmt.Errorf("controller.window must be >= 1, got %d", cfg.Controller.Window)
	}

	if cfg.Policy.MaxDepth < 0 {
		return fmt.Errorf("policy.max_depth must be >= 0, got %d", cfg.Policy.MaxDepth)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr must not be empty when metrics.enabled is true")
	}

	return nil
}

// ValidateURL checks if a URL string is valid as a crawl seed.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
