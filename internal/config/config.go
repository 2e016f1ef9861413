package config

import "time"

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for sqlitecrawl.
type Config struct {
	Crawl      CrawlConfig      `mapstructure:"crawl"      yaml:"crawl"`
	Store      StoreConfig      `mapstructure:"store"      yaml:"store"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"    yaml:"fetcher"`
	Controller ControllerConfig `mapstructure:"controller" yaml:"controller"`
	Policy     PolicyConfig     `mapstructure:"policy"     yaml:"policy"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    yaml:"metrics"`
	Export     ExportConfig     `mapstructure:"export"     yaml:"export"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
}

// CrawlConfig controls the coordinator and the overall run.
type CrawlConfig struct {
	StartURL        string        `mapstructure:"start_url"        yaml:"start_url"`
	WorkerCount     int           `mapstructure:"worker_count"     yaml:"worker_count"`
	PollInterval    time.Duration `mapstructure:"poll_interval"    yaml:"poll_interval"`
	QuiescencePolls int32         `mapstructure:"quiescence_polls" yaml:"quiescence_polls"`
	EnableSitemap   bool          `mapstructure:"enable_sitemap"   yaml:"enable_sitemap"`
}

// StoreConfig controls the durable SQLite-backed store.
type StoreConfig struct {
	Path           string        `mapstructure:"path"             yaml:"path"`
	BatchSize      int           `mapstructure:"batch_size"       yaml:"batch_size"`
	CommitInterval time.Duration `mapstructure:"commit_interval"  yaml:"commit_interval"`
}

// FetcherConfig controls the HTTP fetcher.
type FetcherConfig struct {
	UserAgent   string        `mapstructure:"user_agent"    yaml:"user_agent"`
	Timeout     time.Duration `mapstructure:"timeout"       yaml:"timeout"`
	MaxBodySize int64         `mapstructure:"max_body_size" yaml:"max_body_size"`
}

// ControllerConfig controls the AIMD concurrency controller.
type ControllerConfig struct {
	Initial int `mapstructure:"initial" yaml:"initial"`
	Min     int `mapstructure:"min"     yaml:"min"`
	Max     int `mapstructure:"max"     yaml:"max"`
	Window  int `mapstructure:"window"  yaml:"window"`
}

// PolicyConfig controls the admission policy.
type PolicyConfig struct {
	MaxDepth          int      `mapstructure:"max_depth"           yaml:"max_depth"`
	DenyExtensions    []string `mapstructure:"deny_extensions"     yaml:"deny_extensions"`
	AllowPathPrefixes []string `mapstructure:"allow_path_prefixes" yaml:"allow_path_prefixes"`
}

// MetricsConfig controls the reporter and the Prometheus endpoint.
type MetricsConfig struct {
	ReportInterval time.Duration `mapstructure:"report_interval" yaml:"report_interval"`
	Enabled        bool          `mapstructure:"enabled"         yaml:"enabled"`
	Addr           string        `mapstructure:"addr"            yaml:"addr"`
}

// ExportConfig controls the batch exporter.
type ExportConfig struct {
	OutDir    string `mapstructure:"out_dir"    yaml:"out_dir"`
	StateFile string `mapstructure:"state_file" yaml:"state_file"`
	BatchSize int    `mapstructure:"batch_size" yaml:"batch_size"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults, mirroring every
// default named in spec.md §4.
func DefaultConfig() *Config {
	return &Config{
		Crawl: CrawlConfig{
			WorkerCount:     20,
			PollInterval:    500 * time.Millisecond,
			QuiescencePolls: 3,
			EnableSitemap:   false,
		},
		Store: StoreConfig{
			Path:           "crawl.db",
			BatchSize:      50,
			CommitInterval: 300 * time.Second,
		},
		Fetcher: FetcherConfig{
			UserAgent:   "sqlitecrawl/1.0",
			Timeout:     10 * time.Second,
			MaxBodySize: 10 * 1024 * 1024,
		},
		Controller: ControllerConfig{
			Initial: 5,
			Min:     1,
			Max:     20,
			Window:  20,
		},
		Policy: PolicyConfig{
			MaxDepth:       3,
			DenyExtensions: []string{".pdf", ".jpg", ".png", ".zip", ".exe", ".mp4"},
		},
		Metrics: MetricsConfig{
			ReportInterval: 10 * time.Second,
			Enabled:        false,
			Addr:           ":9090",
		},
		Export: ExportConfig{
			OutDir:    "exports",
			StateFile: "exports/state.json",
			BatchSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
