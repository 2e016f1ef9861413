package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from the config file and environment.
// Priority (highest to lowest): env vars > config file > defaults. CLI
// flags are not read here; the caller applies them to the returned Config
// afterwards (cmd/sqlitecrawl's applyCLIOverrides), so they win over all
// three.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("SQLITECRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("sqlitecrawl")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".sqlitecrawl"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so env vars and flags can
// override them without first requiring a config file to exist.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("crawl.start_url", cfg.Crawl.StartURL)
	v.SetDefault("crawl.worker_count", cfg.Crawl.WorkerCount)
	v.SetDefault("crawl.poll_interval", cfg.Crawl.PollInterval)
	v.SetDefault("crawl.quiescence_polls", cfg.Crawl.QuiescencePolls)
	v.SetDefault("crawl.enable_sitemap", cfg.Crawl.EnableSitemap)

	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("store.batch_size", cfg.Store.BatchSize)
	v.SetDefault("store.commit_interval", cfg.Store.CommitInterval)

	v.SetDefault("fetcher.user_agent", cfg.Fetcher.UserAgent)
	v.SetDefault("fetcher.timeout", cfg.Fetcher.Timeout)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)

	v.SetDefault("controller.initial", cfg.Controller.Initial)
	v.SetDefault("controller.min", cfg.Controller.Min)
	v.SetDefault("controller.max", cfg.Controller.Max)
	v.SetDefault("controller.window", cfg.Controller.Window)

	v.SetDefault("policy.max_depth", cfg.Policy.MaxDepth)
	v.SetDefault("policy.deny_extensions", cfg.Policy.DenyExtensions)
	v.SetDefault("policy.allow_path_prefixes", cfg.Policy.AllowPathPrefixes)

	v.SetDefault("metrics.report_interval", cfg.Metrics.ReportInterval)
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)

	v.SetDefault("export.out_dir", cfg.Export.OutDir)
	v.SetDefault("export.state_file", cfg.Export.StateFile)
	v.SetDefault("export.batch_size", cfg.Export.BatchSize)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
}
