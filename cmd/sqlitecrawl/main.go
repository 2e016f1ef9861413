package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/sqlitecrawl/internal/config"
	"github.com/IshaanNene/sqlitecrawl/internal/controller"
	"github.com/IshaanNene/sqlitecrawl/internal/coordinator"
	"github.com/IshaanNene/sqlitecrawl/internal/export"
	"github.com/IshaanNene/sqlitecrawl/internal/fetcher"
	"github.com/IshaanNene/sqlitecrawl/internal/linkextract"
	"github.com/IshaanNene/sqlitecrawl/internal/metrics"
	"github.com/IshaanNene/sqlitecrawl/internal/policy"
	"github.com/IshaanNene/sqlitecrawl/internal/sitemap"
	"github.com/IshaanNene/sqlitecrawl/internal/store"
)

var (
	cfgFile       string
	verbose       bool
	dbPath        string
	workerCount   int
	maxDepth      int
	userAgent     string
	enableSitemap bool
	metricsAddr   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sqlitecrawl",
		Short: "sqlitecrawl — a single-host, domain-scoped web crawler with durable SQLite state",
		Long: `sqlitecrawl crawls a single domain with a worker-pool of fetchers, an
adaptive concurrency controller, and durable state (queue, visited set,
error log) in an embedded SQLite file, so a crawl survives a restart.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the SQLite state file")

	rootCmd.AddCommand(crawlCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func crawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url]",
		Short: "Crawl a site starting from the given seed URL",
		Args:  cobra.ExactArgs(1),
		RunE:  runCrawl,
	}

	cmd.Flags().IntVarP(&workerCount, "workers", "n", 0, "worker pool size (0 = config default)")
	cmd.Flags().IntVarP(&maxDepth, "depth", "d", -1, "maximum crawl depth (-1 = config default)")
	cmd.Flags().StringVar(&userAgent, "user-agent", "", "custom User-Agent string")
	cmd.Flags().BoolVar(&enableSitemap, "sitemap", false, "seed the queue from /sitemap.xml at depth 1")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve /metrics on (empty disables it)")

	return cmd
}

func runCrawl(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cfg.Crawl.StartURL = args[0]
	applyCLIOverrides(cfg)

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Info("starting crawl",
		"start_url", cfg.Crawl.StartURL,
		"workers", cfg.Crawl.WorkerCount,
		"max_depth", cfg.Policy.MaxDepth,
		"db", cfg.Store.Path,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(ctx, cfg.Store.Path, store.Options{BatchSize: cfg.Store.BatchSize}, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	f, err := fetcher.Open(fetcher.Config{
		UserAgent:   cfg.Fetcher.UserAgent,
		Timeout:     cfg.Fetcher.Timeout,
		MaxBodySize: cfg.Fetcher.MaxBodySize,
		InitialCap:  int64(cfg.Controller.Initial),
	}, logger)
	if err != nil {
		return fmt.Errorf("open fetcher: %w", err)
	}
	defer f.Close()

	ctrl := controller.New(controller.Config{
		Initial: cfg.Controller.Initial,
		Min:     cfg.Controller.Min,
		Max:     cfg.Controller.Max,
		Window:  cfg.Controller.Window,
	})

	m := metrics.New(logger)
	if cfg.Metrics.Enabled && cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, m, logger)
	}

	pol := policy.New(policy.Config{
		MaxDepth:          cfg.Policy.MaxDepth,
		DenyExtensions:    cfg.Policy.DenyExtensions,
		AllowPathPrefixes: cfg.Policy.AllowPathPrefixes,
	})
	extractor := linkextract.New()
	discoverer := sitemap.New(logger)

	coord := coordinator.New(coordinator.Config{
		WorkerCount:     cfg.Crawl.WorkerCount,
		PollInterval:    cfg.Crawl.PollInterval,
		QuiescencePolls: cfg.Crawl.QuiescencePolls,
		EnableSitemap:   cfg.Crawl.EnableSitemap,
	}, st, ctrl, f, m, extractor, pol, discoverer, logger)

	reportCtx, stopReport := context.WithCancel(context.Background())
	defer stopReport()
	go m.Report(reportCtx, cfg.Metrics.ReportInterval, coord)

	go autoCommit(ctx, st, cfg.Store.CommitInterval, logger)

	start := time.Now()
	// Run returns ctx.Err() on quiescence (nil) or on signal-initiated
	// cancellation (context.Canceled) — neither is a fatal error, so it is
	// logged but never propagated as the command's exit status.
	if runErr := coord.Run(ctx, cfg.Crawl.StartURL); runErr != nil {
		logger.Info("crawl stopped", "reason", runErr)
	}
	elapsed := time.Since(start)

	if err := st.Commit(context.Background()); err != nil {
		logger.Error("final commit failed", "error", err)
	}

	visited, errs := m.Snapshot()
	logger.Info("crawl finished", "elapsed", elapsed, "visited", visited, "errors", errs)
	fmt.Printf("crawl finished in %s: %d visited, %d errors\n", elapsed.Round(time.Millisecond), visited, errs)

	return nil
}

func autoCommit(ctx context.Context, st *store.Store, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := st.Commit(ctx); err != nil {
				logger.Warn("periodic commit failed", "error", err)
			}
		}
	}
}

func serveMetrics(addr string, m *metrics.Metrics, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	logger.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}

func exportCmd() *cobra.Command {
	var outDir, stateFile string
	var batchSize int

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export newly visited URLs in batches to text files",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if dbPath != "" {
				cfg.Store.Path = dbPath
			}
			if outDir != "" {
				cfg.Export.OutDir = outDir
			}
			if stateFile != "" {
				cfg.Export.StateFile = stateFile
			}
			if batchSize > 0 {
				cfg.Export.BatchSize = batchSize
			}

			ctx := context.Background()
			st, err := store.Open(ctx, cfg.Store.Path, store.Options{BatchSize: cfg.Store.BatchSize}, logger)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			exp, err := export.Open(st, export.Config{
				OutDir:    cfg.Export.OutDir,
				StateFile: cfg.Export.StateFile,
				BatchSize: cfg.Export.BatchSize,
			}, logger)
			if err != nil {
				return fmt.Errorf("open exporter: %w", err)
			}

			n, err := exp.ExportAll(ctx)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			fmt.Printf("wrote %d batch file(s) to %s\n", n, cfg.Export.OutDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "", "output directory (config default if empty)")
	cmd.Flags().StringVar(&stateFile, "state-file", "", "state file path (config default if empty)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "rows per batch file (config default if 0)")

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sqlitecrawl %s\n", config.Version)
		},
	}
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func applyCLIOverrides(cfg *config.Config) {
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if workerCount > 0 {
		cfg.Crawl.WorkerCount = workerCount
	}
	if maxDepth >= 0 {
		cfg.Policy.MaxDepth = maxDepth
	}
	if userAgent != "" {
		cfg.Fetcher.UserAgent = userAgent
	}
	if enableSitemap {
		cfg.Crawl.EnableSitemap = true
	}
	if metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = metricsAddr
	}
}
