// Package export implements the batch URL exporter: it reads newly
// visited URLs out of the Store in monotonic id order and writes them to
// numbered batch files, persisting its progress so a restarted exporter
// resumes rather than re-exporting.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/IshaanNene/sqlitecrawl/internal/store"
)

// VisitedSource is the subset of internal/store.Store the exporter needs.
type VisitedSource interface {
	FetchVisitedSince(ctx context.Context, lastID int64, limit int) ([]store.VisitedEntry, error)
}

// state is the on-disk exporter checkpoint.
type state struct {
	LastID int64 `json:"last_id"`
}

// Config configures an Exporter.
type Config struct {
	OutDir    string
	StateFile string
	BatchSize int
}

// DefaultConfig returns the reference defaults: an "exports" directory, a
// state file alongside it, and a 1000-row batch size.
func DefaultConfig() Config {
	return Config{
		OutDir:    "exports",
		StateFile: filepath.Join("exports", "state.json"),
		BatchSize: 1000,
	}
}

// Exporter writes batches of newly visited URLs to the configured output
// directory. It is not safe for concurrent use by multiple goroutines —
// one exporter per process, matching the reference implementation.
type Exporter struct {
	source VisitedSource
	cfg    Config
	logger *slog.Logger

	lastID       int64
	sessionID    string
	batchCounter int
}

// Open loads any prior checkpoint from cfg.StateFile, creates cfg.OutDir
// if necessary, and stamps a new session id for this exporter's lifetime.
func Open(source VisitedSource, cfg Config, logger *slog.Logger) (*Exporter, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.OutDir == "" {
		cfg.OutDir = "exports"
	}
	if cfg.StateFile == "" {
		cfg.StateFile = filepath.Join(cfg.OutDir, "state.json")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create out dir: %w", err)
	}

	e := &Exporter{
		source:    source,
		cfg:       cfg,
		logger:    logger.With("component", "export"),
		sessionID: time.Now().Format("2006-01-02_15-04-05"),
	}
	if err := e.loadState(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Exporter) loadState() error {
	data, err := os.ReadFile(e.cfg.StateFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("export: read state file: %w", err)
	}
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("export: parse state file: %w", err)
	}
	e.lastID = s.LastID
	return nil
}

func (e *Exporter) saveState() error {
	data, err := json.Marshal(state{LastID: e.lastID})
	if err != nil {
		return err
	}
	return os.WriteFile(e.cfg.StateFile, data, 0o644)
}

// ExportNextBatch reads up to BatchSize newly visited URLs and writes them
// to a numbered batch file. It returns false when there is nothing new to
// export. The id column's gaps (from write loss under the Store's relaxed
// durability policy) are tolerated; any inversion would be a Store bug,
// not an exporter concern.
func (e *Exporter) ExportNextBatch(ctx context.Context) (bool, error) {
	rows, err := e.source.FetchVisitedSince(ctx, e.lastID, e.cfg.BatchSize)
	if err != nil {
		return false, fmt.Errorf("export: fetch visited: %w", err)
	}
	if len(rows) == 0 {
		return false, nil
	}

	e.batchCounter++
	filename := fmt.Sprintf("%s_batch_%05d.txt", e.sessionID, e.batchCounter)
	path := filepath.Join(e.cfg.OutDir, filename)

	var sb strings.Builder
	for _, row := range rows {
		sb.WriteString(row.URL)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return false, fmt.Errorf("export: write batch file: %w", err)
	}

	e.lastID = rows[len(rows)-1].ID
	if err := e.saveState(); err != nil {
		return false, fmt.Errorf("export: save state: %w", err)
	}

	e.logger.Info("wrote export batch", "count", len(rows), "path", path)
	return true, nil
}

// ExportAll calls ExportNextBatch repeatedly until it reports no more
// rows, returning the total number of batches written.
func (e *Exporter) ExportAll(ctx context.Context) (int, error) {
	batches := 0
	for {
		wrote, err := e.ExportNextBatch(ctx)
		if err != nil {
			return batches, err
		}
		if !wrote {
			return batches, nil
		}
		batches++
	}
}
