package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/IshaanNene/sqlitecrawl/internal/store"
)

type fakeSource struct {
	rows []store.VisitedEntry
}

func (f fakeSource) FetchVisitedSince(ctx context.Context, lastID int64, limit int) ([]store.VisitedEntry, error) {
	var out []store.VisitedEntry
	for _, r := range f.rows {
		if r.ID > lastID {
			out = append(out, r)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func TestExportNextBatchWritesFileAndAdvancesState(t *testing.T) {
	dir := t.TempDir()
	src := fakeSource{rows: []store.VisitedEntry{
		{ID: 1, URL: "https://example.com/a"},
		{ID: 2, URL: "https://example.com/b"},
	}}

	e, err := Open(src, Config{OutDir: dir, StateFile: filepath.Join(dir, "state.json"), BatchSize: 10}, nil)
	if err != nil {
		t.Fatal(err)
	}

	wrote, err := e.ExportNextBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !wrote {
		t.Fatal("expected a batch to be written")
	}

	entries, _ := os.ReadDir(dir)
	var found bool
	for _, de := range entries {
		if de.Name() != "state.json" {
			found = true
		}
	}
	if !found {
		t.Error("expected a batch file in the output directory")
	}

	wrote, err = e.ExportNextBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if wrote {
		t.Error("expected no more rows on the second call")
	}
}

func TestExportStateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	src := fakeSource{rows: []store.VisitedEntry{
		{ID: 1, URL: "https://example.com/a"},
		{ID: 2, URL: "https://example.com/b"},
	}}

	e1, err := Open(src, Config{OutDir: dir, StateFile: statePath, BatchSize: 10}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e1.ExportNextBatch(context.Background()); err != nil {
		t.Fatal(err)
	}

	e2, err := Open(src, Config{OutDir: dir, StateFile: statePath, BatchSize: 10}, nil)
	if err != nil {
		t.Fatal(err)
	}
	wrote, err := e2.ExportNextBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if wrote {
		t.Error("reopened exporter should not re-export already-exported rows")
	}
}

func TestExportAllDrainsMultipleBatches(t *testing.T) {
	dir := t.TempDir()
	rows := make([]store.VisitedEntry, 25)
	for i := range rows {
		rows[i] = store.VisitedEntry{ID: int64(i + 1), URL: "https://example.com/p"}
	}
	src := fakeSource{rows: rows}

	e, err := Open(src, Config{OutDir: dir, StateFile: filepath.Join(dir, "state.json"), BatchSize: 10}, nil)
	if err != nil {
		t.Fatal(err)
	}

	n, err := e.ExportAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected 3 batches of 10/10/5, got %d", n)
	}
}
