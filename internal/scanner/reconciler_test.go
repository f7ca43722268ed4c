package scanner

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stumpdev/stump-go/internal/catalog"
	"github.com/stumpdev/stump-go/internal/models"
	"github.com/stumpdev/stump-go/internal/progress"
)

func writeCBZ(t *testing.T, path string, pages []string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	w := zip.NewWriter(f)
	for _, name := range pages {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := entry.Write([]byte("fake-image-bytes")); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
}

func newTestReconciler(t *testing.T) (*Reconciler, *catalog.SQLiteStore) {
	t.Helper()
	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewReconciler(store, progress.New()), store
}

func TestScanColdLibraryCreatesSeriesAndMedia(t *testing.T) {
	libDir := t.TempDir()
	seriesDir := filepath.Join(libDir, "Saga")
	os.Mkdir(seriesDir, 0o755)
	writeCBZ(t, filepath.Join(seriesDir, "Saga 001.cbz"), []string{"001.jpg", "002.jpg"})

	recon, store := newTestReconciler(t)
	ctx := context.Background()
	lib, err := store.CreateLibrary(ctx, "Comics", libDir)
	if err != nil {
		t.Fatalf("CreateLibrary: %v", err)
	}

	result, err := recon.Scan(ctx, libDir, "run-1", SerialStrategy{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.SeriesCreated != 1 {
		t.Fatalf("series created = %d, want 1", result.SeriesCreated)
	}
	if result.MediaCreated != 1 {
		t.Fatalf("media created = %d, want 1", result.MediaCreated)
	}
	if result.LibraryID != lib.ID {
		t.Fatalf("library id = %s, want %s", result.LibraryID, lib.ID)
	}
}

func TestScanRescanUnchangedCreatesNothingNew(t *testing.T) {
	libDir := t.TempDir()
	seriesDir := filepath.Join(libDir, "Saga")
	os.Mkdir(seriesDir, 0o755)
	writeCBZ(t, filepath.Join(seriesDir, "Saga 001.cbz"), []string{"001.jpg"})

	recon, store := newTestReconciler(t)
	ctx := context.Background()
	store.CreateLibrary(ctx, "Comics", libDir)

	if _, err := recon.Scan(ctx, libDir, "run-1", SerialStrategy{}); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	result, err := recon.Scan(ctx, libDir, "run-2", SerialStrategy{})
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if result.MediaCreated != 0 {
		t.Fatalf("media created on rescan = %d, want 0", result.MediaCreated)
	}
	if result.SeriesCreated != 0 {
		t.Fatalf("series created on rescan = %d, want 0 (already cataloged)", result.SeriesCreated)
	}
}

func TestScanRenamedSeriesFlipsOldToMissing(t *testing.T) {
	libDir := t.TempDir()
	oldDir := filepath.Join(libDir, "Saga")
	os.Mkdir(oldDir, 0o755)
	writeCBZ(t, filepath.Join(oldDir, "Saga 001.cbz"), []string{"001.jpg"})

	recon, store := newTestReconciler(t)
	ctx := context.Background()
	store.CreateLibrary(ctx, "Comics", libDir)

	result1, err := recon.Scan(ctx, libDir, "run-1", SerialStrategy{})
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	oldSeriesID := ""
	known, _ := store.ListSeriesInLibrary(ctx, result1.LibraryID)
	for _, sr := range known {
		oldSeriesID = sr.ID
	}

	newDir := filepath.Join(libDir, "Saga Renamed")
	if err := os.Rename(oldDir, newDir); err != nil {
		t.Fatalf("rename: %v", err)
	}

	if _, err := recon.Scan(ctx, libDir, "run-2", SerialStrategy{}); err != nil {
		t.Fatalf("second scan: %v", err)
	}

	afterSeries, err := store.ListSeriesInLibrary(ctx, result1.LibraryID)
	if err != nil {
		t.Fatalf("ListSeriesInLibrary: %v", err)
	}
	var foundOld, foundNew bool
	for _, sr := range afterSeries {
		if sr.ID == oldSeriesID {
			foundOld = true
			if sr.Status != models.StatusMissing {
				t.Fatalf("old series status = %s, want Missing", sr.Status)
			}
		}
		if sr.Path == newDir {
			foundNew = true
			if sr.Status != models.StatusReady {
				t.Fatalf("new series status = %s, want Ready", sr.Status)
			}
		}
	}
	if !foundOld || !foundNew {
		t.Fatalf("expected both old (missing) and new (ready) series rows, got %+v", afterSeries)
	}
}

func TestScanCorruptArchiveLogsErrorAndContinues(t *testing.T) {
	libDir := t.TempDir()
	seriesDir := filepath.Join(libDir, "Saga")
	os.Mkdir(seriesDir, 0o755)
	os.WriteFile(filepath.Join(seriesDir, "broken.cbz"), []byte("not a zip file"), 0o644)
	writeCBZ(t, filepath.Join(seriesDir, "good.cbz"), []string{"001.jpg"})

	recon, store := newTestReconciler(t)
	ctx := context.Background()
	store.CreateLibrary(ctx, "Comics", libDir)

	result, err := recon.Scan(ctx, libDir, "run-1", SerialStrategy{})
	if err != nil {
		t.Fatalf("Scan should not abort on a single corrupt archive: %v", err)
	}
	if result.MediaCreated != 1 {
		t.Fatalf("media created = %d, want 1 (only the good archive)", result.MediaCreated)
	}
}

func TestScanLibraryMissingOnDeletedPath(t *testing.T) {
	libDir := t.TempDir()
	recon, store := newTestReconciler(t)
	ctx := context.Background()
	store.CreateLibrary(ctx, "Comics", libDir)

	os.RemoveAll(libDir)

	_, err := recon.Scan(ctx, libDir, "run-1", SerialStrategy{})
	if err == nil {
		t.Fatal("expected an error for a library path that no longer resolves")
	}
	if kind, ok := KindOf(err); !ok || kind != LibraryMissing {
		t.Fatalf("error kind = %v, want LibraryMissing", kind)
	}
}

// TestScanCancellationReturnsCancelledResult exercises cancellation
// through a Strategy that reports cancelled on its very first series
// without touching the store, so Phase 1's precheck runs against a
// live context and only Phase 3 observes the cancellation — a
// pre-cancelled context passed straight into Scan would instead fail
// the store lookup in Phase 1 and never reach Phase 3 at all.
type cancelledStrategy struct{}

func (cancelledStrategy) Run(ctx context.Context, series []*models.Series, work func(*models.Series) error) bool {
	return true
}

func TestScanCancellationReturnsCancelledResult(t *testing.T) {
	libDir := t.TempDir()
	seriesDir := filepath.Join(libDir, "Saga")
	os.Mkdir(seriesDir, 0o755)
	writeCBZ(t, filepath.Join(seriesDir, "001.cbz"), []string{"001.jpg"})

	recon, store := newTestReconciler(t)
	ctx := context.Background()
	store.CreateLibrary(ctx, "Comics", libDir)

	result, err := recon.Scan(ctx, libDir, "run-1", cancelledStrategy{})
	if err == nil {
		t.Fatal("expected a cancellation error")
	}
	if kind, ok := KindOf(err); !ok || kind != Cancelled {
		t.Fatalf("error kind = %v, want Cancelled", kind)
	}
	if result == nil || !result.Cancelled {
		t.Fatalf("result.Cancelled = %v, want true", result)
	}
}
