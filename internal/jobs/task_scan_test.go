package jobs

import (
	"archive/zip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/stumpdev/stump-go/internal/catalog"
	"github.com/stumpdev/stump-go/internal/progress"
	"github.com/stumpdev/stump-go/internal/scanner"
)

func writeCBZFixture(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	w := zip.NewWriter(f)
	entry, err := w.Create("001.jpg")
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	entry.Write([]byte("fake-image-bytes"))
	if err := w.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
}

func newScanTask(t *testing.T, libraryPath string) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(ScanPayload{LibraryPath: libraryPath})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return asynq.NewTask(TaskScanLibrary, data)
}

func TestScanHandlerProcessesAKnownLibrary(t *testing.T) {
	libDir := t.TempDir()
	seriesDir := filepath.Join(libDir, "Saga")
	os.Mkdir(seriesDir, 0o755)
	writeCBZFixture(t, filepath.Join(seriesDir, "001.cbz"))

	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer store.Close()
	ctx := context.Background()
	if _, err := store.CreateLibrary(ctx, "Comics", libDir); err != nil {
		t.Fatalf("CreateLibrary: %v", err)
	}

	recon := scanner.NewReconciler(store, progress.New())
	handler := NewScanHandler(recon, scanner.SerialStrategy{})

	if err := handler.ProcessTask(ctx, newScanTask(t, libDir)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
}

func TestScanHandlerSwallowsNonFatalScanErrors(t *testing.T) {
	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer store.Close()

	recon := scanner.NewReconciler(store, progress.New())
	handler := NewScanHandler(recon, scanner.SerialStrategy{})

	// No library is registered at this path, so Reconciler.Scan fails
	// with a NotFound error — non-fatal per scanner.IsFatal, so the
	// handler should report success to asynq rather than retrying.
	err = handler.ProcessTask(context.Background(), newScanTask(t, filepath.Join(t.TempDir(), "missing")))
	if err != nil {
		t.Fatalf("ProcessTask should swallow a non-fatal scan error, got: %v", err)
	}
}

func TestScanHandlerRejectsMalformedPayload(t *testing.T) {
	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer store.Close()

	recon := scanner.NewReconciler(store, progress.New())
	handler := NewScanHandler(recon, scanner.SerialStrategy{})

	task := asynq.NewTask(TaskScanLibrary, []byte("not json"))
	if err := handler.ProcessTask(context.Background(), task); err == nil {
		t.Fatal("expected an error for a malformed payload")
	}
}
