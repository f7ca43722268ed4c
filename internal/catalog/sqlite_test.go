package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stumpdev/stump-go/internal/models"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedLibrary(t *testing.T, s *SQLiteStore, path string) *models.Library {
	t.Helper()
	ctx := context.Background()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO libraries (id, name, path, status) VALUES (?, ?, ?, ?)`,
		"lib-1", "Test Library", path, models.StatusReady)
	if err != nil {
		t.Fatalf("seed library: %v", err)
	}
	lib, err := s.LibraryByPath(ctx, path)
	if err != nil {
		t.Fatalf("LibraryByPath: %v", err)
	}
	return lib
}

func TestLibraryByPathNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LibraryByPath(context.Background(), "/nowhere")
	if err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestInsertSeriesManyDedupesOnPath(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	lib := seedLibrary(t, s, "/library")

	first, err := s.InsertSeriesMany(ctx, lib.ID, []*models.Series{
		{Title: "A", Path: "/library/a"},
		{Title: "B", Path: "/library/b"},
	})
	if err != nil {
		t.Fatalf("InsertSeriesMany: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("len(first) = %d, want 2", len(first))
	}

	second, err := s.InsertSeriesMany(ctx, lib.ID, []*models.Series{
		{Title: "A", Path: "/library/a"},
		{Title: "C", Path: "/library/c"},
	})
	if err != nil {
		t.Fatalf("InsertSeriesMany (second): %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("len(second) = %d, want 2 (a deduped, c new)", len(second))
	}
	for _, sr := range second {
		if sr.Path == "/library/a" && sr.ID != first[0].ID {
			t.Errorf("series at /library/a should reuse its existing id")
		}
	}
}

func TestInsertMediaReturnsExistingOnConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	lib := seedLibrary(t, s, "/library")
	series, err := s.InsertSeriesMany(ctx, lib.ID, []*models.Series{{Title: "A", Path: "/library/a"}})
	if err != nil {
		t.Fatalf("InsertSeriesMany: %v", err)
	}

	m := &models.Media{SeriesID: series[0].ID, FileName: "one.cbz", Path: "/library/a/one.cbz", Extension: ".cbz", Size: 100}
	created, err := s.InsertMedia(ctx, m)
	if err != nil {
		t.Fatalf("InsertMedia: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}

	dup := &models.Media{SeriesID: series[0].ID, FileName: "one.cbz", Path: "/library/a/one.cbz", Extension: ".cbz", Size: 999}
	existing, err := s.InsertMedia(ctx, dup)
	if err != ErrAlreadyExists {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
	if existing.ID != created.ID {
		t.Errorf("existing.ID = %q, want %q", existing.ID, created.ID)
	}
	if existing.Size != 100 {
		t.Errorf("existing.Size = %d, want original 100 (no overwrite)", existing.Size)
	}
}

func TestSetStatusAndListMediaInSeries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	lib := seedLibrary(t, s, "/library")
	series, err := s.InsertSeriesMany(ctx, lib.ID, []*models.Series{{Title: "A", Path: "/library/a"}})
	if err != nil {
		t.Fatalf("InsertSeriesMany: %v", err)
	}
	m := &models.Media{SeriesID: series[0].ID, FileName: "one.cbz", Path: "/library/a/one.cbz", Extension: ".cbz", Size: 100}
	created, err := s.InsertMedia(ctx, m)
	if err != nil {
		t.Fatalf("InsertMedia: %v", err)
	}

	if err := s.SetStatus(ctx, EntityMedia, created.ID, models.StatusMissing); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	list, err := s.ListMediaInSeries(ctx, series[0].ID)
	if err != nil {
		t.Fatalf("ListMediaInSeries: %v", err)
	}
	if len(list) != 1 || list[0].Status != models.StatusMissing {
		t.Fatalf("list = %+v, want one entry with status MISSING", list)
	}
}

func TestWithSeriesTxCommitsAllWritesTogether(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	lib := seedLibrary(t, s, "/library")
	series, err := s.InsertSeriesMany(ctx, lib.ID, []*models.Series{{Title: "A", Path: "/library/a"}})
	if err != nil {
		t.Fatalf("InsertSeriesMany: %v", err)
	}
	seriesID := series[0].ID

	err = s.WithSeriesTx(ctx, seriesID, func(tx Store) error {
		if _, err := tx.InsertMedia(ctx, &models.Media{
			SeriesID: seriesID, FileName: "one.cbz", Path: "/library/a/one.cbz", Extension: ".cbz", Size: 100,
		}); err != nil {
			return err
		}
		_, err := tx.InsertMedia(ctx, &models.Media{
			SeriesID: seriesID, FileName: "two.cbz", Path: "/library/a/two.cbz", Extension: ".cbz", Size: 200,
		})
		return err
	})
	if err != nil {
		t.Fatalf("WithSeriesTx: %v", err)
	}

	list, err := s.ListMediaInSeries(ctx, seriesID)
	if err != nil {
		t.Fatalf("ListMediaInSeries: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
}

func TestWithSeriesTxRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	lib := seedLibrary(t, s, "/library")
	series, err := s.InsertSeriesMany(ctx, lib.ID, []*models.Series{{Title: "A", Path: "/library/a"}})
	if err != nil {
		t.Fatalf("InsertSeriesMany: %v", err)
	}
	seriesID := series[0].ID

	boom := errors.New("boom")
	err = s.WithSeriesTx(ctx, seriesID, func(tx Store) error {
		if _, err := tx.InsertMedia(ctx, &models.Media{
			SeriesID: seriesID, FileName: "one.cbz", Path: "/library/a/one.cbz", Extension: ".cbz", Size: 100,
		}); err != nil {
			return err
		}
		return boom
	})
	if err != boom {
		t.Fatalf("err = %v, want boom", err)
	}

	list, err := s.ListMediaInSeries(ctx, seriesID)
	if err != nil {
		t.Fatalf("ListMediaInSeries: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("len(list) = %d, want 0 (rolled back)", len(list))
	}
}
