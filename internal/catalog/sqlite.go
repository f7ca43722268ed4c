package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stumpdev/stump-go/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// dbtx is satisfied by both *sql.DB and *sql.Tx. The query/exec
// helpers below are written against it so the same code path serves
// the ambient connection and a single series' transaction
// (seriesTxStore) without duplicating every method body.
type dbtx interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SQLiteStore implements Store over a SQLite file, matching spec.md
// §6's "SQLite file at <config>/stump.db" and generalizing the
// teacher's internal/repository raw-SQL style (one struct per
// aggregate, plain query constants, explicit row scanning) from
// Postgres's $1 placeholders to SQLite's ?.
type SQLiteStore struct {
	db  *sql.DB
	q   dbtx
	log *logrus.Entry
}

// Open connects to the SQLite file at path and applies schema.sql,
// matching db.Connect/db.Migrate's connect-then-migrate sequence but
// collapsed into one step since SQLite has no separate migrations
// table worth versioning for a single embedded schema.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, "catalog: open sqlite")
	}
	db.SetMaxOpenConns(1) // SQLite write concurrency is serialized at the connection level.

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, errors.Wrap(err, "catalog: apply schema")
	}
	return &SQLiteStore{db: db, q: db, log: logrus.WithField("component", "catalog")}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr, sqlite3.ErrCantOpen:
			return errors.Wrap(ErrUnavailable, err.Error())
		}
	}
	return err
}

func (s *SQLiteStore) LibraryByPath(ctx context.Context, path string) (*models.Library, error) {
	return libraryByPath(ctx, s.q, path)
}

func libraryByPath(ctx context.Context, q dbtx, path string) (*models.Library, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, path, status, created_at, updated_at FROM libraries WHERE path = ?`, path)
	lib := &models.Library{}
	err := row.Scan(&lib.ID, &lib.Name, &lib.Path, &lib.Status, &lib.CreatedAt, &lib.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyErr(err)
	}
	return lib, nil
}

func (s *SQLiteStore) MarkLibraryMissing(ctx context.Context, libraryID string) error {
	return markLibraryMissing(ctx, s.q, libraryID)
}

func markLibraryMissing(ctx context.Context, q dbtx, libraryID string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE libraries SET status = ?, updated_at = ? WHERE id = ?`,
		models.StatusMissing, time.Now().UTC(), libraryID)
	return classifyErr(err)
}

func (s *SQLiteStore) ListMediaInSeries(ctx context.Context, seriesID string) ([]*models.Media, error) {
	return listMediaInSeries(ctx, s.q, seriesID)
}

func listMediaInSeries(ctx context.Context, q dbtx, seriesID string) ([]*models.Media, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, series_id, file_name, path, extension, size, pages, checksum, status, updated_at
		 FROM media WHERE series_id = ?`, seriesID)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var out []*models.Media
	for rows.Next() {
		m := &models.Media{}
		if err := rows.Scan(&m.ID, &m.SeriesID, &m.FileName, &m.Path, &m.Extension,
			&m.Size, &m.Pages, &m.Checksum, &m.Status, &m.UpdatedAt); err != nil {
			return nil, classifyErr(err)
		}
		out = append(out, m)
	}
	return out, classifyErr(rows.Err())
}

func listSeriesInLibrary(ctx context.Context, q dbtx, libraryID string) ([]*models.Series, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, library_id, title, path, status, updated_at FROM series WHERE library_id = ? ORDER BY title`, libraryID)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var out []*models.Series
	for rows.Next() {
		sr := &models.Series{}
		if err := rows.Scan(&sr.ID, &sr.LibraryID, &sr.Title, &sr.Path, &sr.Status, &sr.UpdatedAt); err != nil {
			return nil, classifyErr(err)
		}
		out = append(out, sr)
	}
	return out, classifyErr(rows.Err())
}

// InsertSeriesMany runs inside a single transaction: each candidate
// path is looked up first, and only genuinely new paths are inserted,
// matching spec.md §4.D's "dedup on path, never errors on a
// duplicate" contract for this specific call.
func (s *SQLiteStore) InsertSeriesMany(ctx context.Context, libraryID string, series []*models.Series) ([]*models.Series, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifyErr(err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	out, err := insertSeriesMany(ctx, tx, libraryID, series)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, classifyErr(err)
	}
	committed = true
	return out, nil
}

func insertSeriesMany(ctx context.Context, q dbtx, libraryID string, series []*models.Series) ([]*models.Series, error) {
	out := make([]*models.Series, 0, len(series))
	for _, sr := range series {
		existing := &models.Series{}
		row := q.QueryRowContext(ctx,
			`SELECT id, library_id, title, path, status, updated_at FROM series WHERE path = ?`, sr.Path)
		err := row.Scan(&existing.ID, &existing.LibraryID, &existing.Title, &existing.Path, &existing.Status, &existing.UpdatedAt)
		if err == nil {
			out = append(out, existing)
			continue
		}
		if err != sql.ErrNoRows {
			return nil, classifyErr(err)
		}

		if sr.ID == "" {
			sr.ID = uuid.NewString()
		}
		sr.LibraryID = libraryID
		if sr.Status == "" {
			sr.Status = models.StatusReady
		}
		sr.UpdatedAt = time.Now().UTC()
		_, err = q.ExecContext(ctx,
			`INSERT INTO series (id, library_id, title, path, status, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			sr.ID, sr.LibraryID, sr.Title, sr.Path, sr.Status, sr.UpdatedAt)
		if err != nil {
			return nil, classifyErr(err)
		}
		out = append(out, sr)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *SQLiteStore) InsertMedia(ctx context.Context, m *models.Media) (*models.Media, error) {
	return insertMedia(ctx, s.q, m)
}

func insertMedia(ctx context.Context, q dbtx, m *models.Media) (*models.Media, error) {
	existing := &models.Media{}
	row := q.QueryRowContext(ctx,
		`SELECT id, series_id, file_name, path, extension, size, pages, checksum, status, updated_at
		 FROM media WHERE path = ?`, m.Path)
	err := row.Scan(&existing.ID, &existing.SeriesID, &existing.FileName, &existing.Path,
		&existing.Extension, &existing.Size, &existing.Pages, &existing.Checksum, &existing.Status, &existing.UpdatedAt)
	if err == nil {
		return existing, ErrAlreadyExists
	}
	if err != sql.ErrNoRows {
		return nil, classifyErr(err)
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = models.StatusReady
	}
	m.UpdatedAt = time.Now().UTC()

	meta := m.Metadata
	if meta == nil {
		meta = &models.ComicInfo{}
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO media (
			id, series_id, file_name, path, extension, size, pages, checksum, status, updated_at,
			title, series_name, number, volume, summary, notes, page_count,
			writer, penciller, inker, colorist, letterer, editor, publisher, genre, tags, age_rating, language
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SeriesID, m.FileName, m.Path, m.Extension, m.Size, m.Pages, m.Checksum, m.Status, m.UpdatedAt,
		meta.Title, meta.Series, meta.Number, meta.Volume, meta.Summary, meta.Notes, meta.PageCount,
		meta.Writer, meta.Penciller, meta.Inker, meta.Colorist, meta.Letterer, meta.Editor,
		meta.Publisher, meta.Genre, meta.Tags, meta.AgeRating, meta.Language)
	if err != nil {
		return nil, classifyErr(err)
	}
	return m, nil
}

func (s *SQLiteStore) SetStatus(ctx context.Context, kind EntityKind, id string, status models.Status) error {
	return setStatus(ctx, s.q, kind, id, status)
}

func setStatus(ctx context.Context, q dbtx, kind EntityKind, id string, status models.Status) error {
	table, ok := map[EntityKind]string{
		EntityLibrary: "libraries",
		EntitySeries:  "series",
		EntityMedia:   "media",
	}[kind]
	if !ok {
		return errors.Errorf("catalog: unknown entity kind %d", kind)
	}
	_, err := q.ExecContext(ctx,
		`UPDATE `+table+` SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	return classifyErr(err)
}

// seriesTxRetryAttempts and seriesTxRetryBaseDelay bound the retry
// spec.md §7 asks for on a transient (ErrUnavailable) failure opening
// or committing a series transaction, before it is treated as fatal.
// fn itself is never retried here — only the one-shot BeginTx/Commit
// calls around it, since fn's body may have already-published,
// non-idempotent side effects by the time Commit fails.
const seriesTxRetryAttempts = 3
const seriesTxRetryBaseDelay = 50 * time.Millisecond

func retrySeriesTxStep(step func() error) error {
	var err error
	for attempt := 0; attempt < seriesTxRetryAttempts; attempt++ {
		err = step()
		if err == nil || !errors.Is(err, ErrUnavailable) {
			return err
		}
		if attempt == seriesTxRetryAttempts-1 {
			break
		}
		time.Sleep(seriesTxRetryBaseDelay * time.Duration(1<<uint(attempt)))
	}
	return err
}

// WithSeriesTx opens one transaction, hands callers a Store scoped to
// it, and commits only if fn returns nil — spec.md §4.G's
// transaction-per-series contract for the concurrent scheduler
// strategy. Grounded on InsertSeriesMany's pre-existing
// BeginTx/Rollback/Commit shape, generalized from "one batch insert"
// to "arbitrary Store calls for one series."
func (s *SQLiteStore) WithSeriesTx(ctx context.Context, seriesID string, fn func(Store) error) error {
	var tx *sql.Tx
	err := retrySeriesTxStep(func() error {
		var e error
		tx, e = s.db.BeginTx(ctx, nil)
		return classifyErr(e)
	})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	txStore := &seriesTxStore{q: tx, log: s.log.WithField("series_id", seriesID)}
	if err := fn(txStore); err != nil {
		return err
	}
	if err := retrySeriesTxStep(func() error { return classifyErr(tx.Commit()) }); err != nil {
		return err
	}
	committed = true
	return nil
}

// seriesTxStore implements Store against a *sql.Tx rather than the
// ambient *sql.DB, so every write a caller makes through it belongs to
// the one transaction WithSeriesTx opened.
type seriesTxStore struct {
	q   dbtx
	log *logrus.Entry
}

func (s *seriesTxStore) LibraryByPath(ctx context.Context, path string) (*models.Library, error) {
	return libraryByPath(ctx, s.q, path)
}

func (s *seriesTxStore) MarkLibraryMissing(ctx context.Context, libraryID string) error {
	return markLibraryMissing(ctx, s.q, libraryID)
}

func (s *seriesTxStore) ListMediaInSeries(ctx context.Context, seriesID string) ([]*models.Media, error) {
	return listMediaInSeries(ctx, s.q, seriesID)
}

func (s *seriesTxStore) ListSeriesInLibrary(ctx context.Context, libraryID string) ([]*models.Series, error) {
	return listSeriesInLibrary(ctx, s.q, libraryID)
}

func (s *seriesTxStore) InsertSeriesMany(ctx context.Context, libraryID string, series []*models.Series) ([]*models.Series, error) {
	return insertSeriesMany(ctx, s.q, libraryID, series)
}

func (s *seriesTxStore) InsertMedia(ctx context.Context, m *models.Media) (*models.Media, error) {
	return insertMedia(ctx, s.q, m)
}

func (s *seriesTxStore) SetStatus(ctx context.Context, kind EntityKind, id string, status models.Status) error {
	return setStatus(ctx, s.q, kind, id, status)
}

// WithSeriesTx on a seriesTxStore is reentrant: it is already scoped
// to a transaction, so it simply runs fn against itself rather than
// opening a nested one (SQLite has no meaningful nested-transaction
// semantics without savepoints, and nothing in this package needs
// them).
func (s *seriesTxStore) WithSeriesTx(_ context.Context, _ string, fn func(Store) error) error {
	return fn(s)
}
