package catalog

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/stumpdev/stump-go/internal/models"
)

// The HTTP layer's read needs go beyond the Store contract the
// reconciler requires (spec.md §4.D); these queries live directly on
// SQLiteStore rather than the Store interface since they serve OPDS
// and the REST surface, not the scan pipeline.

func (s *SQLiteStore) LibraryByID(ctx context.Context, id string) (*models.Library, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, path, status, created_at, updated_at FROM libraries WHERE id = ?`, id)
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

func (s *SQLiteStore) ListLibraries(ctx context.Context) ([]*models.Library, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, path, status, created_at, updated_at FROM libraries ORDER BY name`)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var out []*models.Library
	for rows.Next() {
		lib := &models.Library{}
		if err := rows.Scan(&lib.ID, &lib.Name, &lib.Path, &lib.Status, &lib.CreatedAt, &lib.UpdatedAt); err != nil {
			return nil, classifyErr(err)
		}
		out = append(out, lib)
	}
	return out, classifyErr(rows.Err())
}

// CreateLibrary registers a new library root, the precondition
// Reconciler.Scan's precheck phase requires before it can find
// anything by path.
func (s *SQLiteStore) CreateLibrary(ctx context.Context, name, path string) (*models.Library, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO libraries (id, name, path, status, created_at, updated_at) VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		id, name, path, models.StatusReady)
	if err != nil {
		return nil, classifyErr(err)
	}
	return s.LibraryByID(ctx, id)
}

func (s *SQLiteStore) SeriesByID(ctx context.Context, id string) (*models.Series, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, library_id, title, path, status, updated_at FROM series WHERE id = ?`, id)
	sr := &models.Series{}
	err := row.Scan(&sr.ID, &sr.LibraryID, &sr.Title, &sr.Path, &sr.Status, &sr.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyErr(err)
	}
	return sr, nil
}

func (s *SQLiteStore) ListSeriesInLibrary(ctx context.Context, libraryID string) ([]*models.Series, error) {
	return listSeriesInLibrary(ctx, s.q, libraryID)
}

// mediaColumns lists every column the media table carries, including
// the embedded ComicInfo fields, for use by row-scanning helpers that
// need the full metadata block (OPDS entries, page-fetch lookups).
const mediaColumns = `id, series_id, file_name, path, extension, size, pages, checksum, status, updated_at,
	title, series_name, number, volume, summary, notes, page_count,
	writer, penciller, inker, colorist, letterer, editor, publisher, genre, tags, age_rating, language`

func scanMediaWithMeta(row interface{ Scan(dest ...interface{}) error }) (*models.Media, error) {
	m := &models.Media{}
	meta := &models.ComicInfo{}
	err := row.Scan(&m.ID, &m.SeriesID, &m.FileName, &m.Path, &m.Extension, &m.Size, &m.Pages, &m.Checksum, &m.Status, &m.UpdatedAt,
		&meta.Title, &meta.Series, &meta.Number, &meta.Volume, &meta.Summary, &meta.Notes, &meta.PageCount,
		&meta.Writer, &meta.Penciller, &meta.Inker, &meta.Colorist, &meta.Letterer, &meta.Editor,
		&meta.Publisher, &meta.Genre, &meta.Tags, &meta.AgeRating, &meta.Language)
	if err != nil {
		return nil, err
	}
	if *meta != (models.ComicInfo{}) {
		m.Metadata = meta
	}
	return m, nil
}

func (s *SQLiteStore) MediaByID(ctx context.Context, id string) (*models.Media, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media WHERE id = ?`, id)
	m, err := scanMediaWithMeta(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyErr(err)
	}
	return m, nil
}

// SearchMedia finds media whose file name, title, or series name
// contains query, the SQLite LIKE-based stand-in for the teacher's
// Postgres ts_rank full-text search (no FTS5 virtual table is wired
// into the schema, so this trades ranking for a simple substring
// match across the columns an OPDS search box is expected to cover).
func (s *SQLiteStore) SearchMedia(ctx context.Context, query string, limit int) ([]*models.Media, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	like := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+mediaColumns+` FROM media
		 WHERE file_name LIKE ? OR title LIKE ? OR series_name LIKE ?
		 ORDER BY file_name LIMIT ?`, like, like, like, limit)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var out []*models.Media
	for rows.Next() {
		m, err := scanMediaWithMeta(rows)
		if err != nil {
			return nil, classifyErr(err)
		}
		out = append(out, m)
	}
	return out, classifyErr(rows.Err())
}

func (s *SQLiteStore) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, is_admin, created_at FROM users WHERE username = ?`, username)
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyErr(err)
	}
	return u, nil
}

// CreateUser inserts a new account with a fresh ID, then reads the row
// back by username and returns it.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) (*models.User, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, is_admin, created_at) VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		id, username, passwordHash, isAdmin)
	if err != nil {
		return nil, classifyErr(err)
	}
	return s.UserByUsername(ctx, username)
}

func (s *SQLiteStore) ListMediaWithMetaInSeries(ctx context.Context, seriesID string) ([]*models.Media, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+mediaColumns+` FROM media WHERE series_id = ? ORDER BY file_name`, seriesID)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var out []*models.Media
	for rows.Next() {
		m, err := scanMediaWithMeta(rows)
		if err != nil {
			return nil, classifyErr(err)
		}
		out = append(out, m)
	}
	return out, classifyErr(rows.Err())
}
