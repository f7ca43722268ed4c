// Package catalog implements the Catalog Store contract (spec.md
// §4.D): the synchronous persistence boundary the reconciler talks
// to. The interface is defined here so the scanner package depends
// only on behavior, never on the SQLite implementation directly,
// mirroring how the teacher's internal/repository package exposes one
// struct per aggregate behind plain Go methods rather than a generic
// ORM layer.
package catalog

import (
	"context"

	"github.com/stumpdev/stump-go/internal/models"
)

// Store is the full contract the reconciler and scheduler require.
// Every method is synchronous: callers that need concurrency (the
// concurrent scheduler strategy) serialize their own access via
// per-series transactions rather than relying on the store to do it
// for them, except where a method is documented otherwise.
type Store interface {
	// LibraryByPath returns the library rooted at path, or ErrNotFound.
	LibraryByPath(ctx context.Context, path string) (*models.Library, error)
	// MarkLibraryMissing flips a library's status to Missing, used
	// when its root path no longer exists on disk at scan time.
	MarkLibraryMissing(ctx context.Context, libraryID string) error

	// ListMediaInSeries returns every media row currently cataloged
	// under seriesID, regardless of status, for presence-map building.
	ListMediaInSeries(ctx context.Context, seriesID string) ([]*models.Media, error)

	// ListSeriesInLibrary returns every series row cataloged under
	// libraryID, regardless of whether its directory still exists on
	// disk, so Phase 4 can flip ones no longer discovered to Missing.
	ListSeriesInLibrary(ctx context.Context, libraryID string) ([]*models.Series, error)

	// InsertSeriesMany inserts series rows in one batch, deduplicating
	// on path: a path already present in the batch or in the store is
	// skipped rather than erroring, and the full resulting set
	// (pre-existing + newly inserted) is returned in path order.
	InsertSeriesMany(ctx context.Context, libraryID string, series []*models.Series) ([]*models.Series, error)

	// InsertMedia inserts a single media row. If a row already exists
	// at the same path, InsertMedia returns that existing row (not an
	// error) along with ErrAlreadyExists so callers can distinguish
	// "created" from "already there" for progress-event purposes.
	InsertMedia(ctx context.Context, m *models.Media) (*models.Media, error)

	// SetStatus updates the status of a library, series, or media row
	// identified by kind and id.
	SetStatus(ctx context.Context, kind EntityKind, id string, status models.Status) error

	// WithSeriesTx runs fn against a Store scoped to a single
	// transaction for seriesID, committing only if fn returns nil and
	// rolling back otherwise. spec.md §4.G requires the concurrent
	// scheduler to commit one series' catalog writes atomically; every
	// InsertMedia and SetStatus call a caller makes through the Store
	// fn receives lands in that one transaction.
	WithSeriesTx(ctx context.Context, seriesID string, fn func(Store) error) error
}

// EntityKind discriminates which table SetStatus targets.
type EntityKind int

const (
	EntityLibrary EntityKind = iota
	EntitySeries
	EntityMedia
)
