// Package scanner implements the Reconciler and Scheduler (spec.md
// §4.F/§4.G): the concurrent, incremental filesystem-to-catalog
// engine. The phase structure (precheck → count → per-series walk →
// library reconciliation → completion) and the worker-pool/progress-
// counter shape are grounded on the teacher's
// internal/scanner.Scanner.ScanLibrary: mount-timeout stat guard,
// symlink-cycle protection via a visited-inode set, a buffered
// channel feeding a fixed worker pool, and atomic progress counters.
package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stumpdev/stump-go/internal/archive"
	"github.com/stumpdev/stump-go/internal/catalog"
	"github.com/stumpdev/stump-go/internal/classify"
	"github.com/stumpdev/stump-go/internal/digest"
	"github.com/stumpdev/stump-go/internal/models"
	"github.com/stumpdev/stump-go/internal/progress"
)

// mountStatTimeout bounds Phase 1's disk resolution check so a hung
// NFS/SMB mount cannot block the scan indefinitely, mirroring the
// teacher's 10-second mount-timeout pattern in ScanLibrary.
const mountStatTimeout = 10 * time.Second

// defaultProbeTimeout is the per-file soft timeout spec.md §5
// specifies (STUMP_PROBE_TIMEOUT_SECS, default 60).
const defaultProbeTimeout = 60 * time.Second

// storeRetryAttempts and storeRetryBaseDelay implement spec.md §7's
// StoreUnavailable policy: retry with exponential backoff, max 3
// attempts, before escalating to fatal.
const storeRetryAttempts = 3
const storeRetryBaseDelay = 50 * time.Millisecond

// Reconciler runs spec.md §4.F's scan operation against a Store.
type Reconciler struct {
	Store        catalog.Store
	Bus          *progress.Bus
	ProbeTimeout time.Duration
	// Digester computes each newly discovered media file's content
	// checksum (spec.md §4.C). Left nil, probeAndInsert skips checksum
	// computation entirely — callers that want it (cmd/stump) set it
	// after construction.
	Digester *digest.Digester
	reader   func(classify.ContainerKind) archive.Reader
}

// NewReconciler builds a Reconciler that dispatches probes through
// archive.ForKind.
func NewReconciler(store catalog.Store, bus *progress.Bus) *Reconciler {
	return &Reconciler{
		Store:        store,
		Bus:          bus,
		ProbeTimeout: defaultProbeTimeout,
		reader:       archive.ForKind,
	}
}

// withStoreRetry runs fn, retrying with exponential backoff only when
// it fails with catalog.ErrUnavailable — a transient store error per
// spec.md §7 — up to storeRetryAttempts times before giving up and
// returning the last error for the caller to treat as fatal.
func withStoreRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < storeRetryAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, catalog.ErrUnavailable) {
			return err
		}
		if attempt == storeRetryAttempts-1 {
			break
		}
		delay := storeRetryBaseDelay * time.Duration(1<<uint(attempt))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return err
		}
	}
	return err
}

// Scan runs the full five-phase reconciliation for the library rooted
// at libraryPath, publishing progress events tagged with runnerID.
func (r *Reconciler) Scan(ctx context.Context, libraryPath, runnerID string, strategy Strategy) (*models.ScanResult, error) {
	result := &models.ScanResult{}

	// Phase 1 — Precheck.
	var lib *models.Library
	err := withStoreRetry(ctx, func() error {
		var e error
		lib, e = r.Store.LibraryByPath(ctx, libraryPath)
		return e
	})
	if err != nil {
		if err == catalog.ErrNotFound {
			return nil, Wrap(NotFound, libraryPath, err)
		}
		return nil, Wrap(StoreUnavailable, libraryPath, err)
	}
	result.LibraryID = lib.ID

	if !r.resolvesOnDisk(libraryPath) {
		merr := withStoreRetry(ctx, func() error { return r.Store.MarkLibraryMissing(ctx, lib.ID) })
		if merr != nil {
			return nil, Wrap(StoreUnavailable, libraryPath, merr)
		}
		return nil, Wrap(LibraryMissing, libraryPath, errNoSuchPath)
	}

	candidates, err := discoverSeriesCandidates(libraryPath)
	if err != nil {
		return nil, Wrap(ArchiveCorrupt, libraryPath, err)
	}

	candidates, err = r.includeStaleButResolvingSeries(ctx, lib.ID, candidates)
	if err != nil {
		return nil, Wrap(StoreUnavailable, libraryPath, err)
	}

	// Candidates without an ID are not yet cataloged; InsertSeriesMany
	// returns those same pointers, and fresh rows for known paths.
	fresh := make(map[*models.Series]bool, len(candidates))
	for _, c := range candidates {
		if c.ID == "" {
			fresh[c] = true
		}
	}

	var discovered []*models.Series
	err = withStoreRetry(ctx, func() error {
		var e error
		discovered, e = r.Store.InsertSeriesMany(ctx, lib.ID, candidates)
		return e
	})
	if err != nil {
		return nil, Wrap(StoreUnavailable, libraryPath, err)
	}
	seriesCreated := 0
	for _, sr := range discovered {
		if !fresh[sr] {
			continue
		}
		seriesCreated++
		r.Bus.Publish(progress.Event{Kind: progress.SeriesCreated, RunnerID: runnerID, LibraryID: lib.ID, Payload: sr})
	}

	// Phase 2 — Count.
	totalFiles := countFilesAcrossSeries(discovered)
	r.Bus.Publish(progress.Event{Kind: progress.JobStarted, RunnerID: runnerID, LibraryID: lib.ID, Total: totalFiles,
		Message: "scan started"})

	// Phase 3 — Per-series walk, dispatched by the chosen strategy.
	var counter int64
	touched := make(map[string]bool)
	var touchedMu sync.Mutex
	var scanErrors []string
	var errMu sync.Mutex

	cancelled := strategy.Run(ctx, discovered, func(sr *models.Series) error {
		n, cerr := r.walkSeries(ctx, sr, runnerID, totalFiles, &counter)
		touchedMu.Lock()
		touched[sr.ID] = true
		touchedMu.Unlock()
		result.MediaCreated += n
		if cerr != nil {
			errMu.Lock()
			scanErrors = append(scanErrors, cerr.Error())
			errMu.Unlock()
		}
		return cerr
	})

	result.SeriesCreated = seriesCreated
	result.TotalFiles = totalFiles
	result.Errors = scanErrors

	// Phase 4 — Library reconciliation: any series this library has
	// cataloged but whose directory no longer surfaced in this run's
	// candidates (renamed away, deleted) is flipped to Missing.
	var allKnownSeries []*models.Series
	err = withStoreRetry(ctx, func() error {
		var e error
		allKnownSeries, e = r.Store.ListSeriesInLibrary(ctx, lib.ID)
		return e
	})
	if err != nil {
		return result, Wrap(StoreUnavailable, libraryPath, err)
	}
	surfaced := make(map[string]bool, len(discovered))
	for _, sr := range discovered {
		surfaced[sr.ID] = true
	}
	for _, sr := range allKnownSeries {
		if !surfaced[sr.ID] {
			setErr := withStoreRetry(ctx, func() error {
				return r.Store.SetStatus(ctx, catalog.EntitySeries, sr.ID, models.StatusMissing)
			})
			if setErr != nil {
				return result, Wrap(StoreUnavailable, sr.Path, setErr)
			}
		}
	}

	// Phase 5 — Completion.
	if cancelled {
		result.Cancelled = true
		r.Bus.Publish(progress.Event{Kind: progress.JobCompleted, RunnerID: runnerID, LibraryID: lib.ID, Cancelled: true})
		return result, Wrap(Cancelled, libraryPath, errScanCancelled)
	}
	r.Bus.Publish(progress.Event{Kind: progress.JobCompleted, RunnerID: runnerID, LibraryID: lib.ID})
	return result, nil
}

// resolvesOnDisk stats libraryPath under mountStatTimeout, treating a
// hung filesystem the same as a missing one.
func (r *Reconciler) resolvesOnDisk(path string) bool {
	done := make(chan bool, 1)
	go func() {
		_, err := os.Stat(path)
		done <- err == nil
	}()
	select {
	case ok := <-done:
		return ok
	case <-time.After(mountStatTimeout):
		return false
	}
}

// discoverSeriesCandidates enumerates depth-1 subdirectories of
// libraryPath that transitively contain media, per spec.md §4.F
// Phase 1 step 3.
func discoverSeriesCandidates(libraryPath string) ([]*models.Series, error) {
	entries, err := os.ReadDir(libraryPath)
	if err != nil {
		return nil, err
	}
	var out []*models.Series
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		full := filepath.Join(libraryPath, e.Name())
		if classify.DirHasMedia(full) {
			out = append(out, &models.Series{Title: e.Name(), Path: full, Status: models.StatusReady})
		}
	}
	return out, nil
}

// includeStaleButResolvingSeries merges already-cataloged series whose
// directory still resolves on disk into candidates, even when this
// run's fresh walk found no non-ignored files there right now (all
// archives briefly removed mid-reorganization, a slow network share
// listing empty). Without this, such a series is invisible to
// discoverSeriesCandidates, never marked touched in Phase 3, and Phase
// 4 would flip it to Missing even though its path resolves — violating
// spec.md §3's "a series is Missing only while its path does not
// resolve" invariant.
func (r *Reconciler) includeStaleButResolvingSeries(ctx context.Context, libraryID string, candidates []*models.Series) ([]*models.Series, error) {
	var known []*models.Series
	err := withStoreRetry(ctx, func() error {
		var e error
		known, e = r.Store.ListSeriesInLibrary(ctx, libraryID)
		return e
	})
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		present[c.Path] = true
	}
	for _, sr := range known {
		if present[sr.Path] {
			continue
		}
		if _, statErr := os.Stat(sr.Path); statErr != nil {
			continue
		}
		candidates = append(candidates, sr)
		present[sr.Path] = true
	}
	return candidates, nil
}

// countFilesAcrossSeries sums the eligible file count under each
// series, used to report JobStarted's total_files.
func countFilesAcrossSeries(series []*models.Series) int {
	total := 0
	for _, sr := range series {
		total += countEligibleFiles(sr.Path)
	}
	return total
}

func countEligibleFiles(dir string) int {
	n := 0
	filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !classify.ShouldIgnore(p, false) {
			n++
		}
		return nil
	})
	return n
}

// walkSeries runs Phase 3 for a single series: presence-map build,
// depth-first walk with symlink-cycle protection, probe dispatch, and
// the final unseen-to-Missing sweep. Every InsertMedia and SetStatus
// call the walk makes lands inside one WithSeriesTx transaction,
// committed only if the whole series walk completes without a fatal
// store error — spec.md §4.G's transaction-per-series contract for
// the concurrent scheduler. It returns the count of newly created
// media rows.
func (r *Reconciler) walkSeries(ctx context.Context, sr *models.Series, runnerID string, total int, counter *int64) (int, error) {
	var existing []*models.Media
	err := withStoreRetry(ctx, func() error {
		var e error
		existing, e = r.Store.ListMediaInSeries(ctx, sr.ID)
		return e
	})
	if err != nil {
		return 0, Wrap(StoreUnavailable, sr.Path, err)
	}
	presence := make(map[string]bool, len(existing)) // path -> seen
	byPath := make(map[string]*models.Media, len(existing))
	for _, m := range existing {
		presence[m.Path] = false
		byPath[m.Path] = m
	}

	created := 0
	visitedDirs := make(map[string]bool)
	var walkErr error
	var storeErr error

	// WithSeriesTx itself is not retried here: its body has side
	// effects (progress events, the created counter) that aren't safe
	// to repeat. The transient-failure retry budget applies to the
	// individual store calls inside it instead — tx.SetStatus below
	// and store.InsertMedia inside probeAndInsert — plus BeginTx/
	// Commit, retried where the SQLite store opens/closes the
	// transaction.
	txErr := r.Store.WithSeriesTx(ctx, sr.ID, func(tx catalog.Store) error {
		walkErr = filepath.WalkDir(sr.Path, func(p string, d os.DirEntry, err error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err != nil {
				return nil
			}
			if d.IsDir() {
				real, everr := filepath.EvalSymlinks(p)
				if everr != nil {
					return nil
				}
				if visitedDirs[real] {
					return filepath.SkipDir
				}
				visitedDirs[real] = true
				return nil
			}

			defer r.emitProgress(runnerID, total, counter)

			if classify.ShouldIgnore(p, false) || classify.IsDeclarativeCover(p) {
				return nil
			}
			if _, ok := presence[p]; ok {
				presence[p] = true
				return nil
			}

			kind := classify.ContainerKindOf(p)
			if kind == classify.Unsupported {
				r.Bus.Publish(progress.Event{Kind: progress.ErrorLogged, RunnerID: runnerID, Message: "unsupported file: " + p})
				return nil
			}

			m, perr := r.probeAndInsert(ctx, tx, sr, p, kind)
			if perr != nil {
				r.Bus.Publish(progress.Event{Kind: progress.ErrorLogged, RunnerID: runnerID, Message: perr.Error()})
				return nil
			}
			presence[p] = true
			created++
			r.Bus.Publish(progress.Event{Kind: progress.MediaCreated, RunnerID: runnerID, LibraryID: sr.LibraryID, Payload: m})
			return nil
		})

		if walkErr == context.Canceled {
			return walkErr
		}

		for p, seen := range presence {
			if seen {
				continue
			}
			m := byPath[p]
			if m == nil {
				continue
			}
			setErr := withStoreRetry(ctx, func() error {
				return tx.SetStatus(ctx, catalog.EntityMedia, m.ID, models.StatusMissing)
			})
			if setErr != nil {
				storeErr = setErr
				return setErr
			}
		}
		return nil
	})

	if walkErr == context.Canceled {
		return created, Wrap(Cancelled, sr.Path, walkErr)
	}
	if storeErr != nil {
		return created, Wrap(StoreUnavailable, sr.Path, storeErr)
	}
	if txErr != nil {
		return created, Wrap(StoreUnavailable, sr.Path, txErr)
	}
	if walkErr != nil {
		return created, Wrap(ArchiveCorrupt, sr.Path, walkErr)
	}
	return created, nil
}

// probeAndInsert dispatches to the matching archive reader under a
// per-file soft timeout and, on success, inserts the resulting media
// row through store — the per-series transaction-scoped Store
// walkSeries opened, so the insert commits or rolls back with the rest
// of that series' writes.
func (r *Reconciler) probeAndInsert(ctx context.Context, store catalog.Store, sr *models.Series, p string, kind classify.ContainerKind) (*models.Media, error) {
	reader := r.reader(kind)
	if reader == nil {
		return nil, Wrap(UnsupportedFile, p, errUnsupportedContainer)
	}

	type probeResult struct {
		probe *archive.Probe
		err   error
	}
	ch := make(chan probeResult, 1)
	go func() {
		pr, err := reader.Probe(p)
		ch <- probeResult{pr, err}
	}()

	var pr probeResult
	select {
	case pr = <-ch:
	case <-time.After(r.ProbeTimeout):
		return nil, Wrap(ArchiveCorrupt, p, errProbeTimeout)
	case <-ctx.Done():
		return nil, Wrap(Cancelled, p, ctx.Err())
	}

	if pr.err != nil {
		return nil, classifyProbeErr(p, pr.err)
	}

	info, statErr := os.Stat(p)
	var size int64
	if statErr == nil {
		size = info.Size()
	}

	m := &models.Media{
		ID:        uuid.NewString(),
		SeriesID:  sr.ID,
		FileName:  filepath.Base(p),
		Path:      p,
		Extension: filepath.Ext(p),
		Size:      size,
		Pages:     pr.probe.PageCount,
		Metadata:  pr.probe.Metadata,
		Status:    models.StatusReady,
	}

	if r.Digester != nil {
		if sum, derr := r.Digester.Compute(p); derr == nil {
			m.Checksum = &sum
		}
	}

	var inserted *models.Media
	err := withStoreRetry(ctx, func() error {
		var e error
		inserted, e = store.InsertMedia(ctx, m)
		if e == catalog.ErrAlreadyExists {
			return nil
		}
		return e
	})
	if err != nil {
		return nil, Wrap(StoreUnavailable, p, err)
	}
	return inserted, nil
}

func classifyProbeErr(p string, err error) error {
	switch err {
	case archive.ErrNoImage:
		return Wrap(NoImage, p, err)
	case archive.ErrArchiveEmpty:
		return Wrap(ArchiveEmpty, p, err)
	case archive.ErrArchiveCorrupt:
		return Wrap(ArchiveCorrupt, p, err)
	default:
		return Wrap(ArchiveCorrupt, p, err)
	}
}

// emitProgress increments counter and publishes JobProgress, matching
// spec.md's "after each entry, including skipped ones" progress rule.
func (r *Reconciler) emitProgress(runnerID string, total int, counter *int64) {
	cur := atomic.AddInt64(counter, 1)
	r.Bus.Publish(progress.Event{Kind: progress.JobProgress, RunnerID: runnerID, Current: int(cur), Total: total})
}
