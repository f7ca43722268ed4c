package catalog

import "github.com/pkg/errors"

// ErrNotFound is returned by lookups that find nothing at the given
// key (spec.md §7 NotFound).
var ErrNotFound = errors.New("catalog: not found")

// ErrAlreadyExists is returned alongside the existing row by
// InsertMedia when a row at the same path is already cataloged.
var ErrAlreadyExists = errors.New("catalog: already exists")

// ErrUnavailable wraps a transport-level failure (connection refused,
// disk I/O error) distinct from a normal query error, so the caller's
// retry policy (spec.md §7: retry with exponential backoff, max 3,
// then fatal) can special-case it.
var ErrUnavailable = errors.New("catalog: store unavailable")
