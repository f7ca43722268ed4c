package scanner

import "github.com/pkg/errors"

// Kind is the scanner's error taxonomy (spec.md §7). The scanner
// never aborts a run on a single-file error — only Kind ==
// StoreUnavailable after the retry budget is exhausted is fatal to
// the run.
type Kind int

const (
	NotFound Kind = iota
	LibraryMissing
	UnsupportedFile
	ArchiveCorrupt
	ArchiveEmpty
	NoImage
	StoreConflict
	StoreUnavailable
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case LibraryMissing:
		return "library_missing"
	case UnsupportedFile:
		return "unsupported_file"
	case ArchiveCorrupt:
		return "archive_corrupt"
	case ArchiveEmpty:
		return "archive_empty"
	case NoImage:
		return "no_image"
	case StoreConflict:
		return "store_conflict"
	case StoreUnavailable:
		return "store_unavailable"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error pairs a Kind with the path it occurred on and the underlying
// cause, wrapped with github.com/pkg/errors the way mutagen-io/mutagen
// and shishobooks/shisho both wrap domain errors throughout their
// trees.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Path + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds an *Error of kind k for path, attaching a stack trace to
// cause via errors.WithStack so the top-level log line carries a
// trace without every call site needing errors.Wrap boilerplate.
func Wrap(k Kind, path string, cause error) *Error {
	return &Error{Kind: k, Path: path, Err: errors.WithStack(cause)}
}

// KindOf extracts the Kind from err if it (or something it wraps) is
// an *Error, defaulting to false when err carries no scanner Kind.
func KindOf(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// IsFatal reports whether err should stop the run rather than being
// recorded and skipped, per spec.md §7: only store-unavailable after
// retries exhausted is fatal.
func IsFatal(err error) bool {
	k, ok := KindOf(err)
	return ok && k == StoreUnavailable
}
