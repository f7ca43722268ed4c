// Package archive implements the unified probe/read_page/is_image
// contract across the three supported container kinds (CBZ, CBR,
// EPUB), grounded on shishobooks/shisho's pkg/cbz.Parse and
// alexander-bruun/magi's OPF manifest handling, generalized to a
// common Reader interface so the reconciler never branches on
// container kind itself.
package archive

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/stumpdev/stump-go/internal/classify"
	"github.com/stumpdev/stump-go/internal/models"
)

// ErrNoImage is returned by ReadPage when an archive contains zero
// usable image pages (spec.md §7 NoImage).
var ErrNoImage = errors.New("archive: no usable image page")

// ErrArchiveCorrupt wraps an unreadable container (bad zip/rar
// header, truncated file).
var ErrArchiveCorrupt = errors.New("archive: corrupt or unreadable container")

// ErrArchiveEmpty is returned when the container opens cleanly but
// holds no entries at all.
var ErrArchiveEmpty = errors.New("archive: empty container")

// Probe is the result of inspecting a container without extracting
// page bytes: page count and any embedded metadata found.
type Probe struct {
	PageCount int
	Metadata  *models.ComicInfo
	// CoverIndex is the 1-based page number that should be treated as
	// the cover. Defaults to 1 unless the container declares otherwise
	// (EPUB always uses 1 per the manifest-cover rule).
	CoverIndex int
}

// Reader is implemented once per container kind. Probe and ReadPage
// both open the archive fresh; callers needing both should call Probe
// first and keep the path around for a later ReadPage rather than
// holding a handle open across calls, matching spec.md §4.B's
// "archive handles released on every exit path" resource rule.
type Reader interface {
	// Probe inspects path and returns its page count, embedded
	// metadata, and cover page index.
	Probe(path string) (*Probe, error)
	// ReadPage returns the raw bytes of the 1-based page index within
	// path, along with a content-type hint suitable for an HTTP
	// response.
	ReadPage(path string, page int) (data []byte, contentType string, err error)
}

// ForKind returns the Reader responsible for k, or nil for
// classify.Unsupported.
func ForKind(k classify.ContainerKind) Reader {
	switch k {
	case classify.Zip:
		return ZipReader{}
	case classify.Rar:
		return RarReader{}
	case classify.Epub:
		return EpubReader{}
	default:
		return nil
	}
}

// ForPath is a convenience wrapper around classify.ContainerKindOf +
// ForKind.
func ForPath(path string) Reader {
	return ForKind(classify.ContainerKindOf(path))
}

// sortedImageNames filters names to image-like entries and returns
// them in lexicographic order, the ordering spec.md and the original
// zip.rs cover heuristic both rely on for "first image is the cover"
// fallback behavior.
func sortedImageNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if classify.IsImage(n) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
