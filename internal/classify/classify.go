// Package classify holds the scanner's pure path predicates: which
// entries are ignorable, which are image-like or declarative covers,
// and which archive container kind a path dispatches to. No I/O beyond
// stat/read_dir, grounded on the extension-table + mimetype-sniffing
// approach the pack's comic/ebook scanners (shishobooks/shisho,
// alexander-bruun/magi) use for the same classification problem.
package classify

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ContainerKind is the archive dispatch tag for Component B readers.
type ContainerKind int

const (
	Unsupported ContainerKind = iota
	Zip
	Rar
	Epub
)

func (k ContainerKind) String() string {
	switch k {
	case Zip:
		return "zip"
	case Rar:
		return "rar"
	case Epub:
		return "epub"
	default:
		return "unsupported"
	}
}

// supportedExt maps lowercased file extensions to the container kind
// they dispatch to.
var supportedExt = map[string]ContainerKind{
	".cbz":  Zip,
	".zip":  Zip,
	".cbr":  Rar,
	".rar":  Rar,
	".epub": Epub,
}

// declarativeCoverNames are basenames (extension-stripped,
// case-insensitive) reserved as a series/media's declarative cover
// image. These are skipped during the scan walk today (reserved for
// future use) rather than probed as media.
var declarativeCoverNames = map[string]bool{
	"cover":     true,
	"folder":    true,
	"thumbnail": true,
}

// ContainerKindOf classifies a path by its lowercased extension.
func ContainerKindOf(p string) ContainerKind {
	ext := strings.ToLower(filepath.Ext(p))
	if k, ok := supportedExt[ext]; ok {
		return k
	}
	return Unsupported
}

// ShouldIgnore reports whether p should never be treated as media: a
// dot-prefixed basename, a directory, or an extension outside the
// supported set.
func ShouldIgnore(p string, isDir bool) bool {
	base := filepath.Base(p)
	if strings.HasPrefix(base, ".") {
		return true
	}
	if isDir {
		return true
	}
	return ContainerKindOf(p) == Unsupported
}

// IsImage reports whether name's guessed content type is one of the
// supported raster/vector image kinds. It sniffs by extension first
// (cheap, no I/O) and is used both for archive-entry classification
// (where only a name is available) and, via IsImageFile, for on-disk
// paths where magic-byte sniffing is possible.
func IsImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".svg", ".tiff", ".tif", ".gif":
		return true
	default:
		return false
	}
}

// IsImageFile sniffs the first bytes of an on-disk file via
// gabriel-vasile/mimetype and reports whether it is one of the
// supported image kinds. Falls back to extension-based IsImage if the
// file cannot be opened or sniffed.
func IsImageFile(p string) bool {
	mt, err := mimetype.DetectFile(p)
	if err != nil {
		return IsImage(p)
	}
	switch mt.String() {
	case "image/jpeg", "image/png", "image/webp", "image/svg+xml", "image/tiff", "image/gif":
		return true
	default:
		return false
	}
}

// IsDeclarativeCover reports whether p's extension-stripped,
// case-insensitive basename is one of cover/folder/thumbnail and its
// extension is an image kind.
func IsDeclarativeCover(p string) bool {
	base := filepath.Base(p)
	ext := filepath.Ext(base)
	stem := strings.ToLower(strings.TrimSuffix(base, ext))
	if !declarativeCoverNames[stem] {
		return false
	}
	return IsImage(base)
}

// DirHasMedia reports whether a directory transitively contains at
// least one non-ignored file, short-circuiting on the first hit. The
// recursion depth is unbounded but returns as soon as any qualifying
// entry is found, so pathological trees never fully enumerate.
func DirHasMedia(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if DirHasMedia(full) {
				return true
			}
			continue
		}
		if !ShouldIgnore(full, false) {
			return true
		}
	}
	return false
}
