// Package digest computes the advisory content digest spec.md §4.C
// describes: a keyed hash over an archive's basename and a bounded
// byte prefix, used to flag likely-identical files across renames but
// never as a catalog identity key (path remains the key).
//
// Shaped after the teacher's internal/fingerprint.Fingerprinter — a
// struct holding a scoped temp dir and a Compute* method returning a
// fixed-size digest — but with the perceptual video hash swapped for
// the spec's keyed SHA-256 prefix hash, since this repo has no video
// frames to sample and crypto/sha256 is the correct primitive for a
// deterministic content digest (stdlib; no example repo in the pack
// reaches for a third-party hash library for this kind of content
// fingerprinting).
package digest

import (
	"archive/zip"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/nwaples/rardecode/v2"
	"github.com/pkg/errors"
	"github.com/stumpdev/stump-go/internal/classify"
)

// maxPrefixEntries bounds how many of an archive's entries contribute
// to the prefix length, per spec.md §4.C ("sum of the uncompressed
// sizes of the first 6 entries").
const maxPrefixEntries = 6

// Digester computes content digests. It holds no scratch directory:
// the prefix it hashes is read straight off the archive file on disk,
// never decompressed.
type Digester struct {
	key []byte
}

// New builds a Digester keyed by key, typically derived from a
// per-installation secret so digests aren't portable across
// deployments. tempDir is accepted for call-site symmetry with other
// scoped-scratch components but unused: the digest never extracts an
// archive.
func New(key []byte, tempDir string) *Digester {
	return &Digester{key: key}
}

// Compute returns the hex-encoded keyed digest of the archive at
// path: HMAC-SHA256 over the archive's basename concatenated with the
// first K raw bytes of the archive file itself, where K is the sum of
// the uncompressed sizes of the first maxPrefixEntries entries (in
// name order), capped at the file's total size. The bytes hashed are
// sequential bytes from the start of the file on disk — never
// per-entry decompressed content — matching the original
// core/src/fs/zip.rs's digest_zip: sum entry sizes into an offset,
// then checksum that many raw bytes of the file.
func (d *Digester) Compute(path string) (string, error) {
	limit, err := d.prefixLength(path)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "digest: open")
	}
	defer f.Close()

	prefix, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return "", errors.Wrap(err, "digest: read prefix")
	}

	mac := hmac.New(sha256.New, d.key)
	mac.Write([]byte(filepath.Base(path)))
	mac.Write(prefix)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// prefixLength computes K: the sum of the uncompressed sizes of the
// first maxPrefixEntries entries in name order, capped at the
// archive's total file size. This reads entry headers only, never
// entry content.
func (d *Digester) prefixLength(path string) (int64, error) {
	var sum int64
	var err error
	switch classify.ContainerKindOf(path) {
	case classify.Zip, classify.Epub:
		sum, err = zipPrefixLength(path)
	case classify.Rar:
		sum, err = rarPrefixLength(path)
	default:
		return 0, errors.Errorf("digest: unsupported container %q", path)
	}
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, errors.Wrap(err, "digest: stat")
	}
	if sum > info.Size() {
		sum = info.Size()
	}
	return sum, nil
}

func zipPrefixLength(path string) (int64, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return 0, errors.Wrap(err, "digest: open zip")
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	sizeByName := make(map[string]int64, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		names = append(names, f.Name)
		sizeByName[f.Name] = int64(f.UncompressedSize64)
	}
	sort.Strings(names)

	var total int64
	for i := 0; i < len(names) && i < maxPrefixEntries; i++ {
		total += sizeByName[names[i]]
	}
	return total, nil
}

// rarPrefixLength lists the archive's headers via rardecode.List,
// the pack's established way to inspect a RAR's entries without
// decoding them, and sums the first maxPrefixEntries non-directory
// entries' uncompressed sizes in name order.
func rarPrefixLength(path string) (int64, error) {
	files, err := rardecode.List(path)
	if err != nil {
		return 0, errors.Wrap(err, "digest: list rar")
	}

	names := make([]string, 0, len(files))
	sizeByName := make(map[string]int64, len(files))
	for _, f := range files {
		if f.IsDir {
			continue
		}
		names = append(names, f.Name)
		sizeByName[f.Name] = f.UnPackedSize
	}
	sort.Strings(names)

	var total int64
	for i := 0; i < len(names) && i < maxPrefixEntries; i++ {
		total += sizeByName[names[i]]
	}
	return total, nil
}
