package archive

import (
	"archive/zip"
	"io"
	"path/filepath"
	"strings"

	"github.com/stumpdev/stump-go/internal/classify"
)

// ZipReader handles CBZ (and bare .zip) containers via the standard
// library's archive/zip — every comic reader in the pack uses the
// stdlib zip package rather than a third-party one for this format.
type ZipReader struct{}

// openZip centralizes the corrupt/empty classification so both Probe
// and ReadPage report the same error taxonomy for a bad file.
func openZip(path string) (*zip.ReadCloser, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, ErrArchiveCorrupt
	}
	if len(r.File) == 0 {
		r.Close()
		return nil, ErrArchiveEmpty
	}
	return r, nil
}

func (ZipReader) Probe(path string) (*Probe, error) {
	r, err := openZip(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	var comicInfo []byte
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if isComicInfoName(f.Name) {
			rc, err := f.Open()
			if err == nil {
				comicInfo, _ = io.ReadAll(rc)
				rc.Close()
			}
			continue
		}
		names = append(names, f.Name)
	}

	pages := sortedImageNames(names)
	if len(pages) == 0 {
		return nil, ErrNoImage
	}

	p := &Probe{PageCount: len(pages), CoverIndex: 1}
	if comicInfo != nil {
		p.Metadata = parseComicInfo(comicInfo)
	}
	return p, nil
}

func (ZipReader) ReadPage(path string, page int) ([]byte, string, error) {
	r, err := openZip(path)
	if err != nil {
		return nil, "", err
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	byName := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() || isComicInfoName(f.Name) {
			continue
		}
		if classify.IsImage(f.Name) {
			names = append(names, f.Name)
			byName[f.Name] = f
		}
	}
	sortedNames := sortedImageNames(names)
	if len(sortedNames) == 0 {
		return nil, "", ErrNoImage
	}
	if page < 1 || page > len(sortedNames) {
		return nil, "", ErrNoImage
	}

	f := byName[sortedNames[page-1]]
	rc, err := f.Open()
	if err != nil {
		return nil, "", ErrArchiveCorrupt
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", ErrArchiveCorrupt
	}
	return data, contentTypeForName(f.Name), nil
}

func contentTypeForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".svg":
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}
