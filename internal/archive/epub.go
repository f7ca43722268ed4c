package archive

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"os"
	"path"
	"strings"

	"github.com/stumpdev/stump-go/internal/models"
)

// EpubReader treats an EPUB as a zip container whose "pages" are the
// reading-order spine items from its OPF manifest, grounded on
// alexander-bruun/magi's OPF struct. Per REDESIGN FLAG (d), page
// indexing is 1-based externally and page 1 is always the declared
// cover, never the first spine item — an EPUB's spine commonly opens
// on a titlepage or nav document rather than the cover image.
type EpubReader struct{}

type container struct {
	XMLName   xml.Name `xml:"container"`
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfSpineItemref struct {
	IDRef string `xml:"idref,attr"`
}

type opfMetaCover struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type opf struct {
	XMLName xml.Name `xml:"package"`
	Metadata struct {
		Title    string         `xml:"title"`
		Creator  string         `xml:"creator"`
		Language string         `xml:"language"`
		Meta     []opfMetaCover `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Items []opfManifestItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Itemrefs []opfSpineItemref `xml:"itemref"`
	} `xml:"spine"`
}

// epubDoc is the parsed, path-resolved view of an EPUB package used
// by both Probe and ReadPage.
type epubDoc struct {
	opfDir     string // directory containing content.opf, relative to archive root
	pages      []string // spine-order reading pages (zip entry paths), cover excluded
	coverEntry string   // zip entry path of the declared or inferred cover image
	meta       *opf
}

func loadEpubDoc(r *zip.Reader) (*epubDoc, error) {
	containerData, err := readZipEntry(r, "META-INF/container.xml")
	if err != nil {
		return nil, ErrArchiveCorrupt
	}
	var c container
	if err := xml.Unmarshal(containerData, &c); err != nil || len(c.Rootfiles) == 0 {
		return nil, ErrArchiveCorrupt
	}
	opfPath := c.Rootfiles[0].FullPath
	opfDir := path.Dir(opfPath)

	opfData, err := readZipEntry(r, opfPath)
	if err != nil {
		return nil, ErrArchiveCorrupt
	}
	var pkg opf
	if err := xml.Unmarshal(opfData, &pkg); err != nil {
		return nil, ErrArchiveCorrupt
	}

	byID := make(map[string]opfManifestItem, len(pkg.Manifest.Items))
	for _, it := range pkg.Manifest.Items {
		byID[it.ID] = it
	}

	resolve := func(href string) string {
		if opfDir == "." {
			return href
		}
		return path.Join(opfDir, href)
	}

	coverEntry := ""
	for _, it := range pkg.Manifest.Items {
		if strings.Contains(it.Properties, "cover-image") {
			coverEntry = resolve(it.Href)
			break
		}
	}
	if coverEntry == "" {
		for _, m := range pkg.Metadata.Meta {
			if m.Name == "cover" {
				if it, ok := byID[m.Content]; ok {
					coverEntry = resolve(it.Href)
				}
				break
			}
		}
	}

	var pages []string
	for _, ref := range pkg.Spine.Itemrefs {
		it, ok := byID[ref.IDRef]
		if !ok {
			continue
		}
		if !strings.HasPrefix(it.MediaType, "application/xhtml") && !strings.HasPrefix(it.MediaType, "text/html") {
			continue
		}
		pages = append(pages, resolve(it.Href))
	}

	if coverEntry == "" {
		// Fall back to the first image in the manifest, matching the
		// zip-specific "first image by sort order" cover heuristic
		// supplemented from the original implementation's zip.rs.
		var imgs []string
		for _, it := range pkg.Manifest.Items {
			if strings.HasPrefix(it.MediaType, "image/") {
				imgs = append(imgs, resolve(it.Href))
			}
		}
		sortedImgs := sortedImageNames(imgs)
		if len(sortedImgs) > 0 {
			coverEntry = sortedImgs[0]
		}
	}

	return &epubDoc{opfDir: opfDir, pages: pages, coverEntry: coverEntry, meta: &pkg}, nil
}

func readZipEntry(r *zip.Reader, name string) ([]byte, error) {
	for _, f := range r.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, os.ErrNotExist
}

// opfMeta adapts the OPF <metadata> block onto the persisted
// ComicInfo shape: EPUB has no Series/Number/Volume concept in its
// manifest, so only Title, Writer (creator), and Language carry over.
type opfMeta struct{}

func (opfMeta) toComicInfo(pkg *opf) *models.ComicInfo {
	if pkg == nil {
		return nil
	}
	m := &models.ComicInfo{
		Title:    ptr(pkg.Metadata.Title),
		Writer:   ptr(pkg.Metadata.Creator),
		Language: ptr(pkg.Metadata.Language),
	}
	if m.Title == nil && m.Writer == nil && m.Language == nil {
		return nil
	}
	return m
}

func (EpubReader) Probe(path string) (*Probe, error) {
	zr, err := openZip(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	doc, err := loadEpubDoc(&zr.Reader)
	if err != nil {
		return nil, err
	}
	if doc.coverEntry == "" && len(doc.pages) == 0 {
		return nil, ErrNoImage
	}

	total := len(doc.pages)
	if doc.coverEntry != "" {
		total++
	}

	meta := &opfMeta{}
	p := &Probe{
		PageCount:  total,
		CoverIndex: 1,
		Metadata:   meta.toComicInfo(doc.meta),
	}
	return p, nil
}

// ReadPage serves page 1 as the declared cover image and pages 2..N
// as the raw bytes of the Nth-1 spine document in reading order. The
// spine documents are XHTML, not images; OPDS acquisition for EPUB
// exposes the whole file for download rather than per-page images in
// practice, but the page contract is kept uniform across container
// kinds so the reconciler and page-fetch endpoint never special-case
// EPUB.
func (EpubReader) ReadPage(p string, page int) ([]byte, string, error) {
	zr, err := openZip(p)
	if err != nil {
		return nil, "", err
	}
	defer zr.Close()

	doc, err := loadEpubDoc(&zr.Reader)
	if err != nil {
		return nil, "", err
	}

	if page == 1 {
		if doc.coverEntry == "" {
			return nil, "", ErrNoImage
		}
		data, err := readZipEntry(&zr.Reader, doc.coverEntry)
		if err != nil {
			return nil, "", ErrArchiveCorrupt
		}
		return data, contentTypeForName(doc.coverEntry), nil
	}

	idx := page - 2
	if idx < 0 || idx >= len(doc.pages) {
		return nil, "", ErrNoImage
	}
	data, err := readZipEntry(&zr.Reader, doc.pages[idx])
	if err != nil {
		return nil, "", ErrArchiveCorrupt
	}
	return data, "application/xhtml+xml", nil
}
