package archive

import (
	"encoding/xml"
	"strings"

	"github.com/stumpdev/stump-go/internal/models"
)

// comicInfoXML mirrors the full field set of shishobooks/shisho's
// pkg/cbz.ComicInfo, a superset of spec.md §3's Metadata block. Fields
// beyond the spec's set (CoverArtist, Translator, Characters, Teams,
// StoryArc, BlackAndWhite, Manga, GTIN) are parsed and kept on this
// struct but not projected onto models.ComicInfo, which carries only
// the spec's persisted field set.
type comicInfoXML struct {
	XMLName       xml.Name `xml:"ComicInfo"`
	Title         string   `xml:"Title"`
	Series        string   `xml:"Series"`
	Number        string   `xml:"Number"`
	Volume        string   `xml:"Volume"`
	Summary       string   `xml:"Summary"`
	Notes         string   `xml:"Notes"`
	Writer        string   `xml:"Writer"`
	Penciller     string   `xml:"Penciller"`
	Inker         string   `xml:"Inker"`
	Colorist      string   `xml:"Colorist"`
	Letterer      string   `xml:"Letterer"`
	CoverArtist   string   `xml:"CoverArtist"`
	Editor        string   `xml:"Editor"`
	Translator    string   `xml:"Translator"`
	Publisher     string   `xml:"Publisher"`
	Genre         string   `xml:"Genre"`
	Tags          string   `xml:"Tags"`
	AgeRating     string   `xml:"AgeRating"`
	LanguageISO   string   `xml:"LanguageISO"`
	Characters    string   `xml:"Characters"`
	Teams         string   `xml:"Teams"`
	StoryArc      string   `xml:"StoryArc"`
	BlackAndWhite string   `xml:"BlackAndWhite"`
	Manga         string   `xml:"Manga"`
	GTIN          string   `xml:"GTIN"`
	PageCount     int      `xml:"PageCount"`
}

// ptr returns nil for an empty string, a pointer to s otherwise — the
// "absent fields are unset, not empty strings" invariant from
// models.ComicInfo's doc comment.
func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// toModel projects the parsed XML onto the persisted field set.
func (c *comicInfoXML) toModel() *models.ComicInfo {
	m := &models.ComicInfo{
		Title:     ptr(c.Title),
		Series:    ptr(c.Series),
		Number:    ptr(c.Number),
		Volume:    ptr(c.Volume),
		Summary:   ptr(c.Summary),
		Notes:     ptr(c.Notes),
		Writer:    ptr(c.Writer),
		Penciller: ptr(c.Penciller),
		Inker:     ptr(c.Inker),
		Colorist:  ptr(c.Colorist),
		Letterer:  ptr(c.Letterer),
		Editor:    ptr(c.Editor),
		Publisher: ptr(c.Publisher),
		Genre:     ptr(c.Genre),
		Tags:      ptr(c.Tags),
		AgeRating: ptr(c.AgeRating),
		Language:  ptr(c.LanguageISO),
	}
	if c.PageCount > 0 {
		pc := c.PageCount
		m.PageCount = &pc
	}
	return m
}

// parseComicInfo unmarshals a ComicInfo.xml payload. A malformed
// payload is treated as "no metadata" rather than a hard failure,
// matching spec.md's rule that metadata is best-effort.
func parseComicInfo(data []byte) *models.ComicInfo {
	var c comicInfoXML
	if err := xml.Unmarshal(data, &c); err != nil {
		return nil
	}
	return c.toModel()
}

// isComicInfoName matches an entry whose base name (the part after
// the last '/', at any directory depth) is exactly "ComicInfo.xml",
// case-sensitive. "comicinfo.xml" or "COMICINFO.XML" are ordinary
// entries, not metadata.
func isComicInfoName(name string) bool {
	base := name
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		base = name[i+1:]
	}
	return base == "ComicInfo.xml"
}
