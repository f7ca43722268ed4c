// Package models holds the catalog's data types: libraries, series, and
// media, plus the status enum and embedded-metadata block shared across
// the scanner and catalog store.
package models

import "time"

// Status is the tri-valued lifecycle state shared by libraries, series,
// and media.
type Status string

const (
	StatusReady       Status = "READY"
	StatusMissing     Status = "MISSING"
	StatusUnsupported Status = "UNSUPPORTED"
)

// Library is the root of a scanned tree.
type Library struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Path      string    `json:"path" db:"path"`
	Status    Status    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Series is a direct child directory of a library that transitively
// contains at least one non-ignored file.
type Series struct {
	ID        string    `json:"id" db:"id"`
	LibraryID string    `json:"library_id" db:"library_id"`
	Title     string    `json:"title" db:"title"`
	Path      string    `json:"path" db:"path"`
	Status    Status    `json:"status" db:"status"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ComicInfo is the optional embedded-metadata block extracted from an
// archive's ComicInfo.xml (CBZ/CBR) or OPF manifest (EPUB). Absent
// fields are nil, never empty strings, so callers can distinguish
// "not present" from "present and blank".
type ComicInfo struct {
	Title       *string  `json:"title,omitempty"`
	Series      *string  `json:"series,omitempty"`
	Number      *string  `json:"number,omitempty"`
	Volume      *string  `json:"volume,omitempty"`
	Summary     *string  `json:"summary,omitempty"`
	Notes       *string  `json:"notes,omitempty"`
	PageCount   *int     `json:"page_count,omitempty"`
	Writer      *string  `json:"writer,omitempty"`
	Penciller   *string  `json:"penciller,omitempty"`
	Inker       *string  `json:"inker,omitempty"`
	Colorist    *string  `json:"colorist,omitempty"`
	Letterer    *string  `json:"letterer,omitempty"`
	Editor      *string  `json:"editor,omitempty"`
	Publisher   *string  `json:"publisher,omitempty"`
	Genre       *string  `json:"genre,omitempty"`
	Tags        *string  `json:"tags,omitempty"`
	AgeRating   *string  `json:"age_rating,omitempty"`
	Language    *string  `json:"language,omitempty"`
}

// Media is a single supported archive file inside a series subtree.
type Media struct {
	ID        string     `json:"id" db:"id"`
	SeriesID  string     `json:"series_id" db:"series_id"`
	FileName  string     `json:"file_name" db:"file_name"`
	Path      string     `json:"path" db:"path"`
	Extension string     `json:"extension" db:"extension"`
	Size      int64      `json:"size" db:"size"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	Pages     int        `json:"pages" db:"pages"`
	Metadata  *ComicInfo `json:"metadata,omitempty" db:"-"`
	Checksum  *string    `json:"checksum,omitempty" db:"checksum"`
	Status    Status     `json:"status" db:"status"`
}

// User is a local account authorized to browse the catalog. spec.md's
// auth non-goals keep this to a single admin-or-not flag rather than a
// role system.
type User struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	IsAdmin      bool      `json:"is_admin" db:"is_admin"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// ScanResult summarizes one Reconciler.Scan invocation.
type ScanResult struct {
	LibraryID     string   `json:"library_id"`
	SeriesCreated int      `json:"series_created"`
	MediaCreated  int      `json:"media_created"`
	TotalFiles    int      `json:"total_files"`
	Errors        []string `json:"errors,omitempty"`
	Cancelled     bool     `json:"cancelled"`
}
