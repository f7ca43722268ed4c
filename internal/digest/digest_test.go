package digest

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCBZ(t *testing.T, path string, contents map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for name, body := range contents {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(body))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

// pageBody returns content long enough that the prefix length (the
// sum of the entries' uncompressed sizes) reaches past a zip local
// file header and entry name into the entry's compressed data (the
// local header written by zip.Writer.Create carries a zero CRC-32),
// so two archives whose entries only differ in bytes still produce
// different raw-byte prefixes. Real comic pages are tens of
// kilobytes; these fixtures only need to clear a few dozen bytes.
func pageBody(r byte, n int) string {
	return strings.Repeat(string(r), n)
}

func TestComputeDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "issue.cbz")
	writeCBZ(t, path, map[string]string{"001.jpg": pageBody('a', 64), "002.jpg": pageBody('b', 64)})

	d := New([]byte("test-key"), dir)
	a, err := d.Compute(path)
	if err != nil {
		t.Fatalf("Compute error: %v", err)
	}
	b, err := d.Compute(path)
	if err != nil {
		t.Fatalf("Compute error: %v", err)
	}
	if a != b {
		t.Errorf("digest not deterministic: %q != %q", a, b)
	}
}

func TestComputeDiffersOnContent(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.cbz")
	p2 := filepath.Join(dir, "b.cbz")
	writeCBZ(t, p1, map[string]string{"001.jpg": pageBody('a', 64)})
	writeCBZ(t, p2, map[string]string{"001.jpg": pageBody('z', 64)})

	d := New([]byte("test-key"), dir)
	h1, err := d.Compute(p1)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := d.Compute(p2)
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("digests should differ for different content")
	}
}

func TestComputeDiffersOnKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.cbz")
	writeCBZ(t, path, map[string]string{"001.jpg": pageBody('a', 64)})

	h1, err := New([]byte("key-one"), dir).Compute(path)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := New([]byte("key-two"), dir).Compute(path)
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("digests should differ across keys")
	}
}

// TestComputeHashesArchiveBytesNotEntryBytes pins the spec-mandated
// behavior: the hashed prefix is raw bytes from the start of the
// archive file on disk, not the entry's decompressed content. Two
// single-entry archives with identical entry content but a different
// entry name have different local file headers (the name is part of
// the header bytes the raw prefix covers), so their digests differ
// even though "the page" is byte-for-byte identical.
func TestComputeHashesArchiveBytesNotEntryBytes(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.cbz")
	p2 := filepath.Join(dir, "b.cbz")
	writeCBZ(t, p1, map[string]string{"001.jpg": pageBody('a', 64)})
	writeCBZ(t, p2, map[string]string{"0001.jpg": pageBody('a', 64)})

	d := New([]byte("test-key"), dir)
	h1, err := d.Compute(p1)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := d.Compute(p2)
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("digests should differ when the archive's own bytes differ, even with identical entry content")
	}
}
