package segment

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/indexer/index"
)

func sampleEntries() []index.TermEntry {
	return []index.TermEntry{
		{Term: "invoice", Postings: index.PostingList{
			{DocID: "a.pdf", Frequency: 2, Positions: []int{0, 120}},
			{DocID: "b.pdf", Frequency: 1, Positions: []int{44}},
		}},
		{Term: "total", Postings: index.PostingList{
			{DocID: "a.pdf", Frequency: 1, Positions: []int{10}},
		}},
	}
}

func sampleMeta() Meta {
	return Meta{
		Engine:     "tesseract/5.3.0",
		DocLengths: map[string]int{"a.pdf": 120, "b.pdf": 80},
		CreatedAt:  1700000000,
	}
}

func writeSample(t *testing.T, dir string) string {
	t.Helper()
	name, err := NewWriter(dir).Write(sampleEntries(), sampleMeta())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.HasSuffix(name, FileSuffix) {
		t.Fatalf("segment name %q missing suffix", name)
	}
	return filepath.Join(dir, name)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	path := writeSample(t, t.TempDir())

	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	if r.Engine() != "tesseract/5.3.0" {
		t.Errorf("engine = %q", r.Engine())
	}
	if r.DocCount() != 2 {
		t.Errorf("doc count = %d, want 2", r.DocCount())
	}
	if r.Terms() != 2 {
		t.Errorf("terms = %d, want 2", r.Terms())
	}
	if !reflect.DeepEqual(r.DocLengths(), sampleMeta().DocLengths) {
		t.Errorf("doc lengths = %v", r.DocLengths())
	}

	var got []index.TermEntry
	err = r.ReadAll(func(entry index.TermEntry) error {
		got = append(got, entry)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !reflect.DeepEqual(got, sampleEntries()) {
		t.Errorf("entries round trip mismatch:\ngot  %+v\nwant %+v", got, sampleEntries())
	}
}

func TestWriteRejectsEmptySnapshot(t *testing.T) {
	if _, err := NewWriter(t.TempDir()).Write(nil, sampleMeta()); err == nil {
		t.Fatal("expected error for empty segment")
	}
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestOpenReaderRejectsCorruption(t *testing.T) {
	dir := t.TempDir()
	path := writeSample(t, dir)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	// Flip a byte in the middle of the postings section.
	corrupt := append([]byte(nil), data...)
	corrupt[HeaderSize+4] ^= 0xFF
	corruptPath := filepath.Join(dir, "seg_corrupt"+FileSuffix)
	if err := os.WriteFile(corruptPath, corrupt, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenReader(corruptPath); err == nil {
		t.Error("expected checksum error for corrupted postings")
	}

	// Wrong magic bytes.
	bad := append([]byte(nil), data...)
	bad[0] = 0x00
	badPath := filepath.Join(dir, "seg_badmagic"+FileSuffix)
	if err := os.WriteFile(badPath, bad, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenReader(badPath); err == nil {
		t.Error("expected error for bad magic bytes")
	}

	// Truncation loses the footer.
	truncPath := filepath.Join(dir, "seg_trunc"+FileSuffix)
	if err := os.WriteFile(truncPath, data[:len(data)-FooterSize-3], 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenReader(truncPath); err == nil {
		t.Error("expected error for truncated segment")
	}
}
