package tesseract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/config"
	pkgerrors "github.com/ashfaque/local-search-in-scanned-pdf/pkg/errors"
)

// fakeBinary installs an executable shell script standing in for tesseract
// and returns its path.
func fakeBinary(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tesseract")
	full := "#!/bin/sh\n" +
		`if [ "$1" = "--version" ]; then echo "tesseract 5.0.0-fake" >&2; exit 0; fi` + "\n" +
		script
	if err := os.WriteFile(path, []byte(full), 0o755); err != nil {
		t.Fatalf("writing fake binary: %v", err)
	}
	return path
}

func testPage(t *testing.T) document.PageImage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page-1.png")
	if err := os.WriteFile(path, []byte("not really a png"), 0o644); err != nil {
		t.Fatalf("writing page image: %v", err)
	}
	return document.PageImage{DocumentID: "doc-1", Index: 0, Path: path, Format: "png"}
}

func TestRecognizeParsesTextAndWords(t *testing.T) {
	bin := fakeBinary(t, `out="$2"
printf 'Invoice Total 42\n' > "$out.txt"
{
printf 'level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n'
printf '1\t1\t0\t0\t0\t0\t0\t0\t100\t100\t-1\t\n'
printf '5\t1\t1\t1\t1\t1\t10\t20\t60\t14\t96.5\tInvoice\n'
printf '5\t1\t1\t1\t1\t2\t80\t20\t40\t14\t-1\tTotal\n'
} > "$out.tsv"
`)
	e := New(config.OCRConfig{TesseractPath: bin, Languages: "eng", PageTimeout: 10 * time.Second})

	res, err := e.Recognize(context.Background(), testPage(t))
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if res.Text != "Invoice Total 42" {
		t.Errorf("text = %q", res.Text)
	}
	if res.Page != 0 {
		t.Errorf("page = %d, want 0", res.Page)
	}
	if res.Engine != "tesseract/5.0.0-fake" {
		t.Errorf("engine identity = %q", res.Engine)
	}
	if len(res.Words) != 2 {
		t.Fatalf("words = %d, want 2", len(res.Words))
	}
	if res.Words[0].Text != "Invoice" || res.Words[0].Confidence != 0.965 {
		t.Errorf("word 0 = %+v", res.Words[0])
	}
	if res.Words[0].Box.Left != 10 || res.Words[0].Box.Height != 14 {
		t.Errorf("word 0 box = %+v", res.Words[0].Box)
	}
	if res.Words[1].Confidence != -1 {
		t.Errorf("missing confidence should pass through as unknown, got %v", res.Words[1].Confidence)
	}
}

func TestRecognizeMapsEngineFailure(t *testing.T) {
	bin := fakeBinary(t, `echo "Error in pixReadStream: unknown format" >&2
exit 1
`)
	e := New(config.OCRConfig{TesseractPath: bin, Languages: "eng", PageTimeout: 10 * time.Second})

	_, err := e.Recognize(context.Background(), testPage(t))
	if !errors.Is(err, pkgerrors.ErrRecognitionEngine) {
		t.Fatalf("error = %v, want ErrRecognitionEngine", err)
	}
	var docErr *pkgerrors.DocumentError
	if !errors.As(err, &docErr) || docErr.Page != 0 {
		t.Fatalf("error lacks page context: %v", err)
	}
}

func TestRecognizeMapsDeadlineToTimeout(t *testing.T) {
	bin := fakeBinary(t, "sleep 5\n")
	e := New(config.OCRConfig{TesseractPath: bin, Languages: "eng", PageTimeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := e.Recognize(context.Background(), testPage(t))
	if !errors.Is(err, pkgerrors.ErrRecognitionTimeout) {
		t.Fatalf("error = %v, want ErrRecognitionTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("deadline did not kill the child promptly: took %v", elapsed)
	}
}

func TestRecognizeCancellation(t *testing.T) {
	bin := fakeBinary(t, "sleep 5\n")
	e := New(config.OCRConfig{TesseractPath: bin, Languages: "eng", PageTimeout: 10 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := e.Recognize(ctx, testPage(t))
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if errors.Is(err, pkgerrors.ErrRecognitionTimeout) {
		t.Error("cancellation misreported as engine timeout")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want wrapped context.Canceled", err)
	}
}

func TestParseTSVSkipsNonWordRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.tsv")
	tsv := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
		"4\t1\t1\t1\t1\t0\t0\t0\t10\t10\t-1\t\n" +
		"5\t1\t1\t1\t1\t1\t1\t2\t3\t4\t50\tword\n" +
		"5\t1\t1\t1\t1\t2\t5\t6\t7\t8\t80\t \n"
	if err := os.WriteFile(path, []byte(tsv), 0o644); err != nil {
		t.Fatalf("writing tsv: %v", err)
	}

	e := New(config.OCRConfig{})
	words, err := e.parseTSV(path)
	if err != nil {
		t.Fatalf("parseTSV() error = %v", err)
	}
	if len(words) != 1 {
		t.Fatalf("words = %d, want 1 (level-5, non-empty text only)", len(words))
	}
	if words[0].Text != "word" || words[0].Confidence != 0.5 {
		t.Errorf("word = %+v", words[0])
	}
}
