// Package tesseract runs the tesseract binary as a child process, one
// invocation per page, reading its plain-text and TSV outputs. A per-page
// deadline from config bounds every invocation; hitting it kills the child.
package tesseract

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/ocr"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/config"
	pkgerrors "github.com/ashfaque/local-search-in-scanned-pdf/pkg/errors"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/logger"
)

// Engine invokes the tesseract binary. It satisfies ocr.Engine.
type Engine struct {
	cfg    config.OCRConfig
	logger *slog.Logger

	versionOnce sync.Once
	version     string
	versionErr  error
}

// New creates a tesseract Engine from config.
func New(cfg config.OCRConfig) *Engine {
	return &Engine{
		cfg:    cfg,
		logger: logger.WithComponent("tesseract"),
	}
}

func (e *Engine) Name() string {
	return "tesseract"
}

func (e *Engine) binary() string {
	if e.cfg.TesseractPath != "" {
		return e.cfg.TesseractPath
	}
	return "tesseract"
}

// Version probes `tesseract --version` once and memoizes the result. The
// binary prints its version banner on stderr.
func (e *Engine) Version(ctx context.Context) (string, error) {
	e.versionOnce.Do(func() {
		out, err := exec.CommandContext(ctx, e.binary(), "--version").CombinedOutput()
		if err != nil {
			e.versionErr = fmt.Errorf("running %s --version: %w", e.binary(), err)
			return
		}
		line, _, _ := strings.Cut(string(out), "\n")
		fields := strings.Fields(line)
		if len(fields) < 2 {
			e.versionErr = fmt.Errorf("unexpected version banner %q", line)
			return
		}
		e.version = strings.TrimPrefix(fields[1], "v")
	})
	return e.version, e.versionErr
}

// Check probes the binary for the readiness endpoint.
func (e *Engine) Check(ctx context.Context) error {
	_, err := e.Version(ctx)
	return err
}

// Recognize runs OCR on one page image. The text output preserves
// tesseract's layout; the TSV output supplies per-word boxes and
// confidences, passed through with only the fixed /100 scaling.
func (e *Engine) Recognize(ctx context.Context, page document.PageImage) (ocr.Result, error) {
	if e.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.PageTimeout)
		defer cancel()
	}

	outBase := strings.TrimSuffix(page.Path, filepath.Ext(page.Path)) + ".ocr"
	args := []string{page.Path, outBase, "-l", e.cfg.Languages, "txt", "tsv"}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.binary(), args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return ocr.Result{}, pkgerrors.NewDocumentError(page.DocumentID, page.Index, "ocr",
				fmt.Errorf("%w after %v", pkgerrors.ErrRecognitionTimeout, e.cfg.PageTimeout))
		case ctx.Err() != nil:
			return ocr.Result{}, pkgerrors.NewDocumentError(page.DocumentID, page.Index, "ocr",
				fmt.Errorf("recognition interrupted: %w", ctx.Err()))
		default:
			return ocr.Result{}, pkgerrors.NewDocumentError(page.DocumentID, page.Index, "ocr",
				fmt.Errorf("%w: %s", pkgerrors.ErrRecognitionEngine, firstLine(stderr.String())))
		}
	}

	text, err := os.ReadFile(outBase + ".txt")
	if err != nil {
		return ocr.Result{}, pkgerrors.NewDocumentError(page.DocumentID, page.Index, "ocr",
			fmt.Errorf("%w: reading text output: %v", pkgerrors.ErrRecognitionEngine, err))
	}

	words, err := e.parseTSV(outBase + ".tsv")
	if err != nil {
		// Word geometry is an enrichment; the page is still searchable
		// from the text output alone.
		e.logger.Warn("discarding word metadata", "doc_id", page.DocumentID, "page", page.Index, "error", err)
		words = nil
	}

	engine := e.Name()
	if version, verr := e.Version(ctx); verr == nil {
		engine += "/" + version
	}

	return ocr.Result{
		Page:   page.Index,
		Text:   strings.TrimRight(string(text), "\n\f"),
		Words:  words,
		Engine: engine,
	}, nil
}

// parseTSV extracts word rows (level 5) from tesseract's TSV output.
// Columns: level, page_num, block_num, par_num, line_num, word_num, left,
// top, width, height, conf, text.
func (e *Engine) parseTSV(path string) ([]ocr.Word, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening tsv output: %w", err)
	}
	defer f.Close()

	var words []ocr.Word
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	first := true
	for scanner.Scan() {
		if first {
			first = false // header row
			continue
		}
		cols := strings.Split(scanner.Text(), "\t")
		if len(cols) != 12 || cols[0] != "5" {
			continue
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		word := ocr.Word{
			Text:       text,
			Confidence: -1,
		}
		word.Box.Left, _ = strconv.Atoi(cols[6])
		word.Box.Top, _ = strconv.Atoi(cols[7])
		word.Box.Width, _ = strconv.Atoi(cols[8])
		word.Box.Height, _ = strconv.Atoi(cols[9])
		if conf, err := strconv.ParseFloat(cols[10], 64); err == nil && conf >= 0 {
			word.Confidence = conf / 100
		}
		words = append(words, word)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading tsv output: %w", err)
	}
	return words, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return "no diagnostic output"
	}
	return s
}
