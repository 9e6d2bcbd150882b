package rasterize

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/config"
	pkgerrors "github.com/ashfaque/local-search-in-scanned-pdf/pkg/errors"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/logger"
)

// Poppler rasterizes PDFs with pdftoppm and validates them with pdfinfo,
// both run as child processes bounded by the configured timeout. Image
// inputs skip the external tools entirely.
type Poppler struct {
	cfg    config.RasterizerConfig
	logger *slog.Logger
}

// New creates a Poppler rasterizer from config.
func New(cfg config.RasterizerConfig) *Poppler {
	return &Poppler{
		cfg:    cfg,
		logger: logger.WithComponent("rasterizer"),
	}
}

// tool resolves a poppler binary name against the configured directory, or
// leaves it to PATH lookup when none is set.
func (p *Poppler) tool(name string) string {
	if p.cfg.PopplerPath != "" {
		return filepath.Join(p.cfg.PopplerPath, name)
	}
	return name
}

// Check probes that pdftoppm is invocable. Used as a readiness check.
// pdftoppm -v exits 0 or 99 depending on the poppler build, so only a
// failure to start the process counts as down.
func (p *Poppler) Check(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, p.tool("pdftoppm"), "-v")
	var execErr *exec.Error
	if err := cmd.Run(); err != nil && errors.As(err, &execErr) {
		return fmt.Errorf("pdftoppm not invocable: %w", err)
	}
	return nil
}

// Rasterize converts doc into ordered page images under a fresh scoped temp
// directory. The returned cleanup removes that directory; error paths remove
// it before returning.
func (p *Poppler) Rasterize(ctx context.Context, doc document.Document) ([]document.PageImage, func(), error) {
	format, err := DetectFormat(doc.Content)
	if err != nil {
		return nil, nil, pkgerrors.NewDocumentError(doc.ID, -1, "rasterize", err)
	}

	dir, err := os.MkdirTemp(p.cfg.WorkDir, "pdfsearch-pages-*")
	if err != nil {
		return nil, nil, fmt.Errorf("creating page workspace: %w", err)
	}
	cleanup := func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			p.logger.Warn("failed to remove page workspace", "dir", dir, "error", rmErr)
		}
	}

	var pages []document.PageImage
	if format.IsImage() {
		pages, err = p.passthrough(doc, format, dir)
	} else {
		pages, err = p.convertPDF(ctx, doc, dir)
	}
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return pages, cleanup, nil
}

// passthrough treats a raster image file as a single-page document. The
// bytes are validated by decoding the image header, then written into the
// scoped area so downstream handling matches the PDF path.
func (p *Poppler) passthrough(doc document.Document, format Format, dir string) ([]document.PageImage, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(doc.Content))
	if err != nil {
		return nil, pkgerrors.NewDocumentError(doc.ID, -1, "rasterize",
			fmt.Errorf("%w: decoding %s header: %v", pkgerrors.ErrMalformedDocument, format, err))
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, pkgerrors.NewDocumentError(doc.ID, -1, "rasterize",
			fmt.Errorf("%w: %s image has no pixels", pkgerrors.ErrMalformedDocument, format))
	}
	path := filepath.Join(dir, "page-1."+string(format))
	if err := os.WriteFile(path, doc.Content, 0o644); err != nil {
		return nil, fmt.Errorf("writing page image: %w", err)
	}
	return []document.PageImage{{
		DocumentID: doc.ID,
		Index:      0,
		Path:       path,
		Format:     string(format),
	}}, nil
}

// convertPDF validates the PDF with pdfinfo, then renders every page with
// pdftoppm into dir.
func (p *Poppler) convertPDF(ctx context.Context, doc document.Document, dir string) ([]document.PageImage, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, doc.Content, 0o644); err != nil {
		return nil, fmt.Errorf("writing source document: %w", err)
	}

	expected, err := p.probeInfo(ctx, doc.ID, input)
	if err != nil {
		return nil, err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.tool("pdftoppm"),
		"-r", strconv.Itoa(p.cfg.DPI),
		"-png",
		input,
		filepath.Join(dir, "page"),
	)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, pkgerrors.NewDocumentError(doc.ID, -1, "rasterize",
				fmt.Errorf("pdftoppm interrupted: %w", ctx.Err()))
		}
		return nil, pkgerrors.NewDocumentError(doc.ID, -1, "rasterize",
			fmt.Errorf("%w: pdftoppm: %s", pkgerrors.ErrMalformedDocument, firstLine(stderr.String())))
	}

	pages, err := collectPages(doc.ID, dir)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, pkgerrors.NewDocumentError(doc.ID, -1, "rasterize",
			fmt.Errorf("%w: pdftoppm produced no pages", pkgerrors.ErrMalformedDocument))
	}
	if expected > 0 && len(pages) != expected {
		p.logger.Warn("page count mismatch",
			"doc_id", doc.ID,
			"expected", expected,
			"rendered", len(pages),
		)
	}
	return pages, nil
}

// probeInfo runs pdfinfo to reject unparseable PDFs before the expensive
// render and returns the declared page count (0 when unparsed).
func (p *Poppler) probeInfo(ctx context.Context, docID, input string) (int, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.tool("pdfinfo"), input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, pkgerrors.NewDocumentError(docID, -1, "rasterize",
				fmt.Errorf("pdfinfo interrupted: %w", ctx.Err()))
		}
		return 0, pkgerrors.NewDocumentError(docID, -1, "rasterize",
			fmt.Errorf("%w: pdfinfo: %s", pkgerrors.ErrMalformedDocument, firstLine(stderr.String())))
	}
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if rest, ok := strings.CutPrefix(line, "Pages:"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil {
				return n, nil
			}
		}
	}
	return 0, nil
}

// collectPages lists the rendered page-N.png files in numeric page order and
// maps them to zero-based page indexes.
func collectPages(docID, dir string) ([]document.PageImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing page workspace: %w", err)
	}
	type numbered struct {
		n    int
		path string
	}
	var found []numbered
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "page-") || !strings.HasSuffix(name, ".png") {
			continue
		}
		num := strings.TrimSuffix(strings.TrimPrefix(name, "page-"), ".png")
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		found = append(found, numbered{n: n, path: filepath.Join(dir, name)})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	pages := make([]document.PageImage, 0, len(found))
	for i, f := range found {
		pages = append(pages, document.PageImage{
			DocumentID: docID,
			Index:      i,
			Path:       f.path,
			Format:     "png",
		})
	}
	return pages, nil
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
