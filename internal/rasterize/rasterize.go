// Package rasterize converts source documents into ordered page images. PDFs
// go through poppler's pdftoppm as a child process; raster image files are
// already a page and pass through. Transient page images live in a scoped
// temporary directory released on every exit path.
package rasterize

import (
	"bytes"
	"context"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
	pkgerrors "github.com/ashfaque/local-search-in-scanned-pdf/pkg/errors"
)

// Format is a detected source document type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatTIFF Format = "tiff"
	FormatBMP  Format = "bmp"
)

// IsImage reports whether the format is a single-page raster image rather
// than a paged document.
func (f Format) IsImage() bool {
	return f == FormatPNG || f == FormatJPEG || f == FormatTIFF || f == FormatBMP
}

// Rasterizer turns a document's bytes into ordered page images. cleanup
// releases the scoped temporary area holding them and is non-nil exactly
// when err is nil; failed calls clean up internally before returning.
type Rasterizer interface {
	Rasterize(ctx context.Context, doc document.Document) (pages []document.PageImage, cleanup func(), err error)
}

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pdfMagic  = []byte("%PDF-")
	bmpMagic  = []byte("BM")
	tiffLE    = []byte{'I', 'I', 0x2A, 0x00}
	tiffBE    = []byte{'M', 'M', 0x00, 0x2A}
)

// DetectFormat sniffs the byte signature of a source document. Unknown
// signatures fail with ErrUnsupportedFormat.
func DetectFormat(data []byte) (Format, error) {
	switch {
	case bytes.HasPrefix(data, pdfMagic):
		return FormatPDF, nil
	case bytes.HasPrefix(data, pngMagic):
		return FormatPNG, nil
	case bytes.HasPrefix(data, jpegMagic):
		return FormatJPEG, nil
	case bytes.HasPrefix(data, tiffLE), bytes.HasPrefix(data, tiffBE):
		return FormatTIFF, nil
	case bytes.HasPrefix(data, bmpMagic):
		return FormatBMP, nil
	default:
		return "", pkgerrors.ErrUnsupportedFormat
	}
}
