// Package ocr defines the recognition engine contract and the result types
// cached and consumed downstream. Engines wrap external tools invoked as
// child processes; nothing here links a recognition library in-process.
package ocr

import (
	"context"
	"fmt"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
)

// Region is a word's bounding box on the page, in pixel coordinates of the
// rasterized image.
type Region struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Word is one recognized token with its location and the engine's confidence
// scaled to [0, 1]. A negative Confidence means the engine reported none.
type Word struct {
	Text       string  `json:"text"`
	Box        Region  `json:"box"`
	Confidence float64 `json:"confidence"`
}

// Result is the immutable output of recognizing one page. It carries no
// document identity on purpose: results are cached by content fingerprint,
// and two documents with identical bytes share cache entries.
type Result struct {
	Page   int    `json:"page"`
	Text   string `json:"text"`
	Words  []Word `json:"words,omitempty"`
	Engine string `json:"engine"`
}

// MeanConfidence averages the known word confidences, or -1 when the engine
// reported none at all.
func (r Result) MeanConfidence() float64 {
	var sum float64
	var n int
	for _, w := range r.Words {
		if w.Confidence >= 0 {
			sum += w.Confidence
			n++
		}
	}
	if n == 0 {
		return -1
	}
	return sum / float64(n)
}

// Engine converts page images into text. Implementations invoke an external
// binary and must honor ctx cancellation by killing the child process.
type Engine interface {
	// Name identifies the engine family, e.g. "tesseract".
	Name() string
	// Version probes the engine binary's version string. Implementations
	// memoize; the value participates in cache fingerprints.
	Version(ctx context.Context) (string, error)
	// Recognize runs OCR on one page image.
	Recognize(ctx context.Context, page document.PageImage) (Result, error)
}

// Identity returns the engine's fingerprint-stable identity string,
// "<name>/<version>".
func Identity(ctx context.Context, e Engine) (string, error) {
	version, err := e.Version(ctx)
	if err != nil {
		return "", fmt.Errorf("probing %s version: %w", e.Name(), err)
	}
	return e.Name() + "/" + version, nil
}
