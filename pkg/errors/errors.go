// Package errors defines the error taxonomy shared across the pipeline,
// index, and query layers, plus helpers for classification and HTTP mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMalformedDocument  = errors.New("malformed document")
	ErrUnsupportedFormat  = errors.New("unsupported document format")
	ErrRecognitionTimeout = errors.New("recognition timed out")
	ErrRecognitionEngine  = errors.New("recognition engine failed")
	ErrInvalidQuery       = errors.New("invalid query")
	ErrDocumentNotFound   = errors.New("document not found")
)

// DocumentError attaches document and page context to a failure inside the
// pipeline. Page is -1 for document-scoped failures.
type DocumentError struct {
	DocID string
	Page  int
	Stage string
	Err   error
}

func (e *DocumentError) Error() string {
	if e.Page >= 0 {
		return fmt.Sprintf("%s: doc %s page %d: %s", e.Stage, e.DocID, e.Page, e.Err.Error())
	}
	return fmt.Sprintf("%s: doc %s: %s", e.Stage, e.DocID, e.Err.Error())
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// NewDocumentError wraps err with document context. Pass page -1 when the
// failure is not page-scoped.
func NewDocumentError(docID string, page int, stage string, err error) *DocumentError {
	return &DocumentError{
		DocID: docID,
		Page:  page,
		Stage: stage,
		Err:   err,
	}
}

// IsRetryable reports whether err is a transient recognition failure worth
// retrying. Malformed or unsupported input never is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRecognitionTimeout) || errors.Is(err, ErrRecognitionEngine)
}

// IsFatalForDocument reports whether err aborts the whole document rather
// than a single page.
func IsFatalForDocument(err error) bool {
	return errors.Is(err, ErrMalformedDocument) || errors.Is(err, ErrUnsupportedFormat)
}

func HTTPStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrMalformedDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrRecognitionTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
