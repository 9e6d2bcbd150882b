package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/catalog"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/docstore"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/logger"
)

// Documents serves the catalog over HTTP: what has been ingested, in which
// state, and with which page layout.
type Documents struct {
	catalog catalog.Catalog
	docs    docstore.Store
	logger  *slog.Logger
}

// NewDocuments creates the document endpoints. docs may be nil, in which
// case detail responses omit page spans.
func NewDocuments(cat catalog.Catalog, docs docstore.Store) *Documents {
	return &Documents{
		catalog: cat,
		docs:    docs,
		logger:  logger.WithComponent("documents"),
	}
}

// List handles GET /api/v1/documents. An optional state parameter filters by
// lifecycle state.
func (d *Documents) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recs, err := d.catalog.List(ctx)
	if err != nil {
		d.logger.Error("catalog list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "catalog unavailable")
		return
	}

	if state := r.URL.Query().Get("state"); state != "" {
		filtered := recs[:0]
		for _, rec := range recs {
			if rec.State == document.State(state) {
				filtered = append(filtered, rec)
			}
		}
		recs = filtered
	}
	if recs == nil {
		recs = []catalog.Record{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"documents": recs,
		"count":     len(recs),
	})
}

type documentDetail struct {
	catalog.Record
	Pages []document.PageSpan `json:"pages,omitempty"`
}

// Get handles GET /api/v1/documents/{id...}.
func (d *Documents) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	rec, found, err := d.catalog.Get(ctx, id)
	if err != nil {
		d.logger.Error("catalog lookup failed", "doc_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "catalog unavailable")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	detail := documentDetail{Record: rec}
	if d.docs != nil {
		if doc, ok, err := d.docs.GetIndexed(ctx, id); err == nil && ok {
			detail.Pages = doc.Pages
		}
	}
	writeJSON(w, http.StatusOK, detail)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
