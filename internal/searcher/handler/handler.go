// Package handler serves the search API endpoints.
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/searcher"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/config"
	pkgerrors "github.com/ashfaque/local-search-in-scanned-pdf/pkg/errors"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/logger"
)

type Handler struct {
	service *searcher.Service
	cfg     config.SearchConfig
	logger  *slog.Logger
}

func New(service *searcher.Service, cfg config.SearchConfig) *Handler {
	return &Handler{
		service: service,
		cfg:     cfg,
		logger:  logger.WithComponent("search-handler"),
	}
}

// Search handles GET /api/v1/search?q=...&limit=N&fuzzy=BOOL. Fuzzy term
// expansion is on unless the request says fuzzy=false.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	limit := h.cfg.DefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	search := h.service.Search
	if fuzzyStr := r.URL.Query().Get("fuzzy"); fuzzyStr != "" {
		fuzzy, err := strconv.ParseBool(fuzzyStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "fuzzy must be a boolean")
			return
		}
		if !fuzzy {
			search = h.service.SearchExact
		}
	}

	result, err := search(ctx, query, limit)
	if err != nil {
		status := pkgerrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			log.Error("search execution failed", "query", query, "error", err)
			h.writeError(w, status, "search failed")
			return
		}
		h.writeError(w, status, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// IndexStats handles GET /api/v1/index/stats.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.IndexStats())
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	hits, misses, enabled := h.service.CacheStats()
	if !enabled {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CachePurge handles POST /api/v1/cache/invalidate.
func (h *Handler) CachePurge(w http.ResponseWriter, r *http.Request) {
	h.service.PurgeCache()
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "purged"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
