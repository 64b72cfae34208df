// Package handler exposes the query executor over HTTP and the JSON RPC
// layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/logger"
)

type Searcher interface {
	Search(ctx context.Context, query string, page, pageSize int) (*executor.ResultSet, error)
}

// CacheAdmin is the management surface of the response cache.
type CacheAdmin interface {
	InvalidateQuery(ctx context.Context, query string) (int64, error)
	Invalidate(ctx context.Context) (int64, error)
	Stats() map[string]cache.TierStats
}

type Handler struct {
	searcher        Searcher
	cache           CacheAdmin
	defaultPageSize int
	maxPageSize     int
	logger          *slog.Logger
}

// New builds a Handler. queryCache may be nil when caching is disabled.
func New(searcher Searcher, queryCache CacheAdmin, defaultPageSize, maxPageSize int) *Handler {
	return &Handler{
		searcher:        searcher,
		cache:           queryCache,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
		logger:          slog.Default().With("component", "search-handler"),
	}
}

// Routes registers the search API on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	if !params.Has("q") {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	query := params.Get("q")

	page, ok := h.intParam(w, params.Get("page"), "page", 1)
	if !ok {
		return
	}
	size, ok := h.intParam(w, params.Get("size"), "size", h.defaultPageSize)
	if !ok {
		return
	}
	if h.maxPageSize > 0 && size > h.maxPageSize {
		size = h.maxPageSize
	}

	rs, err := h.searcher.Search(r.Context(), query, page, size)
	if err != nil {
		h.writeFailure(r.Context(), w, "search failed", err)
		return
	}
	logger.FromContext(r.Context()).Info("search completed",
		"query", query,
		"page", page,
		"size", size,
		"total_matches", rs.TotalMatches,
		"returned", len(rs.Results),
		"cached", rs.Cached,
	)
	h.writeJSON(w, http.StatusOK, rs)
}

func (h *Handler) intParam(w http.ResponseWriter, raw, name string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		h.writeError(w, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return n, true
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

type invalidateRequest struct {
	Query string `json:"query"`
}

// CacheInvalidate drops the cached pages of one query, or everything when
// the body names no query.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	var req invalidateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	removed, err := h.invalidate(r.Context(), req.Query)
	if err != nil {
		h.logger.Error("cache invalidation failed", "query", req.Query, "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "removed": removed})
}

func (h *Handler) invalidate(ctx context.Context, query string) (int64, error) {
	if normalized := parser.Normalize(query); normalized != "" {
		return h.cache.InvalidateQuery(ctx, normalized)
	}
	return h.cache.Invalidate(ctx)
}

// writeFailure maps err to its status. Only application errors expose
// their message.
func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, fallback string, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := fallback
	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(ctx).Error(fallback, "status", status, "error", err)
	}
	h.writeError(w, status, message)
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
