package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/logger"
)

// Handler accepts documents over HTTP. With a publisher the document is
// queued on the ingest topic; without one it is indexed before replying.
type Handler struct {
	indexer   *Indexer
	publisher kafka.Publisher
	logger    *slog.Logger
}

func NewHandler(indexer *Indexer, publisher kafka.Publisher) *Handler {
	return &Handler{
		indexer:   indexer,
		publisher: publisher,
		logger:    slog.Default().With("component", "ingest-handler"),
	}
}

func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var ev IngestEvent
	if err := json.NewDecoder(io.LimitReader(r.Body, 2*maxBodyLength)).Decode(&ev); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := Validate(&ev); err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ev.IngestedAt.IsZero() {
		ev.IngestedAt = time.Now().UTC()
	}

	if h.publisher != nil {
		if err := h.publisher.Publish(ctx, kafka.Event{Key: ev.URL, Value: ev}); err != nil {
			log.Error("failed to queue document", "url", ev.URL, "error", err)
			h.writeError(w, http.StatusServiceUnavailable, "ingest queue unavailable")
			return
		}
		log.Info("document queued", "url", ev.URL)
		h.writeJSON(w, http.StatusAccepted, map[string]string{"url": ev.URL, "status": "queued"})
		return
	}

	rows, err := h.indexer.Index(ctx, &ev)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("indexing failed", "url", ev.URL, "status_code", status, "error", err)
		h.writeError(w, status, "indexing failed")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"url": ev.URL, "status": "indexed", "rows": rows})
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
