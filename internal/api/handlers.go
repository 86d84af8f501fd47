package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/ismaiel54/event-sink/internal/query"
	"github.com/ismaiel54/event-sink/internal/store"
	"go.uber.org/zap"
)

// Querier lists recently persisted records
type Querier interface {
	ListRecent(ctx context.Context, limit int) ([]store.Record, error)
}

// Message is the public shape of a persisted record
type Message struct {
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Handlers struct {
	query  Querier
	logger *zap.Logger
}

func NewHandlers(q Querier, logger *zap.Logger) *Handlers {
	return &Handlers{query: q, logger: logger}
}

// ListMessages serves GET /messages?limit=N
func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	records, err := h.query.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list messages",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		msg := "internal error"
		if errors.Is(err, query.ErrQuery) {
			msg = query.ErrQuery.Error()
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msg})
		return
	}

	out := make([]Message, 0, len(records))
	for _, rec := range records {
		out = append(out, Message{Value: rec.Value, CreatedAt: rec.CreatedAt.UTC()})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
