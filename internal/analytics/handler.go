package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/kafka"
)

// StatsResponse is the body of GET /api/v1/analytics.
type StatsResponse struct {
	AggregatedStats
	Consumer *kafka.ConsumerStats `json:"consumer,omitempty"`
}

// Handler serves aggregated analytics. A nil aggregator means analytics
// is disabled and every request gets 503.
type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats handles GET /api/v1/analytics[?top=n]. top truncates both query
// rankings and must be a non-negative integer.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.aggregator == nil {
		h.write(w, http.StatusServiceUnavailable, map[string]string{"error": "analytics disabled"})
		return
	}

	top := -1
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.write(w, http.StatusBadRequest, map[string]string{"error": "top must be a non-negative integer"})
			return
		}
		top = n
	}

	resp := StatsResponse{AggregatedStats: h.aggregator.Stats()}
	if top >= 0 {
		resp.TopQueries = resp.TopQueries[:min(top, len(resp.TopQueries))]
		resp.ZeroResultQueries = resp.ZeroResultQueries[:min(top, len(resp.ZeroResultQueries))]
	}
	if h.aggregator.consumer != nil {
		cs := h.aggregator.consumer.Stats()
		resp.Consumer = &cs
	}
	h.write(w, http.StatusOK, resp)
}

func (h *Handler) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
