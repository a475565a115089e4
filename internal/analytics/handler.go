package analytics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/errors"
)

// StatsSource is satisfied by *Aggregator.
type StatsSource interface {
	Stats() AggregatedStats
}

type Handler struct {
	stats StatsSource
	log   *slog.Logger
}

func NewHandler(stats StatsSource) *Handler {
	return &Handler{
		stats: stats,
		log:   slog.Default().With("component", "stats-api"),
	}
}

// Stats serves GET /api/v1/tm/stats. The optional top parameter trims the
// locale pair and backend failure rankings to at most that many entries.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top, err := topParam(r)
	if err != nil {
		status, msg := apperrors.Describe(err, "invalid request")
		h.reply(w, status, map[string]string{"error": msg})
		return
	}
	s := h.stats.Stats()
	if top >= 0 {
		s.TopLocalePairs = s.TopLocalePairs[:min(top, len(s.TopLocalePairs))]
		s.BackendFailures = s.BackendFailures[:min(top, len(s.BackendFailures))]
	}
	w.Header().Set("Cache-Control", "no-store")
	h.reply(w, http.StatusOK, s)
}

// topParam returns -1 when top is absent.
func topParam(r *http.Request) (int, error) {
	v := r.URL.Query().Get("top")
	if v == "" {
		return -1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > topKeys {
		return 0, fmt.Errorf("%w: top must be between 0 and %d", apperrors.ErrInvalidInput, topKeys)
	}
	return n, nil
}

func (h *Handler) reply(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn("writing stats response", "error", err)
	}
}
