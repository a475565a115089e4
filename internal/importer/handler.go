package importer

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	apperrors "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/logger"
)

// Runner is the part of Service the HTTP handler needs.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

type Handler struct {
	runner Runner
	logger *slog.Logger
}

func NewHandler(runner Runner) *Handler {
	return &Handler{
		runner: runner,
		logger: slog.Default().With("component", "import-handler"),
	}
}

// Import serves POST /api/v1/tm/import. The run is synchronous: the response
// carries the summary. A run that started but ended with an error still
// reports its summary alongside the error.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req Request
	if r.ContentLength != 0 {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	result, err := h.runner.Run(ctx, req)
	if err != nil {
		status, msg := apperrors.Describe(err, "import failed")
		log.Error("import failed", "backend", req.Backend, "error", err, "status_code", status)
		if result != nil {
			h.writeJSON(w, status, map[string]any{"error": err.Error(), "result": result})
			return
		}
		h.writeError(w, status, msg)
		return
	}
	log.Info("import completed",
		"job_id", result.JobID,
		"backend", result.Backend,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
	h.writeJSON(w, http.StatusOK, result)
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
