package handler

import (
	"net/http"

	"github.com/notifyhub/whatsapp-dispatcher/internal/service"
)

// MetricsHandler serves a human-readable JSON snapshot of the active run.
// Raw Prometheus metrics (counters, histograms) are available at /metrics
// via promhttp and are separate from this endpoint.
type MetricsHandler struct {
	svc *service.DispatchService
}

func NewMetricsHandler(svc *service.DispatchService) *MetricsHandler {
	return &MetricsHandler{svc: svc}
}

// GetMetrics handles GET /api/v1/metrics
//
// @Summary  Real-time progress of the active run
// @Tags     metrics
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/metrics [get]
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	run, ok := h.svc.Active()
	if !ok {
		respondJSON(w, http.StatusOK, map[string]any{"active_run": nil})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"active_run": map[string]any{
			"id":       run.ID,
			"status":   run.Status,
			"current":  run.Current,
			"total":    run.Total,
			"sent":     run.Sent,
			"failed":   run.Failed,
			"fraction": run.Progress().Fraction(),
			"message":  run.LastMessage,
		},
	})
}
