package handler

import (
	"net/http"

	"github.com/notifyhub/whatsapp-dispatcher/internal/service"
)

// HealthHandler serves the liveness probe endpoint.
type HealthHandler struct {
	svc *service.DispatchService
}

func NewHealthHandler(svc *service.DispatchService) *HealthHandler {
	return &HealthHandler{svc: svc}
}

// Health handles GET /health
//
// @Summary  Liveness probe
// @Tags     system
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "busy": false}
	if run, ok := h.svc.Active(); ok {
		body["busy"] = true
		body["active_run"] = run.ID
	}
	respondJSON(w, http.StatusOK, body)
}
