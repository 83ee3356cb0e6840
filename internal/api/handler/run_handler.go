package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/whatsapp-dispatcher/internal/api/middleware"
	"github.com/notifyhub/whatsapp-dispatcher/internal/domain"
	"github.com/notifyhub/whatsapp-dispatcher/internal/service"
	"github.com/notifyhub/whatsapp-dispatcher/internal/spreadsheet"
	"github.com/notifyhub/whatsapp-dispatcher/internal/template"
)

// MaxUploadBytes caps the spreadsheet upload accepted by Create.
const MaxUploadBytes = 10 << 20

const (
	defaultListLimit = 50
	// sseKeepAlive keeps idle progress streams open through proxies.
	sseKeepAlive = 15 * time.Second
)

// RunHandler handles the send-run endpoints.
type RunHandler struct {
	svc    *service.DispatchService
	logger *zap.Logger
}

func NewRunHandler(svc *service.DispatchService, logger *zap.Logger) *RunHandler {
	return &RunHandler{svc: svc, logger: logger}
}

// Create handles POST /api/v1/runs
//
// @Summary     Start a send run from an uploaded spreadsheet
// @Tags        runs
// @Accept      multipart/form-data
// @Produce     json
// @Param       file    formData  file    true   "Contacts spreadsheet (.xlsx or .csv)"
// @Param       sender  formData  string  true   "Sender name"
// @Param       gender  formData  string  false  "F (default) or M"
// @Success     202     {object}  domain.Run
// @Failure     409     {object}  map[string]string
// @Failure     422     {object}  map[string]string
// @Router      /api/v1/runs [post]
func (h *RunHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	sheet, err := spreadsheet.LoadReader(file, filepath.Ext(header.Filename))
	if err != nil {
		h.warn(r, "spreadsheet rejected", err)
		mapError(w, err)
		return
	}

	run, err := h.svc.Start(r.Context(), service.StartRunRequest{
		Contacts:   sheet.Contacts,
		SenderName: r.FormValue("sender"),
		Gender:     template.ParseGender(r.FormValue("gender")),
	})
	if err != nil {
		h.warn(r, "start run failed", err)
		mapError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/runs/"+run.ID)
	respondJSON(w, http.StatusAccepted, run)
}

// List handles GET /api/v1/runs
//
// @Summary  List recent runs, newest first
// @Tags     runs
// @Produce  json
// @Param    limit  query     int  false  "Max results (default 50)"
// @Success  200    {object}  map[string]any
// @Router   /api/v1/runs [get]
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.svc.List(r.Context(), limit)
	if err != nil {
		h.warn(r, "list runs failed", err)
		mapError(w, err)
		return
	}
	if runs == nil {
		runs = []*domain.Run{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": runs})
}

// GetByID handles GET /api/v1/runs/{id}
//
// @Summary  Get a run by ID
// @Tags     runs
// @Produce  json
// @Param    id   path      string  true  "Run UUID"
// @Success  200  {object}  domain.Run
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/runs/{id} [get]
func (h *RunHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// Cancel handles DELETE /api/v1/runs/{id}
//
// @Summary  Request cancellation of the active run
// @Tags     runs
// @Param    id   path  string  true  "Run UUID"
// @Success  202
// @Failure  404  {object}  map[string]string
// @Failure  409  {object}  map[string]string
// @Router   /api/v1/runs/{id} [delete]
func (h *RunHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Events handles GET /api/v1/runs/{id}/events
//
// Streams progress as server-sent events: one "progress" event per line
// already emitted and every later one, then a "done" event carrying the
// final run record. A client that falls too far behind gets a "dropped"
// event with the record as it stands and may reconnect to resume.
//
// @Summary  Stream run progress
// @Tags     runs
// @Produce  text/event-stream
// @Param    id   path  string  true  "Run UUID"
// @Router   /api/v1/runs/{id}/events [get]
func (h *RunHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	events, unsubscribe, err := h.svc.Subscribe(id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		mapError(w, err)
		return
	}
	if err != nil {
		// Not tracked in memory: serve the stored record if it exists.
		if _, err := h.svc.Get(ctx, id); err != nil {
			mapError(w, err)
			return
		}
	} else {
		defer unsubscribe()
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	if events != nil {
		ping := time.NewTicker(sseKeepAlive)
		defer ping.Stop()
	stream:
		for {
			select {
			case <-ping.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				_ = rc.Flush()
			case p, ok := <-events:
				if !ok {
					break stream
				}
				if err := writeEvent(w, "progress", p); err != nil {
					return
				}
				_ = rc.Flush()
			case <-ctx.Done():
				return
			}
		}
	}

	run, err := h.svc.Get(ctx, id)
	if err != nil {
		return
	}
	_ = writeEvent(w, closingEvent(run), run)
	_ = rc.Flush()
}

// closingEvent names the last event of a stream: "done" once the run is
// over, "dropped" when the subscription ended while it was still going.
func closingEvent(run *domain.Run) string {
	if run.Status.IsTerminal() {
		return "done"
	}
	return "dropped"
}

func writeEvent(w http.ResponseWriter, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

func (h *RunHandler) warn(r *http.Request, msg string, err error) {
	h.logger.Warn(msg,
		zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
		zap.Error(err),
	)
}
