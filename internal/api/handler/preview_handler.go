package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/notifyhub/whatsapp-dispatcher/internal/contacts"
	"github.com/notifyhub/whatsapp-dispatcher/internal/domain"
	"github.com/notifyhub/whatsapp-dispatcher/internal/template"
)

type previewRequest struct {
	Sender string `json:"sender"`
	Gender string `json:"gender"`
}

type previewResponse struct {
	Greeting domain.Greeting `json:"greeting"`
	Gender   domain.Gender   `json:"gender"`
	Text     string          `json:"text"`
}

// PreviewHandler renders the message template without contact data.
type PreviewHandler struct {
	tmpl string
	now  func() time.Time
}

// NewPreviewHandler uses tmpl, or the built-in template when tmpl is empty.
func NewPreviewHandler(tmpl string, now func() time.Time) *PreviewHandler {
	if tmpl == "" {
		tmpl = template.DefaultTemplate
	}
	if now == nil {
		now = time.Now
	}
	return &PreviewHandler{tmpl: tmpl, now: now}
}

// Preview handles POST /api/v1/preview
//
// @Summary  Render the message preview for a sender
// @Tags     preview
// @Accept   json
// @Produce  json
// @Param    body  body      previewRequest  true  "Sender and gender"
// @Success  200   {object}  previewResponse
// @Router   /api/v1/preview [post]
func (h *PreviewHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rc := domain.RenderContext{
		Greeting:   template.GreetingFor(h.now().Hour()),
		SenderName: req.Sender,
		Gender:     template.ParseGender(req.Gender),
	}
	respondJSON(w, http.StatusOK, previewResponse{
		Greeting: rc.Greeting,
		Gender:   rc.Gender,
		Text:     contacts.Preview(h.tmpl, rc),
	})
}
