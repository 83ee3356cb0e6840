package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/whatsapp-dispatcher/internal/domain"
	"github.com/notifyhub/whatsapp-dispatcher/internal/pipeline"
)

// runHandle is the foreground's view of one run: the display record, the
// ordered event history and the live subscribers. The pipeline goroutine
// writes through the apply methods; every other goroutine only reads.
type runHandle struct {
	id       string
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
	done     chan struct{}

	mu      sync.Mutex
	record  domain.Run
	events  []domain.Progress
	subs    map[int]chan domain.Progress
	nextSub int
	closed  bool
}

func (h *runHandle) applyProgress(p domain.Progress, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.record.Total = p.Total
	h.record.Current = p.Current
	h.record.LastMessage = p.Message
	h.record.LastOK = p.OK
	h.record.UpdatedAt = now
	state := h.pipeline.State()
	h.record.Sent = state.Sent
	h.record.Failed = state.Failed

	h.events = append(h.events, p)
	for id, ch := range h.subs {
		select {
		case ch <- p:
		default:
			h.logger.Warn("subscriber too slow, dropping it", zap.Int("subscriber", id))
			close(ch)
			delete(h.subs, id)
		}
	}
}

func (h *runHandle) applyStatus(st domain.RunStatus, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record.Status = st
	h.record.UpdatedAt = now
}

func (h *runHandle) finish(st domain.RunStatus, out domain.Outcome, err error, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record.Status = st
	h.record.Total = out.Total
	h.record.Sent = out.Sent
	h.record.Failed = out.Failed
	h.record.UpdatedAt = now
	h.record.FinishedAt = &now
	if err != nil {
		msg := err.Error()
		h.record.Error = &msg
	}
}

// close ends every subscription and releases Wait callers.
func (h *runHandle) close() {
	h.mu.Lock()
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
	h.mu.Unlock()
	close(h.done)
}

func (h *runHandle) snapshot() *domain.Run {
	h.mu.Lock()
	defer h.mu.Unlock()
	run := h.record
	if h.record.Error != nil {
		e := *h.record.Error
		run.Error = &e
	}
	if h.record.FinishedAt != nil {
		f := *h.record.FinishedAt
		run.FinishedAt = &f
	}
	return &run
}

// subscribe replays the history into a fresh channel and registers it for
// live events under the same lock, so no event is lost or reordered.
func (h *runHandle) subscribe() (<-chan domain.Progress, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan domain.Progress, len(h.events)+subscriberBuffer)
	for _, p := range h.events {
		ch <- p
	}
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				close(c)
				delete(h.subs, id)
			}
		})
	}
}
