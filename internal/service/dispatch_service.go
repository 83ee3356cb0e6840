package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/whatsapp-dispatcher/internal/contacts"
	"github.com/notifyhub/whatsapp-dispatcher/internal/domain"
	"github.com/notifyhub/whatsapp-dispatcher/internal/gateway"
	"github.com/notifyhub/whatsapp-dispatcher/internal/metrics"
	"github.com/notifyhub/whatsapp-dispatcher/internal/phone"
	"github.com/notifyhub/whatsapp-dispatcher/internal/pipeline"
	"github.com/notifyhub/whatsapp-dispatcher/internal/ratelimiter"
	"github.com/notifyhub/whatsapp-dispatcher/internal/repository"
	"github.com/notifyhub/whatsapp-dispatcher/internal/template"
)

const (
	// subscriberBuffer is the live-event headroom on top of the replayed history.
	subscriberBuffer = 256
	// retainedRuns bounds how many finished runs keep their event history in memory.
	retainedRuns = 20
)

// StartRunRequest is everything the foreground supplies for one run.
type StartRunRequest struct {
	Contacts   []domain.Contact
	SenderName string
	Gender     domain.Gender
	// Template overrides Options.Template for this run when non-empty.
	Template string
}

// Options configures every pipeline the service launches.
type Options struct {
	Template       string
	InterSendDelay time.Duration
	Limiter        *ratelimiter.Limiter
	Normalizer     *phone.Normalizer
	Now            func() time.Time
}

// DispatchService owns the single background run and the record of every run.
// HTTP handlers and the CLI depend on this service, never on the pipeline.
// At most one run is active at a time because the gateway session is exclusive.
type DispatchService struct {
	repo    repository.RunRepository
	gw      gateway.Gateway
	metrics *metrics.Metrics
	opts    Options
	logger  *zap.Logger

	// baseCtx is handed to every pipeline; cancelling it aborts in-flight sends.
	baseCtx context.Context
	abort   context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	draining bool
	active   *runHandle
	handles  map[string]*runHandle
	finished []string
}

// NewDispatchService wires the service. m may be nil.
func NewDispatchService(
	repo repository.RunRepository,
	gw gateway.Gateway,
	m *metrics.Metrics,
	opts Options,
	logger *zap.Logger,
) *DispatchService {
	if opts.Template == "" {
		opts.Template = template.DefaultTemplate
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DispatchService{
		repo:    repo,
		gw:      gw,
		metrics: m,
		opts:    opts,
		logger:  logger,
		baseCtx: ctx,
		abort:   cancel,
		handles: make(map[string]*runHandle),
	}
}

// Start validates req, records a new run and launches its pipeline on a
// background goroutine. The contact slice is copied before Start returns.
func (s *DispatchService) Start(ctx context.Context, req StartRunRequest) (*domain.Run, error) {
	tmpl := req.Template
	if tmpl == "" {
		tmpl = s.opts.Template
	}
	gender := req.Gender
	if !gender.IsValid() {
		gender = domain.GenderFeminine
	}
	in := pipeline.Input{
		Contacts:   append([]domain.Contact(nil), req.Contacts...),
		SenderName: req.SenderName,
		Gender:     gender,
		Template:   tmpl,
	}
	if err := pipeline.Validate(in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draining {
		return nil, domain.ErrShuttingDown
	}
	if s.active != nil {
		return nil, domain.ErrRunInProgress
	}

	now := s.opts.Now().UTC()
	run := &domain.Run{
		ID:         uuid.New().String(),
		SenderName: in.SenderName,
		Gender:     gender,
		Status:     domain.RunIdle,
		Total:      contacts.CountEligible(in.Contacts),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("persist run: %w", err)
	}

	h := &runHandle{
		id:     run.ID,
		record: *run,
		subs:   make(map[int]chan domain.Progress),
		done:   make(chan struct{}),
		logger: s.logger.With(zap.String("run_id", run.ID)),
	}
	h.pipeline = pipeline.New(in, s.gw, pipeline.Options{
		InterSendDelay: s.opts.InterSendDelay,
		Limiter:        s.opts.Limiter,
		Normalizer:     s.opts.Normalizer,
		Now:            s.opts.Now,
	}, s.hooksFor(h), h.logger)

	s.active = h
	s.handles[run.ID] = h
	if s.metrics != nil {
		s.metrics.RunStarted()
	}

	s.wg.Add(1)
	go s.execute(h)

	h.logger.Info("run started",
		zap.String("sender", run.SenderName),
		zap.Int("rows", len(in.Contacts)),
		zap.Int("eligible", run.Total),
	)
	return run, nil
}

// Cancel requests cancellation of the active run. The run stops before its
// next contact; a message already being sent is never interrupted.
func (s *DispatchService) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	h := s.active
	s.mu.Unlock()

	if h != nil && h.id == id {
		h.pipeline.Cancel()
		h.logger.Info("cancellation requested")
		return nil
	}

	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrNotCancellable
}

// Get returns the run record. The active run is served from memory so the
// caller sees progress without waiting for persistence.
func (s *DispatchService) Get(ctx context.Context, id string) (*domain.Run, error) {
	if h := s.handle(id); h != nil {
		return h.snapshot(), nil
	}
	return s.repo.GetByID(ctx, id)
}

// List returns the most recent runs first.
func (s *DispatchService) List(ctx context.Context, limit int) ([]*domain.Run, error) {
	runs, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	for i, r := range runs {
		if h := s.handle(r.ID); h != nil {
			runs[i] = h.snapshot()
		}
	}
	return runs, nil
}

// Active returns the run currently in progress, if any.
func (s *DispatchService) Active() (*domain.Run, bool) {
	s.mu.Lock()
	h := s.active
	s.mu.Unlock()
	if h == nil {
		return nil, false
	}
	return h.snapshot(), true
}

// Wait blocks until the run started by this service reaches a terminal
// status or ctx ends.
func (s *DispatchService) Wait(ctx context.Context, id string) (*domain.Run, error) {
	h := s.handle(id)
	if h == nil {
		run, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if run.Status.IsTerminal() {
			return run, nil
		}
		// Started by another process; nothing to wait on here.
		return nil, domain.ErrNotFound
	}

	select {
	case <-h.done:
		return h.snapshot(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe returns the run's progress events, starting with every event
// already emitted, followed by live ones. The channel is closed when the run
// ends or unsubscribe is called.
func (s *DispatchService) Subscribe(id string) (<-chan domain.Progress, func(), error) {
	h := s.handle(id)
	if h == nil {
		return nil, nil, domain.ErrNotFound
	}
	ch, unsubscribe := h.subscribe()
	return ch, unsubscribe, nil
}

// Drain refuses new runs and asks the active one to stop before its next
// contact. It returns immediately; Shutdown waits for the run to end.
func (s *DispatchService) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draining = true
	if s.active != nil {
		s.active.pipeline.Cancel()
		s.active.logger.Info("cancellation requested", zap.String("reason", "shutdown"))
	}
}

// Shutdown drains the service and waits for the run goroutine. If ctx ends
// first, in-flight sends are aborted as well.
func (s *DispatchService) Shutdown(ctx context.Context) error {
	s.Drain()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.abort()
		return nil
	case <-ctx.Done():
		s.abort()
		<-done
		return ctx.Err()
	}
}

// ---- private helpers ----

func (s *DispatchService) handle(id string) *runHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[id]
}

func (s *DispatchService) hooksFor(h *runHandle) pipeline.Hooks {
	hooks := pipeline.Hooks{
		OnProgress: func(p domain.Progress) {
			h.applyProgress(p, s.opts.Now().UTC())
			s.persist(h)
		},
		OnStatus: func(st domain.RunStatus) {
			h.applyStatus(st, s.opts.Now().UTC())
			s.persist(h)
		},
	}
	if s.metrics != nil {
		hooks.OnSent, hooks.OnFailed = s.metrics.PipelineHooks()
	}
	return hooks
}

// execute runs on the run's own goroutine. Unexpected errors and panics end
// the run as failed and never take the process down.
func (s *DispatchService) execute(h *runHandle) {
	defer s.wg.Done()

	var (
		out domain.Outcome
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in run: %v", r)
			}
		}()
		out, err = h.pipeline.Run(s.baseCtx)
	}()

	status := h.pipeline.Status()
	if err != nil && !status.IsTerminal() {
		status = domain.RunFailed
	}
	h.finish(status, out, err, s.opts.Now().UTC())
	s.persist(h)

	if s.metrics != nil {
		s.metrics.RunFinished(status)
	}

	s.mu.Lock()
	s.active = nil
	s.finished = append(s.finished, h.id)
	for len(s.finished) > retainedRuns {
		delete(s.handles, s.finished[0])
		s.finished = s.finished[1:]
	}
	s.mu.Unlock()

	h.close()

	fields := []zap.Field{
		zap.String("status", string(status)),
		zap.Int("total", out.Total),
		zap.Int("sent", out.Sent),
		zap.Int("failed", out.Failed),
	}
	if err != nil {
		h.logger.Error("run ended with error", append(fields, zap.Error(err))...)
		return
	}
	h.logger.Info("run finished", fields...)
}

// persist stores the latest record. Failures are logged: a lost history row
// must not stop messages from being sent.
func (s *DispatchService) persist(h *runHandle) {
	run := h.snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.repo.Update(ctx, run); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Warn("failed to persist run", zap.Error(err))
	}
}
