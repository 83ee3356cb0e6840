package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/whatsapp-dispatcher/internal/contacts"
	"github.com/notifyhub/whatsapp-dispatcher/internal/domain"
	"github.com/notifyhub/whatsapp-dispatcher/internal/gateway"
	"github.com/notifyhub/whatsapp-dispatcher/internal/phone"
	"github.com/notifyhub/whatsapp-dispatcher/internal/ratelimiter"
	"github.com/notifyhub/whatsapp-dispatcher/internal/template"
)

// Status lines shown to the user.
const (
	msgOpening    = "Iniciando sessão do WhatsApp... Escaneie o QRCode"
	msgOpenFailed = "Não foi possível iniciar a sessão do WhatsApp."
	msgSending    = "Enviando para %s..."
	msgSent       = "Enviado com sucesso para %s"
	msgFailed     = "Falha ao enviar para %s"
	msgCompleted  = "Concluído! Enviadas: %d, Falhas: %d"
	msgCancelled  = "Envio cancelado. Enviadas: %d, Falhas: %d"
	msgError      = "Erro durante o envio: %v"
)

// Failure reasons passed to Hooks.OnFailed.
const (
	ReasonInvalidPhone = "invalid_phone"
	ReasonDelivery     = "delivery"
)

// Hooks carries the callbacks injected by the caller. All are optional and
// run synchronously on the pipeline goroutine, in order.
type Hooks struct {
	OnProgress func(p domain.Progress)
	OnStatus   func(s domain.RunStatus)
	OnSent     func(latency time.Duration)
	OnFailed   func(reason string)
}

// Input is the snapshot of everything the foreground supplied for one run.
type Input struct {
	Contacts   []domain.Contact
	SenderName string
	Gender     domain.Gender
	Template   string
}

// Options tunes pacing and lets tests control time.
type Options struct {
	// InterSendDelay is waited between two consecutive contacts.
	InterSendDelay time.Duration
	Limiter        *ratelimiter.Limiter
	Normalizer     *phone.Normalizer
	Now            func() time.Time
}

// Pipeline sends one prepared message per eligible contact, strictly in
// order, over a single gateway session. A Pipeline runs at most once.
//
// States: idle → preparing → sending → completed | cancelled | failed.
type Pipeline struct {
	input  Input
	gw     gateway.Gateway
	opts   Options
	hooks  Hooks
	logger *zap.Logger

	cancel     chan struct{}
	cancelOnce sync.Once
	started    atomic.Bool

	mu     sync.Mutex
	status domain.RunStatus
	state  domain.RunState
}

// New snapshots in so later edits by the caller do not affect the run.
func New(in Input, gw gateway.Gateway, opts Options, hooks Hooks, logger *zap.Logger) *Pipeline {
	in.Contacts = append([]domain.Contact(nil), in.Contacts...)
	if in.Template == "" {
		in.Template = template.DefaultTemplate
	}
	if opts.Normalizer == nil {
		opts.Normalizer = phone.NewNormalizer(phone.DefaultCountryCode)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if hooks.OnProgress == nil {
		hooks.OnProgress = func(domain.Progress) {}
	}
	if hooks.OnStatus == nil {
		hooks.OnStatus = func(domain.RunStatus) {}
	}
	if hooks.OnSent == nil {
		hooks.OnSent = func(time.Duration) {}
	}
	if hooks.OnFailed == nil {
		hooks.OnFailed = func(string) {}
	}
	return &Pipeline{
		input:  in,
		gw:     gw,
		opts:   opts,
		hooks:  hooks,
		logger: logger,
		cancel: make(chan struct{}),
		status: domain.RunIdle,
	}
}

// Validate reports input problems that prevent a run from starting.
func Validate(in Input) error {
	if len(in.Contacts) == 0 {
		return domain.ErrNoContacts
	}
	if strings.TrimSpace(in.SenderName) == "" {
		return domain.ErrBlankSender
	}
	return nil
}

// Cancel asks the run to stop before its next contact. A send already in
// flight is never interrupted. Safe to call from any goroutine, any number
// of times.
func (p *Pipeline) Cancel() {
	p.cancelOnce.Do(func() { close(p.cancel) })
}

// Status returns the run's current lifecycle status.
func (p *Pipeline) Status() domain.RunStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// State returns a copy of the running counters.
func (p *Pipeline) State() domain.RunState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run executes the whole run on the calling goroutine and returns its
// outcome. A cancelled run returns a nil error; check Status.
func (p *Pipeline) Run(ctx context.Context) (domain.Outcome, error) {
	if err := Validate(p.input); err != nil {
		return domain.Outcome{}, err
	}
	if !p.started.CompareAndSwap(false, true) {
		return domain.Outcome{}, domain.ErrPipelineUsed
	}

	p.setStatus(domain.RunPreparing)
	rc := domain.RenderContext{
		Greeting:   template.GreetingFor(p.opts.Now().Hour()),
		SenderName: p.input.SenderName,
		Gender:     p.input.Gender,
	}
	prepared := contacts.Prepare(p.input.Contacts, rc, p.input.Template)
	total := len(prepared)

	p.mu.Lock()
	p.state.Total = total
	p.mu.Unlock()

	p.logger.Info("run prepared",
		zap.Int("rows", len(p.input.Contacts)),
		zap.Int("eligible", total),
		zap.String("greeting", string(rc.Greeting)),
	)

	if p.cancelled() {
		return p.finishCancelled(), nil
	}
	if total == 0 {
		p.setStatus(domain.RunSending)
		return p.finishCompleted(), nil
	}

	p.emit(0, msgOpening, true)
	sess, err := p.gw.Open(ctx)
	if err != nil {
		p.logger.Error("could not open session", zap.Error(err))
		p.mu.Lock()
		p.state.Failed = total
		p.mu.Unlock()
		p.emit(0, msgOpenFailed, false)
		p.setStatus(domain.RunFailed)
		return p.outcome(), fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			p.logger.Warn("failed to close session", zap.Error(err))
		}
	}()

	p.setStatus(domain.RunSending)
	return p.sendAll(ctx, sess, prepared)
}

func (p *Pipeline) sendAll(ctx context.Context, sess gateway.Session, prepared []domain.PreparedMessage) (out domain.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while sending: %v", r)
			out = p.fail(err)
		}
	}()

	// waitCtx ends on cancellation too, so pacing waits never delay a stop.
	waitCtx, stopWait := context.WithCancel(ctx)
	defer stopWait()
	go func() {
		select {
		case <-p.cancel:
			stopWait()
		case <-waitCtx.Done():
		}
	}()

	for i, msg := range prepared {
		if p.cancelled() {
			return p.finishCancelled(), nil
		}

		if err := p.opts.Limiter.Wait(waitCtx); err != nil {
			if p.cancelled() {
				return p.finishCancelled(), nil
			}
			return p.fail(err), err
		}

		if err := p.process(ctx, sess, i, msg); err != nil {
			return p.fail(err), err
		}

		if i < len(prepared)-1 && p.opts.InterSendDelay > 0 {
			if err := sleep(waitCtx, p.opts.InterSendDelay); err != nil && !p.cancelled() {
				return p.fail(err), err
			}
		}
	}

	return p.finishCompleted(), nil
}

// process sends one message. Only errors that must abort the run are returned.
func (p *Pipeline) process(ctx context.Context, sess gateway.Session, i int, msg domain.PreparedMessage) error {
	log := p.logger.With(zap.Int("index", i), zap.String("contact", msg.Name))
	p.emit(i, fmt.Sprintf(msgSending, msg.Name), true)

	start := time.Now()
	number, err := p.opts.Normalizer.Normalize(msg.Phone)
	if err != nil {
		log.Warn("invalid phone number", zap.String("phone", msg.Phone), zap.Error(err))
		p.recordFailure(i, msg, ReasonInvalidPhone)
		return nil
	}

	ok, err := sess.Send(ctx, number, msg.Text)
	if err != nil {
		log.Error("session failed during send", zap.Error(err))
		return err
	}

	if !ok {
		log.Warn("message not delivered", zap.String("phone", number))
		p.recordFailure(i, msg, ReasonDelivery)
		return nil
	}

	elapsed := time.Since(start)
	p.mu.Lock()
	p.state.Sent++
	p.mu.Unlock()
	p.hooks.OnSent(elapsed)
	p.emit(i+1, fmt.Sprintf(msgSent, msg.Name), true)
	log.Info("message sent", zap.String("phone", number), zap.Duration("latency", elapsed))
	return nil
}

func (p *Pipeline) recordFailure(i int, msg domain.PreparedMessage, reason string) {
	p.mu.Lock()
	p.state.Failed++
	p.mu.Unlock()
	p.hooks.OnFailed(reason)
	p.emit(i+1, fmt.Sprintf(msgFailed, msg.Name), false)
}

func (p *Pipeline) finishCompleted() domain.Outcome {
	out := p.outcome()
	p.setStatus(domain.RunCompleted)
	p.emit(out.Total, fmt.Sprintf(msgCompleted, out.Sent, out.Failed), true)
	p.logger.Info("run completed", zap.Int("sent", out.Sent), zap.Int("failed", out.Failed))
	return out
}

func (p *Pipeline) finishCancelled() domain.Outcome {
	p.mu.Lock()
	p.state.Cancelled = true
	p.mu.Unlock()

	out := p.outcome()
	p.setStatus(domain.RunCancelled)
	p.emit(out.Sent+out.Failed, fmt.Sprintf(msgCancelled, out.Sent, out.Failed), true)
	p.logger.Info("run cancelled", zap.Int("sent", out.Sent), zap.Int("failed", out.Failed))
	return out
}

// fail ends the run. Contacts not yet processed stay uncounted.
func (p *Pipeline) fail(err error) domain.Outcome {
	out := p.outcome()
	p.setStatus(domain.RunFailed)
	p.emit(out.Sent+out.Failed, fmt.Sprintf(msgError, err), false)
	p.logger.Error("run failed", zap.Error(err), zap.Int("sent", out.Sent), zap.Int("failed", out.Failed))
	return out
}

func (p *Pipeline) outcome() domain.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return domain.Outcome{Total: p.state.Total, Sent: p.state.Sent, Failed: p.state.Failed}
}

func (p *Pipeline) emit(current int, message string, ok bool) {
	p.hooks.OnProgress(domain.Progress{
		Current: current,
		Total:   p.State().Total,
		Message: message,
		OK:      ok,
	})
}

func (p *Pipeline) setStatus(s domain.RunStatus) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
	p.hooks.OnStatus(s)
}

func (p *Pipeline) cancelled() bool {
	select {
	case <-p.cancel:
		return true
	default:
		return false
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
