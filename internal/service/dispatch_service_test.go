package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/whatsapp-dispatcher/internal/domain"
	"github.com/notifyhub/whatsapp-dispatcher/internal/gateway"
	"github.com/notifyhub/whatsapp-dispatcher/internal/metrics"
	"github.com/notifyhub/whatsapp-dispatcher/internal/repository"
	"github.com/notifyhub/whatsapp-dispatcher/internal/service"
)

func newService(gw gateway.Gateway) (*service.DispatchService, *repository.MemoryRunRepository, *metrics.Metrics) {
	return newServiceWith(gw, service.Options{})
}

func newServiceWith(gw gateway.Gateway, opts service.Options) (*service.DispatchService, *repository.MemoryRunRepository, *metrics.Metrics) {
	repo := repository.NewMemoryRunRepository()
	m := metrics.New(prometheus.NewRegistry())
	opts.Now = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local) }
	svc := service.NewDispatchService(repo, gw, m, opts, zap.NewNop())
	return svc, repo, m
}

func someContacts(n int) []domain.Contact {
	out := make([]domain.Contact, n)
	for i := range out {
		out[i] = domain.Contact{
			Name:    fmt.Sprintf("contato %d", i+1),
			Phone:   fmt.Sprintf("1199999%04d", i),
			Company: "ACME",
		}
	}
	return out
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDispatchService_StartCompletes(t *testing.T) {
	gw := gateway.NewMockGateway()
	svc, repo, m := newService(gw)
	ctx := waitCtx(t)

	run, err := svc.Start(ctx, service.StartRunRequest{
		Contacts:   someContacts(3),
		SenderName: "Ana",
		Gender:     domain.GenderFeminine,
	})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, 3, run.Total)

	done, err := svc.Wait(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, done.Status)
	assert.Equal(t, 3, done.Sent)
	assert.Equal(t, 0, done.Failed)
	assert.Equal(t, "Concluído! Enviadas: 3, Falhas: 0", done.LastMessage)
	require.NotNil(t, done.FinishedAt)
	assert.Nil(t, done.Error)

	stored, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, stored.Status)
	assert.Equal(t, 3, stored.Sent)

	assert.Len(t, gw.Sent(), 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.MessagesSent))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsFinished.WithLabelValues("completed")))

	_, active := svc.Active()
	assert.False(t, active)
}

func TestDispatchService_StartValidation(t *testing.T) {
	svc, _, _ := newService(gateway.NewMockGateway())
	ctx := context.Background()

	_, err := svc.Start(ctx, service.StartRunRequest{SenderName: "Ana"})
	assert.True(t, errors.Is(err, domain.ErrNoContacts))

	_, err = svc.Start(ctx, service.StartRunRequest{Contacts: someContacts(1), SenderName: "  "})
	assert.True(t, errors.Is(err, domain.ErrBlankSender))

	runs, err := svc.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs, "rejected requests leave no record")
}

func TestDispatchService_SingleActiveRun(t *testing.T) {
	release := make(chan struct{})
	gw := gateway.NewMockGateway()
	gw.OnSend = func(int, string, string) { <-release }
	svc, _, _ := newService(gw)
	ctx := waitCtx(t)

	first, err := svc.Start(ctx, service.StartRunRequest{Contacts: someContacts(1), SenderName: "Ana"})
	require.NoError(t, err)

	_, err = svc.Start(ctx, service.StartRunRequest{Contacts: someContacts(1), SenderName: "Bia"})
	assert.True(t, errors.Is(err, domain.ErrRunInProgress))

	close(release)
	_, err = svc.Wait(ctx, first.ID)
	require.NoError(t, err)

	second, err := svc.Start(ctx, service.StartRunRequest{Contacts: someContacts(1), SenderName: "Bia"})
	require.NoError(t, err)
	_, err = svc.Wait(ctx, second.ID)
	require.NoError(t, err)
}

func TestDispatchService_CancelStopsAfterCurrentSend(t *testing.T) {
	gw := gateway.NewMockGateway()
	svc, _, m := newService(gw)
	ctx := waitCtx(t)

	started := make(chan struct{})
	proceed := make(chan struct{})
	gw.OnSend = func(call int, _, _ string) {
		if call == 0 {
			close(started)
			<-proceed
		}
	}

	run, err := svc.Start(ctx, service.StartRunRequest{Contacts: someContacts(5), SenderName: "Ana"})
	require.NoError(t, err)

	<-started
	require.NoError(t, svc.Cancel(ctx, run.ID))
	close(proceed)

	done, err := svc.Wait(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCancelled, done.Status)
	assert.Equal(t, 1, done.Sent, "the in-flight send completes")
	assert.Len(t, gw.Sent(), 1)
	assert.Equal(t, "Envio cancelado. Enviadas: 1, Falhas: 0", done.LastMessage)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsFinished.WithLabelValues("cancelled")))

	err = svc.Cancel(ctx, run.ID)
	assert.True(t, errors.Is(err, domain.ErrNotCancellable))
}

func TestDispatchService_CancelUnknown(t *testing.T) {
	svc, _, _ := newService(gateway.NewMockGateway())
	err := svc.Cancel(context.Background(), "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = svc.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestDispatchService_OpenFailureMarksRunFailed(t *testing.T) {
	gw := gateway.NewMockGateway()
	gw.OpenErr = domain.ErrAuthenticationTimeout
	svc, repo, _ := newService(gw)
	ctx := waitCtx(t)

	run, err := svc.Start(ctx, service.StartRunRequest{Contacts: someContacts(2), SenderName: "Ana"})
	require.NoError(t, err)

	done, err := svc.Wait(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, done.Status)
	assert.Equal(t, 2, done.Failed)
	require.NotNil(t, done.Error)
	assert.Contains(t, *done.Error, domain.ErrAuthenticationTimeout.Error())

	stored, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, stored.Status)
}

func TestDispatchService_SubscribeReplaysHistory(t *testing.T) {
	gw := gateway.NewMockGateway()
	svc, _, _ := newService(gw)
	ctx := waitCtx(t)

	run, err := svc.Start(ctx, service.StartRunRequest{Contacts: someContacts(2), SenderName: "Ana"})
	require.NoError(t, err)
	_, err = svc.Wait(ctx, run.ID)
	require.NoError(t, err)

	events, unsubscribe, err := svc.Subscribe(run.ID)
	require.NoError(t, err)
	defer unsubscribe()

	var got []domain.Progress
	for p := range events {
		got = append(got, p)
	}
	require.NotEmpty(t, got)
	assert.Equal(t, "Concluído! Enviadas: 2, Falhas: 0", got[len(got)-1].Message)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i].Current, got[i-1].Current, "progress is monotonic")
	}

	_, _, err = svc.Subscribe("unknown")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestDispatchService_InputSnapshot(t *testing.T) {
	release := make(chan struct{})
	gw := gateway.NewMockGateway()
	gw.OnSend = func(int, string, string) { <-release }
	svc, _, _ := newService(gw)
	ctx := waitCtx(t)

	rows := someContacts(2)
	run, err := svc.Start(ctx, service.StartRunRequest{Contacts: rows, SenderName: "Ana"})
	require.NoError(t, err)

	rows[1].Name = "alterado"
	close(release)

	_, err = svc.Wait(ctx, run.ID)
	require.NoError(t, err)
	sent := gw.Sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1].Text, "Contato 2")
	assert.NotContains(t, sent[1].Text, "Alterado")
}

func TestDispatchService_ShutdownCancelsActiveRun(t *testing.T) {
	gw := gateway.NewMockGateway()
	sent := make(chan struct{}, 3)
	gw.OnSend = func(int, string, string) { sent <- struct{}{} }
	svc, _, _ := newServiceWith(gw, service.Options{InterSendDelay: time.Hour})
	ctx := waitCtx(t)

	run, err := svc.Start(ctx, service.StartRunRequest{Contacts: someContacts(3), SenderName: "Ana"})
	require.NoError(t, err)
	<-sent

	require.NoError(t, svc.Shutdown(ctx))
	got, err := svc.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCancelled, got.Status)
	assert.Equal(t, 1, got.Sent)
}

func TestDispatchService_DrainRefusesNewRuns(t *testing.T) {
	gw := gateway.NewMockGateway()
	sent := make(chan struct{}, 3)
	gw.OnSend = func(int, string, string) { sent <- struct{}{} }
	svc, _, _ := newServiceWith(gw, service.Options{InterSendDelay: time.Hour})
	ctx := waitCtx(t)

	run, err := svc.Start(ctx, service.StartRunRequest{Contacts: someContacts(3), SenderName: "Ana"})
	require.NoError(t, err)
	<-sent

	svc.Drain()
	_, err = svc.Start(ctx, service.StartRunRequest{Contacts: someContacts(1), SenderName: "Bia"})
	assert.True(t, errors.Is(err, domain.ErrShuttingDown))

	done, err := svc.Wait(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCancelled, done.Status)
	assert.Equal(t, 1, done.Sent)
}
