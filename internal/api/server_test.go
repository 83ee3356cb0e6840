package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/whatsapp-dispatcher/internal/api"
	"github.com/notifyhub/whatsapp-dispatcher/internal/domain"
	"github.com/notifyhub/whatsapp-dispatcher/internal/gateway"
	"github.com/notifyhub/whatsapp-dispatcher/internal/metrics"
	"github.com/notifyhub/whatsapp-dispatcher/internal/repository"
	"github.com/notifyhub/whatsapp-dispatcher/internal/service"
)

func TestServer_ShutdownEndsOpenStreams(t *testing.T) {
	const rows = 50
	reg := prometheus.NewRegistry()
	gw := gateway.NewMockGateway()
	gw.OnSend = func(int, string, string) { time.Sleep(100 * time.Millisecond) }
	svc := service.NewDispatchService(
		repository.NewMemoryRunRepository(), gw, metrics.New(reg), service.Options{}, zap.NewNop())
	srv := api.NewServer(api.ServerConfig{}, svc, reg, zap.NewNop())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()
	base := "http://" + ln.Addr().String()

	var sheet strings.Builder
	sheet.WriteString("Nome,Telefone,Empresa\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&sheet, "contato %d,1199999%04d,ACME\n", i, i)
	}
	body, ct := uploadBody(t, "contatos.csv", sheet.String(), map[string]string{"sender": "Ana"})
	resp, err := http.Post(base+"/api/v1/runs", ct, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var run domain.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	resp.Body.Close()

	stream, err := http.Get(base + "/api/v1/runs/" + run.ID + "/events")
	require.NoError(t, err)
	defer stream.Body.Close()
	events := bufio.NewReader(stream.Body)
	for {
		line, err := events.ReadString('\n')
		require.NoError(t, err)
		if line == "event: progress\n" {
			break
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx), "streams close once the run stops")
	require.NoError(t, svc.Shutdown(ctx))
	assert.ErrorIs(t, <-served, http.ErrServerClosed)

	rest, err := io.ReadAll(events)
	require.NoError(t, err)
	assert.Contains(t, string(rest), "event: done\n")

	got, err := svc.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCancelled, got.Status)
	assert.Less(t, got.Sent, rows)
	assert.Len(t, gw.Sent(), got.Sent, "the send in flight at shutdown completes")
}
