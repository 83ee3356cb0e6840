package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/notifyhub/whatsapp-dispatcher/internal/service"
)

// ServerConfig holds the listener settings for NewServer.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Template is the message template used for previews.
	Template string
}

// NewServer builds the HTTP server around NewRouter. Shutting the server
// down drains svc first: progress streams then end as soon as the active run
// stops, instead of holding Shutdown open until its last contact.
func NewServer(cfg ServerConfig, svc *service.DispatchService, reg prometheus.Gatherer, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      NewRouter(svc, cfg.Template, reg, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	srv.RegisterOnShutdown(svc.Drain)
	return srv
}
