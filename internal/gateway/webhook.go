package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// SendRequest is the JSON body posted to the HTTP bridge.
type SendRequest struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

// WebhookGateway delivers messages by POSTing to an HTTP WhatsApp bridge.
// The URLs are injected from config so tests can point to a local server.
type WebhookGateway struct {
	sendURL    string
	healthURL  string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewWebhookGateway(sendURL, healthURL string, timeout time.Duration, logger *zap.Logger) *WebhookGateway {
	return &WebhookGateway{
		sendURL:   sendURL,
		healthURL: healthURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Open checks the bridge's health endpoint when one is configured.
// The bridge holds its own login, so there is nothing to wait for.
func (g *WebhookGateway) Open(ctx context.Context) (Session, error) {
	if g.healthURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.healthURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create health request: %w", err)
		}
		resp, err := g.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("bridge health check: %w", err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			return nil, fmt.Errorf("bridge health check: unexpected status %d", resp.StatusCode)
		}
	}
	return &webhookSession{g: g}, nil
}

type webhookSession struct {
	g *WebhookGateway
}

// Send posts the message and expects any 2xx status.
// Transport errors and other statuses count as a failed delivery.
func (s *webhookSession) Send(ctx context.Context, phone, text string) (bool, error) {
	body, err := json.Marshal(SendRequest{To: phone, Content: text})
	if err != nil {
		return false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.g.sendURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.g.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		s.g.logger.Warn("bridge request failed", zap.String("phone", phone), zap.Error(err))
		return false, nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		s.g.logger.Warn("bridge rejected message",
			zap.String("phone", phone),
			zap.Int("status", resp.StatusCode),
		)
		return false, nil
	}
	return true, nil
}

func (s *webhookSession) Close() error {
	s.g.httpClient.CloseIdleConnections()
	return nil
}

// compile-time check that WebhookGateway implements Gateway
var _ Gateway = (*WebhookGateway)(nil)
