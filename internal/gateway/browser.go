package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/notifyhub/whatsapp-dispatcher/internal/domain"
)

const (
	whatsAppWebURL = "https://web.whatsapp.com/"

	// Present once the chat list has loaded, i.e. the user is logged in.
	sidePaneSelector = `#side`

	sendButtonXPath = `//*[@id="main"]/footer/div[1]/div/span/div/div[2]/div[2]/button`

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4430.212 Safari/537.36"
)

// BrowserConfig controls the Chrome instance driven by BrowserGateway.
type BrowserConfig struct {
	Headless    bool
	UserDataDir string // keeps the WhatsApp login between runs when set
	ExecPath    string
	AuthTimeout time.Duration
	SendTimeout time.Duration
	// SettleDelay is waited after the send button appears, PostSendDelay
	// after it is clicked so the message leaves before the next navigation.
	SettleDelay   time.Duration
	PostSendDelay time.Duration
}

// BrowserGateway drives WhatsApp Web in a real Chrome through the DevTools protocol.
type BrowserGateway struct {
	cfg    BrowserConfig
	logger *zap.Logger
}

func NewBrowserGateway(cfg BrowserConfig, logger *zap.Logger) *BrowserGateway {
	return &BrowserGateway{cfg: cfg, logger: logger}
}

// Open launches the browser, loads WhatsApp Web and blocks until the user has
// scanned the QR code or AuthTimeout elapses.
func (g *BrowserGateway) Open(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", g.cfg.Headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(defaultUserAgent),
	)
	if g.cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(g.cfg.UserDataDir))
	}
	if g.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(g.cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(g.logger.Sugar().Debugf),
	)
	closeAll := func() {
		cancelBrowser()
		cancelAlloc()
	}

	// The first Run starts the browser; it must not carry a timeout or the
	// browser would be torn down when that timeout fires.
	if err := chromedp.Run(browserCtx, chromedp.Navigate(whatsAppWebURL)); err != nil {
		closeAll()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	g.logger.Info("waiting for WhatsApp Web authentication", zap.Duration("timeout", g.cfg.AuthTimeout))

	authCtx, cancelAuth := context.WithTimeout(browserCtx, g.cfg.AuthTimeout)
	defer cancelAuth()
	if err := chromedp.Run(authCtx, chromedp.WaitVisible(sidePaneSelector, chromedp.ByQuery)); err != nil {
		closeAll()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(authCtx.Err(), context.DeadlineExceeded) {
			return nil, domain.ErrAuthenticationTimeout
		}
		return nil, fmt.Errorf("wait for authentication: %w", err)
	}

	g.logger.Info("WhatsApp Web authenticated")
	return &browserSession{g: g, ctx: browserCtx, close: closeAll}, nil
}

type browserSession struct {
	g     *BrowserGateway
	ctx   context.Context
	close func()
	once  sync.Once
}

// Send opens the chat for phone with text pre-filled and clicks send.
// Missing elements and timeouts are reported as a failed delivery; a dead
// browser is returned as an error.
func (s *browserSession) Send(ctx context.Context, phone, text string) (bool, error) {
	link := fmt.Sprintf("%ssend?phone=%s&text=%s", whatsAppWebURL, url.QueryEscape(phone), escapeText(text))

	budget := s.g.cfg.SendTimeout + s.g.cfg.SettleDelay + s.g.cfg.PostSendDelay
	sendCtx, cancel := context.WithTimeout(s.ctx, budget)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(sendCtx,
		chromedp.Navigate(link),
		chromedp.WaitEnabled(sendButtonXPath, chromedp.BySearch),
		chromedp.Sleep(s.g.cfg.SettleDelay),
		chromedp.Click(sendButtonXPath, chromedp.BySearch),
		chromedp.Sleep(s.g.cfg.PostSendDelay),
	)
	if err == nil {
		return true, nil
	}

	switch {
	case s.ctx.Err() != nil:
		return false, fmt.Errorf("browser session closed: %w", err)
	case ctx.Err() != nil:
		return false, ctx.Err()
	}
	s.g.logger.Warn("whatsapp web send failed", zap.String("phone", phone), zap.Error(err))
	return false, nil
}

func (s *browserSession) Close() error {
	s.once.Do(s.close)
	return nil
}

// escapeText percent-encodes text for the query string, spaces as %20 so
// WhatsApp does not show literal plus signs.
func escapeText(text string) string {
	return strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}

// compile-time check that BrowserGateway implements Gateway
var _ Gateway = (*BrowserGateway)(nil)
