package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Gateway kinds selectable through GATEWAY.
const (
	GatewayBrowser = "browser"
	GatewayWebhook = "webhook"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; nothing is required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database (optional run history; in-memory when empty)
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Session gateway
	Gateway          string
	WebhookURL       string
	WebhookHealthURL string
	WebhookTimeout   time.Duration
	BrowserHeadless  bool
	BrowserUserData  string
	BrowserExecPath  string
	AuthTimeout      time.Duration
	SendTimeout      time.Duration
	SendSettleDelay  time.Duration
	PostSendDelay    time.Duration

	// Pacing
	InterSendDelay time.Duration
	SendsPerMinute int

	// Message
	CountryCode  string
	TemplateFile string

	LogLevel string
}

// Load reads an optional .env file from the working directory, then the
// environment. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 5)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 1)),

		Gateway:          strings.ToLower(getEnv("GATEWAY", GatewayBrowser)),
		WebhookURL:       os.Getenv("WEBHOOK_URL"),
		WebhookHealthURL: os.Getenv("WEBHOOK_HEALTH_URL"),
		WebhookTimeout:   getDuration("WEBHOOK_TIMEOUT", 30*time.Second),
		BrowserHeadless:  getBool("BROWSER_HEADLESS", false),
		BrowserUserData:  os.Getenv("BROWSER_USER_DATA_DIR"),
		BrowserExecPath:  os.Getenv("BROWSER_EXEC_PATH"),
		AuthTimeout:      getDuration("AUTH_TIMEOUT", 180*time.Second),
		SendTimeout:      getDuration("SEND_TIMEOUT", 60*time.Second),
		SendSettleDelay:  getDuration("SEND_SETTLE_DELAY", time.Second),
		PostSendDelay:    getDuration("POST_SEND_DELAY", 5*time.Second),

		InterSendDelay: getDuration("INTER_SEND_DELAY", 2*time.Second),
		SendsPerMinute: getInt("SENDS_PER_MINUTE", 0),

		CountryCode:  getEnv("COUNTRY_CODE", "55"),
		TemplateFile: os.Getenv("MESSAGE_TEMPLATE_FILE"),

		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks combinations that defaults cannot fix.
func (c *Config) Validate() error {
	switch c.Gateway {
	case GatewayBrowser:
	case GatewayWebhook:
		if c.WebhookURL == "" {
			return fmt.Errorf("WEBHOOK_URL is required when GATEWAY=%s", GatewayWebhook)
		}
	default:
		return fmt.Errorf("unknown GATEWAY %q: must be %s or %s", c.Gateway, GatewayBrowser, GatewayWebhook)
	}
	if c.AuthTimeout <= 0 || c.SendTimeout <= 0 {
		return fmt.Errorf("AUTH_TIMEOUT and SEND_TIMEOUT must be positive")
	}
	if c.InterSendDelay < 0 {
		return fmt.Errorf("INTER_SEND_DELAY must not be negative")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
