package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ricirt/missedmail/internal/domain"
)

// Mail transports selectable through MAIL_TRANSPORT.
const (
	TransportSMTP    = "smtp"
	TransportSES     = "ses"
	TransportWebhook = "webhook"
	TransportOutbox  = "outbox"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Redis holds reply-address tokens.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ReplyTokenTTL time.Duration

	// Digest content
	NoReplyAddress      string
	EmailGatewayPattern string
	SendAsUser          bool
	SiteName            string
	ServerURL           string
	ContextMessages     int

	// Digest worker
	DigestInterval    time.Duration
	DigestBatchWindow time.Duration
	DigestBatchLimit  int

	// Mail transport
	MailTransport     string
	MailTimeout       time.Duration
	MailRatePerDomain int
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	SESRegion         string
	MailWebhookURL    string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		LogLevel:        getEnv("LOG_LEVEL", "info"),

		DatabaseURL: dbURL,
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 2)),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),
		ReplyTokenTTL: getDuration("REPLY_TOKEN_TTL", 5*24*time.Hour),

		NoReplyAddress:      getEnv("NOREPLY_EMAIL_ADDRESS", "Notifications <noreply@example.com>"),
		EmailGatewayPattern: getEnv("EMAIL_GATEWAY_PATTERN", ""),
		SendAsUser:          getBool("SEND_MISSED_MESSAGE_EMAILS_AS_USER", false),
		SiteName:            getEnv("SITE_NAME", "Chat"),
		ServerURL:           strings.TrimRight(getEnv("SERVER_URL", ""), "/"),
		ContextMessages:     getInt("DIGEST_CONTEXT_MESSAGES", 10),

		DigestInterval:    getDuration("DIGEST_INTERVAL", 30*time.Second),
		DigestBatchWindow: getDuration("DIGEST_BATCH_WINDOW", 2*time.Minute),
		DigestBatchLimit:  getInt("DIGEST_BATCH_LIMIT", 500),

		MailTransport:     strings.ToLower(getEnv("MAIL_TRANSPORT", TransportSMTP)),
		MailTimeout:       getDuration("MAIL_TIMEOUT", 10*time.Second),
		MailRatePerDomain: getInt("MAIL_RATE_PER_DOMAIN", 20),
		SMTPHost:          getEnv("SMTP_HOST", "localhost"),
		SMTPPort:          getInt("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		SESRegion:         getEnv("SES_REGION", "us-east-1"),
		MailWebhookURL:    getEnv("MAIL_WEBHOOK_URL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that defaults cannot guarantee.
func (c *Config) Validate() error {
	switch c.MailTransport {
	case TransportSMTP, TransportSES, TransportOutbox:
	case TransportWebhook:
		if c.MailWebhookURL == "" {
			return errors.New("MAIL_WEBHOOK_URL is required for the webhook transport")
		}
	default:
		return fmt.Errorf("unknown MAIL_TRANSPORT %q", c.MailTransport)
	}
	if c.EmailGatewayPattern != "" && strings.Count(c.EmailGatewayPattern, "%s") != 1 {
		return errors.New("EMAIL_GATEWAY_PATTERN must contain exactly one %s")
	}
	if c.NoReplyAddress == "" {
		return errors.New("NOREPLY_EMAIL_ADDRESS must not be empty")
	}
	if c.ContextMessages < 0 {
		return errors.New("DIGEST_CONTEXT_MESSAGES must not be negative")
	}
	if c.MailRatePerDomain <= 0 {
		return errors.New("MAIL_RATE_PER_DOMAIN must be positive")
	}
	if c.DigestBatchLimit <= 0 || c.DigestBatchLimit > domain.MaxMessagesPerRequest {
		return fmt.Errorf("DIGEST_BATCH_LIMIT must be between 1 and %d", domain.MaxMessagesPerRequest)
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
