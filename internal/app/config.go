package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"msgrelay/internal/directory"
	"msgrelay/internal/queue"
	"msgrelay/internal/session"
)

// Config holds every runtime option. Zero values select the documented
// defaults.
type Config struct {
	// Port is the single listen port for WebSocket upgrades and REST.
	Port int

	// AllowedOrigins is the CORS origin list for HTTP and the WS
	// upgrade; "*" allows any origin.
	AllowedOrigins []string

	// MaxOfflineMessages caps each recipient's offline queue.
	MaxOfflineMessages int

	// MessageRetention is how long a queued envelope stays deliverable.
	MessageRetention time.Duration

	// PurgeInterval is the expiry sweep period.
	PurgeInterval time.Duration

	AuthTimeout     time.Duration
	IdleTimeout     time.Duration
	MailboxCapacity int

	// MaxBatch caps batch key and status requests.
	MaxBatch int

	// MaxKeyLen caps a stored public key string.
	MaxKeyLen int

	LogLevel string
}

// Default returns the production defaults.
func Default() Config {
	sc := session.DefaultConfig()
	return Config{
		Port:               3002,
		AllowedOrigins:     []string{"*"},
		MaxOfflineMessages: queue.DefaultMaxPerUser,
		MessageRetention:   queue.DefaultRetention,
		PurgeInterval:      queue.DefaultPurgeInterval,
		AuthTimeout:        sc.AuthTimeout,
		IdleTimeout:        sc.IdleTimeout,
		MailboxCapacity:    sc.MailboxCapacity,
		MaxBatch:           directory.DefaultMaxBatch,
		MaxKeyLen:          directory.DefaultMaxKeyLen,
		LogLevel:           "info",
	}
}

// FromEnv builds a Config from the process environment on top of the
// defaults. Unset variables keep their default; malformed values fail.
func FromEnv() (Config, error) {
	cfg := Default()
	var err error

	if cfg.Port, err = envInt("PORT", cfg.Port); err != nil {
		return Config{}, err
	}
	if raw, ok := os.LookupEnv("ALLOWED_ORIGINS"); ok {
		cfg.AllowedOrigins = splitOrigins(raw)
	}
	if cfg.MaxOfflineMessages, err = envInt("MAX_OFFLINE_MESSAGES", cfg.MaxOfflineMessages); err != nil {
		return Config{}, err
	}
	if cfg.MessageRetention, err = envDuration("MESSAGE_RETENTION_HOURS", time.Hour, cfg.MessageRetention); err != nil {
		return Config{}, err
	}
	if cfg.PurgeInterval, err = envDuration("PURGE_INTERVAL_SECONDS", time.Second, cfg.PurgeInterval); err != nil {
		return Config{}, err
	}
	if cfg.AuthTimeout, err = envDuration("AUTH_TIMEOUT_SECONDS", time.Second, cfg.AuthTimeout); err != nil {
		return Config{}, err
	}
	if cfg.IdleTimeout, err = envDuration("IDLE_TIMEOUT_SECONDS", time.Second, cfg.IdleTimeout); err != nil {
		return Config{}, err
	}
	if cfg.MailboxCapacity, err = envInt("MAILBOX_CAPACITY", cfg.MailboxCapacity); err != nil {
		return Config{}, err
	}
	if cfg.MaxBatch, err = envInt("MAX_BATCH", cfg.MaxBatch); err != nil {
		return Config{}, err
	}
	if raw, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(raw))
	}
	return cfg, nil
}

// NewLogger builds the process logger for the configured level. Unknown
// levels fall back to info.
func NewLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func envInt(key string, def int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	return n, nil
}

func envDuration(key string, unit time.Duration, def time.Duration) (time.Duration, error) {
	n, err := envInt(key, -1)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return def, nil
	}
	return time.Duration(n) * unit, nil
}

func splitOrigins(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "*" {
		return []string{"*"}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
