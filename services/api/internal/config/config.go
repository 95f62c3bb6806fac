package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	MailTransportLog  = "log"
	MailTransportHTTP = "http"
	MailTransportBus  = "bus"
)

// Config holds runtime configuration for the invites API service.
type Config struct {
	Addr               string        `env:"ADDR,default=:3001"`
	Environment        string        `env:"ENV,default=development"`
	AllowedOrigins     []string      `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:5173"`
	RateLimitPerMinute int           `env:"RATE_LIMIT_PER_MINUTE,default=100"`
	CodePrefix         string        `env:"INVITE_CODE_PREFIX,default=C2C"`
	Retention          time.Duration `env:"INVITE_RETENTION,default=0s"`
	PruneInterval      time.Duration `env:"PRUNE_INTERVAL,default=1h"`
	DispatchTimeout    time.Duration `env:"DISPATCH_TIMEOUT,default=10s"`
	ExposeInviteCodes  bool          `env:"EXPOSE_INVITE_CODES,default=false"`
	DBDSN              string        `env:"DB_DSN"`
	NATSURL            string        `env:"NATS_URL"`
	OTLPEndpoint       string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Mail               Mail          `env:", prefix=MAIL_"`
}

// Mail selects and configures the email transport.
type Mail struct {
	Transport string `env:"TRANSPORT,default=log"`
	From      string `env:"FROM,default=invites@curry2cakes.com"`
	APIURL    string `env:"API_URL"`
	APIKey    string `env:"API_KEY"`
	APISecret string `env:"API_SECRET"`
}

// Load returns a Config populated from environment variables.
func Load(ctx context.Context) (Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return Config{}, err
	}
	cfg.Mail.Transport = strings.ToLower(strings.TrimSpace(cfg.Mail.Transport))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	if c.RateLimitPerMinute <= 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.DispatchTimeout <= 0 {
		return errors.New("DISPATCH_TIMEOUT must be positive")
	}
	if c.Retention < 0 {
		return errors.New("INVITE_RETENTION must not be negative")
	}

	switch c.Mail.Transport {
	case MailTransportLog:
	case MailTransportHTTP:
		if c.Mail.APIURL == "" || c.Mail.APIKey == "" || c.Mail.APISecret == "" {
			return errors.New("MAIL_API_URL, MAIL_API_KEY and MAIL_API_SECRET are required for the http mail transport")
		}
	case MailTransportBus:
		if c.NATSURL == "" {
			return errors.New("NATS_URL is required for the bus mail transport")
		}
	default:
		return fmt.Errorf("unknown MAIL_TRANSPORT %q", c.Mail.Transport)
	}
	return nil
}

// Production reports whether the service runs in production mode.
func (c Config) Production() bool {
	return c.Environment == "production"
}
