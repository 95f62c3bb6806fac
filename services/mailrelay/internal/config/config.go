package config

import (
	"context"
	"errors"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

const (
	TransportLog  = "log"
	TransportHTTP = "http"
)

// Config holds runtime configuration for the mail relay.
type Config struct {
	NATSURL      string `env:"NATS_URL,required"`
	MetricsAddr  string `env:"METRICS_ADDR,default=:9102"`
	Environment  string `env:"ENV,default=development"`
	MaxDeliver   int    `env:"MAIL_MAX_DELIVER,default=5"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Transport    string `env:"MAIL_TRANSPORT,default=log"`
	APIURL       string `env:"MAIL_API_URL"`
	APIKey       string `env:"MAIL_API_KEY"`
	APISecret    string `env:"MAIL_API_SECRET"`
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
	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	if c.MaxDeliver < 0 {
		return errors.New("MAIL_MAX_DELIVER must not be negative")
	}
	switch c.Transport {
	case TransportLog:
	case TransportHTTP:
		if c.APIURL == "" || c.APIKey == "" || c.APISecret == "" {
			return errors.New("MAIL_API_URL, MAIL_API_KEY and MAIL_API_SECRET are required for the http transport")
		}
	default:
		return errors.New("MAIL_TRANSPORT must be log or http")
	}
	return nil
}

// Production reports whether the relay runs in production mode.
func (c Config) Production() bool {
	return c.Environment == "production"
}
