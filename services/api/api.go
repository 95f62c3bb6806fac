package api

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"curry2cakes/pkg/invite"
)

const (
	serviceName = "curry2cakes-api"

	defaultDispatchTimeout = 10 * time.Second
	defaultRateLimit       = 100
	sideEffectTimeout      = 5 * time.Second
)

// Config controls runtime behaviour for the API handlers.
type Config struct {
	AllowedOrigins     []string
	RateLimitPerMinute int
	DispatchTimeout    time.Duration
	// ExposeInviteCodes echoes issued codes in request responses. Only meant
	// for demos; production relies on the email alone.
	ExposeInviteCodes bool
}

// API wires the invite registry, side-effect sinks, and configuration for HTTP handlers.
type API struct {
	registry *invite.Registry
	store    Store
	config   Config
	logger   zerolog.Logger
	metrics  *metrics
	now      func() time.Time

	pending sync.WaitGroup
}

// New initialises the API layer with sane defaults applied to the provided configuration.
func New(registry *invite.Registry, store Store, cfg Config, logger zerolog.Logger) (*API, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}

	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = defaultDispatchTimeout
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = defaultRateLimit
	}

	return &API{
		registry: registry,
		store:    store,
		config:   cfg,
		logger:   logger,
		metrics:  newMetrics(registry),
		now:      time.Now,
	}, nil
}

// Collectors exposes the API metrics for registration.
func (a *API) Collectors() []prometheus.Collector {
	return a.metrics.collectors()
}

// Wait blocks until in-flight audit and event side effects finish.
func (a *API) Wait() {
	a.pending.Wait()
}
