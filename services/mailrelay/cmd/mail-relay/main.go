package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"curry2cakes/pkg/bus"
	"curry2cakes/pkg/mailer"
	"curry2cakes/pkg/telemetry"
	"curry2cakes/services/mailrelay"
	"curry2cakes/services/mailrelay/internal/config"
)

const serviceName = "curry2cakes-mail-relay"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if !cfg.Production() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	logger := log.With().Str("service", serviceName).Logger()

	shutdownTelemetry, err := telemetry.Init(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("init telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	eventBus, err := bus.New(cfg.NATSURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect nats")
	}
	defer eventBus.Close()

	var sender mailer.Sender = mailer.NewLogSender(logger)
	if cfg.Transport == config.TransportHTTP {
		sender, err = mailer.NewHTTPSender(mailer.HTTPConfig{
			Endpoint:  cfg.APIURL,
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("init http sender")
		}
	}

	relay, err := mailrelay.New(eventBus, sender, cfg.MaxDeliver, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init relay")
	}
	if err := relay.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start relay")
	}
	defer func() {
		if err := relay.Close(); err != nil {
			logger.Error().Err(err).Msg("close relay")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(relay.Collectors()...)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Str("transport", cfg.Transport).Msg("starting mail relay")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("metrics server")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown metrics server")
	}
}
