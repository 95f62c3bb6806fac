package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"curry2cakes/pkg/audit"
	"curry2cakes/pkg/bus"
	"curry2cakes/pkg/db"
	"curry2cakes/pkg/invite"
	"curry2cakes/pkg/mailer"
	"curry2cakes/pkg/render"
	"curry2cakes/pkg/telemetry"
	"curry2cakes/services/api"
	"curry2cakes/services/api/internal/config"
)

const serviceName = "curry2cakes-api"

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

	var store api.Store

	var pool *pgxpool.Pool
	if cfg.DBDSN != "" {
		pool, err = db.Open(ctx, cfg.DBDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect database")
		}
		defer pool.Close()

		version, err := db.Migrate(ctx, pool)
		if err != nil {
			logger.Fatal().Err(err).Msg("migrate database")
		}
		logger.Info().Int64("version", version).Msg("database migrated")

		orm, err := db.ORM(pool)
		if err != nil {
			logger.Fatal().Err(err).Msg("open orm")
		}
		recorder, err := audit.NewRecorder(orm)
		if err != nil {
			logger.Fatal().Err(err).Msg("init audit recorder")
		}
		store.Audit = recorder
		store.Ready = func(ctx context.Context) error { return db.Ping(ctx, pool) }
	} else {
		logger.Warn().Msg("DB_DSN not set; audit trail disabled")
	}

	var eventBus *bus.Bus
	if cfg.NATSURL != "" {
		eventBus, err = bus.New(cfg.NATSURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect nats")
		}
		defer eventBus.Close()
		store.Bus = eventBus
	}

	sender, err := newSender(cfg, eventBus, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init mail sender")
	}
	engine, err := render.New()
	if err != nil {
		logger.Fatal().Err(err).Msg("load email templates")
	}
	dispatcher, err := mailer.NewDispatcher(sender, engine, cfg.Mail.From)
	if err != nil {
		logger.Fatal().Err(err).Msg("init mail dispatcher")
	}

	registry, err := invite.New(dispatcher,
		invite.WithPrefix(cfg.CodePrefix),
		invite.WithRetention(cfg.Retention),
		invite.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("init invite registry")
	}
	go invite.RunJanitor(ctx, registry, cfg.PruneInterval, logger)

	a, err := api.New(registry, store, api.Config{
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		DispatchTimeout:    cfg.DispatchTimeout,
		ExposeInviteCodes:  cfg.ExposeInviteCodes,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init api")
	}
	handler, err := a.Routes()
	if err != nil {
		logger.Fatal().Err(err).Msg("build routes")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.Addr).
			Str("env", cfg.Environment).
			Str("mail_transport", cfg.Mail.Transport).
			Msg("starting invites api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown server")
	}
	a.Wait()
}

func newSender(cfg config.Config, eventBus *bus.Bus, logger zerolog.Logger) (mailer.Sender, error) {
	switch cfg.Mail.Transport {
	case config.MailTransportHTTP:
		return mailer.NewHTTPSender(mailer.HTTPConfig{
			Endpoint:  cfg.Mail.APIURL,
			APIKey:    cfg.Mail.APIKey,
			APISecret: cfg.Mail.APISecret,
		})
	case config.MailTransportBus:
		return mailer.NewBusSender(eventBus)
	default:
		return mailer.NewLogSender(logger), nil
	}
}
