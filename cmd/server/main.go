package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"iot-measurement-backend/internal/audit"
	"iot-measurement-backend/internal/config"
	"iot-measurement-backend/internal/database"
	"iot-measurement-backend/internal/handler"
	"iot-measurement-backend/internal/mailer"
	"iot-measurement-backend/internal/metrics"
	"iot-measurement-backend/internal/middleware"
	"iot-measurement-backend/internal/repository"
	"iot-measurement-backend/internal/service"
	pkglog "iot-measurement-backend/pkg/log"
	"iot-measurement-backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 1. Load configuration
	cfg := config.LoadConfig()
	logger := pkglog.New(cfg.Server.AppEnv)
	logger.Info().Str("env", cfg.Server.AppEnv).Msg("configuration loaded")

	// 2. Initialize database connection
	db, err := database.Connect(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("database unavailable")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("schema migration failed")
	}

	// 3. Initialize repositories
	userRepo := repository.NewUserRepo(db)
	refreshRepo := repository.NewRefreshTokenRepo(db)
	resetRepo := repository.NewPasswordResetRepo(db)
	auditRepo := repository.NewAuditRepo(db)

	// 4. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// 5. Optional collaborators
	var mail service.Mailer
	if cfg.AMQP.URL != "" {
		amqpMailer, err := mailer.NewAMQPMailer(cfg.AMQP.URL, cfg.AMQP.MailQueue)
		if err != nil {
			logger.Fatal().Err(err).Msg("mail queue unavailable")
		}
		defer amqpMailer.Close()
		mail = amqpMailer
		logger.Info().Str("queue", cfg.AMQP.MailQueue).Msg("reset mails go to the AMQP outbox")
	} else {
		mail = mailer.NewLogMailer(logger, !cfg.IsRelease())
		logger.Warn().Msg("AMQP_URL not set, reset mails are only logged")
	}

	var publisher service.AuditPublisher
	if cfg.NATS.URL != "" {
		nc, err := audit.Connect(cfg.NATS.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("NATS unavailable")
		}
		defer nc.Close()
		publisher = audit.NewNATSPublisher(nc, cfg.NATS.AuditSubject)
	}

	var scripter redis.Scripter
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis ping failed, rate limiter fails open until it recovers")
		}
		scripter = rdb
	} else {
		logger.Warn().Msg("REDIS_ADDR not set, rate limiting disabled")
	}

	// 6. Initialize services
	signer := utils.NewJWTSigner(cfg.JWT.AccessSecret, cfg.JWT.Issuer)
	auditSink := service.NewAuditRecorder(auditRepo, publisher, m, logger)
	authService := service.NewAuthService(service.AuthDeps{
		Users:   userRepo,
		Refresh: refreshRepo,
		Resets:  resetRepo,
		Signer:  signer,
		Hasher:  utils.NewBcryptHasher(cfg.Security.BcryptCost),
		Mailer:  mail,
		Audit:   auditSink,
		Logger:  logger,
	}, service.AuthOptions{
		AccessTTL:      cfg.JWT.AccessTokenExpiry,
		RefreshTTL:     cfg.JWT.RefreshTokenExpiry,
		ResetTTL:       cfg.Reset.TokenExpiry,
		ResetURLBase:   cfg.Reset.URLBase,
		ReuseDetection: cfg.Security.RefreshReuseDetection,
	})
	auditService := service.NewAuditService(auditRepo)
	janitor := service.NewTokenJanitor(refreshRepo, resetRepo, m, logger, cfg.Janitor.Interval)

	// 7. Setup router
	gin.SetMode(cfg.Server.GinMode)
	router := handler.NewRouter(handler.RouterDeps{
		Auth: handler.NewAuthHandler(authService, handler.CookieOptions{
			MaxAge: cfg.JWT.RefreshTokenExpiry,
			Secure: cfg.Security.CookieSecure,
		}, logger),
		Audit:     handler.NewAuditHandler(auditService, logger),
		Verifier:  signer,
		Limiter:   middleware.NewRateLimiter(cfg.RateLimit, scripter, m, logger),
		RateLimit: cfg.RateLimit,
		CORS:      cfg.CORS,
		Metrics:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 8. Run server and janitor until a signal arrives
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		janitor.Start(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("server exited")
}
