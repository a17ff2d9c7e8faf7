package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/caarlos0/env/v11"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/database"
	"github.com/Ramsey-B/clover/internal/handlers"
	"github.com/Ramsey-B/clover/internal/middleware"
	"github.com/Ramsey-B/clover/internal/startup"
	"github.com/Ramsey-B/clover/internal/tracing"
	"github.com/Ramsey-B/clover/internal/tracing/exporters"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/funnel"
	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/media"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/rotation"
	"github.com/Ramsey-B/clover/pkg/sms"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		db             database.DB
		sqlDB          *sqlx.DB
		redisClient    *redis.Client
		producer       *events.Producer
		tracerProvider *sdktrace.TracerProvider
		e              *echo.Echo
		health         *handlers.HealthHandler
	)

	boot := startup.NewStartup(logger, 5)

	boot.AddDependency(&startup.Func{
		Name: "tracing",
		StartFunc: func(ctx context.Context) error {
			var exporter sdktrace.SpanExporter
			if cfg.OTLPEnabled {
				exp, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
					Endpoint: cfg.OTLPEndpoint,
					Protocol: cfg.OTLPProtocol,
					Insecure: cfg.OTLPInsecure,
					Timeout:  10 * time.Second,
				})
				if err != nil {
					return err
				}
				exporter = exp
			}
			tracerProvider = tracing.Init(cfg.AppName, exporter)
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			if tracerProvider == nil {
				return nil
			}
			return tracerProvider.Shutdown(ctx)
		},
	})

	boot.AddDependency(&startup.Func{
		Name: "database",
		StartFunc: func(ctx context.Context) error {
			dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
				cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
				cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode)

			conn, err := sqlx.ConnectContext(ctx, cfg.DatabaseDriver, dsn)
			if err != nil {
				return err
			}
			conn.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
			conn.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
			conn.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

			driver, err := migratepg.WithInstance(conn.DB, &migratepg.Config{})
			if err != nil {
				return err
			}

			migrations := database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             uint(cfg.DatabaseMigrationVersion),
				Force:               cfg.DatabaseMigrationForce,
				AutoRollback:        cfg.DatabaseMigrationAutoRollback,
			})
			if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
				return err
			}

			sqlDB = conn
			db = database.NewDatabaseInstance(conn, logger)
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			if sqlDB == nil {
				return nil
			}
			return sqlDB.Close()
		},
	})

	boot.AddDependency(&startup.Func{
		Name: "redis",
		StartFunc: func(ctx context.Context) error {
			if cfg.RedisHost == "" {
				logger.Info("Redis not configured, coordinator uses in-process locking only")
				return nil
			}
			client, err := redis.NewClient(redis.Config{
				Host:     cfg.RedisHost,
				Port:     cfg.RedisPort,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			}, logger)
			if err != nil {
				return err
			}
			redisClient = client
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			if redisClient == nil {
				return nil
			}
			return redisClient.Close()
		},
	})

	boot.AddDependency(&startup.Func{
		Name: "kafka",
		StartFunc: func(ctx context.Context) error {
			if cfg.KafkaBrokers == "" {
				logger.Info("Kafka not configured, funnel events disabled")
				return nil
			}
			producer = events.NewProducer(events.ParseConfig(cfg.KafkaBrokers, cfg.KafkaEventsTopic), logger)
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			return producer.Close()
		},
	})

	boot.AddDependency(&startup.Func{
		Name:  "server",
		Needs: []string{"database", "redis", "kafka"},
		StartFunc: func(ctx context.Context) error {
			linkRepo := repositories.NewLinkRepository(db, logger)
			leadRepo := repositories.NewLeadRepository(db, logger)
			messageRepo := repositories.NewMessageRepository(db, logger)
			verificationRepo := repositories.NewVerificationRepository(db, logger)
			mediaRepo := repositories.NewMediaRepository(db, logger)

			var locker rotation.Locker
			if redisClient != nil {
				locker = redis.NewLocker(redisClient, "")
			}
			coordinator := rotation.NewCoordinator(linkRepo, locker, logger)
			if err := coordinator.Refresh(ctx, true); err != nil {
				logger.WithError(err).Warn("initial pool refresh failed, continuing with lazy refresh")
			}

			client := httpclient.NewClient(httpclient.DefaultConfig(), logger)
			sender := sms.NewTelnyxSender(client, logger, cfg.TelnyxAPIKey, cfg.TelnyxFromNumber)
			mediaStore := media.NewStore(client, mediaRepo, logger,
				cfg.TelnyxAPIKey, cfg.MediaSigningSecret, cfg.PublicBaseURL, cfg.MediaURLTTL)

			var emitter funnel.EventEmitter
			if producer != nil {
				emitter = producer
			}

			funnelService := funnel.NewService(
				coordinator, leadRepo, linkRepo, messageRepo, verificationRepo,
				mediaStore, sender, emitter, logger,
				funnel.Templates{
					Intro:        cfg.TemplateIntro,
					AskProof:     cfg.TemplateAskProof,
					ReminderDone: cfg.TemplateReminderDone,
					ReminderMMS:  cfg.TemplateReminderMMS,
					Verified:     cfg.TemplateVerified,
					Resend:       cfg.TemplateResend,
					AllSet:       cfg.TemplateAllSet,
					Unknown:      cfg.TemplateUnknown,
					Operator:     cfg.TemplateOperator,
				},
				cfg.CompletionKeyword, cfg.OperatorPhone,
			)

			e = echo.New()
			e.HideBanner = true
			e.HTTPErrorHandler = middleware.Error(logger)
			e.Use(middleware.Context())
			e.Use(otelecho.Middleware(cfg.AppName))
			e.Use(middleware.Logger(logger))
			e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
				AllowOrigins: cfg.AllowOrigins,
				AllowMethods: cfg.AllowMethods,
			}))

			e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

			health = handlers.NewHealthHandler(db, healthPinger(redisClient), version)
			health.RegisterRoutes(e)

			handlers.NewLeadHandler(funnelService, logger).RegisterRoutes(e.Group("/api"))
			handlers.NewWebhookHandler(funnelService, logger).RegisterRoutes(e.Group("/hooks"))
			handlers.NewAdminHandler(coordinator, logger).RegisterRoutes(
				e.Group("/admin", middleware.AdminAuth(logger, cfg.AdminKey)))
			handlers.NewMediaHandler(mediaStore, logger).RegisterRoutes(e.Group(""))

			srv := &http.Server{
				Addr:           fmt.Sprintf(":%d", cfg.Port),
				ReadTimeout:    time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
				WriteTimeout:   time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
				IdleTimeout:    time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
				MaxHeaderBytes: cfg.MaxHeaderBytes,
			}

			go func() {
				if err := e.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.WithError(err).Error("http server stopped unexpectedly")
				}
			}()

			logger.Infof("%s listening on port %d", cfg.AppName, cfg.Port)
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			if health != nil {
				health.SetReady(false)
			}
			if e == nil {
				return nil
			}
			return e.Shutdown(ctx)
		},
	})

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("startup failed")
		os.Exit(1)
	}
	health.SetReady(true)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown did not complete cleanly")
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) (ectologger.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.LogLevel))
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// healthPinger keeps a nil *redis.Client from turning into a non-nil interface.
func healthPinger(client *redis.Client) handlers.RedisPinger {
	if client == nil {
		return nil
	}
	return client
}
