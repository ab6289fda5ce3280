package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tobylas-w/ThaiTable-sub000/auth"
	"github.com/tobylas-w/ThaiTable-sub000/config"
	"github.com/tobylas-w/ThaiTable-sub000/events"
	"github.com/tobylas-w/ThaiTable-sub000/handlers"
	"github.com/tobylas-w/ThaiTable-sub000/logger"
	"github.com/tobylas-w/ThaiTable-sub000/mail"
	"github.com/tobylas-w/ThaiTable-sub000/orders"
	"github.com/tobylas-w/ThaiTable-sub000/ratelimit"
	"github.com/tobylas-w/ThaiTable-sub000/routes"
	"github.com/tobylas-w/ThaiTable-sub000/storage"
)

// thaitable serve: start the HTTP server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

// thaitable migrate: create or update the schema.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, db, err := bootstrap()
		if err != nil {
			return err
		}
		if err := config.AutoMigrate(db); err != nil {
			return err
		}
		log.Info("migrations complete", "driver", cfg.DBDriver)
		return nil
	},
}

// thaitable cleanup-tokens: purge stale reset/verification tokens and blacklist entries once.
var cleanupTokensCmd = &cobra.Command{
	Use:   "cleanup-tokens",
	Short: "Delete expired and used tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, db, err := bootstrap()
		if err != nil {
			return err
		}
		svc, err := newAuthService(cfg, log, db)
		if err != nil {
			return err
		}
		res, err := svc.PurgeExpiredTokens(cmd.Context())
		if err != nil {
			return err
		}
		log.Info("token cleanup",
			"reset_tokens", res.ResetTokens,
			"verification_tokens", res.VerificationTokens,
			"blacklist_entries", res.BlacklistEntries)
		return nil
	},
}

func bootstrap() (*config.Config, *slog.Logger, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	log := logger.New(cfg.Env, os.Stdout)
	slog.SetDefault(log)

	db, err := config.OpenDB(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, db, nil
}

func newAuthService(cfg *config.Config, log *slog.Logger, db *gorm.DB) (*auth.Service, error) {
	tokens, err := auth.NewTokenManager(auth.TokenConfigFrom(cfg))
	if err != nil {
		return nil, err
	}
	return auth.NewService(db, tokens, mail.New(cfg.Mail, log), auth.Options{
		ResetTokenTTL:        cfg.ResetTokenTTL,
		VerificationTokenTTL: cfg.VerificationTokenTTL,
		FrontendURL:          cfg.FrontendURL,
		Logger:               log,
	}), nil
}

func runServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, db, err := bootstrap()
	if err != nil {
		return err
	}
	if err := config.AutoMigrate(db); err != nil {
		return err
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authSvc, err := newAuthService(cfg, log, db)
	if err != nil {
		return err
	}

	publisher := events.Publisher(events.Nop{})
	if cfg.RabbitMQURL != "" {
		p, err := events.DialAMQP(cfg.RabbitMQURL, cfg.OrderExchange)
		if err != nil {
			return fmt.Errorf("rabbitmq: %w", err)
		}
		publisher = p
		log.Info("publishing order events", "exchange", cfg.OrderExchange)
	}
	defer publisher.Close()

	images, err := storage.New(ctx, cfg)
	if err != nil {
		return err
	}

	limiter := newAuthLimiter(ctx, cfg, log)

	orderSvc := orders.NewService(db, orders.Options{
		Rates:  orders.RatesFrom(cfg),
		Events: publisher,
		Logger: log,
	})

	engine := routes.NewEngine(handlers.New(db, authSvc, orderSvc, images), routes.Options{
		Logger:      log,
		CORSOrigins: cfg.CORSOrigins,
		ExposeStack: !cfg.IsProduction(),
		AuthLimiter: limiter,
		UploadDir:   localUploadDir(images),
	})

	go authSvc.RunCleanup(ctx, cfg.TokenCleanupInterval)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr, "env", cfg.Env, "db", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newAuthLimiter shares counters through Redis when it is configured and
// reachable, and counts in process memory otherwise.
func newAuthLimiter(ctx context.Context, cfg *config.Config, log *slog.Logger) ratelimit.Limiter {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		err := client.Ping(pingCtx).Err()
		if err == nil {
			return ratelimit.NewRedisLimiter(client, "thaitable:ratelimit:", cfg.AuthRateLimit, cfg.AuthRateWindow)
		}
		log.Warn("redis unavailable, using in-memory rate limiter", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
	}
	return ratelimit.NewMemoryLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow)
}

// localUploadDir is served under /uploads; S3 images are served by S3.
func localUploadDir(images storage.ImageStore) string {
	if ls, ok := images.(*storage.LocalStore); ok {
		return ls.Root()
	}
	return ""
}
