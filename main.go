package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/mood-check/internal/auth"
	"github.com/example/mood-check/internal/config"
	"github.com/example/mood-check/internal/grpcclient"
	"github.com/example/mood-check/internal/handlers"
	"github.com/example/mood-check/internal/inference"
	"github.com/example/mood-check/internal/logging"
	"github.com/example/mood-check/internal/repository"
	"github.com/example/mood-check/internal/usecase"
)

const startupTimeout = 15 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "mood-check",
		Short:        "Facial emotion and text crisis inference API",
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the result tables and exit",
			RunE:  runMigrate,
		},
	)
	return root
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(cmd.Context(), startupTimeout)
	defer cancel()

	db, err := initDatabase(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	if err := repository.NewResultRepository(db, logger).AutoMigrate(ctx); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logger.Info("schema up to date")
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(cmd.Context(), startupTimeout)
	defer cancel()

	db, err := initDatabase(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	repo := repository.NewResultRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	var cache usecase.Cache
	if cfg.RedisEnabled {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		defer redisCancel()
		client, err := initRedis(redisCtx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer client.Close()
		cache = usecase.NewRedisCache(client, cfg.RedisNamespace)
	}

	models, conn, err := grpcclient.DialModelServer(ctx, cfg.ModelServerAddr, logger)
	if err != nil {
		return fmt.Errorf("connect to model server: %w", err)
	}
	defer conn.Close()

	limiter := inference.NewLimiter(cfg.ModelMaxConcurrency)
	uc := usecase.NewInferenceUseCase(
		inference.LimitDetector(models, limiter),
		inference.LimitEmotion(models, limiter),
		inference.LimitText(models.TextClassifier(), limiter),
		repo,
		cache,
		logger,
		cfg.UseCaseOptions(),
	)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(logger), handlers.CORS(cfg.CORSOrigins))

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTAudience)
	handlers.RegisterRoutes(r, uc, auth.OptionalJWTMiddleware(verifier), auth.JWTMiddleware(verifier))

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("mood-check API listening", zap.String("addr", cfg.HTTPAddr))
	return serveHTTPServer(server, cfg.ShutdownTimeout, logger)
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Error("failed to connect to database", zap.Error(err))
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Error("database ping failed", zap.Error(err))
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

func initRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

// serveHTTPServerWithOptions serves until the server fails or a shutdown signal
// arrives. A nil listener means ListenAndServe; a nil signalCh means SIGINT/SIGTERM.
func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	sigCh := signalCh
	if sigCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal, draining in-flight requests", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
