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

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"parts-tracker/internal/repositories"
	"parts-tracker/internal/routes"
	"parts-tracker/pkg/config"
	"parts-tracker/pkg/converter"
	"parts-tracker/pkg/customvalidator"
	"parts-tracker/pkg/database"
	apperrors "parts-tracker/pkg/errors"
	"parts-tracker/pkg/eventbus"
	"parts-tracker/pkg/filestorage"
	applogger "parts-tracker/pkg/logger"
	"parts-tracker/pkg/middleware"
	"parts-tracker/pkg/utils"
	"parts-tracker/pkg/websocket"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// 1. Config and logger first; everything else logs through zap.
	cfg := config.New()
	logger := applogger.NewLogger(cfg.Log.Level, applogger.File{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Echo and middleware.
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = utils.HTTPErrorHandler(logger)

	e.Use(echomw.RecoverWithConfig(echomw.RecoverConfig{
		DisableStackAll: true,
		StackSize:       1 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("panic recovered",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Error(err),
				zap.String("stack", string(stack)),
			)
			if !c.Response().Committed {
				httpErr := apperrors.NewHttpError(http.StatusInternalServerError, "Internal server error", err, nil)
				utils.ErrorResponse(c, httpErr, logger)
			}
			return err
		},
	}))
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.Server.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, middleware.APIKeyHeader, "X-Wipe-Key"},
		ExposeHeaders: []string{echo.HeaderContentDisposition},
	}))
	// Multipart overhead on top of the largest allowed upload.
	e.Use(echomw.BodyLimit(bodyLimit(cfg.Upload.MaxFileSizeMB + 1)))

	v, err := customvalidator.New()
	if err != nil {
		logger.Fatal("custom validations not registered", zap.Error(err))
	}
	e.Validator = v

	// 3. Database, migrations, storage, cache.
	db, err := database.OpenAndMigrate(ctx, cfg.Database.URL, logger.Named("migrations"))
	if err != nil {
		logger.Fatal("database not available", zap.Error(err))
	}
	defer db.Close()

	storage, err := newStorage(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("file storage not available", zap.Error(err), zap.String("driver", cfg.Storage.Driver))
	}

	cache := newCache(ctx, cfg.Redis, logger)

	var conv converter.Converter
	if cfg.Conversion.Command != "" {
		cmd, err := converter.NewCommand(cfg.Conversion.Command)
		if err != nil {
			logger.Fatal("invalid CONVERTER_COMMAND", zap.Error(err))
		}
		conv = cmd
	} else {
		logger.Warn("CONVERTER_COMMAND not set, STEP uploads will be marked as failed conversions")
	}

	bus := eventbus.New(logger.Named("events"))
	hub := websocket.NewHub(logger.Named("ws"))

	// 4. Routes.
	loggers := &routes.Loggers{
		Main:  logger,
		Auth:  logger.Named("auth"),
		Parts: logger.Named("parts"),
		Files: logger.Named("files"),
	}
	fileService := routes.InitRouter(e, routes.Infrastructure{
		DB:        db,
		Cache:     cache,
		Storage:   storage,
		Converter: conv,
		Bus:       bus,
		Hub:       hub,
	}, loggers, cfg)

	// 5. Background work and the server share one lifetime.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return fileService.Run(gctx)
	})
	if cfg.Backup.Enabled && db.Dialect == database.DialectSQLite && db.Path != "" {
		scheduler := &database.BackupScheduler{
			DB:            db,
			Dir:           cfg.Backup.Dir,
			RetentionDays: cfg.Backup.RetentionDays,
			Interval:      cfg.Backup.Interval,
			Logger:        logger.Named("backup"),
		}
		g.Go(func() error {
			scheduler.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		logger.Info("server started", zap.String("port", cfg.Server.Port), zap.String("basePath", cfg.Server.BasePath))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
	}
	bus.Close()
	logger.Info("server stopped")
}

func bodyLimit(mb int64) string {
	return fmt.Sprintf("%dM", mb)
}

func newStorage(ctx context.Context, cfg config.StorageConfig) (filestorage.FileStorageInterface, error) {
	if cfg.Driver == config.StorageDriverMinio {
		return filestorage.NewMinioFileStorage(ctx, filestorage.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
		})
	}
	return filestorage.NewLocalFileStorage(cfg.UploadDir)
}

// newCache returns nil when Redis is not configured or unreachable; stats
// are then computed on every request.
func newCache(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) repositories.CacheRepositoryInterface {
	if cfg.Address == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := client.Ping(pingCtx).Result(); err != nil {
		logger.Warn("redis not reachable, stats cache disabled", zap.Error(err), zap.String("address", cfg.Address))
		client.Close()
		return nil
	}
	return repositories.NewRedisCacheRepository(client, repositories.DefaultCachePrefix)
}
