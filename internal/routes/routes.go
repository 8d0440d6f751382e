package routes

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"parts-tracker/internal/controllers"
	"parts-tracker/internal/listeners"
	"parts-tracker/internal/repositories"
	"parts-tracker/internal/services"
	"parts-tracker/pkg/config"
	"parts-tracker/pkg/converter"
	"parts-tracker/pkg/database"
	"parts-tracker/pkg/eventbus"
	"parts-tracker/pkg/filestorage"
	"parts-tracker/pkg/keylock"
	"parts-tracker/pkg/middleware"
	"parts-tracker/pkg/service"
	"parts-tracker/pkg/websocket"
)

type Loggers struct {
	Main  *zap.Logger
	Auth  *zap.Logger
	Parts *zap.Logger
	Files *zap.Logger
}

// Infrastructure is everything main opens before the router is built.
// Cache and Converter may be nil.
type Infrastructure struct {
	DB        *database.DB
	Cache     repositories.CacheRepositoryInterface
	Storage   filestorage.FileStorageInterface
	Converter converter.Converter
	Bus       *eventbus.Bus
	Hub       *websocket.Hub
}

// InitRouter wires repositories, services and controllers and mounts every
// route under cfg.Server.BasePath. It returns the file service so the caller
// can run its conversion worker.
func InitRouter(e *echo.Echo, infra Infrastructure, loggers *Loggers, cfg *config.Config) *services.PartFileService {
	loggers.Main.Info("InitRouter: building routes", zap.String("basePath", cfg.Server.BasePath))

	// --- 0. Shared components ---
	jwtSvc := service.NewJWTService(cfg.JWT.SecretKey, cfg.JWT.LinkTokenTTL)
	txManager := repositories.NewTxManager(infra.DB.DB)
	locks := keylock.New()
	cache := infra.Cache
	if cache == nil {
		cache = repositories.NewNoopCacheRepository()
	}

	// --- 1. Repositories ---
	partRepo := repositories.NewPartRepository(infra.DB, loggers.Parts)

	// --- 2. Services ---
	base := services.NewBaseService(partRepo, txManager, locks, infra.Bus, cache, loggers.Parts)
	partService := services.NewPartService(base, infra.Storage, cfg.Redis.StatsTTL)
	workflowService := services.NewPartWorkflowService(base)
	fileBase := services.NewBaseService(partRepo, txManager, locks, infra.Bus, cache, loggers.Files)
	fileService := services.NewPartFileService(fileBase, infra.Storage, infra.Converter, cfg.Upload, cfg.Conversion)
	authService := services.NewAuthService(cfg.Auth, jwtSvc, loggers.Auth)
	exportService := services.NewExportService(partService, loggers.Parts)

	listeners.NewPartChangeListener(cache, infra.Hub, loggers.Main).Register(infra.Bus)

	// --- 3. Controllers ---
	partController := controllers.NewPartController(partService, authService, loggers.Parts)
	workflowController := controllers.NewWorkflowController(workflowService, loggers.Parts)
	fileController := controllers.NewFileController(fileService, loggers.Files)
	authController := controllers.NewAuthController(authService, loggers.Auth)
	exportController := controllers.NewExportController(exportService, loggers.Parts)
	wsController := controllers.NewWebSocketController(infra.Hub, cfg.Server.CORSOrigins, loggers.Main)
	healthController := controllers.NewHealthController(infra.DB, loggers.Main)

	// --- 4. Routers ---
	api := e.Group(cfg.Server.BasePath)
	authMW := middleware.NewAuthMiddleware(authService, loggers.Auth)

	api.GET("/health", healthController.Health)

	runAuthRouter(api, authController, authMW)
	runPartRouter(api, partController, workflowController, exportController, authMW)
	runFileRouter(api, fileController, authMW)
	api.GET("/parts/events", wsController.ServeWs, authMW.AuthOrLinkToken)

	loggers.Main.Info("InitRouter: routes ready")
	return fileService
}
