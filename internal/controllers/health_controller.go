package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"parts-tracker/pkg/utils"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthController struct {
	db     Pinger
	logger *zap.Logger
}

func NewHealthController(db Pinger, logger *zap.Logger) *HealthController {
	return &HealthController{db: db, logger: logger}
}

func (c *HealthController) Health(ctx echo.Context) error {
	pingCtx, cancel := utils.ContextWithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.db.PingContext(pingCtx); err != nil {
		c.logger.Error("Health: database unreachable", zap.Error(err))
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
