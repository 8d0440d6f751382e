package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"parts-tracker/internal/dto"
	"parts-tracker/internal/services"
	"parts-tracker/pkg/middleware"
	"parts-tracker/pkg/utils"
)

type AuthController struct {
	authService services.AuthServiceInterface
	logger      *zap.Logger
}

func NewAuthController(authService services.AuthServiceInterface, logger *zap.Logger) *AuthController {
	return &AuthController{
		authService: authService,
		logger:      logger,
	}
}

// Check validates the presented key. Repeated checks from one client are
// slowed down to one per cooldown period.
func (ctrl *AuthController) Check(c echo.Context) error {
	key := middleware.ExtractAPIKey(c)
	if err := ctrl.authService.Check(c.Request().Context(), c.RealIP(), key); err != nil {
		return utils.ErrorResponse(c, err, ctrl.logger)
	}
	return utils.SuccessResponse(c, dto.AuthCheckDTO{Authenticated: true}, "Authenticated", http.StatusOK)
}

// IssueLinkToken hands out a short lived token for file and event URLs.
func (ctrl *AuthController) IssueLinkToken(c echo.Context) error {
	token, err := ctrl.authService.IssueLinkToken(c.Request().Context())
	if err != nil {
		ctrl.logger.Error("IssueLinkToken: failed", zap.Error(err))
		return utils.ErrorResponse(c, err, ctrl.logger)
	}
	return utils.SuccessResponse(c, token, "Link token issued", http.StatusOK)
}
