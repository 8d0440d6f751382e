package routes

import (
	"github.com/labstack/echo/v4"

	"parts-tracker/internal/controllers"
	"parts-tracker/pkg/middleware"
)

// The check route authenticates inside the handler so the cooldown applies
// to failed attempts too.
func runAuthRouter(api *echo.Group, ctrl *controllers.AuthController, authMW *middleware.AuthMiddleware) {
	auth := api.Group("/parts/auth")
	auth.GET("/check", ctrl.Check)
	auth.POST("/token", ctrl.IssueLinkToken, authMW.Auth)
}
