package routes

import (
	"github.com/labstack/echo/v4"

	"parts-tracker/internal/controllers"
	"parts-tracker/pkg/middleware"
)

// Read-only file routes also accept a link token so viewers can load them by URL.
func runFileRouter(api *echo.Group, ctrl *controllers.FileController, authMW *middleware.AuthMiddleware) {
	files := api.Group("/parts/:id")

	files.POST("/upload", ctrl.Upload, authMW.Auth)
	files.POST("/convert", ctrl.RetryConversion, authMW.Auth)

	files.GET("/download", ctrl.Download, authMW.AuthOrLinkToken)
	files.GET("/file", ctrl.File, authMW.AuthOrLinkToken)
	files.GET("/model", ctrl.Model, authMW.AuthOrLinkToken)
}
