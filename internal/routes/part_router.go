package routes

import (
	"github.com/labstack/echo/v4"

	"parts-tracker/internal/controllers"
	"parts-tracker/pkg/middleware"
)

func runPartRouter(
	api *echo.Group,
	parts *controllers.PartController,
	workflow *controllers.WorkflowController,
	export *controllers.ExportController,
	authMW *middleware.AuthMiddleware,
) {
	secure := api.Group("/parts", authMW.Auth)

	secure.GET("", parts.GetParts)
	secure.GET("/", parts.GetParts)
	secure.POST("", parts.CreatePart)
	secure.POST("/", parts.CreatePart)

	// Static segments are registered before /:id; echo prefers them anyway.
	secure.GET("/stats", parts.GetStats)
	secure.GET("/leaderboard", parts.GetLeaderboard)
	secure.GET("/export", export.Export)
	secure.GET("/categories/:category", parts.GetPartsByCategory)
	secure.POST("/wipe", parts.WipeParts)

	secure.GET("/:id", parts.GetPart)
	secure.PUT("/:id", parts.UpdatePart)
	secure.DELETE("/:id", parts.DeletePart)

	secure.POST("/:id/approve", workflow.Approve)
	secure.POST("/:id/assign", workflow.Assign)
	secure.POST("/:id/unclaim", workflow.Unclaim)
	secure.POST("/:id/start", workflow.Start)
	secure.POST("/:id/complete", workflow.Complete)
	secure.POST("/:id/revert", workflow.Revert)
}
