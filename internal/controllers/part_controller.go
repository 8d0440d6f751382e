package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"parts-tracker/internal/dto"
	"parts-tracker/internal/services"
	"parts-tracker/pkg/utils"
)

const WipeKeyHeader = "X-Wipe-Key"

type PartController struct {
	partService services.PartServiceInterface
	authService services.AuthServiceInterface
	logger      *zap.Logger
}

func NewPartController(
	partService services.PartServiceInterface,
	authService services.AuthServiceInterface,
	logger *zap.Logger,
) *PartController {
	return &PartController{
		partService: partService,
		authService: authService,
		logger:      logger,
	}
}

func (c *PartController) GetParts(ctx echo.Context) error {
	filter := utils.ParsePartFilter(ctx)

	parts, pagination, err := c.partService.ListParts(ctx.Request().Context(), filter)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessListResponse(ctx, dto.ToPartResponses(parts), pagination, "Parts retrieved")
}

func (c *PartController) GetPartsByCategory(ctx echo.Context) error {
	filter := utils.ParsePartFilter(ctx)
	filter.Category = ctx.Param("category")

	parts, pagination, err := c.partService.ListParts(ctx.Request().Context(), filter)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessListResponse(ctx, dto.ToPartResponses(parts), pagination, "Parts retrieved")
}

func (c *PartController) GetPart(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	part, err := c.partService.GetPart(ctx.Request().Context(), id)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, dto.ToPartResponse(*part), "Part retrieved", http.StatusOK)
}

func (c *PartController) CreatePart(ctx echo.Context) error {
	var payload dto.CreatePartDTO
	if err := bindAndValidate(ctx, &payload); err != nil {
		c.logger.Warn("CreatePart: invalid payload", zap.Error(err))
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	part, err := c.partService.CreatePart(ctx.Request().Context(), payload)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	c.logger.Info("CreatePart: part created", zap.Int64("id", part.ID), zap.String("partId", part.PartID))
	return utils.SuccessResponse(ctx, dto.ToPartResponse(*part), "Part created", http.StatusCreated)
}

func (c *PartController) UpdatePart(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	var payload dto.UpdatePartDTO
	if err := bindAndValidate(ctx, &payload); err != nil {
		c.logger.Warn("UpdatePart: invalid payload", zap.Int64("id", id), zap.Error(err))
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	part, err := c.partService.UpdatePart(ctx.Request().Context(), id, payload)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, dto.ToPartResponse(*part), "Part updated", http.StatusOK)
}

func (c *PartController) DeletePart(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	if err := c.partService.DeletePart(ctx.Request().Context(), id); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	c.logger.Info("DeletePart: part deleted", zap.Int64("id", id))
	return utils.SuccessResponse(ctx, nil, "Part deleted", http.StatusOK)
}

// WipeParts takes the wipe key from the body field confirmation or the
// X-Wipe-Key header.
func (c *PartController) WipeParts(ctx echo.Context) error {
	var payload dto.WipePartsDTO
	if err := ctx.Bind(&payload); err != nil {
		return utils.ErrorResponse(ctx, badRequest("Invalid request body"), c.logger)
	}
	confirmation := payload.Confirmation
	if confirmation == "" {
		confirmation = ctx.Request().Header.Get(WipeKeyHeader)
	}
	if err := c.authService.VerifyWipeKey(confirmation); err != nil {
		c.logger.Warn("WipeParts: rejected", zap.String("ip", ctx.RealIP()), zap.Error(err))
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	deleted, err := c.partService.WipeParts(ctx.Request().Context())
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	c.logger.Warn("WipeParts: all parts deleted", zap.Int64("deleted", deleted), zap.String("ip", ctx.RealIP()))
	return utils.SuccessResponse(ctx, dto.WipeResultDTO{Deleted: deleted}, "All parts deleted", http.StatusOK)
}

func (c *PartController) GetStats(ctx echo.Context) error {
	stats, err := c.partService.Stats(ctx.Request().Context())
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, stats, "Stats retrieved", http.StatusOK)
}

func (c *PartController) GetLeaderboard(ctx echo.Context) error {
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))
	entries, err := c.partService.Leaderboard(ctx.Request().Context(), limit)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, entries, "Leaderboard retrieved", http.StatusOK)
}
