package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"parts-tracker/internal/dto"
	"parts-tracker/internal/entities"
	"parts-tracker/internal/services"
	"parts-tracker/pkg/utils"
)

type WorkflowController struct {
	workflowService services.PartWorkflowServiceInterface
	logger          *zap.Logger
}

func NewWorkflowController(workflowService services.PartWorkflowServiceInterface, logger *zap.Logger) *WorkflowController {
	return &WorkflowController{
		workflowService: workflowService,
		logger:          logger,
	}
}

func (c *WorkflowController) respond(ctx echo.Context, action string, part *entities.Part, err error) error {
	if err != nil {
		c.logger.Info(action+": transition refused", zap.String("id", ctx.Param("id")), zap.Error(err))
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	c.logger.Info(action+": transition applied",
		zap.Int64("id", part.ID),
		zap.String("category", string(part.Category)),
		zap.String("status", string(part.Status)),
	)
	return utils.SuccessResponse(ctx, dto.ToPartResponse(*part), "Part updated", http.StatusOK)
}

func (c *WorkflowController) Approve(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	var payload dto.ApprovePartDTO
	if err := bindAndValidate(ctx, &payload); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	part, err := c.workflowService.Approve(ctx.Request().Context(), id, payload.Category)
	return c.respond(ctx, "Approve", part, err)
}

func (c *WorkflowController) Assign(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	var payload dto.AssignPartDTO
	if err := bindAndValidate(ctx, &payload); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	part, err := c.workflowService.Assign(ctx.Request().Context(), id, payload.Assigned, payload.AlreadyStarted)
	return c.respond(ctx, "Assign", part, err)
}

func (c *WorkflowController) Unclaim(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	part, err := c.workflowService.Unclaim(ctx.Request().Context(), id)
	return c.respond(ctx, "Unclaim", part, err)
}

func (c *WorkflowController) Start(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	part, err := c.workflowService.Start(ctx.Request().Context(), id)
	return c.respond(ctx, "Start", part, err)
}

func (c *WorkflowController) Complete(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	var payload dto.CompletePartDTO
	if err := bindAndValidate(ctx, &payload); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	part, err := c.workflowService.Complete(ctx.Request().Context(), id, payload.CompletedAmount)
	return c.respond(ctx, "Complete", part, err)
}

func (c *WorkflowController) Revert(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	var payload dto.RevertPartDTO
	if err := bindAndValidate(ctx, &payload); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	part, err := c.workflowService.Revert(ctx.Request().Context(), id, payload.Category)
	return c.respond(ctx, "Revert", part, err)
}
