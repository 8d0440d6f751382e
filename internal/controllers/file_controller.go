package controllers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"parts-tracker/internal/dto"
	"parts-tracker/internal/services"
	apperrors "parts-tracker/pkg/errors"
	"parts-tracker/pkg/utils"
)

type FileController struct {
	fileService services.PartFileServiceInterface
	logger      *zap.Logger
}

func NewFileController(fileService services.PartFileServiceInterface, logger *zap.Logger) *FileController {
	return &FileController{
		fileService: fileService,
		logger:      logger,
	}
}

func (c *FileController) Upload(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return utils.ErrorResponse(ctx, apperrors.NewFieldError("file", "no file provided"), c.logger)
		}
		return utils.ErrorResponse(ctx, badRequest("Invalid multipart body"), c.logger)
	}
	src, err := fileHeader.Open()
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	defer src.Close()

	part, err := c.fileService.Upload(ctx.Request().Context(), id, src, fileHeader.Filename, fileHeader.Size)
	if err != nil {
		c.logger.Warn("Upload: rejected", zap.Int64("id", id), zap.String("filename", fileHeader.Filename), zap.Error(err))
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	c.logger.Info("Upload: file stored",
		zap.Int64("id", id),
		zap.String("filename", fileHeader.Filename),
		zap.String("conversion", string(part.ConversionStatus)),
	)
	return utils.SuccessResponse(ctx, dto.ToPartResponse(*part), "File uploaded", http.StatusOK)
}

// Download serves the original upload as an attachment.
func (c *FileController) Download(ctx echo.Context) error {
	return c.serveOriginal(ctx, "attachment")
}

// File serves the original upload inline, for the PDF viewer.
func (c *FileController) File(ctx echo.Context) error {
	return c.serveOriginal(ctx, "inline")
}

func (c *FileController) serveOriginal(ctx echo.Context, disposition string) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	file, err := c.fileService.OpenOriginal(ctx.Request().Context(), id)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	defer file.Close()

	ctx.Response().Header().Set(echo.HeaderContentDisposition, contentDisposition(disposition, file.Name))
	return ctx.Stream(http.StatusOK, file.ContentType, file)
}

func (c *FileController) Model(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	file, err := c.fileService.OpenDerived(ctx.Request().Context(), id)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	defer file.Close()

	ctx.Response().Header().Set(echo.HeaderContentDisposition, contentDisposition("inline", file.Name))
	ctx.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	return ctx.Stream(http.StatusOK, file.ContentType, file)
}

func (c *FileController) RetryConversion(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	part, err := c.fileService.RetryConversion(ctx.Request().Context(), id)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, dto.ToPartResponse(*part), "Conversion scheduled", http.StatusAccepted)
}
