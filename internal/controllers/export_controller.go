package controllers

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"parts-tracker/internal/services"
	"parts-tracker/pkg/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ExportController struct {
	exportService services.ExportServiceInterface
	logger        *zap.Logger
	now           func() time.Time
}

func NewExportController(exportService services.ExportServiceInterface, logger *zap.Logger) *ExportController {
	return &ExportController{
		exportService: exportService,
		logger:        logger,
		now:           time.Now,
	}
}

// Export writes the filtered part list as a spreadsheet.
func (c *ExportController) Export(ctx echo.Context) error {
	format := strings.ToLower(ctx.QueryParam("format"))
	if format != "" && format != "xlsx" {
		return utils.ErrorResponse(ctx, badRequest(fmt.Sprintf("Unsupported export format %q", format)), c.logger)
	}

	filter := utils.ParsePartFilter(ctx)
	var buf bytes.Buffer
	rows, err := c.exportService.ExportXLSX(ctx.Request().Context(), filter, &buf)
	if err != nil {
		c.logger.Error("Export: failed to build spreadsheet", zap.Error(err))
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	c.logger.Info("Export: spreadsheet built", zap.Int("rows", rows))

	fileName := fmt.Sprintf("parts_%s.xlsx", c.now().Format("2006-01-02"))
	ctx.Response().Header().Set(echo.HeaderContentDisposition, contentDisposition("attachment", fileName))
	return ctx.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}
