package utils

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	apperrors "parts-tracker/pkg/errors"
	"parts-tracker/pkg/types"
)

type HTTPResponse struct {
	Status  bool        `json:"status"`
	Body    interface{} `json:"body,omitempty"`
	Message string      `json:"message"`
}

type ListBody struct {
	List       interface{}      `json:"list"`
	Pagination types.Pagination `json:"pagination"`
}

func SuccessResponse(ctx echo.Context, body interface{}, message string, code int) error {
	return ctx.JSON(code, &HTTPResponse{Status: true, Body: body, Message: message})
}

func SuccessListResponse(ctx echo.Context, list interface{}, pagination types.Pagination, message string) error {
	return SuccessResponse(ctx, ListBody{List: list, Pagination: pagination}, message, http.StatusOK)
}

// ParsePartFilter reads category, search, sort_by, sort_order, limit and offset.
// Malformed numbers fall back to defaults; limit is clamped to MaxLimit.
func ParsePartFilter(ctx echo.Context) types.PartFilter {
	filter := types.PartFilter{
		Category:  ctx.QueryParam("category"),
		Search:    ctx.QueryParam("search"),
		SortBy:    ctx.QueryParam("sort_by"),
		SortOrder: strings.ToLower(ctx.QueryParam("sort_order")),
		Limit:     types.DefaultLimit,
	}
	if l, err := strconv.Atoi(ctx.QueryParam("limit")); err == nil && l > 0 {
		filter.Limit = min(l, types.MaxLimit)
	}
	if o, err := strconv.Atoi(ctx.QueryParam("offset")); err == nil && o >= 0 {
		filter.Offset = o
	}
	return filter
}

func ErrorResponse(c echo.Context, err error, logger *zap.Logger) error {
	var httpErr *apperrors.HttpError
	if errors.As(err, &httpErr) {
		if httpErr.Err != nil {
			logger.Error("HTTP Error",
				zap.Int("code", httpErr.Code),
				zap.String("message", httpErr.Message),
				zap.Error(httpErr.Err),
				zap.Any("context", httpErr.Context),
			)
		}
		response := map[string]interface{}{
			"status":  false,
			"message": httpErr.Message,
		}
		if httpErr.Details != nil {
			response["body"] = httpErr.Details
		}
		return c.JSON(httpErr.Code, response)
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string, len(validationErrors))
		var msgs []string
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", e.Field(), e.Tag()))
		}
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"status":  false,
			"message": "Validation error: " + strings.Join(msgs, "; "),
			"body":    map[string]interface{}{"fields": fields},
		})
	}

	var fieldErr *apperrors.FieldError
	if errors.As(err, &fieldErr) {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"status":  false,
			"message": fieldErr.Error(),
			"body":    map[string]interface{}{"field": fieldErr.Field},
		})
	}

	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		return c.JSON(echoErr.Code, map[string]interface{}{
			"status":  false,
			"message": fmt.Sprint(echoErr.Message),
		})
	}

	if code := apperrors.StatusCode(err); code != http.StatusInternalServerError {
		return c.JSON(code, map[string]interface{}{
			"status":  false,
			"message": err.Error(),
		})
	}

	logger.Error("Unexpected Error", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"status":  false,
		"message": "Internal server error",
	})
}

// HTTPErrorHandler routes errors that escape handlers (router 404s, middleware
// rejections) through ErrorResponse so every reply uses the same envelope.
func HTTPErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		if respErr := ErrorResponse(c, err, logger); respErr != nil {
			logger.Error("HTTPErrorHandler: write failed", zap.Error(respErr))
		}
	}
}
