package controllers

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apperrors "parts-tracker/pkg/errors"
)

func parseID(ctx echo.Context) (int64, error) {
	raw := ctx.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewFieldError("id", "invalid part id %q", raw)
	}
	return id, nil
}

func badRequest(message string) error {
	return apperrors.NewHttpError(http.StatusBadRequest, message, nil, nil)
}

// bindAndValidate binds the request body into payload and runs the validator.
// An empty body binds nothing.
func bindAndValidate(ctx echo.Context, payload interface{}) error {
	if err := ctx.Bind(payload); err != nil {
		return badRequest("Invalid request body")
	}
	return ctx.Validate(payload)
}

func contentDisposition(kind, filename string) string {
	return mime.FormatMediaType(kind, map[string]string{"filename": filename})
}
