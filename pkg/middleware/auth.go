package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	apperrors "parts-tracker/pkg/errors"
	"parts-tracker/pkg/utils"
)

const (
	APIKeyHeader   = "X-API-Key"
	APIKeyParam    = "api_key"
	LinkTokenParam = "token"

	// JSON bodies larger than this are not inspected for api_key.
	maxKeyBodyBytes = 64 << 10
)

// KeyVerifier checks the shared API key and short lived link tokens.
type KeyVerifier interface {
	VerifyKey(key string) error
	VerifyLinkToken(token string) error
}

type AuthMiddleware struct {
	verifier KeyVerifier
	logger   *zap.Logger
}

func NewAuthMiddleware(verifier KeyVerifier, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		logger:   logger,
	}
}

// Auth requires the shared API key.
func (m *AuthMiddleware) Auth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := ExtractAPIKey(c)
		if key == "" {
			m.logger.Warn("AuthMiddleware: missing API key", zap.String("path", c.Path()), zap.String("ip", c.RealIP()))
			return utils.ErrorResponse(c, apperrors.ErrUnauthorized, m.logger)
		}
		if err := m.verifier.VerifyKey(key); err != nil {
			m.logger.Warn("AuthMiddleware: invalid API key", zap.String("path", c.Path()), zap.String("ip", c.RealIP()))
			return utils.ErrorResponse(c, err, m.logger)
		}
		return next(c)
	}
}

// AuthOrLinkToken also accepts a link token in ?token= so browsers and
// viewers can fetch files without putting the API key into URLs.
func (m *AuthMiddleware) AuthOrLinkToken(next echo.HandlerFunc) echo.HandlerFunc {
	withKey := m.Auth(next)
	return func(c echo.Context) error {
		token := c.QueryParam(LinkTokenParam)
		if token == "" {
			return withKey(c)
		}
		if err := m.verifier.VerifyLinkToken(token); err != nil {
			m.logger.Warn("AuthMiddleware: invalid link token", zap.String("path", c.Path()), zap.Error(err))
			return utils.ErrorResponse(c, err, m.logger)
		}
		return next(c)
	}
}

// ExtractAPIKey looks in the X-API-Key header, a Bearer Authorization
// header, the api_key query parameter and finally an api_key field in a
// JSON or form body. A JSON body is restored for the handler.
func ExtractAPIKey(c echo.Context) string {
	req := c.Request()
	if key := strings.TrimSpace(req.Header.Get(APIKeyHeader)); key != "" {
		return key
	}
	if auth := req.Header.Get(echo.HeaderAuthorization); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if key := strings.TrimSpace(parts[1]); key != "" {
				return key
			}
		}
	}
	if key := strings.TrimSpace(c.QueryParam(APIKeyParam)); key != "" {
		return key
	}
	if req.Body == nil || req.ContentLength == 0 {
		return ""
	}

	contentType := req.Header.Get(echo.HeaderContentType)
	switch {
	case strings.HasPrefix(contentType, echo.MIMEApplicationJSON):
		return jsonBodyKey(req)
	case strings.HasPrefix(contentType, echo.MIMEApplicationForm), strings.HasPrefix(contentType, echo.MIMEMultipartForm):
		// The parsed form stays on the request, so uploads still see their file.
		return strings.TrimSpace(c.FormValue(APIKeyParam))
	}
	return ""
}

// jsonBodyKey reads api_key from a small JSON body and always leaves the
// full body readable for the handler.
func jsonBodyKey(req *http.Request) string {
	if req.ContentLength > maxKeyBodyBytes {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(req.Body, maxKeyBodyBytes+1))
	req.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(data), req.Body), req.Body}
	if err != nil || len(data) > maxKeyBodyBytes {
		return ""
	}
	var body struct {
		APIKey string `json:"api_key"`
	}
	if json.Unmarshal(data, &body) != nil {
		return ""
	}
	return strings.TrimSpace(body.APIKey)
}
