package service

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	apperrors "parts-tracker/pkg/errors"
)

// ScopeFiles grants read access to part files and the change feed.
const ScopeFiles = "files:read"

type LinkClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// JWTService signs short lived link tokens that stand in for the API key in
// URLs a browser or viewer loads directly.
type JWTService interface {
	GenerateLinkToken(scope string) (string, time.Time, error)
	ValidateToken(tokenString string) (*LinkClaims, error)
	GetLinkTokenTTL() time.Duration
}

type jwtService struct {
	SecretKey    string
	LinkTokenExp time.Duration
	now          func() time.Time
}

func NewJWTService(secretKey string, linkTokenExp time.Duration) JWTService {
	return &jwtService{
		SecretKey:    secretKey,
		LinkTokenExp: linkTokenExp,
		now:          time.Now,
	}
}

func (service *jwtService) GenerateLinkToken(scope string) (string, time.Time, error) {
	if service.SecretKey == "" {
		return "", time.Time{}, apperrors.ErrForbidden
	}
	issued := service.now()
	expires := issued.Add(service.LinkTokenExp)
	claims := &LinkClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(service.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

func (service *jwtService) GetLinkTokenTTL() time.Duration {
	return service.LinkTokenExp
}

func (service *jwtService) ValidateToken(tokenString string) (*LinkClaims, error) {
	if service.SecretKey == "" {
		return nil, apperrors.ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &LinkClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.ErrInvalidSigningMethod
		}
		return []byte(service.SecretKey), nil
	}, jwt.WithTimeFunc(service.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		if errors.Is(err, apperrors.ErrInvalidSigningMethod) {
			return nil, apperrors.ErrInvalidSigningMethod
		}
		return nil, apperrors.ErrInvalidToken
	}

	claims, ok := token.Claims.(*LinkClaims)
	if !ok || !token.Valid {
		return nil, apperrors.ErrInvalidToken
	}
	return claims, nil
}
