package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"parts-tracker/internal/dto"
	"parts-tracker/pkg/config"
	apperrors "parts-tracker/pkg/errors"
	"parts-tracker/pkg/service"
	"parts-tracker/pkg/utils"
)

type AuthServiceInterface interface {
	VerifyKey(key string) error
	VerifyLinkToken(token string) error
	Check(ctx context.Context, clientID, key string) error
	IssueLinkToken(ctx context.Context) (*dto.LinkTokenDTO, error)
	VerifyWipeKey(key string) error
}

const maxTrackedClients = 1024

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// AuthService checks the shared API key, the wipe key and link tokens.
type AuthService struct {
	cfg      config.AuthConfig
	jwt      service.JWTService
	logger   *zap.Logger
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	// sha256 of the last key that matched API_KEY_HASH, so bcrypt runs once per key.
	verifiedHash [sha256.Size]byte
	hasVerified  bool
}

func NewAuthService(cfg config.AuthConfig, jwt service.JWTService, logger *zap.Logger) *AuthService {
	if cfg.APIKey == "" && cfg.APIKeyHash == "" {
		logger.Warn("no API_KEY or API_KEY_HASH configured, every authenticated request will be rejected")
	}
	return &AuthService{
		cfg:      cfg,
		jwt:      jwt,
		logger:   logger,
		limiters: make(map[string]*clientLimiter),
	}
}

func (s *AuthService) VerifyKey(key string) error {
	if key == "" {
		return apperrors.ErrUnauthorized
	}
	if s.cfg.APIKeyHash != "" {
		return s.verifyHashed(key)
	}
	if s.cfg.APIKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.APIKey)) != 1 {
		return apperrors.ErrUnauthorized
	}
	return nil
}

func (s *AuthService) verifyHashed(key string) error {
	sum := sha256.Sum256([]byte(key))
	s.mu.Lock()
	known := s.hasVerified && subtle.ConstantTimeCompare(sum[:], s.verifiedHash[:]) == 1
	s.mu.Unlock()
	if known {
		return nil
	}
	if err := utils.CompareKey(s.cfg.APIKeyHash, key); err != nil {
		return apperrors.ErrUnauthorized
	}
	s.mu.Lock()
	s.verifiedHash, s.hasVerified = sum, true
	s.mu.Unlock()
	return nil
}

func (s *AuthService) VerifyLinkToken(token string) error {
	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		return err
	}
	if claims.Scope != service.ScopeFiles {
		return apperrors.ErrInvalidToken
	}
	return nil
}

// Check validates key with a per-client cooldown. A check arriving early
// waits for the cooldown to elapse instead of being rejected.
func (s *AuthService) Check(ctx context.Context, clientID, key string) error {
	if s.cfg.CheckCooldown > 0 {
		if err := s.limiterFor(clientID).Wait(ctx); err != nil {
			return err
		}
	}
	if err := s.VerifyKey(key); err != nil {
		s.logger.Info("auth check rejected", zap.String("client", clientID))
		return err
	}
	return nil
}

func (s *AuthService) limiterFor(clientID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if len(s.limiters) >= maxTrackedClients {
		for id, l := range s.limiters {
			if now.Sub(l.lastSeen) > s.cfg.CheckCooldown {
				delete(s.limiters, id)
			}
		}
	}
	cl, ok := s.limiters[clientID]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Every(s.cfg.CheckCooldown), 1)}
		s.limiters[clientID] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

func (s *AuthService) IssueLinkToken(ctx context.Context) (*dto.LinkTokenDTO, error) {
	token, expires, err := s.jwt.GenerateLinkToken(service.ScopeFiles)
	if err != nil {
		return nil, err
	}
	return &dto.LinkTokenDTO{Token: token, ExpiresAt: expires.UTC()}, nil
}

// VerifyWipeKey: an unconfigured wipe key disables wiping entirely.
func (s *AuthService) VerifyWipeKey(key string) error {
	if s.cfg.WipeKey == "" {
		return apperrors.ErrForbidden
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return apperrors.ErrMissingConfirmation
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.WipeKey)) != 1 {
		return apperrors.ErrUnauthorized
	}
	return nil
}
