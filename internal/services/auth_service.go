package services

import (
	"context"
	"time"

	"example.com/snackhouse/delivery/config"
	"example.com/snackhouse/delivery/internal/cache"
	"example.com/snackhouse/delivery/internal/models"
	"example.com/snackhouse/delivery/internal/repositories"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Auth errors surfaced to the API layer.
var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidSession  = errors.New("invalid or expired session")
	ErrWeakPassword    = errors.New("password must be at least 4 characters")
	ErrNoOperator      = errors.New("no operator account configured")
)

// AuthService handles the single-operator login and its sessions
type AuthService struct {
	cfg          config.AuthConfig
	operatorRepo repositories.OperatorRepository
	sessionRepo  repositories.SessionRepository
	cache        *cache.RedisCache
}

// NewAuthService creates a new auth service
func NewAuthService(cfg config.AuthConfig, operatorRepo repositories.OperatorRepository, sessionRepo repositories.SessionRepository, redisCache *cache.RedisCache) *AuthService {
	return &AuthService{
		cfg:          cfg,
		operatorRepo: operatorRepo,
		sessionRepo:  sessionRepo,
		cache:        redisCache,
	}
}

// EnsureOperator seeds the operator account from the bootstrap password
// when no account exists yet. A no-op otherwise.
func (s *AuthService) EnsureOperator(ctx context.Context) error {
	_, err := s.operatorRepo.Get(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return err
	}

	if s.cfg.BootstrapPassword == "" {
		log.Warn().Msg("No operator account and no bootstrap password configured, login will be unavailable")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(s.cfg.BootstrapPassword), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "failed to hash bootstrap password")
	}

	if err := s.operatorRepo.SavePasswordHash(ctx, string(hash)); err != nil {
		return err
	}

	log.Info().Msg("Operator account created from bootstrap password")
	return nil
}

// Login verifies the password and issues a new session token.
func (s *AuthService) Login(ctx context.Context, password string) (*models.Session, error) {
	operator, err := s.operatorRepo.Get(ctx)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrNoOperator
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(operator.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidPassword
	}

	session := &models.Session{
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(s.cfg.SessionTTL),
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	// Opportunistic cleanup of dead sessions; failure is harmless.
	if err := s.sessionRepo.DeleteExpired(ctx, time.Now()); err != nil {
		log.Warn().Err(err).Msg("Failed to prune expired sessions")
	}

	log.Info().Msg("Operator logged in")
	return session, nil
}

// ValidateSession checks a presented token against the cache and the
// session store.
func (s *AuthService) ValidateSession(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidSession
	}

	cacheKey := cache.GetSessionCacheKey(token)
	if s.cache.Enabled() {
		var expiresAt time.Time
		if err := s.cache.Get(ctx, cacheKey, &expiresAt); err == nil && expiresAt.After(time.Now()) {
			return nil
		}
	}

	session, err := s.sessionRepo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrInvalidSession
		}
		return err
	}

	if session.Expired(time.Now()) {
		return ErrInvalidSession
	}

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, cacheKey, session.ExpiresAt, time.Until(session.ExpiresAt)); err != nil {
			log.Warn().Err(err).Msg("Failed to cache session")
		}
	}

	return nil
}

// Logout invalidates the presented session.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if s.cache.Enabled() {
		if err := s.cache.Delete(ctx, cache.GetSessionCacheKey(token)); err != nil {
			log.Warn().Err(err).Msg("Failed to drop cached session")
		}
	}
	return s.sessionRepo.Delete(ctx, token)
}

// ChangePassword swaps the operator password after verifying the
// current one.
func (s *AuthService) ChangePassword(ctx context.Context, current, next string) error {
	if len(next) < 4 {
		return ErrWeakPassword
	}

	operator, err := s.operatorRepo.Get(ctx)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNoOperator
		}
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(operator.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "failed to hash new password")
	}

	if err := s.operatorRepo.SavePasswordHash(ctx, string(hash)); err != nil {
		return err
	}

	log.Info().Msg("Operator password changed")
	return nil
}
