package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"fintrek/internal/credential"
	apperrors "fintrek/internal/errors"
	"fintrek/internal/logger"
	"fintrek/internal/models"
	"fintrek/internal/token"
)

// authService ties the user store, login guard and token service together.
type authService struct {
	users  UserServicer
	guard  *loginGuard
	tokens *token.Service
}

// NewAuthService creates a new AuthServicer.
func NewAuthService(db *gorm.DB, users UserServicer, hasher *credential.Hasher, tokens *token.Service, policy LockoutPolicy) AuthServicer {
	return &authService{
		users:  users,
		guard:  newLoginGuard(db, hasher, policy),
		tokens: tokens,
	}
}

// Register creates the user and issues a token pair.
func (s *authService) Register(ctx context.Context, email, password, firstName, lastName string) (*models.User, *token.Pair, error) {
	user, err := s.users.CreateUser(email, password, firstName, lastName)
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return user, pair, nil
}

// Login authenticates through the login guard and issues a token pair.
func (s *authService) Login(ctx context.Context, email, password string) (*models.User, *token.Pair, error) {
	user, err := s.guard.Authenticate(ctx, email, password)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Code == apperrors.ErrAccountLocked.Code {
			logger.Get().Warnw("login rejected for locked account", "retry_after", appErr.RetryAfter)
		}
		return nil, nil, err
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return user, pair, nil
}

// Refresh issues a new pair for a valid refresh token whose subject is
// still an active user.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*token.Pair, error) {
	return s.tokens.Refresh(ctx, refreshToken, func(_ context.Context, subject string) error {
		user, err := s.users.GetUserByID(subject)
		if err != nil {
			return err
		}
		if !user.IsActive {
			return apperrors.ErrUserNotFound
		}
		return nil
	})
}
