package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fintrek/internal/credential"
	apperrors "fintrek/internal/errors"
	"fintrek/internal/models"
)

// LockoutPolicy configures the login guard.
type LockoutPolicy struct {
	MaxAttempts int
	Duration    time.Duration
}

type loginOutcome int

const (
	outcomeSuccess loginOutcome = iota
	outcomeBadPassword
	outcomeUnknownUser
	outcomeLocked
	outcomeJustLocked
)

// loginGuard tracks failed logins per user and locks the account once the
// policy threshold is reached. Each attempt reads and writes the user row in
// one transaction under a row lock.
type loginGuard struct {
	db     *gorm.DB
	hasher *credential.Hasher
	policy LockoutPolicy
	now    func() time.Time
}

func newLoginGuard(db *gorm.DB, hasher *credential.Hasher, policy LockoutPolicy) *loginGuard {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 5
	}
	if policy.Duration <= 0 {
		policy.Duration = 15 * time.Minute
	}
	return &loginGuard{db: db, hasher: hasher, policy: policy, now: time.Now}
}

// Authenticate verifies the password and updates the lockout state. The
// state change is committed before any error is returned, so a failed
// attempt still counts.
func (g *loginGuard) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var (
		user       models.User
		outcome    loginOutcome
		retryAfter time.Duration
	)

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("email = ? AND is_active = ?", strings.ToLower(strings.TrimSpace(email)), true).
			First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			g.hasher.DummyVerify(password)
			outcome = outcomeUnknownUser
			return nil
		}
		if err != nil {
			return err
		}

		now := g.now()
		if user.IsLocked(now) {
			outcome = outcomeLocked
			retryAfter = user.LockedUntil.Sub(now)
			return nil
		}

		if g.hasher.Verify(password, user.PasswordHash) {
			outcome = outcomeSuccess
			if err := tx.Model(&user).Updates(map[string]interface{}{
				"failed_login_attempts": 0,
				"locked_until":          nil,
				"last_login_at":         now,
			}).Error; err != nil {
				return err
			}
			user.FailedLoginAttempts = 0
			user.LockedUntil = nil
			user.LastLoginAt = &now
			return nil
		}

		// An expired lock starts a fresh window.
		if user.LockedUntil != nil {
			if err := tx.Model(&user).Updates(map[string]interface{}{
				"failed_login_attempts": 0,
				"locked_until":          nil,
			}).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			UpdateColumn("failed_login_attempts", gorm.Expr("failed_login_attempts + 1")).Error; err != nil {
			return err
		}

		var attempts int
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Select("failed_login_attempts").Scan(&attempts).Error; err != nil {
			return err
		}
		user.FailedLoginAttempts = attempts

		if attempts < g.policy.MaxAttempts {
			outcome = outcomeBadPassword
			return nil
		}

		until := now.Add(g.policy.Duration)
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			UpdateColumn("locked_until", until).Error; err != nil {
			return err
		}
		user.LockedUntil = &until
		outcome = outcomeJustLocked
		retryAfter = g.policy.Duration
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	switch outcome {
	case outcomeSuccess:
		return &user, nil
	case outcomeLocked, outcomeJustLocked:
		return nil, apperrors.WithRetryAfter(apperrors.ErrAccountLocked, retryAfter)
	default:
		return nil, apperrors.ErrInvalidCredentials
	}
}
