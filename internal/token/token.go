// Package token issues and validates the signed access and refresh tokens
// used to authenticate API requests.
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "fintrek/internal/errors"
)

// Type distinguishes access tokens from refresh tokens.
type Type string

const (
	Access  Type = "access"
	Refresh Type = "refresh"
)

// Claims are the JWT claims carried by every token.
type Claims struct {
	Type Type `json:"type"`
	jwt.RegisteredClaims
}

// Pair is an access/refresh token pair returned on login and refresh.
type Pair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// SubjectLookup confirms a token subject may still authenticate.
type SubjectLookup func(ctx context.Context, subject string) error

// Service signs and verifies tokens with HS256.
type Service struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewService creates a token Service.
func NewService(secret, issuer string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue signs a token of the given type for subject.
func (s *Service) Issue(subject string, typ Type) (string, time.Time, error) {
	ttl := s.accessTTL
	if typ == Refresh {
		ttl = s.refreshTTL
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing %s token: %w", typ, err)
	}
	return signed, expiresAt, nil
}

// IssuePair signs a fresh access and refresh token for subject.
func (s *Service) IssuePair(subject string) (*Pair, error) {
	access, accessExp, err := s.Issue(subject, Access)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.Issue(subject, Refresh)
	if err != nil {
		return nil, err
	}
	return &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "bearer",
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Validate verifies signature, algorithm, expiry and issuer, then checks the
// token is of the expected type. Any failure yields ErrInvalidToken.
func (s *Service) Validate(raw string, expected Type) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidToken, err)
	}
	if claims.Type != expected {
		return nil, apperrors.Wrap(apperrors.ErrInvalidToken,
			fmt.Errorf("expected %s token, got %q", expected, claims.Type))
	}
	if claims.Subject == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidToken, fmt.Errorf("missing subject"))
	}
	return claims, nil
}

// Refresh exchanges a valid refresh token for a new pair. The presented
// refresh token is not revoked and stays usable until it expires.
func (s *Service) Refresh(ctx context.Context, raw string, lookup SubjectLookup) (*Pair, error) {
	claims, err := s.Validate(raw, Refresh)
	if err != nil {
		return nil, err
	}
	if lookup != nil {
		if err := lookup(ctx, claims.Subject); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalidToken, err)
		}
	}
	return s.IssuePair(claims.Subject)
}
