// Package handlers maps the HTTP API onto the service layer.
package handlers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "fintrek/internal/errors"
	"fintrek/internal/middleware"
	"fintrek/internal/uuid"
)

// getUserID extracts the authenticated user ID from the Gin context.
// Returns ErrUnauthorized if not present.
func getUserID(c *gin.Context) (string, error) {
	userID := c.GetString(middleware.UserIDKey)
	if userID == "" {
		return "", apperrors.ErrUnauthorized
	}
	return userID, nil
}

// parsePathID validates a UUID path parameter.
func parsePathID(c *gin.Context, param string) (string, error) {
	return parseID(c.Param(param), param)
}

func parseID(raw, name string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid "+name)
	}
	return id, nil
}

// parseOptionalID validates an optional UUID. An empty string is kept as is
// so callers can use it to clear a reference.
func parseOptionalID(raw *string, name string) (*string, error) {
	if raw == nil || *raw == "" {
		return raw, nil
	}
	id, err := parseID(*raw, name)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// respondWithError writes a consistent JSON error response.
func respondWithError(c *gin.Context, err error) {
	middleware.RespondWithError(c, err)
}

func bindError(err error) error {
	return apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error())
}

// parseFlexibleTime accepts RFC3339 timestamps and plain YYYY-MM-DD dates.
func parseFlexibleTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid date "+raw+", use RFC3339 or YYYY-MM-DD")
	}
	return t, nil
}

func parseOptionalTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := parseFlexibleTime(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
