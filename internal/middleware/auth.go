package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "fintrek/internal/errors"
	"fintrek/internal/token"
)

// UserIDKey is the Gin context key holding the authenticated user's ID.
const UserIDKey = "userID"

// AuthMiddleware verifies the bearer access token and sets the user ID in
// the context. Refresh tokens are rejected.
func AuthMiddleware(tokens *token.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			RespondWithError(c, apperrors.WithMessage(apperrors.ErrUnauthorized, "Authorization header is required"))
			return
		}

		scheme, raw, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
			RespondWithError(c, apperrors.WithMessage(apperrors.ErrUnauthorized, "Invalid authorization header format"))
			return
		}

		claims, err := tokens.Validate(strings.TrimSpace(raw), token.Access)
		if err != nil {
			RespondWithError(c, err)
			return
		}

		c.Set(UserIDKey, claims.Subject)
		c.Next()
	}
}
