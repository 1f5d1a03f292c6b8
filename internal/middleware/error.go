package middleware

import (
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "fintrek/internal/errors"
	"fintrek/internal/logger"
)

const debugErrorsKey = "debugErrors"

// ErrorHandler returns a Gin middleware that converts errors set on the Gin
// context into consistent JSON error responses. When debug is true, upstream
// diagnostics attached to external API errors are included in the body.
func ErrorHandler(debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(debugErrorsKey, debug)
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		// Process the last error (most relevant in a middleware chain)
		RespondWithError(c, c.Errors.Last().Err)
	}
}

// RespondWithError writes err as a JSON error response. AppErrors keep their
// code and message; anything else is logged and reported as an internal
// error so internals never reach the client.
func RespondWithError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		logger.Get().Errorw("unexpected error",
			"error", err.Error(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)
		appErr = apperrors.ErrInternalServer
	}

	if appErr.Internal != nil {
		logger.Get().Errorw("app error",
			"code", appErr.Code,
			"message", appErr.Message,
			"internal", appErr.Internal.Error(),
			"path", c.Request.URL.Path,
		)
	}

	body := gin.H{
		"code":    appErr.Code,
		"message": appErr.Message,
	}
	if appErr.Detail != "" && c.GetBool(debugErrorsKey) {
		body["detail"] = appErr.Detail
	}
	if appErr.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(appErr.RetryAfter)))
	}
	c.AbortWithStatusJSON(appErr.StatusCode, gin.H{"error": body})
}

// retryAfterSeconds rounds d up to whole seconds, never below one.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
