package services

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"fintrek/internal/credential"
	"fintrek/internal/logger"
	"fintrek/internal/token"
)

func init() {
	logger.Init("test")
}

const testJWTSecret = "services-test-secret-0123456789abcdef"

func newTestHasher() *credential.Hasher {
	return credential.NewHasher(bcrypt.MinCost)
}

func newTestTokens() *token.Service {
	return token.NewService(testJWTSecret, "fintrek-test", 30*time.Minute, 7*24*time.Hour)
}

func strPtr(s string) *string { return &s }
