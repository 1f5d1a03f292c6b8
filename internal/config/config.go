package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// placeholderMarkers flag secrets copied from example env files.
var placeholderMarkers = []string{"change-this", "changeme", "fallback-secret"}

const minSecretLength = 32

// Config holds application configuration
type Config struct {
	// Server
	Env         string
	Debug       bool
	Port        string
	CORSOrigins []string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Auth
	JWTSecret        string
	EncryptionKey    string
	JWTIssuer        string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	MaxLoginAttempts int
	LockoutDuration  time.Duration
	BcryptCost       int

	// VBank
	VBankBaseURL        string
	VBankClientID       string
	VBankClientSecret   string
	VBankBankCode       string
	VBankAuthTimeout    time.Duration
	VBankRequestTimeout time.Duration
	VBankMaxRetries     int

	// Rate limiting
	RedisURL               string
	AuthRateLimitPerMinute int
	SyncRateLimitPerMinute int
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		Env:         getEnv("ENV", "development"),
		Debug:       getBool("DEBUG", false),
		Port:        getEnv("PORT", "8080"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "fintrek"),
		DBPassword: getEnv("DB_PASSWORD", "fintrek"),
		DBName:     getEnv("DB_NAME", "fintrek"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		EncryptionKey:    getEnv("ENCRYPTION_KEY", ""),
		JWTIssuer:        getEnv("JWT_ISSUER", "fintrek-api"),
		AccessTokenTTL:   getDuration("ACCESS_TOKEN_TTL", 30*time.Minute),
		RefreshTokenTTL:  getDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		MaxLoginAttempts: getInt("MAX_LOGIN_ATTEMPTS", 5),
		LockoutDuration:  getDuration("LOCKOUT_DURATION", 15*time.Minute),
		BcryptCost:       getInt("BCRYPT_COST", 12),

		VBankBaseURL:        getEnv("VBANK_BASE_URL", "https://vbank.open.bankingapi.ru"),
		VBankClientID:       getEnv("VBANK_CLIENT_ID", ""),
		VBankClientSecret:   getEnv("VBANK_CLIENT_SECRET", ""),
		VBankBankCode:       getEnv("VBANK_BANK_CODE", "vbank"),
		VBankAuthTimeout:    getDuration("VBANK_AUTH_TIMEOUT", 5*time.Second),
		VBankRequestTimeout: getDuration("VBANK_REQUEST_TIMEOUT", 30*time.Second),
		VBankMaxRetries:     getInt("VBANK_MAX_RETRIES", 3),

		RedisURL:               getEnv("REDIS_URL", ""),
		AuthRateLimitPerMinute: getInt("RATE_LIMIT_AUTH_PER_MINUTE", 5),
		SyncRateLimitPerMinute: getInt("RATE_LIMIT_SYNC_PER_MINUTE", 10),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	appConfig = config
	return config, nil
}

// Validate refuses secrets that are unsafe outside debug mode. In debug mode
// missing secrets are replaced with throwaway development values.
func (c *Config) Validate() error {
	if c.Debug {
		if c.JWTSecret == "" {
			c.JWTSecret = "dev-only-jwt-secret-0123456789abcdef"
		}
		if c.EncryptionKey == "" {
			c.EncryptionKey = "dev-only-encryption-key-0123456789ab"
		}
		return nil
	}

	for name, value := range map[string]string{"JWT_SECRET": c.JWTSecret, "ENCRYPTION_KEY": c.EncryptionKey} {
		if value == "" {
			return fmt.Errorf("%s must be set", name)
		}
		if isPlaceholder(value) {
			return fmt.Errorf("%s still contains a placeholder value", name)
		}
		if len(value) < minSecretLength {
			return fmt.Errorf("%s must be at least %d bytes", name, minSecretLength)
		}
	}
	if c.JWTSecret == c.EncryptionKey {
		return fmt.Errorf("JWT_SECRET and ENCRYPTION_KEY must differ")
	}
	if c.MaxLoginAttempts < 1 {
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be positive")
	}
	return nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

func isPlaceholder(value string) bool {
	lower := strings.ToLower(value)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %d\n", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, raw, defaultValue)
		return defaultValue
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
