package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"fintrek/internal/bankclient"
	"fintrek/internal/config"
	"fintrek/internal/credential"
	"fintrek/internal/database"
	"fintrek/internal/logger"
	"fintrek/internal/ratelimit"
	"fintrek/internal/server"
	"fintrek/internal/services"
	"fintrek/internal/token"
	"fintrek/internal/validator"
)

//go:generate swag init -d ../.. -g cmd/api/main.go -o ../../internal/docs --parseInternal

// @title           FinTrek API
// @version         1.0
// @description     FinTrek is a personal finance backend: accounts, transactions and categories, with balances and transactions imported from an open-banking aggregator.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if appConfig.Debug {
		_ = logger.SetLevel("debug")
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	validator.Register()

	dbManager, err := database.NewManager(database.NewConfig(appConfig))
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			log.Warnf("database close error: %v", err)
		}
	}()

	if err := dbManager.RunMigrations(database.DefaultMigrationsPath); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	cipher, err := token.NewCipher(appConfig.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to create token cipher: %w", err)
	}
	tokens := token.NewService(appConfig.JWTSecret, appConfig.JWTIssuer, appConfig.AccessTokenTTL, appConfig.RefreshTokenTTL)

	bankClient := bankclient.New(bankclient.Config{
		BaseURL:        appConfig.VBankBaseURL,
		ClientID:       appConfig.VBankClientID,
		ClientSecret:   appConfig.VBankClientSecret,
		BankCode:       appConfig.VBankBankCode,
		AuthTimeout:    appConfig.VBankAuthTimeout,
		RequestTimeout: appConfig.VBankRequestTimeout,
		MaxRetries:     uint64(max(appConfig.VBankMaxRetries, 0)),
	}, &http.Client{Timeout: appConfig.VBankRequestTimeout}, logger.Named("bankclient"))

	limiter, closeLimiter, err := ratelimit.New(ctx, appConfig.RedisURL, logger.Named("ratelimit"))
	if err != nil {
		return fmt.Errorf("failed to create rate limiter: %w", err)
	}
	defer func() {
		if err := closeLimiter(); err != nil {
			log.Warnf("rate limiter close error: %v", err)
		}
	}()

	svc := server.NewServices(dbManager.DB(), server.Deps{
		Hasher:     credential.NewHasher(appConfig.BcryptCost),
		Tokens:     tokens,
		Cipher:     cipher,
		BankClient: bankClient,
		Lockout: services.LockoutPolicy{
			MaxAttempts: appConfig.MaxLoginAttempts,
			Duration:    appConfig.LockoutDuration,
		},
	})

	router := server.NewRouter(svc, server.Options{
		Debug:         appConfig.Debug,
		Production:    appConfig.Env == "production",
		CORSOrigins:   appConfig.CORSOrigins,
		Tokens:        tokens,
		Limiter:       limiter,
		AuthRateLimit: appConfig.AuthRateLimitPerMinute,
		SyncRateLimit: appConfig.SyncRateLimitPerMinute,
		Health:        dbManager.Ping,
	})

	log.Infof("Starting FinTrek backend server on port %s", appConfig.Port)
	return server.Serve(ctx, server.NewHTTPServer(":"+appConfig.Port, router), 15*time.Second, log)
}
