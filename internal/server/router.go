// Package server assembles the service graph and the gin router.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"fintrek/internal/bankclient"
	"fintrek/internal/credential"
	_ "fintrek/internal/docs" // Import swagger docs
	"fintrek/internal/handlers"
	"fintrek/internal/logger"
	"fintrek/internal/middleware"
	"fintrek/internal/ratelimit"
	"fintrek/internal/services"
	"fintrek/internal/token"
)

// Deps are the shared building blocks the services are constructed from.
type Deps struct {
	Hasher     *credential.Hasher
	Tokens     *token.Service
	Cipher     *token.Cipher
	BankClient bankclient.Client
	Lockout    services.LockoutPolicy
}

// Services is the full service layer.
type Services struct {
	User        services.UserServicer
	Auth        services.AuthServicer
	Account     services.AccountServicer
	Category    services.CategoryServicer
	Transaction services.TransactionServicer
	Connection  services.BankConnectionServicer
	Sync        services.SyncServicer
	Audit       services.AuditServicer
}

// NewServices wires every service against db.
func NewServices(db *gorm.DB, deps Deps) Services {
	userService := services.NewUserService(db, deps.Hasher)
	accountService := services.NewAccountService(db)
	categoryService := services.NewCategoryService(db)
	connectionService := services.NewBankConnectionService(db, deps.Cipher)

	return Services{
		User:        userService,
		Auth:        services.NewAuthService(db, userService, deps.Hasher, deps.Tokens, deps.Lockout),
		Account:     accountService,
		Category:    categoryService,
		Transaction: services.NewTransactionService(db, accountService, categoryService),
		Connection:  connectionService,
		Sync:        services.NewSyncService(db, deps.BankClient, connectionService, logger.Named("sync")),
		Audit:       services.NewAuditService(db),
	}
}

// Options controls the router's cross-cutting middleware.
type Options struct {
	Debug         bool
	Production    bool
	CORSOrigins   []string
	Tokens        *token.Service
	Limiter       ratelimit.Limiter
	AuthRateLimit int
	SyncRateLimit int
	// Health reports storage reachability; nil means always healthy.
	Health func(ctx context.Context) error
}

// NewRouter builds the HTTP API.
func NewRouter(svc Services, opts Options) *gin.Engine {
	log := logger.Named("ratelimit")
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.NewMemoryLimiter()
	}
	authLimit := ratelimit.Middleware(limiter, ratelimit.Rule{
		Scope: "auth", Limit: opts.AuthRateLimit, Window: time.Minute, Key: ratelimit.ByClientIP,
	}, log)
	syncLimit := ratelimit.Middleware(limiter, ratelimit.Rule{
		Scope: "sync", Limit: opts.SyncRateLimit, Window: time.Minute, Key: ratelimit.ByUser,
	}, log)

	authHandler := handlers.NewAuthHandler(svc.Auth, svc.User, svc.Audit)
	accountHandler := handlers.NewAccountHandler(svc.Account, svc.Audit)
	categoryHandler := handlers.NewCategoryHandler(svc.Category, svc.Audit)
	transactionHandler := handlers.NewTransactionHandler(svc.Transaction, svc.Audit)
	connectionHandler := handlers.NewBankConnectionHandler(svc.Connection, svc.Audit)
	syncHandler := handlers.NewSyncHandler(svc.Sync, svc.Audit)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.SecurityHeaders(opts.Production))
	router.Use(middleware.CORS(opts.CORSOrigins))
	router.Use(middleware.ErrorHandler(opts.Debug))

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/api/health", healthHandler(opts.Health))

	v1 := router.Group("/api/v1")

	// Public routes
	auth := v1.Group("/auth", authLimit)
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware(opts.Tokens))

	protected.GET("/profile", authHandler.GetProfile)
	protected.PUT("/profile", authHandler.UpdateProfile)

	accounts := protected.Group("/accounts")
	accounts.POST("", accountHandler.CreateAccount)
	accounts.GET("", accountHandler.GetUserAccounts)
	accounts.GET("/:id", accountHandler.GetAccountByID)
	accounts.PUT("/:id", accountHandler.UpdateAccount)
	accounts.GET("/:id/transactions", transactionHandler.GetAccountTransactions)

	transactions := protected.Group("/transactions")
	transactions.POST("", transactionHandler.CreateTransaction)
	transactions.POST("/transfer", transactionHandler.CreateTransfer)
	transactions.GET("", transactionHandler.GetUserTransactions)
	transactions.GET("/:id", transactionHandler.GetTransactionByID)
	transactions.PATCH("/:id", transactionHandler.UpdateTransaction)
	transactions.DELETE("/:id", transactionHandler.DeleteTransaction)

	categories := protected.Group("/categories")
	categories.POST("", categoryHandler.CreateCategory)
	categories.GET("", categoryHandler.GetUserCategories)
	categories.GET("/:id", categoryHandler.GetCategoryByID)
	categories.PATCH("/:id", categoryHandler.UpdateCategory)
	categories.DELETE("/:id", categoryHandler.DeleteCategory)

	connections := protected.Group("/bank-connections")
	connections.GET("", connectionHandler.GetUserConnections)
	connections.POST("", connectionHandler.CreateConnection)
	connections.DELETE("/:id", connectionHandler.DeleteConnection)

	vbank := protected.Group("/vbank", syncLimit)
	vbank.POST("/sync-accounts", syncHandler.SyncAccounts)
	vbank.POST("/sync-transactions", syncHandler.SyncTransactions)

	return router
}

func healthHandler(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				logger.Named("health").Warnw("Health check failed", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
