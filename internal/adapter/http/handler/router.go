package handler

import (
	"kobopay/internal/adapter/http/middleware"
	redisStore "kobopay/internal/adapter/storage/redis"
	"kobopay/internal/core/ports"
	"kobopay/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	PurchaseSvc    ports.PurchaseService
	ReportingSvc   ports.ReportingService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Metrics        *metrics.Metrics // nil = /metrics disabled
	WebhookSecret  string
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep, verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// --- Signed webhook routes (no JWT) ---
	webhookHandler := NewWebhookHandler(deps.PurchaseSvc)
	webhooks := r.Group("/webhooks", middleware.WebhookSignature(deps.WebhookSecret, deps.Logger))
	{
		webhooks.POST("/funding", rl("webhooks"), webhookHandler.Funding)
	}

	// --- JWT-authenticated user routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	purchaseHandler := NewPurchaseHandler(deps.PurchaseSvc)
	walletHandler := NewWalletHandler(deps.ReportingSvc)
	transactionHandler := NewTransactionHandler(deps.ReportingSvc)

	v1 := r.Group("/api/v1", jwtAuth)

	purchases := v1.Group("/purchases")
	{
		purchases.POST("", rl("purchases"), purchaseHandler.Purchase)
	}

	wallet := v1.Group("/wallet")
	{
		wallet.GET("/balance", rl("wallet"), walletHandler.GetBalance)
		wallet.GET("/stats", rl("wallet"), walletHandler.GetStats)
		wallet.GET("/audit", rl("wallet"), walletHandler.AuditLedger)
		wallet.POST("/refunds", rl("refunds"), purchaseHandler.Refund)
		wallet.POST("/bonus", rl("refunds"), purchaseHandler.CreditBonus)
	}

	transactions := v1.Group("/transactions")
	{
		transactions.GET("", rl("reads"), transactionHandler.List)
		transactions.GET("/:reference", rl("reads"), transactionHandler.Get)
	}

	return r
}
