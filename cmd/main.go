package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"decision-service/internal/cache"
	"decision-service/internal/config"
	"decision-service/internal/events"
	"decision-service/internal/handlers"
	"decision-service/internal/jobs"
	"decision-service/internal/middleware"
	"decision-service/internal/models"
	"decision-service/internal/repository"
	"decision-service/internal/seeders"
	"decision-service/internal/services"
)

// @title Policy & Approval Decision API
// @version 1.0.0
// @description Policy decision and approval workflow service for estimating and ERP platforms
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.example.com/support
// @contact.email support@example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8099
// @BasePath /api/v1

// @securityDefinitions.bearer BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.InfoLevel)

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database:", err)
	}

	// Run database migrations
	logger.Info("Running database migrations...")
	if err := db.AutoMigrate(
		&models.ApprovalFlow{},
		&models.ApprovalStep{},
		&models.ApprovalRequest{},
		&models.ApprovalHistory{},
		&models.StandingDelegation{},
		&models.Policy{},
		&models.OrgUser{},
		&models.OrgRole{},
		&models.Department{},
		&models.Position{},
	); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database migrations completed")

	// Seed system-level flows and policies
	if err := seeders.SeedSystemFlows(db); err != nil {
		logger.Warnf("Failed to seed system flows: %v", err)
	}
	if err := seeders.SeedSystemPolicies(db); err != nil {
		logger.Warnf("Failed to seed system policies: %v", err)
	}

	// Initialize repositories
	approvalRepo := repository.NewApprovalRepository(db)
	policyRepo := repository.NewPolicyRepository(db)
	orgRepo := repository.NewOrgRepository(db)

	// Initialize event publisher (optional - service works without NATS)
	publisher, err := events.NewPublisher(logger)
	if err != nil {
		logger.Warnf("Failed to initialize event publisher: %v. Events will not be published.", err)
		publisher = nil
	}

	// Initialize org snapshot cache (optional - degrades to direct DB reads)
	var orgCache *cache.OrgCache
	if cfg.RedisHost != "" {
		orgCache, err = cache.NewOrgCache(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword, cfg.RedisDB, cfg.OrgCacheTTL)
		if err != nil {
			logger.Warnf("Failed to initialize org cache: %v. Caching disabled.", err)
			orgCache = nil
		} else if orgCache.IsAvailable() {
			logger.Info("Org snapshot cache initialized")
		} else {
			logger.Warn("Redis unreachable, org snapshot caching disabled")
		}
	} else {
		logger.Info("REDIS_HOST not configured, org snapshot caching disabled")
	}

	// Initialize services
	approvalService := services.NewApprovalService(approvalRepo, policyRepo, orgRepo, orgCache, publisher, logger)
	policyService := services.NewPolicyService(policyRepo, orgRepo, logger)

	// Initialize handlers
	approvalHandler := handlers.NewApprovalHandler(approvalService, logger)
	policyHandler := handlers.NewPolicyHandler(policyService, logger)
	delegationHandler := handlers.NewDelegationHandler(approvalRepo, logger)

	// Start expiry notification job
	expiryJob := jobs.NewExpiryJob(approvalRepo, publisher, logger)
	jobCtx, jobCancel := context.WithCancel(context.Background())
	go expiryJob.Start(jobCtx)

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Health check endpoints (no auth required)
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.ReadinessCheck)

	// Protected API routes
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	api.Use(middleware.TenantMiddleware())

	// Approval request endpoints
	{
		api.POST("/approval-requests", approvalHandler.SubmitRequest)
		api.GET("/approval-requests", approvalHandler.ListRequests)
		api.GET("/approval-requests/my", approvalHandler.ListMyRequests)
		api.GET("/approval-requests/:id", approvalHandler.GetRequest)
		api.GET("/approval-requests/:id/history", approvalHandler.GetRequestHistory)
		api.POST("/approval-requests/:id/approve", approvalHandler.ApproveRequest)
		api.POST("/approval-requests/:id/reject", approvalHandler.RejectRequest)
		api.POST("/approval-requests/:id/return", approvalHandler.ReturnRequest)
		api.POST("/approval-requests/:id/cancel", approvalHandler.CancelRequest)
		api.POST("/approval-requests/:id/delegate", approvalHandler.DelegateRequest)
	}

	// Approval flow endpoints
	{
		api.GET("/approval-flows", approvalHandler.ListFlows)
		api.GET("/approval-flows/:id", approvalHandler.GetFlow)
		api.POST("/approval-flows", approvalHandler.CreateFlow)
	}

	// Policy endpoints
	{
		api.POST("/policies/check", policyHandler.CheckDecision)
		api.GET("/policies", policyHandler.ListPolicies)
		api.POST("/policies", policyHandler.CreatePolicy)
		api.GET("/policies/:id", policyHandler.GetPolicy)
		api.PUT("/policies/:id", policyHandler.UpdatePolicy)
		api.DELETE("/policies/:id", policyHandler.DeletePolicy)
	}

	// Delegation endpoints
	{
		api.POST("/delegations", delegationHandler.CreateDelegation)
		api.GET("/delegations", delegationHandler.ListMyDelegations)
		api.GET("/delegations/to-me", delegationHandler.ListDelegationsToMe)
		api.POST("/delegations/:id/revoke", delegationHandler.RevokeDelegation)
	}

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8099"
	}

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Infof("Decision service starting on port %s", port)
		if err := router.Run(":" + port); err != nil {
			logger.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	<-quit
	logger.Info("Shutting down server...")

	jobCancel()
	expiryJob.Stop()
	logger.Info("Expiry job stopped")

	if publisher != nil {
		publisher.Close()
	}
	if orgCache != nil {
		orgCache.Close()
	}

	logger.Info("Server shutdown complete")
}
