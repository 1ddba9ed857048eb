package main

import (
	"fmt"
	"net/http"
	"os"

	"budgetledger/internal/config"
	"budgetledger/internal/database"
	"budgetledger/internal/logger"
	"budgetledger/internal/ratefeed"
	"budgetledger/internal/rbac"
	"budgetledger/internal/server"
	"budgetledger/internal/services"
	"budgetledger/internal/validator"

	_ "budgetledger/internal/docs" // Import swagger docs
)

// @title           Budget Ledger API
// @version         1.0
// @description     Corporate budget ledger: versioned budgets, conversion rates, change-request approvals, the commitment/payment compensation ledger and savings planning.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	registry, err := rbac.LoadFile(appConfig.RBACPolicyFile)
	if err != nil {
		return fmt.Errorf("failed to load approver policy: %w", err)
	}

	dbManager, err := database.NewManager(appConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			log.Warnf("database close error: %v", err)
		}
	}()

	if err := dbManager.RunMigrations(database.DefaultMigrationsSource); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	validator.Register()

	// Initialize services
	db := dbManager.DB()
	conversionService := services.NewConversionService(db, appConfig.ReportingCurrency)
	budgetService := services.NewBudgetService(db, conversionService)
	transactionService := services.NewTransactionService(db, conversionService)
	changeRequestService := services.NewChangeRequestService(db, registry)
	savingService := services.NewSavingService(db, budgetService)
	auditService := services.NewAuditService(db)

	forex := ratefeed.NewForexClient(&http.Client{Timeout: appConfig.ForexTimeout},
		appConfig.ForexBaseURL, appConfig.ReportingCurrency)

	router := server.NewRouter(server.Services{
		Budgets:        budgetService,
		Conversions:    conversionService,
		Transactions:   transactionService,
		ChangeRequests: changeRequestService,
		Savings:        savingService,
		Audit:          auditService,
		RateSyncer:     ratefeed.NewSyncer(forex, conversionService),
	}, server.Options{
		JWTSecret:      appConfig.JWTSecret,
		PipelineAPIKey: appConfig.PipelineAPIKey,
		Permissions:    registry,
		Swagger:        appConfig.Env != "production",
	})

	log.Infow("Starting budget ledger server",
		"port", appConfig.Port,
		"reporting_currency", appConfig.ReportingCurrency,
		"env", appConfig.Env,
	)
	log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}
