// Package server assembles the HTTP router shared by cmd/api and the
// integration tests.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"budgetledger/internal/handlers"
	"budgetledger/internal/metrics"
	"budgetledger/internal/middleware"
	"budgetledger/internal/rbac"
	"budgetledger/internal/services"
)

// PipelinePrincipal is the caller identity recorded for scheduled rate syncs.
const PipelinePrincipal = "pipeline:rate-sync"

// Services are the domain services behind the HTTP handlers.
type Services struct {
	Budgets        services.BudgetServicer
	Conversions    services.ConversionServicer
	Transactions   services.TransactionServicer
	ChangeRequests services.ChangeRequestServicer
	Savings        services.SavingServicer
	Audit          services.AuditServicer
	RateSyncer     handlers.RateSyncer
}

// Options configures authentication and authorization at the boundary.
type Options struct {
	JWTSecret      string
	PipelineAPIKey string
	Permissions    middleware.PermissionChecker
	// Swagger mounts the API docs UI under /swagger.
	Swagger bool
}

// NewRouter builds the gin engine with every ledger route registered.
func NewRouter(svc Services, opts Options) *gin.Engine {
	budgetHandler := handlers.NewBudgetHandler(svc.Budgets, svc.Audit)
	conversionHandler := handlers.NewConversionHandler(svc.Conversions, svc.RateSyncer, svc.Audit)
	transactionHandler := handlers.NewTransactionHandler(svc.Transactions, svc.Audit)
	changeRequestHandler := handlers.NewChangeRequestHandler(svc.ChangeRequests, svc.Audit)
	savingHandler := handlers.NewSavingHandler(svc.Savings, svc.Audit)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(metrics.Middleware())
	router.Use(middleware.ErrorHandler())

	if opts.Swagger {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	// Scheduled jobs authenticate with an API key instead of a user token.
	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(opts.PipelineAPIKey, PipelinePrincipal))
	pipeline.POST("/budgets/:id/rates/sync", conversionHandler.SyncRates)

	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware(opts.JWTSecret))

	can := func(resource, action string) gin.HandlerFunc {
		return middleware.RequirePermission(opts.Permissions, resource, action)
	}

	budgets := protected.Group("/budgets")
	budgets.POST("", can(rbac.ResourceBudgets, rbac.ActionWrite), budgetHandler.CreateBudget)
	budgets.GET("", can(rbac.ResourceBudgets, rbac.ActionRead), budgetHandler.GetBudgets)
	budgets.GET("/active", can(rbac.ResourceBudgets, rbac.ActionRead), budgetHandler.GetActiveBudget)
	budgets.GET("/versions/next", can(rbac.ResourceBudgets, rbac.ActionRead), budgetHandler.GetNextVersion)
	budgets.GET("/:id", can(rbac.ResourceBudgets, rbac.ActionRead), budgetHandler.GetBudget)
	budgets.DELETE("/:id", can(rbac.ResourceBudgets, rbac.ActionWrite), budgetHandler.DeleteBudget)
	budgets.POST("/:id/versions", can(rbac.ResourceBudgets, rbac.ActionWrite), budgetHandler.CreateVersion)
	budgets.POST("/:id/activate", can(rbac.ResourceBudgets, rbac.ActionActivate), budgetHandler.ActivateBudget)
	budgets.POST("/:id/review", can(rbac.ResourceBudgets, rbac.ActionWrite), budgetHandler.SubmitForReview)
	budgets.GET("/:id/valuation", can(rbac.ResourceBudgets, rbac.ActionRead), budgetHandler.GetValuation)
	budgets.POST("/:id/lines", can(rbac.ResourceBudgets, rbac.ActionWrite), budgetHandler.AddBudgetLine)
	budgets.GET("/:id/lines", can(rbac.ResourceBudgets, rbac.ActionRead), budgetHandler.GetBudgetLines)

	budgets.PUT("/:id/rates", can(rbac.ResourceRates, rbac.ActionWrite), conversionHandler.SetRate)
	budgets.GET("/:id/rates", can(rbac.ResourceRates, rbac.ActionRead), conversionHandler.GetRates)
	budgets.POST("/:id/rates/sync", can(rbac.ResourceRates, rbac.ActionWrite), conversionHandler.SyncRates)
	budgets.GET("/:id/rates/:currency/:month", can(rbac.ResourceRates, rbac.ActionRead), conversionHandler.GetRate)
	budgets.DELETE("/:id/rates/:currency/:month", can(rbac.ResourceRates, rbac.ActionWrite), conversionHandler.DeleteRate)
	budgets.GET("/:id/convert", can(rbac.ResourceRates, rbac.ActionRead), conversionHandler.Convert)

	budgets.POST("/:id/savings", can(rbac.ResourceSavings, rbac.ActionWrite), savingHandler.CreateSaving)
	budgets.GET("/:id/savings", can(rbac.ResourceSavings, rbac.ActionRead), savingHandler.GetSavings)
	budgets.POST("/:id/savings/apply", can(rbac.ResourceSavings, rbac.ActionApprove), savingHandler.ApplySavings)

	lines := protected.Group("/budget-lines")
	lines.GET("/:id", can(rbac.ResourceBudgets, rbac.ActionRead), budgetHandler.GetBudgetLine)
	lines.DELETE("/:id", can(rbac.ResourceBudgets, rbac.ActionWrite), budgetHandler.RemoveBudgetLine)

	transactions := protected.Group("/transactions")
	transactions.POST("", can(rbac.ResourceTransactions, rbac.ActionWrite), transactionHandler.RecordTransaction)
	transactions.GET("", can(rbac.ResourceTransactions, rbac.ActionRead), transactionHandler.GetTransactions)
	transactions.GET("/:id", can(rbac.ResourceTransactions, rbac.ActionRead), transactionHandler.GetTransactionByID)
	transactions.PATCH("/:id", can(rbac.ResourceTransactions, rbac.ActionWrite), transactionHandler.UpdateTransaction)
	transactions.DELETE("/:id", can(rbac.ResourceTransactions, rbac.ActionWrite), transactionHandler.DeleteTransaction)

	changeRequests := protected.Group("/change-requests")
	changeRequests.POST("", can(rbac.ResourceChangeRequests, rbac.ActionWrite), changeRequestHandler.CreateChangeRequest)
	changeRequests.POST("/approve", can(rbac.ResourceChangeRequests, rbac.ActionApprove), changeRequestHandler.ApproveMultipleChangeRequests)
	changeRequests.GET("/pending", can(rbac.ResourceChangeRequests, rbac.ActionRead), changeRequestHandler.GetPendingChangeRequests)
	changeRequests.GET("/mine", can(rbac.ResourceChangeRequests, rbac.ActionRead), changeRequestHandler.GetMyChangeRequests)
	changeRequests.GET("/:id", can(rbac.ResourceChangeRequests, rbac.ActionRead), changeRequestHandler.GetChangeRequest)
	changeRequests.POST("/:id/approve", can(rbac.ResourceChangeRequests, rbac.ActionApprove), changeRequestHandler.ApproveChangeRequest)
	changeRequests.POST("/:id/reject", can(rbac.ResourceChangeRequests, rbac.ActionApprove), changeRequestHandler.RejectChangeRequest)

	savings := protected.Group("/savings")
	savings.GET("/:id", can(rbac.ResourceSavings, rbac.ActionRead), savingHandler.GetSaving)
	savings.POST("/:id/approve", can(rbac.ResourceSavings, rbac.ActionApprove), savingHandler.ApproveSaving)

	return router
}
