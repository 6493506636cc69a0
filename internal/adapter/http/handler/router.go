package handler

import (
	"settlement-reconciler/internal/adapter/http/middleware"
	"settlement-reconciler/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	BatchQuery     ports.BatchQueryService
	Runners        []ports.RailRunner
	TokenSvc       ports.TokenService
	HealthCheckers []ports.HealthChecker
	RunBudget      ports.CallBudget   // nil = manual runs not rate limited
	AuditSvc       ports.AuditService // nil = audit logging disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20))

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Health check (deep: verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	runLimit := func(c *gin.Context) { c.Next() }
	if deps.RunBudget != nil {
		runLimit = middleware.RateLimiter(deps.RunBudget, "ops-runs", middleware.DefaultRunRule, deps.Logger)
	}

	// --- JWT-authenticated ops routes ---
	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.Logger))

	batchHandler := NewBatchHandler(deps.BatchQuery)
	v1.GET("/batches/:id", batchHandler.GetBatch)

	runHandler := NewRunHandler(deps.Runners, deps.Logger)
	v1.POST("/rails/:rail/runs", runLimit, runHandler.TriggerRun)

	return r
}
