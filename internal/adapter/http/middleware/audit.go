package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"settlement-reconciler/internal/core/domain"
	"settlement-reconciler/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog creates an audit middleware that records successful write operations.
// It maps HTTP methods and routes to audit actions.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}

		action := mapRouteToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   status,
			"operator": Operator(c),
			"ip":       c.ClientIP(),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:         uuid.New(),
			Rail:       c.Param("rail"),
			Action:     action,
			ResourceID: c.GetString(CtxOperator),
			Details:    string(details),
			CreatedAt:  time.Now().UTC(),
		})
	}
}

func mapRouteToAction(route, method string) domain.AuditAction {
	switch {
	case route == "/api/v1/rails/:rail/runs" && method == http.MethodPost:
		return domain.AuditActionRunTriggered
	}
	return ""
}
