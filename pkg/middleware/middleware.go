package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orderkit/cost-engine/pkg/logging"
	"github.com/orderkit/cost-engine/pkg/metrics"
	"github.com/orderkit/cost-engine/pkg/tenant"
)

// Config bundles the middleware dependencies for Setup
type Config struct {
	ServiceName string
	Logger      *logging.Logger
	Metrics     *metrics.Metrics
}

// Setup installs the standard middleware chain on the router
func Setup(router *gin.Engine, config *Config) {
	InitValidator()

	router.Use(Recovery(config.Logger))
	router.Use(RequestID())
	router.Use(CorrelationID())
	router.Use(Logger(config.Logger))
	if config.Metrics != nil {
		router.Use(Metrics(config.Metrics))
	}
	router.Use(CORS())

	router.NoRoute(NoRoute())
	router.NoMethod(NoMethod())
}

// CORS sets permissive CORS headers
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Correlation-ID, X-Tenant-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Metrics records request counts, durations and in-flight gauge
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.HTTPRequestStarted()

		c.Next()

		m.HTTPRequestFinished()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

// TenantAuth requires the X-Tenant-ID header and stores it in the request context
func TenantAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader(tenant.HeaderName)
		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "missing X-Tenant-ID header",
				},
			})
			return
		}

		ctx := tenant.WithTenant(c.Request.Context(), tenantID)
		c.Request = c.Request.WithContext(ctx)
		c.Set("tenantId", tenantID)

		c.Next()
	}
}

// GetTenantID returns the authenticated tenant from the gin context
func GetTenantID(c *gin.Context) string {
	return c.GetString("tenantId")
}

// HealthCheck responds with service liveness
func HealthCheck(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   serviceName,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// ReadinessCheck responds with readiness based on dependency checks
func ReadinessCheck(serviceName string, checkFn func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if checkFn != nil {
			if err := checkFn(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "not ready",
					"service": serviceName,
					"error":   err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ready",
			"service": serviceName,
		})
	}
}

// NoRoute handles unmatched routes
func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": "route not found",
				"path":    c.Request.URL.Path,
			},
		})
	}
}

// NoMethod handles unsupported methods on matched routes
func NoMethod() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error": gin.H{
				"code":    "METHOD_NOT_ALLOWED",
				"message": "method not allowed",
			},
		})
	}
}

// MetricsEndpoint exposes the Prometheus registry
func MetricsEndpoint(m *metrics.Metrics) gin.HandlerFunc {
	handler := m.Handler()
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
