package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthChecker probes one dependency.
type HealthChecker func() error

// HealthOptions configures the health endpoints.
type HealthOptions struct {
	ServiceName    string
	ServiceVersion string
	Checks         map[string]HealthChecker
}

// RegisterHealthRoutes mounts /health and /health/ready.
func RegisterHealthRoutes(router *gin.Engine, opts HealthOptions) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": opts.ServiceName,
			"version": opts.ServiceVersion,
		})
	})

	router.GET("/health/ready", func(c *gin.Context) {
		results := make(map[string]string, len(opts.Checks))
		healthy := true
		for name, check := range opts.Checks {
			if err := check(); err != nil {
				results[name] = err.Error()
				healthy = false
				continue
			}
			results[name] = "ok"
		}

		status := http.StatusOK
		overall := "ready"
		if !healthy {
			status = http.StatusServiceUnavailable
			overall = "degraded"
		}
		c.JSON(status, gin.H{
			"status": overall,
			"checks": results,
		})
	})
}
