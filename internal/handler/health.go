package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/vishesh2305/DAAN/internal/handler/response"
)

// HealthCheck reports liveness.
// @Router /health [get]
func HealthCheck(c *gin.Context) {
	response.Success(c, gin.H{
		"status":  "UP",
		"version": "1.0.0",
		"service": "daan-server",
	})
}
