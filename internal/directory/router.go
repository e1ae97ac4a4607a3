package directory

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/middleware"
)

// HealthFunc reports the service's liveness details (consumer state,
// connection state). The endpoint always answers 200; degraded states show in
// the body for monitoring to act on.
type HealthFunc func() gin.H

// NewRouter creates and configures the Gin router for the directory service.
func NewRouter(h *Handler, health HealthFunc) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CorrelationID())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, health())
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/users", h.ListUsers)
	r.GET("/users/summary", h.GetSummary)
	r.GET("/users/:id", h.GetUser)
	r.PUT("/users/:id", h.UpdateUser)
	r.DELETE("/users/:id", h.DeleteUser)

	return r
}
