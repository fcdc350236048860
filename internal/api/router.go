package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/muurk/pettracer/internal/channel"
	"github.com/muurk/pettracer/internal/devicestate"
	"github.com/muurk/pettracer/internal/logging"
	"go.uber.org/zap"
)

// Backend is what the API reads and controls. *tracker.Client implements it.
type Backend interface {
	Devices() []*devicestate.Snapshot
	Device(deviceID int) (*devicestate.Snapshot, bool)
	RemoveDevice(deviceID int) (bool, error)
	UpdateDeviceIDs(deviceIDs []int) error
	Status() channel.Status
}

// Options configures the router.
type Options struct {
	// AllowedOrigins for CORS. When empty no CORS headers are sent, so
	// browsers on other origins cannot call the API.
	AllowedOrigins []string
	// Debug enables gin debug mode.
	Debug bool
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(backend Backend, opts Options) *gin.Engine {
	switch {
	case gin.Mode() == gin.TestMode:
	case opts.Debug:
		gin.SetMode(gin.DebugMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(recoveryMiddleware())
	router.Use(loggingMiddleware())
	if len(opts.AllowedOrigins) > 0 {
		router.Use(corsMiddleware(opts.AllowedOrigins))
	}

	h := &handler{backend: backend, started: time.Now()}
	router.GET("/health", h.health)

	v1 := router.Group("/api/v1")
	v1.GET("/status", h.status)
	v1.GET("/devices", h.listDevices)
	v1.GET("/devices/:id", h.getDevice)
	v1.DELETE("/devices/:id", h.deleteDevice)
	v1.PUT("/tracked", h.updateTracked)

	return router
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = origins
	cfg.AllowMethods = []string{"GET", "PUT", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	cfg.ExposeHeaders = []string{"Content-Length"}
	return cors.New(cfg)
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func recoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.Error("HTTP handler panicked",
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
		)
		c.AbortWithStatusJSON(500, ErrorResponse{Error: "internal error"})
	})
}
