// Package api is the HTTP surface of the order core.
package api

import (
	"net/http"

	"ordercore/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig carries the collaborators of the HTTP surface. Auth defaults to
// HeaderAuthenticator; Metrics is optional.
type RouterConfig struct {
	Orders  OrderService
	Auth    Authenticator
	Logger  *zap.Logger
	Metrics *metrics.Registry
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	auth := cfg.Auth
	if auth == nil {
		auth = HeaderAuthenticator{}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(Logger(logger))
	if cfg.Metrics != nil {
		router.Use(Metrics(cfg.Metrics.Server))
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	h := NewOrderHandler(cfg.Orders, logger)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "ordercore"})
		})

		orders := v1.Group("/orders", RequireIdentity(auth, logger))
		orders.POST("", h.CreateOrder)
		orders.POST("/from-cart", h.CreateOrderFromCart)
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.PATCH("/:id/status", RequireAdmin(), h.UpdateStatus)
	}
	return router
}
