// Package httpapi — REST-интерфейс сервиса заказов на gin.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/agromarket/internal/health"
	"github.com/vladislavdragonenkov/agromarket/internal/metrics"
	"github.com/vladislavdragonenkov/agromarket/internal/version"
)

// RouterConfig — зависимости HTTP-роутера.
type RouterConfig struct {
	Orders *Handler
	Auth   Authenticator
	Health *health.Registry
	// MetricsHandler отдаёт /metrics (обычно promhttp.Handler()).
	MetricsHandler http.Handler
	HTTPMetrics    *metrics.HTTPMetrics
	Logger         *log.Entry
}

// NewRouter собирает gin-роутер: служебные маршруты без аутентификации, /orders за ней.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}
	auth := cfg.Auth
	if auth == nil {
		auth = HeaderAuthenticator{}
	}

	router := gin.New()
	router.Use(requestID(), recovery(logger), recordMetrics(cfg.HTTPMetrics), requestLogger(logger))

	if cfg.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}
	if cfg.Health != nil {
		router.GET("/healthz", cfg.Health.Healthz)
		router.GET("/readyz", cfg.Health.Readyz)
	}
	router.GET("/livez", health.Livez)
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, version.Get())
	})

	if cfg.Orders == nil {
		return router
	}

	h := cfg.Orders
	orders := router.Group("/orders", authenticate(auth))
	orders.POST("", h.CreateOrder)
	orders.GET("", h.ListMyOrders)
	orders.GET("/admin/all", h.ListAllOrders)
	orders.GET("/seller/me", h.ListSellerOrders)
	orders.GET("/seller/me/summary", h.SellerSummary)
	orders.GET("/:id", h.GetOrder)
	orders.GET("/:id/timeline", h.Timeline)
	orders.PUT("/:id/status", h.UpdateStatus)
	orders.PUT("/:id/cancel", h.CancelOrder)
	orders.PUT("/:id/pay", h.PayOrder)

	return router
}
