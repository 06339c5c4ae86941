package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/agromarket/internal/metrics"
)

const (
	headerRequestID     = "X-Request-ID"
	requestIDContextKey = "agromarket.request_id"
)

// requestID берёт X-Request-ID клиента или выдаёт новый.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDContextKey, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// requestLogger пишет одну строку logrus на запрос.
func requestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := logger.WithFields(log.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      status,
			"duration_ms": time.Since(started).Milliseconds(),
			"client_ip":   c.ClientIP(),
			"request_id":  c.GetString(requestIDContextKey),
		})
		if actor := actorFrom(c); actor.ID != "" {
			entry = entry.WithField("actor_id", actor.ID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request completed")
		case status >= http.StatusBadRequest:
			entry.Warn("request completed")
		default:
			entry.Info("request completed")
		}
	}
}

func recordMetrics(m *metrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		m.Observe(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(started))
	}
}

// recovery превращает панику в 500 с общим конвертом.
func recovery(logger *log.Entry) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.WithFields(log.Fields{
			"panic":      recovered,
			"route":      c.FullPath(),
			"request_id": c.GetString(requestIDContextKey),
		}).Error("handler panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError, envelope{
			Success: false,
			Message: "internal error",
			Error:   "PersistenceFailure",
		})
	})
}
