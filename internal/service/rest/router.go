package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-service/internal/auth"
	"github.com/vladislavdragonenkov/orders-service/internal/metrics"
)

// RouterConfig собирает зависимости HTTP-слоя.
type RouterConfig struct {
	Handler *OrderHandler
	Secret  []byte
	Logger  *log.Entry
	// Metrics может быть nil — тогда middleware метрик не подключается.
	Metrics *metrics.HTTPMetrics
	// Health может быть nil — тогда /health всегда отвечает 200.
	Health gin.HandlerFunc
}

// NewRouter настраивает gin-роутер со всеми маршрутами сервиса.
// generate-token и /health открыты без аутентификации; остальные маршруты
// требуют валидный bearer-токен.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware())
	}

	health := cfg.Health
	if health == nil {
		health = func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		}
	}
	router.GET("/health", health)
	router.GET("/orders/generate-token", cfg.Handler.GenerateToken)

	authorized := router.Group("/", auth.Middleware(cfg.Secret, cfg.Logger))
	{
		authorized.GET("/orders/myorders", cfg.Handler.ListMyOrders)
		authorized.GET("/orders/myorders/:id", cfg.Handler.GetMyOrder)
		authorized.POST("/orders", cfg.Handler.CreateOrder)
		authorized.PATCH("/orders/:id", cfg.Handler.UpdateOrder)
		authorized.DELETE("/orders/:id", cfg.Handler.DeleteOrder)
		authorized.POST("/orders/process-order", cfg.Handler.ProcessOrder)
	}

	return router
}
