package router

import (
	"context"
	"net/http"
	"time"

	"github.com/Viewly/token-contracts/internal/chain"
	"github.com/Viewly/token-contracts/internal/handler"
	"github.com/Viewly/token-contracts/internal/logger"
	"github.com/Viewly/token-contracts/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthFunc 返回节点连接状态，合并到 /health 响应中
type HealthFunc func(ctx context.Context) map[string]interface{}

// Setup 注册只读 API，gatherer 为空时不暴露 /metrics，health 为空时不检查节点
func Setup(repo *repository.PayoutRepository, network chain.Network, gatherer prometheus.Gatherer, health HealthFunc) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(requestLogger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":  "ok",
			"service": "token-distributor",
			"chain":   network.Name,
		}
		code := http.StatusOK
		if health != nil {
			for k, v := range health(c.Request.Context()) {
				body[k] = v
			}
			// 节点不可用时定时任务无法推进
			if body["client_status"] != "connected" {
				body["status"] = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		c.JSON(code, body)
	})

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// API版本组
	v1 := r.Group("/api/v1")
	{
		payoutHandler := handler.NewPayoutHandler(repo, network)
		payouts := v1.Group("/payouts")
		{
			payouts.GET("", payoutHandler.GetPayouts)
			payouts.GET("/stats", payoutHandler.GetPayoutStats)
			payouts.GET("/:id", payoutHandler.GetPayout)
		}
	}

	return r
}

// requestLogger 使用应用日志记录请求
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
