package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterHTTPRoutes 注册健康检查路由
//
//	GET /healthz  存活探针，进程能响应即为存活
//	GET /readyz   就绪探针，聚合检查不为 Unhealthy 时返回 200
//	GET /health   详细健康报告
func RegisterHTTPRoutes(r gin.IRoutes, agg *Aggregator) {
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	r.GET("/readyz", func(c *gin.Context) {
		if !agg.Ready(c.Request.Context()) {
			c.String(http.StatusServiceUnavailable, "not-ready")
			return
		}
		c.String(http.StatusOK, "ready")
	})

	r.GET("/health", func(c *gin.Context) {
		report := agg.Report(c.Request.Context())
		code := http.StatusOK
		if report.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, report)
	})
}
