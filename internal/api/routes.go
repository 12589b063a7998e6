package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/game-server/internal/api/middleware"
	cfgpkg "github.com/taoyao-code/game-server/internal/config"
)

// RegisterRoutes 注册管理接口
//
//	GET  /api/v1/actions        动作表
//	GET  /api/v1/actions/:type  单个消息类型的绑定
//	POST /api/v1/dispatch       联调调度（http.debugDispatch 开启时）
func RegisterRoutes(r gin.IRouter, h *ActionsHandler, cfg cfgpkg.HTTPConfig, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	v1 := r.Group("/api/v1")
	if cfg.Auth.Enabled {
		v1.Use(middleware.APIKeyAuth(cfg.Auth, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(cfg.Auth.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	v1.GET("/actions", h.ListActions)
	v1.GET("/actions/:type", h.GetAction)

	if cfg.DebugDispatch && h.d != nil {
		v1.POST("/dispatch", h.Dispatch)
		logger.Warn("debug dispatch endpoint enabled")
	}
}
