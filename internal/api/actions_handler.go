package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/game-server/internal/action"
	"github.com/taoyao-code/game-server/internal/dispatch"
)

// Bindings 动作表只读视图（由 action.Registry 实现）
type Bindings interface {
	Ready() bool
	Bindings() []action.Route
	Resolve(messageType string) (action.Route, error)
}

// Dispatcher 请求调度能力（由 dispatch.Dispatcher 实现）
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (any, error)
}

// ActionView 动作绑定的 JSON 视图
type ActionView struct {
	MessageType string `json:"message_type"`
	Owner       string `json:"owner"`
	ReadOnly    bool   `json:"read_only"`
}

// DispatchRequest POST /api/v1/dispatch 请求体
type DispatchRequest struct {
	Type     string          `json:"type" binding:"required"`
	PlayerID int64           `json:"player_id" binding:"gte=0"`
	Payload  json.RawMessage `json:"payload"`
}

// ActionsHandler 动作表查询与联调调度
type ActionsHandler struct {
	reg    Bindings
	d      Dispatcher
	logger *zap.Logger
}

// NewActionsHandler 创建处理器；d 为 nil 时不提供调度接口
func NewActionsHandler(reg Bindings, d Dispatcher, logger *zap.Logger) *ActionsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActionsHandler{reg: reg, d: d, logger: logger}
}

func viewOf(r action.Route) ActionView {
	return ActionView{MessageType: r.MessageType, Owner: r.Owner, ReadOnly: r.ReadOnly}
}

// ListActions GET /api/v1/actions
func (h *ActionsHandler) ListActions(c *gin.Context) {
	if !h.reg.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": dispatch.StatusNotReady})
		return
	}
	routes := h.reg.Bindings()
	out := make([]ActionView, 0, len(routes))
	for _, r := range routes {
		out = append(out, viewOf(r))
	}
	c.JSON(http.StatusOK, gin.H{"actions": out, "total": len(out)})
}

// GetAction GET /api/v1/actions/:type
func (h *ActionsHandler) GetAction(c *gin.Context) {
	r, err := h.reg.Resolve(c.Param("type"))
	switch {
	case errors.Is(err, action.ErrNotReady):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": dispatch.StatusNotReady})
	case errors.Is(err, action.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": dispatch.StatusNoAction, "message_type": c.Param("type")})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, viewOf(r))
	}
}

// Dispatch POST /api/v1/dispatch：与 TCP 网关走同一条调度路径
func (h *ActionsHandler) Dispatch(c *gin.Context) {
	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "bad_request", "error": err.Error()})
		return
	}

	dreq := dispatch.Request{MessageType: req.Type, PlayerID: req.PlayerID}
	if len(req.Payload) > 0 {
		dreq.Payload = req.Payload
	}
	resp, err := h.d.Dispatch(c.Request.Context(), dreq)
	if err != nil {
		status := dispatch.StatusOf(err)
		h.logger.Info("debug dispatch failed",
			zap.String("message_type", req.Type),
			zap.Int64("player_id", req.PlayerID),
			zap.String("status", status),
			zap.Error(err))
		body := gin.H{"status": status, "error": err.Error()}
		// 业务错误可能附带响应（与 TCP 网关回包一致）
		if resp != nil {
			body["payload"] = resp
		}
		c.JSON(httpCodeOf(status), body)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": dispatch.StatusOK, "payload": resp})
}

func httpCodeOf(status string) int {
	switch status {
	case dispatch.StatusNoAction:
		return http.StatusNotFound
	case dispatch.StatusLockFailed:
		return http.StatusConflict
	case dispatch.StatusNotReady:
		return http.StatusServiceUnavailable
	case dispatch.StatusHandlerFault:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}
