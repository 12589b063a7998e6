package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/game-server/internal/lock"
	"github.com/taoyao-code/game-server/internal/tcpserver"
)

// RegistryState 动作注册表的只读视图
type RegistryState interface {
	Ready() bool
	Len() int
}

// RegistryChecker 动作注册表未完成初始化时 Unhealthy
type RegistryChecker struct {
	reg RegistryState
}

func NewRegistryChecker(reg RegistryState) *RegistryChecker { return &RegistryChecker{reg: reg} }

func (c *RegistryChecker) Name() string { return "actions" }

func (c *RegistryChecker) Check(context.Context) CheckResult {
	start := time.Now()
	if !c.reg.Ready() {
		return CheckResult{Status: StatusUnhealthy, Message: "action registry not initialized", Latency: time.Since(start)}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Details: map[string]any{"message_types": c.reg.Len()},
		Latency: time.Since(start),
	}
}

// GatewayChecker 根据连接限流器利用率判断网关容量
type GatewayChecker struct {
	limiter *tcpserver.ConnectionLimiter
}

func NewGatewayChecker(limiter *tcpserver.ConnectionLimiter) *GatewayChecker {
	return &GatewayChecker{limiter: limiter}
}

func (c *GatewayChecker) Name() string { return "gateway" }

func (c *GatewayChecker) Check(context.Context) CheckResult {
	start := time.Now()
	if c.limiter == nil {
		return CheckResult{Status: StatusHealthy, Message: "no limiting enabled", Latency: time.Since(start)}
	}

	st := c.limiter.Stats()
	status := StatusHealthy
	message := "ok"
	switch {
	case st.Utilization > 0.95:
		status = StatusUnhealthy
		message = "connection limit near exhausted"
	case st.Utilization > 0.8:
		status = StatusDegraded
		message = "high connection usage"
	}
	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]any{
			"active_connections": st.ActiveConnections,
			"max_connections":    st.MaxConnections,
			"rejected_total":     st.RejectedTotal,
			"utilization":        fmt.Sprintf("%.1f%%", st.Utilization*100),
		},
		Latency: time.Since(start),
	}
}

// BreakerView 锁熔断器状态视图
type BreakerView interface {
	State() lock.BreakerState
}

// LockChecker 锁后端熔断时 Degraded：只读请求仍可服务，写请求会失败
type LockChecker struct {
	breaker BreakerView
}

func NewLockChecker(b BreakerView) *LockChecker { return &LockChecker{breaker: b} }

func (c *LockChecker) Name() string { return "player_lock" }

func (c *LockChecker) Check(context.Context) CheckResult {
	start := time.Now()
	st := c.breaker.State()
	res := CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Details: map[string]any{"breaker": st.String()},
	}
	if st != lock.BreakerClosed {
		res.Status = StatusDegraded
		res.Message = "lock backend circuit " + st.String()
	}
	res.Latency = time.Since(start)
	return res
}
