package app

import (
	"go.uber.org/zap"

	"github.com/taoyao-code/game-server/internal/action"
	"github.com/taoyao-code/game-server/internal/metrics"
)

// NewActionRegistry 汇总全部动作模块并完成一次性初始化。
// 配置错误（重复或空消息类型）直接返回，调用方应终止启动。
func NewActionRegistry(providers []action.Provider, appm *metrics.AppMetrics, logger *zap.Logger) (*action.Registry, error) {
	b := action.NewBuilder()
	for _, p := range providers {
		b.Include(p)
	}

	reg := action.NewRegistry(logger)
	if err := reg.Init(b.Descriptors()); err != nil {
		return nil, err
	}
	if appm != nil {
		appm.ActionsRegistered.Set(float64(reg.Len()))
	}
	return reg, nil
}
