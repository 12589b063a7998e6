package health

import (
	"context"
	"sync"
	"time"
)

// defaultCheckTimeout 单项检查的默认超时
const defaultCheckTimeout = 2 * time.Second

// Aggregator 健康检查聚合器
type Aggregator struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
	now      func() time.Time
}

// NewAggregator 创建聚合器
func NewAggregator(checkers ...Checker) *Aggregator {
	return &Aggregator{checkers: checkers, timeout: defaultCheckTimeout, now: time.Now}
}

// SetTimeout 设置单项检查超时
func (a *Aggregator) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	a.mu.Lock()
	a.timeout = d
	a.mu.Unlock()
}

// AddChecker 添加检查器
func (a *Aggregator) AddChecker(c Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkers = append(a.checkers, c)
}

// CheckAll 并发执行全部检查
func (a *Aggregator) CheckAll(ctx context.Context) map[string]CheckResult {
	a.mu.RLock()
	checkers := append([]Checker(nil), a.checkers...)
	timeout := a.timeout
	a.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			res := c.Check(cctx)

			mu.Lock()
			results[c.Name()] = res
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return results
}

// HealthReport 健康报告
type HealthReport struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Report 执行全部检查并汇总：任一项 Unhealthy 则整体 Unhealthy，否则任一项 Degraded 则整体 Degraded
func (a *Aggregator) Report(ctx context.Context) HealthReport {
	checks := a.CheckAll(ctx)
	overall := StatusHealthy
	for _, r := range checks {
		overall = worst(overall, r.Status)
	}
	return HealthReport{Status: overall, Timestamp: a.now(), Checks: checks}
}

// OverallStatus 总体状态
func (a *Aggregator) OverallStatus(ctx context.Context) Status {
	return a.Report(ctx).Status
}

// Ready 是否可以接收流量；Degraded 仍视为就绪
func (a *Aggregator) Ready(ctx context.Context) bool {
	return a.OverallStatus(ctx) != StatusUnhealthy
}
