package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	TCPAccepted       prometheus.Counter
	TCPBytesReceived  prometheus.Counter
	GatewayRejected   *prometheus.CounterVec   // labels: reason=conn_limit|rate_limit|frame_too_large
	OnlineGauge       prometheus.Gauge         // 当前连接数
	ActionsRegistered prometheus.Gauge         // 已注册的消息类型数
	DispatchTotal     *prometheus.CounterVec   // labels: message_type, result
	DispatchDuration  *prometheus.HistogramVec // labels: message_type
	LockWait          prometheus.Histogram
	LockFailures      prometheus.Counter
	LockReleaseErrors prometheus.Counter
	LockBreakerState  prometheus.Gauge // 0=closed 1=open 2=half_open
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		TCPAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_accept_total",
			Help: "Total accepted TCP connections.",
		}),
		TCPBytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_bytes_received_total",
			Help: "Total bytes received over TCP.",
		}),
		GatewayRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_rejected_total",
			Help: "Connections or frames rejected by the gateway.",
		}, []string{"reason"}),
		OnlineGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_connections",
			Help: "Current number of open gateway connections.",
		}),
		ActionsRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "action_registered_total",
			Help: "Number of message types bound to an action.",
		}),
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_total",
			Help: "Dispatched requests by message type and result.",
		}, []string{"message_type", "result"}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispatch_duration_seconds",
			Help:    "Dispatch latency including player lock wait.",
			Buckets: prometheus.DefBuckets,
		}, []string{"message_type"}),
		LockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "player_lock_wait_seconds",
			Help:    "Time spent waiting for the per-player lock.",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
		}),
		LockFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "player_lock_failures_total",
			Help: "Per-player lock acquisitions that failed.",
		}),
		LockReleaseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "player_lock_release_errors_total",
			Help: "Per-player lock releases that reported an error.",
		}),
		LockBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "player_lock_breaker_state",
			Help: "Lock backend circuit breaker state (0=closed, 1=open, 2=half_open).",
		}),
	}
	reg.MustRegister(
		m.TCPAccepted, m.TCPBytesReceived, m.GatewayRejected, m.OnlineGauge,
		m.ActionsRegistered, m.DispatchTotal, m.DispatchDuration,
		m.LockWait, m.LockFailures, m.LockReleaseErrors, m.LockBreakerState,
	)
	return m
}

// ObserveDispatch 记录一次调度结果
func (m *AppMetrics) ObserveDispatch(messageType, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(messageType, result).Inc()
	m.DispatchDuration.WithLabelValues(messageType).Observe(d.Seconds())
}
