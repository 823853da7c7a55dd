// =============================================================================
// 文件: internal/metrics/metrics.go
// 描述: 试验级指标 - 试验结果计数、节拍分布、运行中试验数
// =============================================================================
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// 试验结果标签
const (
	ResultConverged = "converged"
	ResultFailed    = "failed"
)

// TrialMetrics 试验级指标
type TrialMetrics struct {
	trials  *prometheus.CounterVec
	ticks   prometheus.Histogram
	running prometheus.Gauge

	mu        sync.Mutex
	inFlight  int
	completed int
	failed    int
}

// NewTrialMetrics 创建试验指标
func NewTrialMetrics() *TrialMetrics {
	return &TrialMetrics{
		trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harness",
			Name:      "trials_total",
			Help:      "Finished transfer trials by result",
		}, []string{"result"}),
		ticks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "harness",
			Name:      "trial_ticks",
			Help:      "Ticks needed for a trial to finish",
			Buckets:   prometheus.ExponentialBuckets(8, 2, 12),
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "harness",
			Name:      "trials_running",
			Help:      "Trials currently running",
		}),
	}
}

// Register 注册到 registry
func (m *TrialMetrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.trials, m.ticks, m.running} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Started 试验开始
func (m *TrialMetrics) Started() {
	m.mu.Lock()
	m.inFlight++
	m.mu.Unlock()
	m.running.Inc()
}

// Finished 试验结束
func (m *TrialMetrics) Finished(ticks int, converged bool) {
	m.mu.Lock()
	m.inFlight--
	if converged {
		m.completed++
	} else {
		m.failed++
	}
	m.mu.Unlock()

	m.running.Dec()
	m.ticks.Observe(float64(ticks))
	if converged {
		m.trials.WithLabelValues(ResultConverged).Inc()
	} else {
		m.trials.WithLabelValues(ResultFailed).Inc()
	}
}

// Health 根据试验进度生成健康状态
func (m *TrialMetrics) Health() HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := "healthy"
	if m.failed > 0 {
		status = "degraded"
	}
	return HealthStatus{
		Status:    status,
		Running:   m.inFlight,
		Completed: m.completed,
		Failed:    m.failed,
	}
}
