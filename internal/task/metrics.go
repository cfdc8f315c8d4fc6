package task

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 发放与核对的计数器，未注册时只是空操作
type Metrics struct {
	records  *prometheus.CounterVec
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec

	registerOnce sync.Once
}

// NewMetrics 创建并注册计数器，registry 为空时不注册
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{}
	m.Register(registry)
	return m
}

// Register 注册到给定的 registry，重复调用无效
func (m *Metrics) Register(registry prometheus.Registerer) {
	if registry == nil {
		return
	}

	m.registerOnce.Do(func() {
		factory := promauto.With(registry)

		m.records = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "distributor_payout_records_total",
			Help: "Payout records processed, by job and outcome",
		}, []string{"job", "outcome"})

		m.runs = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "distributor_job_runs_total",
			Help: "Job runs, by job and result",
		}, []string{"job", "result"})

		m.duration = factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "distributor_job_duration_seconds",
			Help:    "Job run duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"})
	})
}

func (m *Metrics) observeRecord(job string, outcome Outcome) {
	if m == nil || m.records == nil {
		return
	}
	m.records.WithLabelValues(job, string(outcome)).Inc()
}

func (m *Metrics) observeRun(job string, err error, seconds float64) {
	if m == nil || m.runs == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.runs.WithLabelValues(job, result).Inc()
	m.duration.WithLabelValues(job).Observe(seconds)
}
