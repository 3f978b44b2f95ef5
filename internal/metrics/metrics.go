package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 快照流程的 Prometheus 指标，nil 接收者上的方法都是空操作
type Metrics struct {
	accountsDecoded *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	skipped         prometheus.Counter
	failures        prometheus.Counter
	snapshotSize    prometheus.Gauge
	aggregateTime   prometheus.Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init 初始化全局指标（幂等）
func Init() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			accountsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "anchor_snapshot_accounts_decoded_total",
				Help: "Accounts structurally decoded, by account type",
			}, []string{"account_type"}),
			fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "anchor_snapshot_accounts_fallback_total",
				Help: "Accounts recorded with discriminator only, by account type",
			}, []string{"account_type"}),
			skipped: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "anchor_snapshot_accounts_skipped_total",
				Help: "Accounts left out of the snapshot by the type allow-list",
			}),
			failures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "anchor_snapshot_decode_failures_total",
				Help: "Accounts that failed to decode",
			}),
			snapshotSize: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "anchor_snapshot_entries",
				Help: "Entries in the most recent snapshot",
			}),
			aggregateTime: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "anchor_snapshot_aggregate_seconds",
				Help:    "Time spent decoding and aggregating one snapshot",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			}),
		}
		prometheus.MustRegister(
			metrics.accountsDecoded,
			metrics.fallbacks,
			metrics.skipped,
			metrics.failures,
			metrics.snapshotSize,
			metrics.aggregateTime,
		)
	})
	return metrics
}

func (m *Metrics) AccountDecoded(accountType string) {
	if m != nil {
		m.accountsDecoded.WithLabelValues(accountType).Inc()
	}
}

func (m *Metrics) AccountFallback(accountType string) {
	if m != nil {
		m.fallbacks.WithLabelValues(accountType).Inc()
	}
}

func (m *Metrics) AccountSkipped() {
	if m != nil {
		m.skipped.Inc()
	}
}

func (m *Metrics) DecodeFailed() {
	if m != nil {
		m.failures.Inc()
	}
}

// SnapshotDone 记录一次聚合的条目数与耗时（秒）
func (m *Metrics) SnapshotDone(entries int, seconds float64) {
	if m != nil {
		m.snapshotSize.Set(float64(entries))
		m.aggregateTime.Observe(seconds)
	}
}

// Handler 返回 /metrics 的 HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
