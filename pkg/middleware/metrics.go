package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// unmatchedRoute はどのルートにも一致しなかったリクエストのrouteラベル。
const unmatchedRoute = "unmatched"

// requestDurationBuckets はリクエスト処理時間のヒストグラムの境界（秒）。
var requestDurationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5}

// Metrics はHTTPリクエストのPrometheusメトリクスを収集する。
// サービスごとに独立したレジストリを持つ。
type Metrics struct {
	registry *prometheus.Registry
	duration *prometheus.HistogramVec
	requests *prometheus.CounterVec
}

// NewMetrics は namespace を接頭辞とするメトリクスを生成する。
// Goランタイムとプロセスのメトリクスも同じレジストリに登録する。
func NewMetrics(namespace string) *Metrics {
	labels := []string{"method", "route", "status_code"}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   requestDurationBuckets,
		}, labels),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, labels),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
		m.duration,
		m.requests,
	)
	return m
}

// MustRegister はサービス固有のコレクタを追加する。
func (m *Metrics) MustRegister(cs ...prometheus.Collector) {
	m.registry.MustRegister(cs...)
}

// Middleware はリクエストごとに処理時間と件数を記録するGinミドルウェアを返す。
// Recovery より前に置くと、パニックしたリクエストも500として記録される。
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := strconv.Itoa(c.Writer.Status())
		m.duration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.requests.WithLabelValues(c.Request.Method, route, status).Inc()
	}
}

// Handler はPrometheusのテキスト形式でメトリクスを返すハンドラを返す。
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}))
}
