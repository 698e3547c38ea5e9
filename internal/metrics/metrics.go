// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 再提示の結果ラベル
const (
	ProposalAccepted          = "accepted"
	ProposalDeadlinePassed    = "deadline_passed"
	ProposalAttemptsExhausted = "attempts_exhausted"
	ProposalRejected          = "rejected"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とHTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordNegotiationCreated()
	RecordDuplicateRejected()
	RecordResponse(accepted bool)
	RecordProposal(outcome string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	created        prometheus.Counter
	duplicates     prometheus.Counter
	responses      *prometheus.CounterVec
	proposals      *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "negotiator_negotiations_created_total",
			Help: "作成された価格交渉の合計数",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "negotiator_negotiations_duplicate_total",
			Help: "重複によって拒否された交渉作成の合計数",
		}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "negotiator_responses_total",
			Help: "販売者の回答数（結果別）",
		}, []string{"outcome"}),
		proposals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "negotiator_proposals_total",
			Help: "再提示の処理数（結果別）",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "negotiator_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "negotiator_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.created,
		c.duplicates,
		c.responses,
		c.proposals,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordNegotiationCreated は交渉作成を記録する。
func (c *Collector) RecordNegotiationCreated() {
	c.created.Inc()
}

// RecordDuplicateRejected は重複による作成拒否を記録する。
func (c *Collector) RecordDuplicateRejected() {
	c.duplicates.Inc()
}

// RecordResponse は販売者の回答を記録する。
func (c *Collector) RecordResponse(accepted bool) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	c.responses.WithLabelValues(outcome).Inc()
}

// RecordProposal は再提示の結果を記録する。
func (c *Collector) RecordProposal(outcome string) {
	c.proposals.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordNegotiationCreated()          {}
func (Nop) RecordDuplicateRejected()           {}
func (Nop) RecordResponse(bool)                {}
func (Nop) RecordProposal(string)              {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// statusRecorder はレスポンスのステータスコードを記録するラッパー。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware はレスポンスのステータスコードと処理時間を記録するミドルウェアを返す。
func Middleware(c MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			c.RecordHTTPStatus(rec.status)
			c.RecordRequestLatency(time.Since(start))
		})
	}
}
