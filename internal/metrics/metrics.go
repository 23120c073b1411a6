// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン経路のラベル値
const (
	EntryParticipant = "participant"
	EntryAdmin       = "admin"
	EntryDev         = "dev"
)

// 結果ラベル値
const (
	ResultSuccess            = "success"
	ResultInvalidCredentials = "invalid_credentials"
	ResultPasswordNotSet     = "password_not_set"
	ResultInvalidToken       = "invalid_token"
	ResultAlreadyUsed        = "already_used"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービスやHTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordLogin(entry, result string)
	RecordTokenIssued(purpose string)
	RecordTokenRedeemed(purpose, result string)
	RecordNotifierFailure()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins         *prometheus.CounterVec
	tokensIssued   *prometheus.CounterVec
	tokensRedeemed *prometheus.CounterVec
	notifierFail   prometheus.Counter
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "npoportal_login_total",
			Help: "ログイン試行の合計数（経路・結果別）",
		}, []string{"entry", "result"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "npoportal_password_tokens_issued_total",
			Help: "発行したパスワードトークンの合計数",
		}, []string{"purpose"}),
		tokensRedeemed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "npoportal_password_tokens_redeemed_total",
			Help: "パスワードトークン引き換え試行の合計数",
		}, []string{"purpose", "result"}),
		notifierFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "npoportal_notifier_failures_total",
			Help: "メール送信失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "npoportal_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.logins,
		c.tokensIssued,
		c.tokensRedeemed,
		c.notifierFail,
		c.httpStatus,
	)

	return c
}

// RecordLogin はログイン試行を記録する。
func (c *Collector) RecordLogin(entry, result string) {
	c.logins.WithLabelValues(entry, result).Inc()
}

// RecordTokenIssued はトークン発行を記録する。
func (c *Collector) RecordTokenIssued(purpose string) {
	c.tokensIssued.WithLabelValues(purpose).Inc()
}

// RecordTokenRedeemed はトークン引き換え試行を記録する。
func (c *Collector) RecordTokenRedeemed(purpose, result string) {
	c.tokensRedeemed.WithLabelValues(purpose, result).Inc()
}

// RecordNotifierFailure はメール送信失敗を記録する。
func (c *Collector) RecordNotifierFailure() {
	c.notifierFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordLogin(string, string)         {}
func (Nop) RecordTokenIssued(string)           {}
func (Nop) RecordTokenRedeemed(string, string) {}
func (Nop) RecordNotifierFailure()             {}
func (Nop) RecordHTTPStatus(int)               {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
