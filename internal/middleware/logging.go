package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// requestIDHeader はリクエストIDを受け渡すヘッダー名。
const requestIDHeader = "X-Request-ID"

// maxRequestIDLen は受け入れる外部リクエストIDの最大長。これを超える場合は再採番する。
const maxRequestIDLen = 64

// StatusRecorder はHTTPステータスを記録するインターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type StatusRecorder interface {
	RecordHTTPStatus(statusCode int)
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// requestID は受信したX-Request-IDを返す。未指定または長すぎる場合は新しいUUIDを採番する。
func requestID(r *http.Request) string {
	if id := r.Header.Get(requestIDHeader); id != "" && len(id) <= maxRequestIDLen {
		return id
	}
	return uuid.NewString()
}

// NewLoggingMiddleware はリクエストごとに1件のhttp_requestログを出力するミドルウェアを返す。
// ログにはrequest_id、method、path、status、duration_ms、account_id（認証済みの場合）を含む。
// リクエストIDはレスポンスヘッダーにも返す。statsがnilでない場合はステータスコードも記録する。
// セッションはこのミドルウェアより内側で読み込まれるため、内側で書き戻された値を参照する。
func NewLoggingMiddleware(logger *slog.Logger, stats StatusRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := requestID(r)
			w.Header().Set(requestIDHeader, reqID)

			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			holder := &sessionHolder{}
			next.ServeHTTP(rec, r.WithContext(contextWithSessionHolder(r.Context(), holder)))

			attrs := []slog.Attr{
				slog.String("request_id", reqID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			}
			if holder.accountID != "" {
				attrs = append(attrs, slog.String("account_id", holder.accountID))
			}

			logger.LogAttrs(r.Context(), levelForStatus(rec.statusCode), "http_request", attrs...)
			if stats != nil {
				stats.RecordHTTPStatus(rec.statusCode)
			}
		})
	}
}

// levelForStatus は5xxをERROR、4xxをWARN、それ以外をINFOにする。
func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
