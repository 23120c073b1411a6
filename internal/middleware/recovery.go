package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はハンドラーのpanicを回復し、統一形式の500レスポンスを返すミドルウェアを生成する。
// showStackがtrueの場合（本番以外）はレスポンスのdetailにpanic内容とスタックトレースを含める。
// http.ErrAbortHandlerは接続中断の合図のため再panicする。
func NewRecoveryMiddleware(logger *slog.Logger, showStack bool) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				stack := debug.Stack()
				logger.ErrorContext(r.Context(), "panic recovered",
					slog.Any("panic", rec),
					slog.String("request_id", w.Header().Get(requestIDHeader)),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(stack)),
				)

				var detail string
				if showStack {
					detail = fmt.Sprintf("%v\n%s", rec, stack)
				}
				WriteInternalServerError(w, detail)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
