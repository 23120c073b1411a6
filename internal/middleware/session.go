// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/npoportal/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	sessionContextKey       = contextKey("session")
	sessionHolderContextKey = contextKey("session_holder")
	csrfTokenContextKey     = contextKey("csrf_token")
)

// sessionHolder はロギングミドルウェアが内側で読み込まれたセッションを参照するための入れ物。
type sessionHolder struct {
	accountID string
}

func contextWithSessionHolder(ctx context.Context, h *sessionHolder) context.Context {
	return context.WithValue(ctx, sessionHolderContextKey, h)
}

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionStoreの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// BearerVerifier はBearerトークンを検証してセッションIDを取り出す。
type BearerVerifier interface {
	SessionID(token string) (string, error)
}

// NewSessionLoader はCookieまたはAuthorization: Bearerからセッションを読み取り、
// 有効なセッションをリクエストコンテキストに注入するミドルウェアを返す。
// セッションがなくてもリクエストは拒否しない。拒否はRequire系ミドルウェアが行う。
// bearerがnilの場合はCookieのみを参照する。
func NewSessionLoader(finder SessionFinder, bearer BearerVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, id := range sessionIDCandidates(r, bearer) {
				session, err := finder.FindByID(r.Context(), id)
				if err != nil {
					slog.Error("failed to find session",
						slog.String("error", err.Error()),
					)
					break
				}
				if session != nil {
					r = r.WithContext(ContextWithSession(r.Context(), session))
					break
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// sessionIDCandidates はCookie、Bearerトークンの順にセッションIDの候補を返す。
func sessionIDCandidates(r *http.Request, bearer BearerVerifier) []string {
	var ids []string
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		ids = append(ids, cookie.Value)
	}
	if bearer == nil {
		return ids
	}
	if token, ok := bearerToken(r); ok {
		if id, err := bearer.SessionID(token); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
// 未認証の場合はnilを返す。
func SessionFromContext(ctx context.Context) *model.Session {
	session, _ := ctx.Value(sessionContextKey).(*model.Session)
	return session
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	if h, ok := ctx.Value(sessionHolderContextKey).(*sessionHolder); ok && session != nil {
		h.accountID = session.AccountID
	}
	return context.WithValue(ctx, sessionContextKey, session)
}

// SetSessionCookie はセッションCookieを設定する。
func SetSessionCookie(w http.ResponseWriter, session *model.Session, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie はセッションCookieを削除する。
func ClearSessionCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	Domain string
	Secure bool
	MaxAge int // 秒
}
