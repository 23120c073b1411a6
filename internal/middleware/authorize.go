package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/npoportal/internal/model"
)

// OwnerResolver はリクエスト対象リソースの所有者アカウントIDを返す。
type OwnerResolver func(r *http.Request) (string, error)

// Gate はセッションのみを参照して認可を判定するミドルウェア群を提供する。
// API（/api/ で始まるパス）はJSONで、ページはログイン画面へのリダイレクトで応答する。
type Gate struct {
	loginPath string
	debug     bool
}

// NewGate はGateを生成する。loginPathが空の場合は /account/start を使う。
func NewGate(loginPath string, debug bool) *Gate {
	if loginPath == "" {
		loginPath = "/account/start"
	}
	return &Gate{loginPath: loginPath, debug: debug}
}

// RequireAuthenticated はセッションがない場合に401またはログイン画面へのリダイレクトを返す。
func (g *Gate) RequireAuthenticated() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if SessionFromContext(r.Context()) == nil {
				g.unauthorized(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole はセッションのロールが指定ロールのいずれでもない場合に403を返す。
// セッションがない場合はRequireAuthenticatedと同じ応答になる。
func (g *Gate) RequireRole(roles ...model.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := SessionFromContext(r.Context())
			if session == nil {
				g.unauthorized(w, r)
				return
			}
			for _, role := range roles {
				if session.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			slog.Warn("role check failed",
				slog.String("account_id", session.AccountID),
				slog.String("role", string(session.Role)),
				slog.String("path", r.URL.Path),
			)
			g.forbidden(w, r)
		})
	}
}

// RequireOwnershipOrAdmin は管理者またはリソース所有者のみを通過させる。
// resolveがエラーを返した場合は500を返す。
func (g *Gate) RequireOwnershipOrAdmin(resolve OwnerResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := SessionFromContext(r.Context())
			if session == nil {
				g.unauthorized(w, r)
				return
			}
			if session.Role == model.RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}

			ownerID, err := resolve(r)
			if err != nil {
				WriteError(w, r, err, g.debug)
				return
			}
			if ownerID == "" || ownerID != session.AccountID {
				g.forbidden(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Gate) unauthorized(w http.ResponseWriter, r *http.Request) {
	if isAPIPath(r.URL.Path) {
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	target := g.loginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (g *Gate) forbidden(w http.ResponseWriter, r *http.Request) {
	if isAPIPath(r.URL.Path) {
		WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
		return
	}
	http.Error(w, "forbidden", http.StatusForbidden)
}

func isAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}
