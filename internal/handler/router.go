package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/npoportal/internal/middleware"
	"github.com/hitoshi/npoportal/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	BearerVerifier    middleware.BearerVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig
	Logger            *slog.Logger
	StatusRecorder    middleware.StatusRecorder
	MetricsHandler    http.Handler // nilの場合 /metrics は登録しない
	Debug             bool         // 本番以外でtrue。500応答に詳細を含める

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig
	PageConfig  PageConfig

	// アカウント管理
	AccountService AccountServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → SessionLoader → CSRF → RateLimit(General)
//
// /health と /metrics はセッション以降のチェーンの外に配置する。
// 資格情報を受け取るエンドポイントにはIP単位のレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.CSRF.CookieSecure))
	r.Use(middleware.NewRecoveryMiddleware(logger, deps.Debug))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))

	// --- セッション不要のルート ---
	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	gate := middleware.NewGate(deps.PageConfig.StartPath, deps.Debug)
	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	accountHandler := NewAccountHandler(deps.AccountService, deps.AuthService, deps.AuthConfig.Cookie, deps.Debug)
	pages := NewPageHandler(deps.AuthService, deps.PageConfig)
	authLimit := deps.RateLimiter.AuthMiddleware()

	// --- セッションを読み込むルート ---
	// ミドルウェアスタック: SessionLoader → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionLoader(deps.SessionFinder, deps.BearerVerifier))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

		// 認証API
		r.Route("/api/auth", func(r chi.Router) {
			r.With(authLimit).Post("/signup", authHandler.Signup)
			r.With(authLimit).Post("/login", authHandler.Login)
			r.With(authLimit).Post("/admin/login", authHandler.AdminLogin)
			r.With(authLimit).Post("/forgot-password", authHandler.ForgotPassword)
			r.With(authLimit).Post("/reset-password", authHandler.ResetPassword)
			r.With(authLimit).Post("/create-password", authHandler.CreatePassword)
			r.Post("/logout", authHandler.Logout)
			r.With(gate.RequireAuthenticated()).Get("/me", authHandler.Me)
		})

		// アカウント管理API
		r.Route("/api/accounts", func(r chi.Router) {
			r.With(gate.RequireRole(model.RoleAdmin)).Get("/", accountHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.With(gate.RequireOwnershipOrAdmin(accountOwner)).Get("/", accountHandler.Get)
				r.With(gate.RequireOwnershipOrAdmin(accountOwner)).Delete("/", accountHandler.Delete)
				r.With(gate.RequireRole(model.RoleAdmin)).Put("/role", accountHandler.SetRole)
			})
		})

		// サーバー描画ページ
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, pages.config.HomePath, http.StatusSeeOther)
		})
		r.Route("/account", func(r chi.Router) {
			r.With(gate.RequireAuthenticated()).Get("/", pages.Home)
			r.Post("/logout", pages.Logout)

			r.Get("/start", pages.Start)
			r.With(authLimit).Post("/start", pages.SubmitStart)
			r.Get("/existing", pages.Existing)
			r.With(authLimit).Post("/existing", pages.SubmitExisting)
			r.Get("/create-password", pages.CreatePassword)
			r.With(authLimit).Post("/create-password", pages.SubmitCreatePassword)
			r.Get("/forgot-password", pages.ForgotPassword)
			r.With(authLimit).Post("/forgot-password", pages.SubmitForgotPassword)
			r.Get("/reset-password", pages.ResetPassword)
			r.With(authLimit).Post("/reset-password", pages.SubmitResetPassword)
		})
	})

	return r
}
