// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/npoportal/internal/auth"
	"github.com/hitoshi/npoportal/internal/middleware"
	"github.com/hitoshi/npoportal/internal/model"
)

// forgotPasswordMessage はアカウントの有無にかかわらず返す固定メッセージ。
const forgotPasswordMessage = "If an account exists for that email, a password reset link has been sent."

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Signup(ctx context.Context, in auth.SignupInput) (*auth.Result, error)
	Login(ctx context.Context, email, password string) (*auth.Result, error)
	AdminLogin(ctx context.Context, email, password string) (*auth.Result, error)
	Logout(ctx context.Context, sessionID string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	CreatePassword(ctx context.Context, token, password, confirmPassword string) (*auth.Result, error)
	RequestAccountStatus(ctx context.Context, email string) (auth.AccountStatus, error)
	GetCurrentAccount(ctx context.Context, session *model.Session) (*model.PublicAccount, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	Cookie middleware.CookieConfig
	Debug  bool // trueの場合、500応答にエラー内容を含める
}

// AuthHandler は認証APIのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type createPasswordRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// authResponse はセッションを確立した操作のレスポンス。
type authResponse struct {
	Token   string              `json:"token"`
	Account model.PublicAccount `json:"account"`
}

// Signup は参加者アカウントを作成する。
// POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupInput
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Signup(r.Context(), req)
	if err != nil {
		middleware.WriteError(w, r, err, h.config.Debug)
		return
	}

	h.respondWithSession(w, http.StatusCreated, result)
}

// Login は参加者向けの入口でログインする。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.service.Login)
}

// AdminLogin は管理者向けの入口でログインする。
// POST /api/auth/admin/login
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.service.AdminLogin)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, string) (*auth.Result, error)) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := fn(r.Context(), req.Email, req.Password)
	if err != nil {
		middleware.WriteError(w, r, err, h.config.Debug)
		return
	}

	h.respondWithSession(w, http.StatusOK, result)
}

// Logout はセッションを破棄する。セッションがなくても成功する。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := middleware.SessionFromContext(r.Context()); session != nil {
		if err := h.service.Logout(r.Context(), session.ID); err != nil {
			// 破棄に失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}

	middleware.ClearSessionCookie(w, h.config.Cookie)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out."})
}

// Me は現在のログインアカウントを返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetCurrentAccount(r.Context(), middleware.SessionFromContext(r.Context()))
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeUnauthorized {
			middleware.ClearSessionCookie(w, h.config.Cookie)
		}
		middleware.WriteError(w, r, err, h.config.Debug)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// ForgotPassword は再設定リンクを送信する。
// 形式が正しいメールアドレスに対しては、アカウントの有無にかかわらず同じ応答を返す。
// POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		middleware.WriteError(w, r, err, h.config.Debug)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: forgotPasswordMessage})
}

// ResetPassword は再設定トークンで新しいパスワードを設定する。自動ログインはしない。
// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		middleware.WriteError(w, r, err, h.config.Debug)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Your password has been reset. Please log in."})
}

// CreatePassword は作成トークンでパスワードを設定し、ログインさせる。
// POST /api/auth/create-password
func (h *AuthHandler) CreatePassword(w http.ResponseWriter, r *http.Request) {
	var req createPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.CreatePassword(r.Context(), req.Token, req.Password, req.ConfirmPassword)
	if err != nil {
		middleware.WriteError(w, r, err, h.config.Debug)
		return
	}

	h.respondWithSession(w, http.StatusOK, result)
}

// respondWithSession はセッションCookieを設定し、トークンとアカウントを返す。
func (h *AuthHandler) respondWithSession(w http.ResponseWriter, statusCode int, result *auth.Result) {
	middleware.SetSessionCookie(w, result.Session, h.config.Cookie)
	writeJSON(w, statusCode, authResponse{
		Token:   result.Token,
		Account: result.Account,
	})
}
