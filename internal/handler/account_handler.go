package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/npoportal/internal/middleware"
	"github.com/hitoshi/npoportal/internal/model"
)

// AccountServiceInterface はアカウント管理ハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	// Get は指定IDのアカウントの公開項目を返す。
	Get(ctx context.Context, id string) (*model.PublicAccount, error)
	// ListParticipants は寄付者と退会済みを除いたアカウント一覧を返す。
	ListParticipants(ctx context.Context) ([]model.PublicAccount, error)
	// SetRole は参加者と管理者のロールを切り替える。
	SetRole(ctx context.Context, id string, role model.Role) (*model.PublicAccount, error)
	// Delete はアカウントを論理削除する。
	Delete(ctx context.Context, id string) error
}

// SessionRevoker は自分自身を削除した際にセッションを破棄するためのインターフェース。
type SessionRevoker interface {
	Logout(ctx context.Context, sessionID string) error
}

// AccountHandler はアカウント管理のHTTPハンドラー。
type AccountHandler struct {
	service AccountServiceInterface
	revoker SessionRevoker
	cookie  middleware.CookieConfig
	debug   bool
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface, revoker SessionRevoker, cookie middleware.CookieConfig, debug bool) *AccountHandler {
	return &AccountHandler{
		service: service,
		revoker: revoker,
		cookie:  cookie,
		debug:   debug,
	}
}

type setRoleRequest struct {
	Role model.Role `json:"role"`
}

// accountListResponse はアカウント一覧のAPIレスポンス。
type accountListResponse struct {
	Accounts []model.PublicAccount `json:"accounts"`
}

// List は参加者一覧を返す。
// GET /api/accounts
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListParticipants(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err, h.debug)
		return
	}

	writeJSON(w, http.StatusOK, accountListResponse{Accounts: accounts})
}

// Get はアカウントを返す。
// GET /api/accounts/{id}
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err, h.debug)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// SetRole はアカウントのロールを変更する。
// 対象アカウントの既存セッションは再ログインまで古いロールのまま残る。
// PUT /api/accounts/{id}/role
func (h *AccountHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.service.SetRole(r.Context(), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		middleware.WriteError(w, r, err, h.debug)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// Delete はアカウントを論理削除する。本人による削除の場合はセッションも破棄する。
// DELETE /api/accounts/{id}
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), id); err != nil {
		middleware.WriteError(w, r, err, h.debug)
		return
	}

	if session := middleware.SessionFromContext(r.Context()); session != nil && session.AccountID == id {
		if err := h.revoker.Logout(r.Context(), session.ID); err != nil {
			slog.Error("failed to revoke session after self delete",
				slog.String("account_id", id),
				slog.String("error", err.Error()),
			)
		}
		middleware.ClearSessionCookie(w, h.cookie)
	}

	w.WriteHeader(http.StatusNoContent)
}

// accountOwner はアカウントリソースの所有者（アカウント自身）のIDを返す。
func accountOwner(r *http.Request) (string, error) {
	return chi.URLParam(r, "id"), nil
}
