package handler

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/npoportal/internal/auth"
	"github.com/hitoshi/npoportal/internal/middleware"
	"github.com/hitoshi/npoportal/internal/model"
)

const (
	// existingAccountMessage は既存参加者ページで照会結果によらず表示する文言。
	existingAccountMessage = "If that email belongs to a participant account, you can log in with your password. " +
		"If no password has been set yet, we have emailed you a link to create one."

	resetDoneMessage = "Your password has been reset. You can now log in."

	pageErrorMessage = "Something went wrong. Please try again later."
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = parsePageTemplates(
	"start.html",
	"existing.html",
	"create_password.html",
	"forgot_password.html",
	"reset_password.html",
	"home.html",
)

func parsePageTemplates(names ...string) map[string]*template.Template {
	set := make(map[string]*template.Template, len(names))
	for _, name := range names {
		set[name] = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+name))
	}
	return set
}

// PageConfig はサーバー描画ページの設定。
type PageConfig struct {
	Cookie    middleware.CookieConfig
	HomePath  string // ログイン後の遷移先。空の場合は /account
	StartPath string // ログイン画面。空の場合は /account/start
}

// PageHandler はアカウント関連のサーバー描画ページを提供する。
// JSON APIと同じワークフロー操作を呼び出し、結果をHTMLで返す。
type PageHandler struct {
	service AuthServiceInterface
	config  PageConfig
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(service AuthServiceInterface, config PageConfig) *PageHandler {
	if config.HomePath == "" {
		config.HomePath = "/account"
	}
	if config.StartPath == "" {
		config.StartPath = "/account/start"
	}
	return &PageHandler{service: service, config: config}
}

// pageData はテンプレートに渡す値。
type pageData struct {
	Title     string
	CSRFField string
	CSRFToken string
	Error     string
	Notice    string
	Next      string
	Token     string
	Form      url.Values
	Account   *model.PublicAccount
}

// Start はログインとサインアップのフォームを表示する。
// GET /account/start
func (h *PageHandler) Start(w http.ResponseWriter, r *http.Request) {
	if middleware.SessionFromContext(r.Context()) != nil {
		http.Redirect(w, r, h.config.HomePath, http.StatusSeeOther)
		return
	}
	h.render(w, r, "start.html", http.StatusOK, &pageData{
		Title: "Participant portal",
		Next:  r.URL.Query().Get("next"),
	})
}

// SubmitStart はログインまたはサインアップのフォーム送信を処理する。
// POST /account/start
func (h *PageHandler) SubmitStart(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, "start.html", &pageData{Title: "Participant portal"}, model.NewValidationError("Form could not be read"))
		return
	}
	form := r.PostForm
	data := &pageData{
		Title: "Participant portal",
		Next:  form.Get("next"),
		Form:  url.Values{},
	}

	var (
		result *auth.Result
		err    error
	)
	if form.Get("intent") == "signup" {
		for _, key := range []string{"firstName", "lastName", "email", "phone", "address", "city", "state", "zip", "fieldOfInterest"} {
			data.Form.Set(key, form.Get(key))
		}
		result, err = h.service.Signup(r.Context(), auth.SignupInput{
			Email:           form.Get("email"),
			Password:        form.Get("password"),
			FirstName:       form.Get("firstName"),
			LastName:        form.Get("lastName"),
			Phone:           form.Get("phone"),
			Address:         form.Get("address"),
			City:            form.Get("city"),
			State:           form.Get("state"),
			Zip:             form.Get("zip"),
			FieldOfInterest: form.Get("fieldOfInterest"),
		})
	} else {
		data.Form.Set("email", form.Get("email"))
		result, err = h.service.Login(r.Context(), form.Get("email"), form.Get("password"))
	}
	if err != nil {
		h.renderError(w, r, "start.html", data, err)
		return
	}

	middleware.SetSessionCookie(w, result.Session, h.config.Cookie)
	http.Redirect(w, r, h.safeNext(data.Next), http.StatusSeeOther)
}

// Existing は既存参加者の照会フォームを表示する。
// GET /account/existing
func (h *PageHandler) Existing(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "existing.html", http.StatusOK, &pageData{Title: "Existing participants"})
}

// SubmitExisting はアカウント状態を照会する。
// 照会結果によってアカウントの有無が分からないよう、成功時は常に同じ文言を表示する。
// POST /account/existing
func (h *PageHandler) SubmitExisting(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	data := &pageData{Title: "Existing participants", Form: url.Values{"email": {email}}}

	status, err := h.service.RequestAccountStatus(r.Context(), email)
	if err != nil {
		h.renderError(w, r, "existing.html", data, err)
		return
	}
	slog.Debug("account status requested", slog.String("status", status.String()))

	data.Notice = existingAccountMessage
	h.render(w, r, "existing.html", http.StatusOK, data)
}

// CreatePassword はパスワード作成フォームを表示する。
// GET /account/create-password?token=...
func (h *PageHandler) CreatePassword(w http.ResponseWriter, r *http.Request) {
	data := &pageData{Title: "Create your password", Token: r.URL.Query().Get("token")}
	if data.Token == "" {
		data.Error = model.NewInvalidTokenError().Message
		h.render(w, r, "create_password.html", http.StatusBadRequest, data)
		return
	}
	h.render(w, r, "create_password.html", http.StatusOK, data)
}

// SubmitCreatePassword はパスワードを作成してログインさせる。
// POST /account/create-password
func (h *PageHandler) SubmitCreatePassword(w http.ResponseWriter, r *http.Request) {
	data := &pageData{Title: "Create your password", Token: r.PostFormValue("token")}

	result, err := h.service.CreatePassword(r.Context(), data.Token, r.PostFormValue("password"), r.PostFormValue("confirmPassword"))
	if err != nil {
		if isTokenError(err) {
			data.Token = ""
		}
		h.renderError(w, r, "create_password.html", data, err)
		return
	}

	middleware.SetSessionCookie(w, result.Session, h.config.Cookie)
	http.Redirect(w, r, h.config.HomePath, http.StatusSeeOther)
}

// ForgotPassword は再設定リンクの申請フォームを表示する。
// GET /account/forgot-password
func (h *PageHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "forgot_password.html", http.StatusOK, &pageData{Title: "Forgot password"})
}

// SubmitForgotPassword は再設定リンクを送信する。
// POST /account/forgot-password
func (h *PageHandler) SubmitForgotPassword(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	data := &pageData{Title: "Forgot password", Form: url.Values{"email": {email}}}

	if err := h.service.ForgotPassword(r.Context(), email); err != nil {
		h.renderError(w, r, "forgot_password.html", data, err)
		return
	}

	data.Notice = forgotPasswordMessage
	h.render(w, r, "forgot_password.html", http.StatusOK, data)
}

// ResetPassword はパスワード再設定フォームを表示する。
// GET /account/reset-password?token=...
func (h *PageHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	data := &pageData{Title: "Reset password", Token: r.URL.Query().Get("token")}
	if data.Token == "" {
		data.Error = model.NewInvalidTokenError().Message
		h.render(w, r, "reset_password.html", http.StatusBadRequest, data)
		return
	}
	h.render(w, r, "reset_password.html", http.StatusOK, data)
}

// SubmitResetPassword は新しいパスワードを設定する。自動ログインはしない。
// POST /account/reset-password
func (h *PageHandler) SubmitResetPassword(w http.ResponseWriter, r *http.Request) {
	data := &pageData{Title: "Reset password", Token: r.PostFormValue("token")}

	if err := h.service.ResetPassword(r.Context(), data.Token, r.PostFormValue("password")); err != nil {
		if isTokenError(err) {
			data.Token = ""
		}
		h.renderError(w, r, "reset_password.html", data, err)
		return
	}

	data.Token = ""
	data.Notice = resetDoneMessage
	h.render(w, r, "reset_password.html", http.StatusOK, data)
}

// Home はログイン中のアカウントを表示する。
// GET /account
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetCurrentAccount(r.Context(), middleware.SessionFromContext(r.Context()))
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeUnauthorized {
			middleware.ClearSessionCookie(w, h.config.Cookie)
			http.Redirect(w, r, h.config.StartPath, http.StatusSeeOther)
			return
		}
		h.renderError(w, r, "home.html", &pageData{Title: "Your account"}, err)
		return
	}
	h.render(w, r, "home.html", http.StatusOK, &pageData{Title: "Your account", Account: account})
}

// Logout はセッションを破棄してログイン画面へ戻す。
// POST /account/logout
func (h *PageHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := middleware.SessionFromContext(r.Context()); session != nil {
		if err := h.service.Logout(r.Context(), session.ID); err != nil {
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}
	middleware.ClearSessionCookie(w, h.config.Cookie)
	http.Redirect(w, r, h.config.StartPath, http.StatusSeeOther)
}

// renderError はワークフローのエラーをフォーム上のメッセージとして表示する。
// APIError以外はログに記録し、汎用メッセージで500を返す。
func (h *PageHandler) renderError(w http.ResponseWriter, r *http.Request, name string, data *pageData, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		data.Error = apiErr.Message
		h.render(w, r, name, middleware.StatusForCode(apiErr.Code), data)
		return
	}

	slog.ErrorContext(r.Context(), "page request failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	data.Error = pageErrorMessage
	h.render(w, r, name, http.StatusInternalServerError, data)
}

// render はテンプレートをバッファに描画してからレスポンスに書き込む。
func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, name string, statusCode int, data *pageData) {
	data.CSRFField = middleware.CSRFFormField
	data.CSRFToken = middleware.CSRFToken(r)

	var buf bytes.Buffer
	if err := pageTemplates[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("failed to render page",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, pageErrorMessage, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	buf.WriteTo(w)
}

// safeNext はログイン後の遷移先を同一オリジンのパスに限定する。
func (h *PageHandler) safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return h.config.HomePath
	}
	return next
}

func isTokenError(err error) bool {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == model.ErrCodeInvalidToken || apiErr.Code == model.ErrCodeTokenAlreadyUsed
}
