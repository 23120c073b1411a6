// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, token, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation              = "VALIDATION_ERROR"
	ErrCodeEmailExistsWithPassword = "EMAIL_EXISTS_WITH_PASSWORD"
	ErrCodeEmailExistsNoPassword   = "EMAIL_EXISTS_NO_PASSWORD"
	ErrCodePasswordNotSet          = "PASSWORD_NOT_SET"
	ErrCodeInvalidCredentials      = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized            = "UNAUTHORIZED"
	ErrCodeForbidden               = "FORBIDDEN"
	ErrCodeNotFound                = "NOT_FOUND"
	ErrCodeInvalidToken            = "INVALID_TOKEN"
	ErrCodeTokenAlreadyUsed        = "TOKEN_ALREADY_USED"
	ErrCodeRateLimited             = "RATE_LIMITED"
	ErrCodeInternal                = "INTERNAL_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "Correct the highlighted field and submit again.",
	}
}

// NewEmailExistsWithPasswordError は登録済みメールアドレスでのサインアップエラーを生成する。
func NewEmailExistsWithPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailExistsWithPassword,
		Message:  "An account with this email already exists.",
		Category: "auth",
		Action:   "Log in instead, or use forgot password if you do not remember it.",
	}
}

// NewEmailExistsNoPasswordError はパスワード未設定の既存アカウントでのサインアップエラーを生成する。
// 呼び出し側はパスワード作成フローへ誘導することを想定している。
func NewEmailExistsNoPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailExistsNoPassword,
		Message:  "An account with this email already exists but no password is set yet.",
		Category: "auth",
		Action:   "Use the existing participant page to receive a password creation link.",
	}
}

// NewPasswordNotSetError はパスワード未設定アカウントでのログインエラーを生成する。
func NewPasswordNotSetError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordNotSet,
		Message:  "Your account exists but no password is set yet. We sent you an email with a link to create one.",
		Category: "auth",
		Action:   "Check your email for the password creation link. It is valid for 1 hour.",
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password.",
		Category: "auth",
		Action:   "Check your email and password and try again.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required.",
		Category: "auth",
		Action:   "Log in and try again.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "You do not have permission to perform this action.",
		Category: "auth",
		Action:   "Contact an administrator if you believe this is a mistake.",
	}
}

// NewNotFoundError は指定リソースが存在しない場合のエラーを生成する。
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%s not found.", resource),
		Category: "validation",
		Action:   "Check the identifier and try again.",
	}
}

// NewInvalidTokenError は無効・期限切れトークンのエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "This link is invalid or has expired.",
		Category: "token",
		Action:   "Request a new link and use it within 1 hour.",
	}
}

// NewTokenAlreadyUsedError は使用済みトークンの再利用エラーを生成する。
func NewTokenAlreadyUsedError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenAlreadyUsed,
		Message:  "This link has already been used.",
		Category: "token",
		Action:   "Log in with your password, or request a new link.",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewCSRFError はCSRFトークン検証エラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "CSRF token validation failed.",
		Category: "auth",
		Action:   "Reload the page and submit the form again.",
	}
}
