package model

import "time"

// TokenPurpose はパスワードトークンの用途を表す。
type TokenPurpose string

const (
	// PurposeCreatePassword はパスワード未設定アカウントの初回パスワード作成用。
	PurposeCreatePassword TokenPurpose = "create_password"
	// PurposeResetPassword はパスワード再設定用。
	PurposeResetPassword TokenPurpose = "reset_password"
)

// PasswordToken は用途付き・期限付き・一回限りのトークンを表す。
// 生のトークン値は保存せず、Digestのみを永続化する。
type PasswordToken struct {
	ID        string
	AccountID string
	Digest    string
	Purpose   TokenPurpose
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// ValidAt は指定時刻にトークンが有効かどうかを返す。
// 有効期限ちょうどの時刻は期限切れとして扱う。
func (t *PasswordToken) ValidAt(now time.Time, purpose TokenPurpose) bool {
	return t.UsedAt == nil && t.Purpose == purpose && t.ExpiresAt.After(now)
}
