// Package model はドメインモデルを定義する。
package model

import "time"

// Role はアカウントの権限ロールを表す。
type Role string

const (
	RoleParticipant Role = "participant"
	RoleAdmin       Role = "admin"
	// RoleDonor は匿名寄付の受付で作成されるアカウント。ログインできない。
	RoleDonor Role = "donor"
)

// Valid はロールが定義済みの値かどうかを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleParticipant, RoleAdmin, RoleDonor:
		return true
	default:
		return false
	}
}

// Account は参加者・管理者・寄付者の資格情報とプロフィールを表す。
// PasswordHashが空文字列のアカウントはパスワード未設定として扱う。
// 論理削除されたアカウントはすべての検索で存在しないものとして扱う。
type Account struct {
	ID              string
	Email           string
	FirstName       string
	LastName        string
	Role            Role
	PasswordHash    string
	Phone           string
	Address         string
	City            string
	State           string
	Zip             string
	FieldOfInterest string
	Deleted         bool
	DeletedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasPassword はパスワードが設定済みかどうかを返す。
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// PublicAccount はAPIレスポンスに含めてよいアカウント項目。
// パスワードハッシュは決して含めない。
type PublicAccount struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	Role            Role      `json:"role"`
	Phone           string    `json:"phone,omitempty"`
	Address         string    `json:"address,omitempty"`
	City            string    `json:"city,omitempty"`
	State           string    `json:"state,omitempty"`
	Zip             string    `json:"zip,omitempty"`
	FieldOfInterest string    `json:"fieldOfInterest,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Public はアカウントの公開項目を返す。
func (a *Account) Public() PublicAccount {
	return PublicAccount{
		ID:              a.ID,
		Email:           a.Email,
		FirstName:       a.FirstName,
		LastName:        a.LastName,
		Role:            a.Role,
		Phone:           a.Phone,
		Address:         a.Address,
		City:            a.City,
		State:           a.State,
		Zip:             a.Zip,
		FieldOfInterest: a.FieldOfInterest,
		CreatedAt:       a.CreatedAt,
	}
}
