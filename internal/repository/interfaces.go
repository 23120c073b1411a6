// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/npoportal/internal/model"
)

var (
	// ErrDuplicateEmail は論理削除されていないアカウントとメールアドレスが重複した場合に返される。
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrAccountNotFound は更新対象のアカウントが存在しない場合に返される。
	ErrAccountNotFound = errors.New("account not found")
	// ErrTokenUnavailable はトークンが使用済み・期限切れのため引き換えできなかった場合に返される。
	ErrTokenUnavailable = errors.New("token already used or expired")
)

// AccountRepository はアカウント（資格情報）の永続化インターフェース。
// 論理削除済みのアカウントはすべての検索結果から除外される。
type AccountRepository interface {
	// FindActiveByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
	FindActiveByEmail(ctx context.Context, email string) (*model.Account, error)

	// FindActiveByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindActiveByID(ctx context.Context, id string) (*model.Account, error)

	// Create はアカウントを作成する。メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, account *model.Account) error

	// UpdateRole はアカウントのロールを更新する。
	UpdateRole(ctx context.Context, id string, role model.Role) error

	// SoftDelete はアカウントを論理削除し、個人情報を消去する。
	// field_of_interestとroleのみ保持する。
	SoftDelete(ctx context.Context, id string, at time.Time) error

	// ListParticipants は寄付者と論理削除済みを除いたアカウント一覧を返す。
	ListParticipants(ctx context.Context) ([]*model.Account, error)
}

// TokenRepository はパスワードトークンの永続化インターフェース。
type TokenRepository interface {
	// Create はトークンを保存する。
	Create(ctx context.Context, token *model.PasswordToken) error

	// FindValid はダイジェストと用途が一致し、未使用かつ期限内のトークンを取得する。
	// 見つからない場合はnilを返す。
	FindValid(ctx context.Context, digest string, purpose model.TokenPurpose, now time.Time) (*model.PasswordToken, error)

	// Redeem はトークンを使用済みにし、参照先アカウントのパスワードハッシュを書き込む。
	// 両方の更新は同一トランザクションで行われ、パスワードの書き込みに失敗した場合
	// トークンは未使用のまま残る。
	// 他のリクエストが先に引き換えた場合はErrTokenUnavailableを返す。
	Redeem(ctx context.Context, token *model.PasswordToken, passwordHash string, now time.Time) error
}

// SessionStore はセッションの保存先インターフェース。
// インメモリ・PostgreSQL・Redisの実装を差し替えて使用する。
type SessionStore interface {
	// Create はセッションを保存する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れまたは存在しない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByAccountID は指定アカウントのセッションをすべて削除する。
	// アカウントの論理削除時に呼び出し、残っているセッションでの認可を止める。
	DeleteByAccountID(ctx context.Context, accountID string) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
