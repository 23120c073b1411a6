package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/npoportal/internal/model"
)

// PostgresTokenRepo はPostgreSQLを使用したパスワードトークンリポジトリ。
// create_passwordとreset_passwordの両方の用途を1テーブルで扱う。
type PostgresTokenRepo struct {
	db *sql.DB
}

// NewPostgresTokenRepo はPostgresTokenRepoを生成する。
func NewPostgresTokenRepo(db *sql.DB) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: db}
}

// Create はトークンを保存する。
func (r *PostgresTokenRepo) Create(ctx context.Context, token *model.PasswordToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO password_tokens (id, account_id, token_digest, purpose, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		token.ID, token.AccountID, token.Digest, string(token.Purpose), token.CreatedAt, token.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert password token: %w", err)
	}
	return nil
}

// FindValid はダイジェストと用途が一致し、未使用かつ期限内のトークンを取得する。
// 期限ちょうどの時刻は期限切れとして扱う（expires_at > now）。
// 退会済みまたは寄付者のアカウントに紐づくトークンは返さない。
func (r *PostgresTokenRepo) FindValid(ctx context.Context, digest string, purpose model.TokenPurpose, now time.Time) (*model.PasswordToken, error) {
	token := &model.PasswordToken{}
	var p string
	err := r.db.QueryRowContext(ctx,
		`SELECT t.id, t.account_id, t.token_digest, t.purpose, t.created_at, t.expires_at
		 FROM password_tokens t
		 JOIN accounts a ON a.id = t.account_id AND a.deleted = false AND a.role <> 'donor'
		 WHERE t.token_digest = $1 AND t.purpose = $2 AND t.used_at IS NULL AND t.expires_at > $3`,
		digest, string(purpose), now,
	).Scan(&token.ID, &token.AccountID, &token.Digest, &p, &token.CreatedAt, &token.ExpiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find password token: %w", err)
	}
	token.Purpose = model.TokenPurpose(p)
	return token, nil
}

// Redeem はパスワードハッシュを書き込み、トークンを使用済みにする。
// used_atの更新は条件付き（used_at IS NULL）で行うため、同じトークンの同時引き換えは
// 1件だけが成功し、残りはErrTokenUnavailableでロールバックされる。
func (r *PostgresTokenRepo) Redeem(ctx context.Context, token *model.PasswordToken, passwordHash string, now time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// パスワードを書き込む
	result, err := tx.ExecContext(ctx,
		`UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1 AND deleted = false`,
		token.AccountID, passwordHash, now,
	)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	if err := requireOneRow(result); err != nil {
		return err
	}

	// トークンを使用済みにする
	result, err = tx.ExecContext(ctx,
		`UPDATE password_tokens SET used_at = $2
		 WHERE id = $1 AND used_at IS NULL AND expires_at > $2`,
		token.ID, now,
	)
	if err != nil {
		return fmt.Errorf("failed to mark token used: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTokenUnavailable
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var _ TokenRepository = (*PostgresTokenRepo)(nil)
