package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/npoportal/internal/model"
)

const sessionColumns = `id, account_id, email, role, first_name, last_name, expires_at, created_at`

// PostgresSessionRepo はPostgreSQLを使用したセッションストア。
// 複数プロセスでセッションを共有する場合に使用する。期限切れ行の削除はcleanupワーカーが行う。
type PostgresSessionRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db, now: time.Now}
}

// Create はセッションを保存する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		session.ID, session.AccountID, session.Email, string(session.Role),
		session.FirstName, session.LastName, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は有効なセッションを取得する。存在しないか期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 AND expires_at > $2`,
		id, r.now(),
	)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return session, nil
}

// DeleteByID はセッションを削除する。存在しない場合も成功として扱う。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByAccountID は指定アカウントのセッションをすべて削除する。
func (r *PostgresSessionRepo) DeleteByAccountID(ctx context.Context, accountID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("failed to delete sessions for account: %w", err)
	}
	return nil
}

func scanSession(row *sql.Row) (*model.Session, error) {
	var (
		s    model.Session
		role string
	)
	if err := row.Scan(&s.ID, &s.AccountID, &s.Email, &role,
		&s.FirstName, &s.LastName, &s.ExpiresAt, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Role = model.Role(role)
	return &s, nil
}

// compile-time interface check
var _ SessionStore = (*PostgresSessionRepo)(nil)
