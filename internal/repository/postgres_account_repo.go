package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/npoportal/internal/model"
	"github.com/lib/pq"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

const accountColumns = `id, email, first_name, last_name, role, password_hash,
	phone, address, city, state, zip, field_of_interest,
	deleted, deleted_at, created_at, updated_at`

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindActiveByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindActiveByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1) AND deleted = false`,
		email,
	)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	return account, nil
}

// FindActiveByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindActiveByID(ctx context.Context, id string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND deleted = false`,
		id,
	)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return account, nil
}

// Create はアカウントを作成する。
// 部分一意インデックス（deleted = false）に違反した場合はErrDuplicateEmailを返す。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, first_name, last_name, role, password_hash,
			phone, address, city, state, zip, field_of_interest, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		account.ID, account.Email, account.FirstName, account.LastName, string(account.Role),
		nullString(account.PasswordHash),
		nullString(account.Phone), nullString(account.Address), nullString(account.City),
		nullString(account.State), nullString(account.Zip), nullString(account.FieldOfInterest),
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// UpdateRole はアカウントのロールを更新する。
func (r *PostgresAccountRepo) UpdateRole(ctx context.Context, id string, role model.Role) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET role = $2, updated_at = now() WHERE id = $1 AND deleted = false`,
		id, string(role),
	)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return requireOneRow(result)
}

// SoftDelete はアカウントを論理削除し、個人を特定できる項目をNULLにする。
// field_of_interestとroleは統計用途のため保持する。
func (r *PostgresAccountRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET deleted = true, deleted_at = $2, updated_at = $2,
		     email = NULL, first_name = NULL, last_name = NULL, password_hash = NULL,
		     phone = NULL, address = NULL, city = NULL, state = NULL, zip = NULL
		 WHERE id = $1 AND deleted = false`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to soft delete account: %w", err)
	}
	return requireOneRow(result)
}

// ListParticipants は寄付者と論理削除済みを除いたアカウント一覧を姓名順で返す。
func (r *PostgresAccountRepo) ListParticipants(ctx context.Context) ([]*model.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE deleted = false AND role <> 'donor'
		 ORDER BY last_name, first_name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*model.Account, error) {
	var (
		account                                 model.Account
		role                                    string
		email, firstName, lastName, hash        sql.NullString
		phone, address, city, state, zip, field sql.NullString
		deletedAt                               sql.NullTime
	)
	err := row.Scan(
		&account.ID, &email, &firstName, &lastName, &role, &hash,
		&phone, &address, &city, &state, &zip, &field,
		&account.Deleted, &deletedAt, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.Role = model.Role(role)
	account.Email = email.String
	account.FirstName = firstName.String
	account.LastName = lastName.String
	account.PasswordHash = hash.String
	account.Phone = phone.String
	account.Address = address.String
	account.City = city.String
	account.State = state.String
	account.Zip = zip.String
	account.FieldOfInterest = field.String
	if deletedAt.Valid {
		account.DeletedAt = &deletedAt.Time
	}
	return &account, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
