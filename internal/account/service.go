// Package account はアカウント管理（一覧・参照・ロール変更・退会）のドメインロジックを提供する。
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/npoportal/internal/model"
	"github.com/hitoshi/npoportal/internal/repository"
)

// SessionRevoker はアカウント単位でセッションを破棄するインターフェース。
// repository.SessionStoreの部分集合として定義する。
type SessionRevoker interface {
	DeleteByAccountID(ctx context.Context, accountID string) error
}

// Service はアカウント管理のサービス層。
type Service struct {
	accounts repository.AccountRepository
	sessions SessionRevoker
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(accounts repository.AccountRepository, sessions SessionRevoker) *Service {
	return &Service{
		accounts: accounts,
		sessions: sessions,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// validID はアカウントIDがUUID形式かを判定する。形式外のIDは存在しないアカウントとして扱う。
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Get は指定IDのアカウントの公開項目を返す。
func (s *Service) Get(ctx context.Context, id string) (*model.PublicAccount, error) {
	if !validID(id) {
		return nil, model.NewNotFoundError("Account")
	}
	account, err := s.accounts.FindActiveByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil {
		return nil, model.NewNotFoundError("Account")
	}
	pub := account.Public()
	return &pub, nil
}

// ListParticipants は寄付者と退会済みを除いたアカウント一覧を返す。
func (s *Service) ListParticipants(ctx context.Context) ([]model.PublicAccount, error) {
	accounts, err := s.accounts.ListParticipants(ctx)
	if err != nil {
		return nil, fmt.Errorf("アカウント一覧の取得に失敗しました: %w", err)
	}
	result := make([]model.PublicAccount, 0, len(accounts))
	for _, a := range accounts {
		result = append(result, a.Public())
	}
	return result, nil
}

// SetRole は参加者と管理者のロールを切り替える。
// 既に発行済みのセッションは書き換えないため、対象者が再ログインするまで古いロールのままになる。
func (s *Service) SetRole(ctx context.Context, id string, role model.Role) (*model.PublicAccount, error) {
	if role != model.RoleParticipant && role != model.RoleAdmin {
		return nil, model.NewValidationError("Role must be participant or admin")
	}
	if !validID(id) {
		return nil, model.NewNotFoundError("Account")
	}

	account, err := s.accounts.FindActiveByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil {
		return nil, model.NewNotFoundError("Account")
	}
	if account.Role == model.RoleDonor {
		return nil, model.NewValidationError("Donor accounts cannot be assigned a role")
	}

	if account.Role != role {
		if err := s.accounts.UpdateRole(ctx, id, role); err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return nil, model.NewNotFoundError("Account")
			}
			return nil, fmt.Errorf("ロールの更新に失敗しました: %w", err)
		}
		slog.Info("account role changed",
			slog.String("account_id", id),
			slog.String("from", string(account.Role)),
			slog.String("to", string(role)),
		)
		account.Role = role
	}

	pub := account.Public()
	return &pub, nil
}

// Delete はアカウントを論理削除し、このアカウントのセッションをすべて破棄する。
// 個人情報は消去される。
func (s *Service) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return model.NewNotFoundError("Account")
	}
	if err := s.accounts.SoftDelete(ctx, id, s.now()); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return model.NewNotFoundError("Account")
		}
		return fmt.Errorf("アカウントの削除に失敗しました: %w", err)
	}

	if err := s.sessions.DeleteByAccountID(ctx, id); err != nil {
		return fmt.Errorf("セッションの破棄に失敗しました: %w", err)
	}

	slog.Info("account soft deleted", slog.String("account_id", id))
	return nil
}
