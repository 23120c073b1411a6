package auth

import (
	"crypto/subtle"

	"github.com/hitoshi/npoportal/internal/model"
)

// IdentityProvider は資格情報ストアを経由せずに本人確認する手段。
// 開発用ビルドでのみ固定アカウントの提供に使われる。
type IdentityProvider interface {
	// Authenticate はメールアドレスとパスワードが一致するアカウントを返す。一致しない場合はnil。
	Authenticate(email, password string) *model.Account
	// Lookup はアカウントIDに対応するアカウントを返す。存在しない場合はnil。
	Lookup(accountID string) *model.Account
}

type staticIdentity struct {
	account  model.Account
	password string
}

// staticIdentities は固定の資格情報一覧によるIdentityProvider。
type staticIdentities struct {
	entries []staticIdentity
}

func (s *staticIdentities) Authenticate(email, password string) *model.Account {
	email = normalizeEmail(email)
	for _, e := range s.entries {
		if e.account.Email != email {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(e.password), []byte(password)) == 1 {
			acc := e.account
			return &acc
		}
	}
	return nil
}

func (s *staticIdentities) Lookup(accountID string) *model.Account {
	for _, e := range s.entries {
		if e.account.ID == accountID {
			acc := e.account
			return &acc
		}
	}
	return nil
}

// compile-time interface check
var _ IdentityProvider = (*staticIdentities)(nil)
