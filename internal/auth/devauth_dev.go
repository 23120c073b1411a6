//go:build devauth

package auth

import "github.com/hitoshi/npoportal/internal/model"

// DevIdentityProvider は開発用の固定アカウント（参加者1件・管理者1件）を返す。
// -tags devauth を付けたビルドにのみ含まれる。
func DevIdentityProvider() IdentityProvider {
	return &staticIdentities{entries: []staticIdentity{
		{
			account: model.Account{
				ID:        "00000000-0000-0000-0000-00000000d001",
				Email:     "participant@dev.local",
				FirstName: "Dev",
				LastName:  "Participant",
				Role:      model.RoleParticipant,
			},
			password: "devpassword",
		},
		{
			account: model.Account{
				ID:        "00000000-0000-0000-0000-00000000d002",
				Email:     "admin@dev.local",
				FirstName: "Dev",
				LastName:  "Admin",
				Role:      model.RoleAdmin,
			},
			password: "devpassword",
		},
	}}
}
