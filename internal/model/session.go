package model

import "time"

// Session はログイン成功時に発行されるサーバー側セッションを表す。
// アカウント情報はログイン時点のスナップショットであり、
// ロールや氏名の変更は再ログインまで反映されない。
type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// ExpiredAt は指定時刻にセッションが期限切れかどうかを返す。
func (s *Session) ExpiredAt(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
