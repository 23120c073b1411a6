package notify

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Links はメールに埋め込むアカウントページのURLを組み立てる。
type Links struct {
	BaseURL string
}

// CreatePasswordURL はパスワード作成ページのURLを返す。
func (l Links) CreatePasswordURL(token string) string {
	return l.build("/account/create-password", token)
}

// ResetPasswordURL はパスワード再設定ページのURLを返す。
func (l Links) ResetPasswordURL(token string) string {
	return l.build("/account/reset-password", token)
}

func (l Links) build(path, token string) string {
	return strings.TrimRight(l.BaseURL, "/") + path + "?token=" + url.QueryEscape(token)
}

// CreatePasswordMessage はパスワード作成リンクのメールを組み立てる。
func CreatePasswordMessage(to, firstName, link string, ttl time.Duration) Message {
	return Message{
		To:      to,
		Subject: "Create your password",
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour account does not have a password yet. Use the link below to create one:\n\n%s\n\nThis link expires in %s and can be used once.\n",
			greetingName(firstName), link, humanDuration(ttl)),
	}
}

// ResetPasswordMessage はパスワード再設定リンクのメールを組み立てる。
func ResetPasswordMessage(to, firstName, link string, ttl time.Duration) Message {
	return Message{
		To:      to,
		Subject: "Reset your password",
		Body: fmt.Sprintf(
			"Hi %s,\n\nWe received a request to reset your password. Use the link below to choose a new one:\n\n%s\n\nThis link expires in %s and can be used once. If you did not request this, you can ignore this email.\n",
			greetingName(firstName), link, humanDuration(ttl)),
	}
}

func greetingName(firstName string) string {
	if firstName == "" {
		return "there"
	}
	return firstName
}

// humanDuration は1時間単位の期間を "1 hour" の形式にする。端数は分で表す。
func humanDuration(d time.Duration) string {
	if d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	m := int(d / time.Minute)
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
