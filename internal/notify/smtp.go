package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier はgo-mailを使用してSMTPでメールを送信する。
type SMTPNotifier struct {
	client *mail.Client
	from   string
}

// NewSMTPNotifier はSMTPNotifierを生成する。
// ユーザー名が設定されている場合のみPLAIN認証を有効にする。
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("sender address is required")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return &SMTPNotifier{client: client, from: cfg.From}, nil
}

// Send はメールを1通送信する。
func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	m, err := buildMsg(n.from, msg)
	if err != nil {
		return err
	}
	if err := n.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// invalidMessageError はメッセージ自体が不正で再送しても成功しないことを表す。
type invalidMessageError struct {
	field string
	err   error
}

func (e *invalidMessageError) Error() string {
	return fmt.Sprintf("invalid %s address: %v", e.field, e.err)
}

func (e *invalidMessageError) Unwrap() error { return e.err }

func buildMsg(from string, msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, &invalidMessageError{field: "sender", err: err}
	}
	if err := m.To(msg.To); err != nil {
		return nil, &invalidMessageError{field: "recipient", err: err}
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

// compile-time interface check
var _ Notifier = (*SMTPNotifier)(nil)
