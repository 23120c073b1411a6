// Package notify はパスワード作成・再設定リンクのメール送信を提供する。
package notify

import (
	"context"
	"log/slog"
)

// Message は送信するメール1通を表す。
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier はメール送信のインターフェース。
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier はSMTPが未設定のときに使う送信しないNotifier。
// 宛先と件名のみログに残す。本文にはトークンが含まれるため出力しない。
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier はLogNotifierを生成する。loggerがnilの場合はslog.Default()を使う。
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Send はメールを送信せずにログへ記録する。
func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	n.logger.InfoContext(ctx, "email delivery skipped (SMTP not configured)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

// compile-time interface check
var _ Notifier = (*LogNotifier)(nil)
