package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
)

// SendResult は送信エラーの分類。
type SendResult int

const (
	// SendResultOK は送信成功。
	SendResultOK SendResult = iota
	// SendResultRetry は一時的な失敗（SMTP 4xx、接続エラー）。
	SendResultRetry
	// SendResultStop は再送しても成功しない失敗（SMTP 5xx、アドレス不正）。
	SendResultStop
)

const (
	// defaultMaxAttempts は1通あたりの最大送信試行回数。
	defaultMaxAttempts = 3
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = 500 * time.Millisecond
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 4 * time.Second
)

// ClassifySendError は送信エラーを分類する。
func ClassifySendError(err error) SendResult {
	if err == nil {
		return SendResultOK
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return SendResultStop
	}
	var sendErr *mail.SendError
	if errors.As(err, &sendErr) {
		if sendErr.IsTemp() {
			return SendResultRetry
		}
		return SendResultStop
	}
	var invalid *invalidMessageError
	if errors.As(err, &invalid) {
		return SendResultStop
	}
	return SendResultRetry
}

// CalculateBackoff は失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回500ミリ秒、2倍ずつ増加、最大4秒。
func CalculateBackoff(failures int) time.Duration {
	delay := initialBackoff
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// RetryNotifier は一時的な送信失敗を指数バックオフで再送するNotifier。
type RetryNotifier struct {
	next        Notifier
	logger      *slog.Logger
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewRetryNotifier はnextをラップしたRetryNotifierを生成する。
func NewRetryNotifier(next Notifier, logger *slog.Logger) *RetryNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryNotifier{
		next:        next,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		sleep:       sleepContext,
	}
}

// Send はメールを送信する。再送可能なエラーは最大試行回数まで繰り返す。
func (n *RetryNotifier) Send(ctx context.Context, msg Message) error {
	var err error
	for attempt := 0; attempt < n.maxAttempts; attempt++ {
		err = n.next.Send(ctx, msg)
		switch ClassifySendError(err) {
		case SendResultOK:
			return nil
		case SendResultStop:
			return err
		}

		if attempt == n.maxAttempts-1 {
			break
		}
		delay := CalculateBackoff(attempt)
		n.logger.WarnContext(ctx, "email delivery failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)
		if sleepErr := n.sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("email delivery aborted: %w", err)
		}
	}
	return fmt.Errorf("email delivery failed after %d attempts: %w", n.maxAttempts, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// compile-time interface check
var _ Notifier = (*RetryNotifier)(nil)
