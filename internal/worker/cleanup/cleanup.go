// Package cleanup は使用済み・期限切れデータの自動削除ジョブを提供する。
// 保持期間を過ぎたパスワードトークンと期限切れのセッションを日次バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetention は使用済み・期限切れトークンの保持期間のデフォルト値（30日）。
const DefaultRetention = 30 * 24 * time.Hour

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は不要になったトークンとセッションの削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	db        Executor
	logger    *slog.Logger
	Retention time.Duration // 使用済み・期限切れトークンの保持期間
	now       func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionが0以下の場合はDefaultRetentionを使う。
func NewCleanupJob(db Executor, logger *slog.Logger, retention time.Duration) *CleanupJob {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &CleanupJob{
		db:        db,
		logger:    logger,
		Retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run はトークンとセッションを順に削除する。
// 有効期限または使用日時が保持期間より古いトークンと、期限切れのセッションが対象。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	now := j.now()
	cutoff := now.Add(-j.Retention)

	tokens, err := j.exec(ctx, "password_tokens",
		`DELETE FROM password_tokens WHERE expires_at < $1 OR used_at < $1`, cutoff)
	if err != nil {
		return err
	}

	sessions, err := j.exec(ctx, "sessions",
		`DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return err
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_tokens", tokens),
		slog.Int64("deleted_sessions", sessions),
		slog.Duration("retention", j.Retention),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

func (j *CleanupJob) exec(ctx context.Context, table, query string, arg time.Time) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, arg)
	if err != nil {
		j.logger.Error("クリーンアップジョブの実行に失敗しました",
			slog.String("table", table),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("%sのクリーンアップに失敗: %w", table, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("table", table),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return deleted, nil
}

// Start は起動直後に1回、その後intervalごとにRunを実行する。ctxがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	runAndLog := func() {
		if err := j.Run(ctx); err != nil {
			j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
		}
	}

	runAndLog()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runAndLog()
		}
	}
}

// SessionPurger はプロセス内に期限切れセッションを保持するストア。
type SessionPurger interface {
	PurgeExpired() int
}

// SweepSessions はintervalごとにプロセス内ストアの期限切れセッションを削除する。
// ctxがキャンセルされるまでブロックする。
func SweepSessions(ctx context.Context, store SessionPurger, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if purged := store.PurgeExpired(); purged > 0 {
				logger.Info("expired sessions purged", slog.Int("count", purged))
			}
		}
	}
}
