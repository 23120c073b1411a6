package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/npoportal/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	redisSessionKeyPrefix = "session:"
	// redisAccountKeyPrefix はアカウントごとのセッションID集合のキー接頭辞。
	redisAccountKeyPrefix = "account_sessions:"
)

// RedisSessionStore はRedisを使用したセッションストア。
// 複数のAPIサーバーでセッションを共有する構成で使用する。
// キーの有効期限はセッションの残り有効期間に合わせる。
type RedisSessionStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisSessionStore はRedisSessionStoreを生成する。
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client, now: time.Now}
}

// Create はセッションをJSONとして保存する。
func (s *RedisSessionStore) Create(ctx context.Context, session *model.Session) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("session already expired: %s", session.ID)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	// セッション本体とアカウント別の索引を同時に書き込む。
	// 索引の有効期限は最後に作られたセッションに合わせる（セッションの有効期間は一定）。
	indexKey := s.accountKey(session.AccountID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(session.ID), data, ttl)
		pipe.SAdd(ctx, indexKey, session.ID)
		pipe.Expire(ctx, indexKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。存在しない場合はnilを返す。
func (s *RedisSessionStore) FindByID(ctx context.Context, id string) (*model.Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if session.ExpiredAt(s.now()) {
		return nil, nil
	}
	return &session, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (s *RedisSessionStore) DeleteByID(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByAccountID は索引に登録された指定アカウントのセッションをすべて削除する。
// DeleteByIDで削除済みのIDが索引に残っていても、存在しないキーの削除として無視される。
func (s *RedisSessionStore) DeleteByAccountID(ctx context.Context, accountID string) error {
	indexKey := s.accountKey(accountID)
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list sessions for account: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}
	keys = append(keys, indexKey)

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete sessions for account: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) accountKey(accountID string) string {
	return redisAccountKeyPrefix + accountID
}

func (s *RedisSessionStore) key(id string) string {
	return redisSessionKeyPrefix + id
}

// compile-time interface check
var _ SessionStore = (*RedisSessionStore)(nil)
