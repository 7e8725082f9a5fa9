package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/ImAdityaa12/storex-backend/internal/common"
)

// ErrSessionNotFound reports an unknown or expired refresh token.
var ErrSessionNotFound = errors.New("auth: session not found")

// SessionStore keeps refresh sessions in Redis. The token itself never
// touches storage, only its SHA-256 digest. A per-user set tracks the
// digests so a password reset can revoke every device at once.
type SessionStore struct {
	R   *redis.Client
	TTL time.Duration
}

func sessionKey(tokenHash string) string {
	return "sess:" + tokenHash
}

func userSessionsKey(userID string) string {
	return "sess:user:" + userID
}

func (s SessionStore) ttl() time.Duration {
	if s.TTL <= 0 {
		return 30 * 24 * time.Hour
	}
	return s.TTL
}

// Create stores a new refresh session for the user.
func (s SessionStore) Create(ctx context.Context, userID, token string) error {
	if s.R == nil {
		return errors.New("auth: session store not configured")
	}
	hash := common.Sha256Hex(token)
	pipe := s.R.TxPipeline()
	pipe.Set(ctx, sessionKey(hash), userID, s.ttl())
	pipe.SAdd(ctx, userSessionsKey(userID), hash)
	pipe.Expire(ctx, userSessionsKey(userID), s.ttl())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Consume resolves a refresh token to its user and deletes it, so every
// refresh rotates the token.
func (s SessionStore) Consume(ctx context.Context, token string) (string, error) {
	if s.R == nil {
		return "", errors.New("auth: session store not configured")
	}
	hash := common.Sha256Hex(token)
	userID, err := s.R.GetDel(ctx, sessionKey(hash)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	_ = s.R.SRem(ctx, userSessionsKey(userID), hash).Err()
	return userID, nil
}

// Delete revokes a single refresh token.
func (s SessionStore) Delete(ctx context.Context, token string) error {
	if s.R == nil {
		return nil
	}
	hash := common.Sha256Hex(token)
	userID, err := s.R.Get(ctx, sessionKey(hash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := s.R.TxPipeline()
	pipe.Del(ctx, sessionKey(hash))
	pipe.SRem(ctx, userSessionsKey(userID), hash)
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteAllForUser revokes every refresh session of the user.
func (s SessionStore) DeleteAllForUser(ctx context.Context, userID string) error {
	if s.R == nil {
		return nil
	}
	hashes, err := s.R.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, sessionKey(h))
	}
	keys = append(keys, userSessionsKey(userID))
	return s.R.Del(ctx, keys...).Err()
}
