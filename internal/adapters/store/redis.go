// Package store provides Group Store implementations: a Redis-backed one
// for multi-process deployments and an in-memory one for single-process
// and test use. Both keep token -> member-set entries under a TTL.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/prajyot7070/MetaSpace/internal/core"
	"github.com/prajyot7070/MetaSpace/internal/domain"
)

const groupTokenPrefix = "room:token:"

type redisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis wraps an existing client. The TTL is applied on Store and
// refreshed whenever members are added.
func NewRedis(rdb *redis.Client, ttl time.Duration) core.GroupStore {
	return &redisStore{rdb: rdb, ttl: ttl}
}

func (s *redisStore) key(token string) string { return groupTokenPrefix + token }

func (s *redisStore) Store(ctx context.Context, token string, members []domain.UserID) error {
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, s.key(token), toArgs(members)...)
	pipe.Expire(ctx, s.key(token), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store group token: %w", err)
	}
	log.Debug().Str("module", "store.redis").Str("token", token).Int("members", len(members)).Msg("stored group")
	return nil
}

func (s *redisStore) AddMembers(ctx context.Context, token string, members ...domain.UserID) error {
	if err := s.rdb.SAdd(ctx, s.key(token), toArgs(members)...).Err(); err != nil {
		return fmt.Errorf("add group members: %w", err)
	}
	if err := s.rdb.Expire(ctx, s.key(token), s.ttl).Err(); err != nil {
		return fmt.Errorf("refresh group ttl: %w", err)
	}
	return nil
}

func (s *redisStore) RemoveMembers(ctx context.Context, token string, members ...domain.UserID) error {
	if err := s.rdb.SRem(ctx, s.key(token), toArgs(members)...).Err(); err != nil {
		return fmt.Errorf("remove group members: %w", err)
	}
	return nil
}

func (s *redisStore) Members(ctx context.Context, token string) ([]domain.UserID, error) {
	raw, err := s.rdb.SMembers(ctx, s.key(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("get group members: %w", err)
	}
	out := make([]domain.UserID, len(raw))
	for i, v := range raw {
		out[i] = domain.UserID(v)
	}
	return out, nil
}

func (s *redisStore) Delete(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	log.Debug().Str("module", "store.redis").Str("token", token).Msg("deleted group")
	return nil
}

func toArgs(members []domain.UserID) []any {
	out := make([]any, len(members))
	for i, m := range members {
		out[i] = string(m)
	}
	return out
}
