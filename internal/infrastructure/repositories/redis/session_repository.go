package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"livesession/internal/core/domain"
	"livesession/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"
	activeSetKey     = "sessions:active"
)

type RedisSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionRepository(client *redis.Client, ttl time.Duration) ports.SessionRepository {
	return &RedisSessionRepository{client: client, ttl: ttl}
}

func sessionKey(id domain.SessionID) string {
	return sessionKeyPrefix + string(id)
}

func (r *RedisSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ok, err := r.client.SetNX(ctx, sessionKey(session.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	if !ok {
		return domain.ErrSessionExists
	}

	if err := r.client.SAdd(ctx, activeSetKey, string(session.ID)).Err(); err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) GetByID(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *RedisSessionRepository) UpdateStatus(ctx context.Context, id domain.SessionID, status domain.SessionStatus) error {
	session, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	session.Status = status

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(id), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	if status == domain.StatusCompleted || status == domain.StatusCancelled {
		if err := r.client.SRem(ctx, activeSetKey, string(id)).Err(); err != nil {
			return fmt.Errorf("failed to unindex session: %w", err)
		}
	}
	return nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, id domain.SessionID) error {
	removed, err := r.client.Del(ctx, sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if removed == 0 {
		return domain.ErrSessionNotFound
	}
	return r.client.SRem(ctx, activeSetKey, string(id)).Err()
}

func (r *RedisSessionRepository) ListActive(ctx context.Context) ([]*domain.Session, error) {
	ids, err := r.client.SMembers(ctx, activeSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}

	var sessions []*domain.Session
	for _, id := range ids {
		session, err := r.GetByID(ctx, domain.SessionID(id))
		if errors.Is(err, domain.ErrSessionNotFound) {
			// Expired entry still in the index; drop it lazily.
			r.client.SRem(ctx, activeSetKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}
