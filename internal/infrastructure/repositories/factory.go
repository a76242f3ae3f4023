package repositories

import (
	"fmt"

	"livesession/internal/core/ports"
	"livesession/internal/infrastructure/repositories/memory"
	redisrepo "livesession/internal/infrastructure/repositories/redis"
	"livesession/pkg/config"

	"go.uber.org/zap"
)

// NewSessionRepository selects the storage backend from configuration:
// Redis when enabled, otherwise the in-memory implementation.
func NewSessionRepository(cfg *config.Config, logger *zap.SugaredLogger) (ports.SessionRepository, func() error, error) {
	if !cfg.Redis.Enabled {
		logger.Infow("using in-memory session repository")
		return memory.NewMemorySessionRepository(), func() error { return nil }, nil
	}

	client, err := redisrepo.NewRedisClient(
		cfg.Redis.Address,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
		logger,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	repo := redisrepo.NewRedisSessionRepository(client, cfg.Session.TTL)
	closer := func() error { return redisrepo.CloseRedisClient(client) }
	return repo, closer, nil
}
