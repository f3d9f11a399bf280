package cache

import (
	"context"
	"fmt"

	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/hrpay/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// NewIdempotencyStore picks the store for the deployment. With Redis
// enabled the store is shared and a connection failure is fatal; otherwise
// keys live in memory of this instance only.
func NewIdempotencyStore(ctx context.Context, redisCfg config.RedisConfig, idemCfg config.IdempotencyConfig, logger *zap.Logger) (shared.IdempotencyStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !redisCfg.Enabled {
		logger.Warn("Redis disabled, idempotency keys are kept per instance")
		return NewInMemoryIdempotencyStore(), nil
	}

	store, err := NewRedisIdempotencyStore(ctx, redisCfg, idemCfg.KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("idempotency store: %w", err)
	}
	logger.Info("Using Redis idempotency store",
		zap.String("addr", redisCfg.Addr()),
		zap.String("key_prefix", store.keyPrefix),
	)
	return store, nil
}
