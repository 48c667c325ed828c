package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/amoylab/redsess/internal/common/cnst"
	"github.com/amoylab/redsess/internal/common/config"
)

// NewStore creates a new session store based on configuration
func NewStore(ctx context.Context, logger *zap.Logger, cfg *config.SessionConfig, opts ...Option) (Store, error) {
	logger.Info("Initializing session store", zap.String("type", cfg.Type))
	switch cnst.StoreType(cfg.Type) {
	case cnst.StoreTypeMemory:
		return NewMemoryStore(logger, *cfg, opts...), nil
	case cnst.StoreTypeRedis, "":
		store, err := NewRedisStore(ctx, logger, *cfg, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %s", cnst.ErrUnsupportedStoreType, cfg.Type)
	}
}
