package cache

import (
	"context"
	"fmt"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/infrastructure/config"
	"go.uber.org/zap"
)

// FactoryOption configures NewSettingsCacheFromConfig
type FactoryOption func(*factory)

type factory struct {
	logger                *zap.Logger
	allowInMemoryFallback bool
	l1Opts                []InMemorySettingsStoreOption
}

// WithLogger sets the logger for the cache and its tiers
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *factory) { f.logger = logger }
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to an in-memory only cache.
// Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *factory) { f.allowInMemoryFallback = allow }
}

// WithL1Options passes options to the in-memory tier
func WithL1Options(opts ...InMemorySettingsStoreOption) FactoryOption {
	return func(f *factory) { f.l1Opts = append(f.l1Opts, opts...) }
}

// NewSettingsCacheFromConfig builds the settings cache: in-memory only, or tiered with Redis when enabled
func NewSettingsCacheFromConfig(ctx context.Context, redisCfg config.RedisConfig, cacheCfg config.SettingsCacheConfig, source schema.SettingsReader, opts ...FactoryOption) (*SettingsCache, error) {
	f := &factory{logger: zap.NewNop(), allowInMemoryFallback: true}
	for _, opt := range opts {
		opt(f)
	}

	l1 := NewInMemorySettingsStore(append([]InMemorySettingsStoreOption{WithStoreLogger(f.logger)}, f.l1Opts...)...)
	cacheOpts := []SettingsCacheOption{WithTTL(cacheCfg.TTL), WithCacheLogger(f.logger)}

	if !redisCfg.Enabled {
		f.logger.Info("Using in-memory settings cache")
		return NewSettingsCache(source, l1, cacheOpts...), nil
	}

	client, err := NewRedisClient(ctx, redisCfg.Addr(), redisCfg.Password, redisCfg.DB)
	if err != nil {
		if !f.allowInMemoryFallback {
			_ = l1.Close()
			return nil, fmt.Errorf("redis required for settings cache but unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory settings cache; "+
			"settings updates reach other instances only after the TTL",
			zap.Error(err))
		return NewSettingsCache(source, l1, cacheOpts...), nil
	}

	f.logger.Info("Using tiered settings cache", zap.String("redis", redisCfg.Addr()))
	cacheOpts = append(cacheOpts,
		WithL2(NewRedisSettingsStore(client, true, f.logger)),
		WithInvalidator(NewRedisSettingsInvalidator(client, DefaultInvalidationChannel, f.logger)),
	)
	return NewSettingsCache(source, l1, cacheOpts...), nil
}
