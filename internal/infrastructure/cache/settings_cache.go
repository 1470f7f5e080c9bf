package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Invalidator broadcasts settings invalidations to other instances
type Invalidator interface {
	Publish(ctx context.Context, orgID uuid.UUID) error
	Subscribe(ctx context.Context, callback func(orgID uuid.UUID)) error
	Close() error
}

// SettingsCache is a read-through cache in front of the organization settings source.
// L1 is process-local, L2 (optional) is shared. Reads fall through L1, L2, then source.
type SettingsCache struct {
	source      schema.SettingsReader
	l1          *InMemorySettingsStore
	l2          SettingsStore
	invalidator Invalidator
	ttl         time.Duration
	logger      *zap.Logger

	sourceReads int64
}

// SettingsCacheOption configures a SettingsCache
type SettingsCacheOption func(*SettingsCache)

// WithL2 adds a shared tier
func WithL2(store SettingsStore) SettingsCacheOption {
	return func(c *SettingsCache) { c.l2 = store }
}

// WithInvalidator broadcasts invalidations to other instances
func WithInvalidator(inv Invalidator) SettingsCacheOption {
	return func(c *SettingsCache) { c.invalidator = inv }
}

// WithTTL sets the entry lifetime
func WithTTL(ttl time.Duration) SettingsCacheOption {
	return func(c *SettingsCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheLogger sets the logger
func WithCacheLogger(logger *zap.Logger) SettingsCacheOption {
	return func(c *SettingsCache) { c.logger = logger }
}

// NewSettingsCache creates a cache over source using l1 as the local tier
func NewSettingsCache(source schema.SettingsReader, l1 *InMemorySettingsStore, opts ...SettingsCacheOption) *SettingsCache {
	c := &SettingsCache{
		source: source,
		l1:     l1,
		ttl:    DefaultSettingsTTL,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Settings implements schema.SettingsReader
func (c *SettingsCache) Settings(ctx context.Context, orgID uuid.UUID) (schema.OrganizationSettings, error) {
	if s, _ := c.l1.Get(ctx, orgID); s != nil {
		return *s, nil
	}

	if c.l2 != nil {
		s, err := c.l2.Get(ctx, orgID)
		if err != nil {
			c.logger.Warn("Settings L2 read failed", zap.String("organization_id", orgID.String()), zap.Error(err))
		}
		if s != nil {
			_ = c.l1.Set(ctx, orgID, *s, c.ttl)
			return *s, nil
		}
	}

	atomic.AddInt64(&c.sourceReads, 1)
	settings, err := c.source.Settings(ctx, orgID)
	if err != nil {
		return schema.OrganizationSettings{}, err
	}
	_ = c.l1.Set(ctx, orgID, settings, c.ttl)
	if c.l2 != nil {
		if err := c.l2.Set(ctx, orgID, settings, c.ttl); err != nil {
			c.logger.Warn("Settings L2 write failed", zap.String("organization_id", orgID.String()), zap.Error(err))
		}
	}
	return settings, nil
}

// Invalidate drops the organization from every tier and tells other instances to do the same
func (c *SettingsCache) Invalidate(ctx context.Context, orgID uuid.UUID) error {
	_ = c.l1.Delete(ctx, orgID)
	if c.l2 != nil {
		if err := c.l2.Delete(ctx, orgID); err != nil {
			return err
		}
	}
	if c.invalidator != nil {
		return c.invalidator.Publish(ctx, orgID)
	}
	return nil
}

// Run listens for invalidations from other instances until ctx is done.
// It returns immediately when no invalidator is configured.
func (c *SettingsCache) Run(ctx context.Context) error {
	if c.invalidator == nil {
		return nil
	}
	return c.invalidator.Subscribe(ctx, c.dropLocal)
}

func (c *SettingsCache) dropLocal(orgID uuid.UUID) {
	_ = c.l1.Delete(context.Background(), orgID)
	c.logger.Debug("Dropped local settings after remote invalidation", zap.String("organization_id", orgID.String()))
}

// SourceReads returns how many reads reached the source
func (c *SettingsCache) SourceReads() int64 {
	return atomic.LoadInt64(&c.sourceReads)
}

// Close releases every tier
func (c *SettingsCache) Close() error {
	if c.invalidator != nil {
		_ = c.invalidator.Close()
	}
	if c.l2 != nil {
		_ = c.l2.Close()
	}
	return c.l1.Close()
}

var _ schema.SettingsReader = (*SettingsCache)(nil)
