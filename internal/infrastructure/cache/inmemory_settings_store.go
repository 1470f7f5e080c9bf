package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultCleanupInterval = 30 * time.Second

// InMemorySettingsStore keeps settings in process memory with a per-entry expiry.
// It is the L1 tier and the only tier when Redis is disabled.
type InMemorySettingsStore struct {
	entries sync.Map // map[uuid.UUID]*cacheEntry[schema.OrganizationSettings]
	clock   shared.Clock
	logger  *zap.Logger
	stopCh  chan struct{}
	stopped int32

	hits   int64
	misses int64
}

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e *cacheEntry[T]) isExpired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// InMemorySettingsStoreOption configures an InMemorySettingsStore
type InMemorySettingsStoreOption func(*InMemorySettingsStore)

// WithStoreClock sets the clock used for expiry
func WithStoreClock(clock shared.Clock) InMemorySettingsStoreOption {
	return func(s *InMemorySettingsStore) { s.clock = clock }
}

// WithStoreLogger sets the logger
func WithStoreLogger(logger *zap.Logger) InMemorySettingsStoreOption {
	return func(s *InMemorySettingsStore) { s.logger = logger }
}

// NewInMemorySettingsStore creates the store and starts its cleanup goroutine
func NewInMemorySettingsStore(opts ...InMemorySettingsStoreOption) *InMemorySettingsStore {
	s := &InMemorySettingsStore{
		clock:  shared.SystemClock{},
		logger: zap.NewNop(),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.cleanupExpired()
	return s
}

// Get returns the cached settings or nil on a miss
func (s *InMemorySettingsStore) Get(_ context.Context, orgID uuid.UUID) (*schema.OrganizationSettings, error) {
	if value, ok := s.entries.Load(orgID); ok {
		entry := value.(*cacheEntry[schema.OrganizationSettings])
		if !entry.isExpired(s.clock.Now()) {
			atomic.AddInt64(&s.hits, 1)
			settings := entry.value
			return &settings, nil
		}
		s.entries.CompareAndDelete(orgID, value)
	}
	atomic.AddInt64(&s.misses, 1)
	return nil, nil
}

// Set stores settings for ttl
func (s *InMemorySettingsStore) Set(_ context.Context, orgID uuid.UUID, settings schema.OrganizationSettings, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultSettingsTTL
	}
	s.entries.Store(orgID, &cacheEntry[schema.OrganizationSettings]{
		value:     settings,
		expiresAt: s.clock.Now().Add(ttl),
	})
	return nil
}

// Delete drops the entry of one organization
func (s *InMemorySettingsStore) Delete(_ context.Context, orgID uuid.UUID) error {
	s.entries.Delete(orgID)
	return nil
}

// Clear drops every entry
func (s *InMemorySettingsStore) Clear() {
	s.entries.Range(func(key, _ any) bool {
		s.entries.Delete(key)
		return true
	})
}

// Close stops the cleanup goroutine
func (s *InMemorySettingsStore) Close() error {
	if atomic.CompareAndSwapInt32(&s.stopped, 0, 1) {
		close(s.stopCh)
	}
	return nil
}

// Stats returns hit and miss counts
func (s *InMemorySettingsStore) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&s.hits), atomic.LoadInt64(&s.misses)
}

// Len returns the number of entries, expired ones included
func (s *InMemorySettingsStore) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *InMemorySettingsStore) cleanupExpired() {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.doCleanup()
		}
	}
}

func (s *InMemorySettingsStore) doCleanup() {
	now := s.clock.Now()
	removed := 0
	s.entries.Range(func(key, value any) bool {
		if value.(*cacheEntry[schema.OrganizationSettings]).isExpired(now) {
			s.entries.CompareAndDelete(key, value)
			removed++
		}
		return true
	})
	if removed > 0 {
		s.logger.Debug("Cleaned up expired settings entries", zap.Int("removed", removed))
	}
}

var _ SettingsStore = (*InMemorySettingsStore)(nil)
