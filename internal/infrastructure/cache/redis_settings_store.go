package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisSettingsStore is the shared L2 tier. Settings are stored as JSON with a TTL.
type RedisSettingsStore struct {
	client     *redis.Client
	ownsClient bool
	logger     *zap.Logger
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisSettingsStore wraps an existing client. The caller keeps ownership unless owns is true.
func NewRedisSettingsStore(client *redis.Client, owns bool, logger *zap.Logger) *RedisSettingsStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSettingsStore{client: client, ownsClient: owns, logger: logger}
}

func settingsKey(orgID uuid.UUID) string {
	return "core:settings:" + orgID.String()
}

// Get returns the cached settings or nil on a miss
func (s *RedisSettingsStore) Get(ctx context.Context, orgID uuid.UUID) (*schema.OrganizationSettings, error) {
	data, err := s.client.Get(ctx, settingsKey(orgID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings from cache: %w", err)
	}

	var settings schema.OrganizationSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		s.logger.Warn("Dropping undecodable cached settings",
			zap.String("organization_id", orgID.String()),
			zap.Error(err))
		_ = s.client.Del(ctx, settingsKey(orgID)).Err()
		return nil, nil
	}
	return &settings, nil
}

// Set stores settings for ttl
func (s *RedisSettingsStore) Set(ctx context.Context, orgID uuid.UUID, settings schema.OrganizationSettings, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultSettingsTTL
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := s.client.Set(ctx, settingsKey(orgID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set settings in cache: %w", err)
	}
	return nil
}

// Delete drops the entry of one organization
func (s *RedisSettingsStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	if err := s.client.Del(ctx, settingsKey(orgID)).Err(); err != nil {
		return fmt.Errorf("failed to delete settings from cache: %w", err)
	}
	return nil
}

// Close closes the client if the store owns it
func (s *RedisSettingsStore) Close() error {
	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}

var _ SettingsStore = (*RedisSettingsStore)(nil)
