package cache

import (
	"context"
	"time"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/google/uuid"
)

// SettingsStore is one tier of the organization settings cache.
// Get returns nil, nil on a miss.
type SettingsStore interface {
	Get(ctx context.Context, orgID uuid.UUID) (*schema.OrganizationSettings, error)
	Set(ctx context.Context, orgID uuid.UUID, settings schema.OrganizationSettings, ttl time.Duration) error
	Delete(ctx context.Context, orgID uuid.UUID) error
	Close() error
}

// DefaultSettingsTTL bounds how long a settings update may go unseen by another instance
const DefaultSettingsTTL = 30 * time.Second

// DefaultInvalidationChannel is the pub/sub channel carrying settings invalidations
const DefaultInvalidationChannel = "core:settings:invalidate"
