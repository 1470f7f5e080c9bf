package posting

import (
	"context"
	"time"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/google/uuid"
)

// Event describes the outcome of one create, post or reversal
type Event struct {
	OrganizationID  uuid.UUID
	TransactionType string
	Status          schema.TxStatus
	Duration        time.Duration
}

// Observer receives posting events. Implementations must not block.
type Observer interface {
	TransactionProcessed(ctx context.Context, ev Event)
}
