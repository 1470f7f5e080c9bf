package schema

import (
	"context"
	"time"

	"github.com/erp/platform/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrganizationRepository defines persistence for organizations
type OrganizationRepository interface {
	// FindByID finds an organization by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Organization, error)

	// FindByCode finds an organization by its unique code
	FindByCode(ctx context.Context, code string) (*Organization, error)

	// FindAll lists organizations
	FindAll(ctx context.Context, filter shared.Filter) ([]Organization, int64, error)

	// Create inserts a new organization
	Create(ctx context.Context, org *Organization) error

	// Update saves with optimistic locking (version check)
	Update(ctx context.Context, org *Organization) error
}

// EntityFilter defines filtering options for entity queries
type EntityFilter struct {
	shared.Filter
	EntityType      string
	Status          *EntityStatus
	SmartCodePrefix string
}

// EntityRepository defines persistence for entities. Every query is organization-scoped.
type EntityRepository interface {
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*Entity, error)
	FindByCode(ctx context.Context, orgID uuid.UUID, entityType, code string) (*Entity, error)
	FindAll(ctx context.Context, orgID uuid.UUID, filter EntityFilter) ([]Entity, int64, error)
	Create(ctx context.Context, entity *Entity) error
	Update(ctx context.Context, entity *Entity) error
}

// AttributeRepository defines persistence for dynamic attributes
type AttributeRepository interface {
	// Upsert writes the single live value for (organization, entity, field)
	Upsert(ctx context.Context, attr *DynamicAttribute) error
	FindByEntity(ctx context.Context, orgID, entityID uuid.UUID) ([]DynamicAttribute, error)
	FindByEntities(ctx context.Context, orgID uuid.UUID, entityIDs []uuid.UUID) ([]DynamicAttribute, error)
	FindByField(ctx context.Context, orgID, entityID uuid.UUID, fieldName string) (*DynamicAttribute, error)
}

// RelationshipRepository defines persistence for relationships
type RelationshipRepository interface {
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*Relationship, error)
	FindByEntity(ctx context.Context, orgID, entityID uuid.UUID, activeOnly bool) ([]Relationship, error)
	Create(ctx context.Context, rel *Relationship) error
	Update(ctx context.Context, rel *Relationship) error
}

// TransactionFilter defines filtering options for transaction queries
type TransactionFilter struct {
	shared.Filter
	TransactionType string
	Status          *TxStatus
	FromDate        *time.Time
	ToDate          *time.Time
}

// LedgerLine is a read projection of one posted journal line
type LedgerLine struct {
	AccountID   uuid.UUID
	Side        LineSide
	Amount      decimal.Decimal
	PostingDate time.Time
}

// TransactionRepository defines persistence for transaction headers and their lines.
// Status transitions are conditional updates guarded by the current status so that
// concurrent writers serialize at the storage layer.
type TransactionRepository interface {
	// FindByID loads a header and its lines ordered by line number
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*TransactionHeader, error)

	// FindByCode loads a header by its per-organization code
	FindByCode(ctx context.Context, orgID uuid.UUID, code string) (*TransactionHeader, error)

	// FindAll lists headers without lines
	FindAll(ctx context.Context, orgID uuid.UUID, filter TransactionFilter) ([]TransactionHeader, int64, error)

	// Create inserts a header and its lines atomically
	Create(ctx context.Context, header *TransactionHeader) error

	// ReplaceLines rewrites the lines and header totals if the stored status is in from
	ReplaceLines(ctx context.Context, header *TransactionHeader, from []TxStatus) (bool, error)

	// UpdateStatus writes the header status fields if the stored status is in from
	UpdateStatus(ctx context.Context, header *TransactionHeader, from []TxStatus) (bool, error)

	// Post marks the header posted if it is still DRAFT or PENDING and, in the same
	// unit of work, inserts the synthesized journal (nil when the header is itself the journal).
	// It returns false when another writer transitioned the header first.
	Post(ctx context.Context, header *TransactionHeader, journal *TransactionHeader) (bool, error)

	// Reverse inserts the posted reversal (and its journal) and annotates the original,
	// provided the original is POSTED and not yet reversed.
	Reverse(ctx context.Context, original, reversal, reversalJournal *TransactionHeader) (bool, error)

	// ClaimDue leases up to limit PENDING headers whose next attempt is due
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]TransactionHeader, error)

	// Defer records a failed batch attempt and reschedules it
	Defer(ctx context.Context, orgID, id uuid.UUID, attempts int, next time.Time, lastErr string) error

	// LedgerLines returns posted journal lines with posting_date in [from, to]; a nil from means unbounded
	LedgerLines(ctx context.Context, orgID uuid.UUID, from *time.Time, to time.Time) ([]LedgerLine, error)
}

// SettingsReader returns the settings of an organization, possibly from a cache.
// It returns shared.ErrNotFound for unknown organizations.
type SettingsReader interface {
	Settings(ctx context.Context, orgID uuid.UUID) (OrganizationSettings, error)
}
