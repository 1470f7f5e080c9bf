package schema

import (
	"strings"
	"time"

	"github.com/erp/platform/internal/domain/shared"
	"github.com/google/uuid"
)

// Well-known entity types the core itself reads
const (
	EntityTypeGLAccount         = "GL_ACCOUNT"
	EntityTypeUCRRule           = "UCR_RULE"
	EntityTypeSmartCodeTemplate = "SMART_CODE_TEMPLATE"
)

// EntityStatus represents the status of an entity
type EntityStatus string

const (
	EntityStatusActive   EntityStatus = "ACTIVE"
	EntityStatusInactive EntityStatus = "INACTIVE"
)

// IsValid checks if the status is a valid EntityStatus
func (s EntityStatus) IsValid() bool {
	return s == EntityStatusActive || s == EntityStatusInactive
}

// Entity is any noun of the business domain: customer, product, GL account, rule definition.
// (organization_id, entity_type, code) is unique when code is present.
type Entity struct {
	shared.OrgAggregateRoot
	EntityType string         `json:"entity_type"`
	Name       string         `json:"name"`
	Code       string         `json:"code,omitempty"`
	SmartCode  string         `json:"smart_code"`
	Status     EntityStatus   `json:"status"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewEntity creates a new entity. Actor and smart code validity are enforced by the guardrail engine.
func NewEntity(orgID uuid.UUID, entityType, name, code, smartCode string, metadata map[string]any, actor shared.Actor, now time.Time) (*Entity, error) {
	entityType = strings.ToUpper(strings.TrimSpace(entityType))
	if entityType == "" {
		return nil, shared.NewValidationError(shared.CodeInvalidInput, "Entity type cannot be empty")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewValidationError(shared.CodeInvalidInput, "Entity name cannot be empty")
	}
	if len(code) > 100 {
		return nil, shared.NewValidationError(shared.CodeInvalidInput, "Entity code cannot exceed 100 characters")
	}
	return &Entity{
		OrgAggregateRoot: shared.NewOrgAggregateRoot(orgID, actor, now),
		EntityType:       entityType,
		Name:             name,
		Code:             strings.TrimSpace(code),
		SmartCode:        smartCode,
		Status:           EntityStatusActive,
		Metadata:         metadata,
	}, nil
}

// EntityUpdate carries the mutable fields of an entity; nil means unchanged
type EntityUpdate struct {
	Name      *string
	Code      *string
	SmartCode *string
	Status    *EntityStatus
	Metadata  map[string]any
}

// Apply mutates the entity
func (e *Entity) Apply(u EntityUpdate, actor shared.Actor, now time.Time) error {
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return shared.NewValidationError(shared.CodeInvalidInput, "Entity name cannot be empty")
		}
		e.Name = name
	}
	if u.Code != nil {
		e.Code = strings.TrimSpace(*u.Code)
	}
	if u.SmartCode != nil {
		e.SmartCode = *u.SmartCode
	}
	if u.Status != nil {
		if !u.Status.IsValid() {
			return shared.NewValidationError(shared.CodeInvalidInput, "Invalid entity status: "+string(*u.Status))
		}
		e.Status = *u.Status
	}
	if u.Metadata != nil {
		e.Metadata = u.Metadata
	}
	e.Touch(actor, now)
	return nil
}
