package schema

import (
	"strings"
	"time"

	"github.com/erp/platform/internal/domain/shared"
	"github.com/google/uuid"
)

// Relationship is a typed, directed edge between two entities of the same organization
type Relationship struct {
	shared.OrgAggregateRoot
	FromEntityID     uuid.UUID      `json:"from_entity_id"`
	ToEntityID       uuid.UUID      `json:"to_entity_id"`
	RelationshipType string         `json:"relationship_type"`
	SmartCode        string         `json:"smart_code"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	IsActive         bool           `json:"is_active"`
}

// NewRelationship creates a new active relationship
func NewRelationship(orgID, from, to uuid.UUID, relType, smartCode string, metadata map[string]any, actor shared.Actor, now time.Time) (*Relationship, error) {
	if from == uuid.Nil || to == uuid.Nil {
		return nil, shared.NewValidationError(shared.CodeInvalidInput, "Relationship endpoints cannot be empty")
	}
	if from == to {
		return nil, shared.NewValidationError(shared.CodeInvalidInput, "Relationship cannot point to itself")
	}
	relType = strings.ToLower(strings.TrimSpace(relType))
	if relType == "" {
		return nil, shared.NewValidationError(shared.CodeInvalidInput, "Relationship type cannot be empty")
	}
	return &Relationship{
		OrgAggregateRoot: shared.NewOrgAggregateRoot(orgID, actor, now),
		FromEntityID:     from,
		ToEntityID:       to,
		RelationshipType: relType,
		SmartCode:        smartCode,
		Metadata:         metadata,
		IsActive:         true,
	}, nil
}

// Deactivate marks the relationship inactive. Relationships are never deleted.
func (r *Relationship) Deactivate(actor shared.Actor, now time.Time) error {
	if !r.IsActive {
		return shared.NewStateError(shared.CodeInvalidState, "Relationship is already inactive")
	}
	r.IsActive = false
	r.Touch(actor, now)
	return nil
}
