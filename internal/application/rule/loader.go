package rule

import (
	"context"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/domain/ucr"
	"github.com/google/uuid"
)

// maxRulesPerLoad caps a single organization load; far above any sane rule count
const maxRulesPerLoad = 1000

// Loader reads UCR_RULE entities and their attributes through the generic repositories
type Loader struct {
	entities   schema.EntityRepository
	attributes schema.AttributeRepository
}

// NewLoader creates a rule loader
func NewLoader(entities schema.EntityRepository, attributes schema.AttributeRepository) *Loader {
	return &Loader{entities: entities, attributes: attributes}
}

// LoadRules implements ucr.RuleLoader
func (l *Loader) LoadRules(ctx context.Context, orgID uuid.UUID) ([]ucr.Rule, error) {
	rows, _, err := l.entities.FindAll(ctx, orgID, schema.EntityFilter{
		Filter:     shared.Filter{Page: 1, PageSize: maxRulesPerLoad, OrderBy: "created_at", OrderDir: "asc"},
		EntityType: schema.EntityTypeUCRRule,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	attrs, err := l.attributes.FindByEntities(ctx, orgID, ids)
	if err != nil {
		return nil, err
	}
	byEntity := make(map[uuid.UUID][]schema.DynamicAttribute, len(rows))
	for _, a := range attrs {
		byEntity[a.EntityID] = append(byEntity[a.EntityID], a)
	}
	rules := make([]ucr.Rule, len(rows))
	for i := range rows {
		rules[i] = ucr.DecodeRule(rows[i], byEntity[rows[i].ID])
	}
	return rules, nil
}
