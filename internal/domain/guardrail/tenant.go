package guardrail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/google/uuid"
)

// DefaultLookupTimeout bounds reference lookups made by the tenant isolation check
const DefaultLookupTimeout = 250 * time.Millisecond

// ReferenceResolver looks up the owning organization of referenced rows.
// Lookups are unscoped so that cross-tenant references are detected rather than hidden.
type ReferenceResolver interface {
	// OrganizationStatus returns shared.ErrNotFound when the organization does not exist
	OrganizationStatus(ctx context.Context, orgID uuid.UUID) (schema.OrgStatus, error)

	// EntityOwners maps each existing entity id to its organization id; unknown ids are absent
	EntityOwners(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]uuid.UUID, error)
}

// TenantIsolationCheck requires every row and every referenced row to belong to the
// request organization, and the organization to be active.
type TenantIsolationCheck struct {
	Resolver ReferenceResolver
	Timeout  time.Duration
}

// Name returns the rule name
func (TenantIsolationCheck) Name() string { return RuleTenantIsolation }

// Applies to every organization-scoped table
func (TenantIsolationCheck) Applies(req *Request) bool { return req.Table != TableOrganizations }

// Run executes the check
func (c TenantIsolationCheck) Run(ctx context.Context, req *Request) (Result, error) {
	var res Result
	if req.OrganizationID == uuid.Nil {
		res.block(tenantViolation("organization_id", "organization id is required", "", "organization id"))
		return res, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	status, err := c.Resolver.OrganizationStatus(lookupCtx, req.OrganizationID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		res.block(tenantViolation("organization_id", "organization does not exist", req.OrganizationID.String(), "existing organization"))
		return res, nil
	case err != nil:
		return c.lookupFailure(&res, "organization_id", err)
	case status != schema.OrgStatusActive:
		res.block(shared.Violation{
			Rule: RuleTenantIsolation, Code: shared.CodeOrganizationInactive, Field: "organization_id",
			Message: "organization is not active", Value: string(status), Expected: string(schema.OrgStatusActive),
		})
		return res, nil
	}

	refs := c.collect(&res, req)
	if len(refs) == 0 {
		return res, nil
	}

	ids := make([]uuid.UUID, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.id)
	}
	owners, err := c.Resolver.EntityOwners(lookupCtx, ids)
	if err != nil {
		return c.lookupFailure(&res, "references", err)
	}
	for _, r := range refs {
		owner, ok := owners[r.id]
		switch {
		case !ok:
			res.block(tenantViolation(r.field, "referenced entity does not exist", r.id.String(), "entity of organization "+req.OrganizationID.String()))
		case owner != req.OrganizationID:
			res.block(tenantViolation(r.field, "referenced entity belongs to another organization", r.id.String(), "entity of organization "+req.OrganizationID.String()))
		}
	}
	return res, nil
}

// lookupFailure blocks on timeout and surfaces every other failure as a storage error
func (c TenantIsolationCheck) lookupFailure(res *Result, field string, err error) (Result, error) {
	if errors.Is(err, context.DeadlineExceeded) {
		res.block(tenantViolation(field, "reference lookup timed out", "", "lookup within "+c.timeout().String()))
		return *res, nil
	}
	if shared.KindOf(err) == shared.KindStorage {
		return *res, err
	}
	return *res, shared.NewStorageError("resolve references", err)
}

func (c TenantIsolationCheck) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultLookupTimeout
	}
	return c.Timeout
}

type reference struct {
	field string
	id    uuid.UUID
}

// collect checks row ownership in place and returns the entity references to resolve
func (c TenantIsolationCheck) collect(res *Result, req *Request) []reference {
	org := req.OrganizationID
	var refs []reference
	own := func(field string, rowOrg uuid.UUID) {
		if rowOrg != org {
			res.block(tenantViolation(field, "row organization does not match request organization", rowOrg.String(), org.String()))
		}
	}
	ref := func(field string, id *uuid.UUID) {
		if id != nil && *id != uuid.Nil {
			refs = append(refs, reference{field: field, id: *id})
		}
	}

	switch {
	case req.Entity != nil:
		own("organization_id", req.Entity.OrganizationID)
	case req.Attribute != nil:
		own("organization_id", req.Attribute.OrganizationID)
		ref("entity_id", &req.Attribute.EntityID)
	case req.Relationship != nil:
		own("organization_id", req.Relationship.OrganizationID)
		ref("from_entity_id", &req.Relationship.FromEntityID)
		ref("to_entity_id", &req.Relationship.ToEntityID)
	case req.Transaction != nil:
		h := req.Transaction
		own("organization_id", h.OrganizationID)
		ref("source_entity_id", h.SourceEntityID)
		ref("target_entity_id", h.TargetEntityID)
		for i := range h.Lines {
			l := &h.Lines[i]
			field := fmt.Sprintf("lines[%d].organization_id", i)
			if l.OrganizationID == uuid.Nil {
				l.OrganizationID = h.OrganizationID
				res.fix(Autofix{Rule: RuleTenantIsolation, Field: field, From: "", To: h.OrganizationID.String()})
			} else if l.OrganizationID != h.OrganizationID {
				res.block(tenantViolation(field, "line organization does not match header organization", l.OrganizationID.String(), h.OrganizationID.String()))
			}
			ref(fmt.Sprintf("lines[%d].entity_id", i), l.EntityID)
		}
	}
	return refs
}

func tenantViolation(field, message, value, expected string) shared.Violation {
	return shared.Violation{
		Rule:     RuleTenantIsolation,
		Code:     shared.CodeTenantIsolation,
		Field:    field,
		Message:  message,
		Value:    value,
		Expected: expected,
	}
}
