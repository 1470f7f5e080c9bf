package guardrail

import (
	"context"
	"fmt"

	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/domain/smartcode"
)

// Rule names reported in violations and observability events
const (
	RuleActor           = "actor_required"
	RuleSmartCode       = "smart_code"
	RuleFieldType       = "field_type"
	RuleLineSequence    = "line_sequence"
	RuleTenantIsolation = "tenant_isolation"
	RuleBalance         = "balance"
)

// ActorCheck blocks mutations without a non-anonymous actor. It is never auto-fixable.
type ActorCheck struct{}

// Name returns the rule name
func (ActorCheck) Name() string { return RuleActor }

// Applies to every mutation
func (ActorCheck) Applies(*Request) bool { return true }

// Run executes the check
func (ActorCheck) Run(_ context.Context, req *Request) (Result, error) {
	var res Result
	if req.Actor.IsAnonymous() {
		res.block(shared.Violation{
			Rule:     RuleActor,
			Code:     shared.CodeActorRequired,
			Field:    "actor",
			Message:  "mutating operations require a non-anonymous actor",
			Expected: "actor id",
		})
	}
	return res, nil
}

// SmartCodeCheck requires every payload row to carry a registered, well-formed smart code
type SmartCodeCheck struct {
	Registry *smartcode.Registry
}

// Name returns the rule name
func (SmartCodeCheck) Name() string { return RuleSmartCode }

// Applies to content writes of every table carrying smart codes
func (SmartCodeCheck) Applies(req *Request) bool {
	return req.Table != TableOrganizations && req.Operation != OperationStatus
}

// Run executes the check
func (c SmartCodeCheck) Run(_ context.Context, req *Request) (Result, error) {
	var res Result
	switch {
	case req.Entity != nil:
		c.check(&res, "smart_code", req.Entity.SmartCode)
	case req.Attribute != nil:
		c.check(&res, "smart_code", req.Attribute.SmartCode)
	case req.Relationship != nil:
		c.check(&res, "smart_code", req.Relationship.SmartCode)
	case req.Transaction != nil:
		c.check(&res, "smart_code", req.Transaction.SmartCode)
		for i, l := range req.Transaction.Lines {
			c.check(&res, fmt.Sprintf("lines[%d].smart_code", i), l.SmartCode)
		}
	}
	return res, nil
}

func (c SmartCodeCheck) check(res *Result, field, code string) {
	if code == "" {
		res.block(shared.Violation{
			Rule:     RuleSmartCode,
			Code:     shared.CodeSmartCodeRequired,
			Field:    field,
			Message:  "smart code is required",
			Expected: "registered smart code",
		})
		return
	}
	if _, err := c.Registry.Validate(code); err != nil {
		res.Violations = append(res.Violations, withField(err, field)...)
	}
}

// withField rewrites the field of the violations carried by a domain error
func withField(err error, field string) []shared.Violation {
	de, ok := err.(*shared.DomainError)
	if !ok || len(de.Violations) == 0 {
		return []shared.Violation{{Rule: RuleSmartCode, Code: shared.CodeInvalidFormat, Field: field, Message: err.Error()}}
	}
	out := make([]shared.Violation, len(de.Violations))
	for i, v := range de.Violations {
		v.Field = field
		out[i] = v
	}
	return out
}
