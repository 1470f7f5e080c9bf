package guardrail

import (
	"context"

	"github.com/erp/platform/internal/domain/shared"
)

// FieldTypeCheck enforces that a dynamic attribute populates exactly one slot
// consistent with its declared type. Unambiguous mismatches are coerced.
type FieldTypeCheck struct{}

// Name returns the rule name
func (FieldTypeCheck) Name() string { return RuleFieldType }

// Applies to attribute writes
func (FieldTypeCheck) Applies(req *Request) bool {
	return req.Attribute != nil && req.Operation != OperationStatus
}

// Run executes the check
func (FieldTypeCheck) Run(_ context.Context, req *Request) (Result, error) {
	var res Result
	attr := req.Attribute

	if attr.ValueType == "" {
		inferred, ok := attr.Value.InferType()
		if !ok {
			res.block(fieldViolation("value type is undeclared and the value is ambiguous or empty", attr.Value.String(), "exactly one populated slot"))
			return res, nil
		}
		attr.ValueType = inferred
		res.fix(Autofix{Rule: RuleFieldType, Field: "value_type", From: "", To: string(inferred)})
		return res, nil
	}

	if !attr.ValueType.IsValid() {
		res.block(fieldViolation("unknown declared type", string(attr.ValueType), "text|number|boolean|date|json"))
		return res, nil
	}

	if _, err := attr.Value.Decode(attr.ValueType); err == nil {
		return res, nil
	}

	coerced, ok := attr.Value.Coerce(attr.ValueType)
	if !ok {
		_, err := attr.Value.Decode(attr.ValueType)
		res.Violations = append(res.Violations, decodeViolations(err)...)
		return res, nil
	}
	if _, err := coerced.Decode(attr.ValueType); err != nil {
		res.Violations = append(res.Violations, decodeViolations(err)...)
		return res, nil
	}
	res.fix(Autofix{Rule: RuleFieldType, Field: "value", From: attr.Value.String(), To: coerced.String()})
	attr.Value = coerced
	return res, nil
}

func fieldViolation(message, value, expected string) shared.Violation {
	return shared.Violation{
		Rule:     RuleFieldType,
		Code:     shared.CodeFieldType,
		Field:    "value",
		Message:  message,
		Value:    value,
		Expected: expected,
	}
}

func decodeViolations(err error) []shared.Violation {
	if de, ok := err.(*shared.DomainError); ok && len(de.Violations) > 0 {
		return de.Violations
	}
	return []shared.Violation{fieldViolation(err.Error(), "", "")}
}

