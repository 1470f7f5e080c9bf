package ucr

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/smartcode"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Result is the outcome of a rule evaluation
type Result string

const (
	ResultPassed    Result = "PASSED"
	ResultApproved  Result = "APPROVED"
	ResultRejected  Result = "REJECTED"
	ResultEscalated Result = "ESCALATED"
)

// IsValid checks if the result is a valid Result
func (r Result) IsValid() bool {
	switch r {
	case ResultPassed, ResultApproved, ResultRejected, ResultEscalated:
		return true
	}
	return false
}

// String returns the string representation of Result
func (r Result) String() string {
	return string(r)
}

// FamilyPostingMode is the rule family consulted for immediate vs batch posting
const FamilyPostingMode = "POSTING_MODE"

// Attribute field names of a UCR_RULE entity
const (
	AttrRuleFamily        = "rule_family"
	AttrPriority          = "priority"
	AttrActive            = "active"
	AttrConditions        = "conditions"
	AttrResult            = "result"
	AttrProcessingMode    = "processing_mode"
	AttrRequiredApprovers = "required_approvers"
	AttrRuleVersion       = "rule_version"
)

// MaxRuleInteger bounds integer rule attributes. An unreadable priority sorts
// above every valid one.
const MaxRuleInteger = 1_000_000_000

var maxRuleIntegerDecimal = decimal.NewFromInt(MaxRuleInteger)

// Conditions is the condition set of a rule. Every populated part must match.
type Conditions struct {
	TransactionTypes []string             `json:"transaction_types,omitempty"`
	SmartCodePrefix  string               `json:"smart_code_prefix,omitempty"`
	MinAmount        *decimal.Decimal     `json:"min_amount,omitempty"` // inclusive
	MaxAmount        *decimal.Decimal     `json:"max_amount,omitempty"` // exclusive
	Attributes       []AttributeCondition `json:"attributes,omitempty"`
}

// Validate checks the condition set for internal consistency
func (c Conditions) Validate() error {
	if c.SmartCodePrefix != "" && !smartcode.ValidPrefix(c.SmartCodePrefix) {
		return fmt.Errorf("smart_code_prefix %q is not a dotted uppercase prefix", c.SmartCodePrefix)
	}
	if c.MinAmount != nil && c.MaxAmount != nil && !c.MinAmount.LessThan(*c.MaxAmount) {
		return fmt.Errorf("min_amount %s must be below max_amount %s", c.MinAmount, c.MaxAmount)
	}
	for i, ac := range c.Attributes {
		if strings.TrimSpace(ac.Attribute) == "" {
			return fmt.Errorf("attributes[%d]: attribute is required", i)
		}
		if !ac.Operator.IsValid() {
			return fmt.Errorf("attributes[%d]: unknown operator %q", i, ac.Operator)
		}
		if len(ac.Values) == 0 {
			return fmt.Errorf("attributes[%d]: at least one value is required", i)
		}
	}
	return nil
}

// Rule is the typed view of a UCR_RULE entity and its attributes
type Rule struct {
	ID                uuid.UUID             `json:"id"`
	OrganizationID    uuid.UUID             `json:"organization_id"`
	Name              string                `json:"name"`
	Code              string                `json:"code,omitempty"`
	Family            string                `json:"rule_family"`
	Priority          int                   `json:"priority"`
	Active            bool                  `json:"active"`
	Conditions        Conditions            `json:"conditions"`
	Result            Result                `json:"result"`
	ProcessingMode    schema.ProcessingMode `json:"processing_mode,omitempty"`
	RequiredApprovers int                   `json:"required_approvers,omitempty"`
	Version           int                   `json:"rule_version"`

	// Malformed is set when the stored rule data cannot be decoded
	Malformed string `json:"malformed,omitempty"`
}

// IsMalformed reports whether the rule failed to decode
func (r Rule) IsMalformed() bool {
	return r.Malformed != ""
}

// NormalizeFamily canonicalizes a rule family name
func NormalizeFamily(family string) string {
	return strings.ToUpper(strings.TrimSpace(family))
}

// DecodeRule builds a Rule from its entity and attributes. Decode problems do not
// fail the call; they are recorded in Malformed so evaluation can fail closed.
// A rule whose priority cannot be read sorts first.
func DecodeRule(e schema.Entity, attrs []schema.DynamicAttribute) Rule {
	r := Rule{
		ID:             e.ID,
		OrganizationID: e.OrganizationID,
		Name:           e.Name,
		Code:           e.Code,
		Active:         e.Status == schema.EntityStatusActive,
		Version:        1,
	}
	byField := make(map[string]*schema.DynamicAttribute, len(attrs))
	for i := range attrs {
		if attrs[i].EntityID == e.ID {
			byField[attrs[i].FieldName] = &attrs[i]
		}
	}

	var problems []string
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	typed := func(field string) (schema.TypedValue, bool) {
		a, ok := byField[field]
		if !ok {
			return schema.TypedValue{}, false
		}
		tv, err := a.Typed()
		if err != nil {
			fail("%s: %v", field, err)
			return schema.TypedValue{}, false
		}
		return tv, true
	}
	integer := func(field string) (int, bool) {
		tv, ok := typed(field)
		if !ok {
			return 0, false
		}
		n, ok := tv.Number()
		if !ok || !n.IsInteger() {
			fail("%s must be an integer number", field)
			return 0, false
		}
		if n.Abs().GreaterThan(maxRuleIntegerDecimal) {
			fail("%s must be within ±%d", field, MaxRuleInteger)
			return 0, false
		}
		return int(n.IntPart()), true
	}

	if tv, ok := typed(AttrRuleFamily); ok {
		if s, isText := tv.Text(); isText && strings.TrimSpace(s) != "" {
			r.Family = NormalizeFamily(s)
		} else {
			fail("%s must be non-empty text", AttrRuleFamily)
		}
	} else if _, present := byField[AttrRuleFamily]; !present {
		fail("%s is required", AttrRuleFamily)
	}

	if _, present := byField[AttrPriority]; present {
		if p, ok := integer(AttrPriority); ok {
			r.Priority = p
		} else {
			r.Priority = math.MaxInt32
		}
	}

	if tv, ok := typed(AttrActive); ok {
		if b, isBool := tv.Boolean(); isBool {
			r.Active = r.Active && b
		} else {
			fail("%s must be boolean", AttrActive)
		}
	}

	if tv, ok := typed(AttrConditions); ok {
		raw, _ := tv.JSON()
		dec := json.NewDecoder(strings.NewReader(string(raw)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&r.Conditions); err != nil {
			fail("%s: %v", AttrConditions, err)
		} else if err := r.Conditions.Validate(); err != nil {
			fail("%s: %v", AttrConditions, err)
		}
	}

	if tv, ok := typed(AttrResult); ok {
		s, _ := tv.Text()
		r.Result = Result(strings.ToUpper(strings.TrimSpace(s)))
		if !r.Result.IsValid() {
			fail("%s %q is not PASSED|APPROVED|REJECTED|ESCALATED", AttrResult, s)
		}
	} else if _, present := byField[AttrResult]; !present {
		fail("%s is required", AttrResult)
	}

	if tv, ok := typed(AttrProcessingMode); ok {
		s, _ := tv.Text()
		r.ProcessingMode = schema.ProcessingMode(strings.ToUpper(strings.TrimSpace(s)))
		if !r.ProcessingMode.IsValid() {
			fail("%s %q is not IMMEDIATE|BATCH", AttrProcessingMode, s)
		}
	}

	if _, present := byField[AttrRequiredApprovers]; present {
		if n, ok := integer(AttrRequiredApprovers); ok {
			if n < 0 {
				fail("%s cannot be negative", AttrRequiredApprovers)
			}
			r.RequiredApprovers = n
		}
	}

	if _, present := byField[AttrRuleVersion]; present {
		if n, ok := integer(AttrRuleVersion); ok && n > 0 {
			r.Version = n
		}
	}

	if len(problems) > 0 {
		r.Malformed = strings.Join(problems, "; ")
	}
	return r
}

// AttributeSpec is one typed attribute of an encoded rule
type AttributeSpec struct {
	Field string
	Type  schema.ValueType
	Value schema.AttributeValue
}

// Attributes encodes the rule as the dynamic attributes stored on its entity
func (r Rule) Attributes() ([]AttributeSpec, error) {
	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return nil, err
	}
	version := r.Version
	if version < 1 {
		version = 1
	}
	specs := []AttributeSpec{
		{Field: AttrRuleFamily, Type: schema.ValueTypeText, Value: schema.TextValue(NormalizeFamily(r.Family))},
		{Field: AttrPriority, Type: schema.ValueTypeNumber, Value: schema.NumberValue(decimal.NewFromInt(int64(r.Priority)))},
		{Field: AttrActive, Type: schema.ValueTypeBoolean, Value: schema.BooleanValue(r.Active)},
		{Field: AttrConditions, Type: schema.ValueTypeJSON, Value: schema.JSONValue(conditions)},
		{Field: AttrResult, Type: schema.ValueTypeText, Value: schema.TextValue(string(r.Result))},
		{Field: AttrRequiredApprovers, Type: schema.ValueTypeNumber, Value: schema.NumberValue(decimal.NewFromInt(int64(r.RequiredApprovers)))},
		{Field: AttrRuleVersion, Type: schema.ValueTypeNumber, Value: schema.NumberValue(decimal.NewFromInt(int64(version)))},
	}
	if r.ProcessingMode != "" {
		specs = append(specs, AttributeSpec{Field: AttrProcessingMode, Type: schema.ValueTypeText, Value: schema.TextValue(string(r.ProcessingMode))})
	}
	return specs, nil
}
