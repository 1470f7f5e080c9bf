package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/erp/platform/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValueType is the declared type of a dynamic attribute
type ValueType string

const (
	ValueTypeText    ValueType = "text"
	ValueTypeNumber  ValueType = "number"
	ValueTypeBoolean ValueType = "boolean"
	ValueTypeDate    ValueType = "date"
	ValueTypeJSON    ValueType = "json"
)

// IsValid checks if the value type is known
func (t ValueType) IsValid() bool {
	switch t {
	case ValueTypeText, ValueTypeNumber, ValueTypeBoolean, ValueTypeDate, ValueTypeJSON:
		return true
	}
	return false
}

// DateLayout is the accepted layout for date-only values
const DateLayout = "2006-01-02"

// AttributeValue is the storage-level tagged union of value slots.
// Exactly one slot should be populated.
type AttributeValue struct {
	Text    *string          `json:"text,omitempty"`
	Number  *decimal.Decimal `json:"number,omitempty"`
	Boolean *bool            `json:"boolean,omitempty"`
	Date    *time.Time       `json:"date,omitempty"`
	JSON    json.RawMessage  `json:"json,omitempty"`
}

// TextValue builds a value with the text slot populated
func TextValue(s string) AttributeValue { return AttributeValue{Text: &s} }

// NumberValue builds a value with the number slot populated
func NumberValue(d decimal.Decimal) AttributeValue { return AttributeValue{Number: &d} }

// BooleanValue builds a value with the boolean slot populated
func BooleanValue(b bool) AttributeValue { return AttributeValue{Boolean: &b} }

// DateValue builds a value with the date slot populated
func DateValue(t time.Time) AttributeValue { return AttributeValue{Date: &t} }

// JSONValue builds a value with the json slot populated
func JSONValue(raw json.RawMessage) AttributeValue { return AttributeValue{JSON: raw} }

// Slots returns the populated slot types in declaration order
func (v AttributeValue) Slots() []ValueType {
	var slots []ValueType
	if v.Text != nil {
		slots = append(slots, ValueTypeText)
	}
	if v.Number != nil {
		slots = append(slots, ValueTypeNumber)
	}
	if v.Boolean != nil {
		slots = append(slots, ValueTypeBoolean)
	}
	if v.Date != nil {
		slots = append(slots, ValueTypeDate)
	}
	if len(bytes.TrimSpace(v.JSON)) > 0 {
		slots = append(slots, ValueTypeJSON)
	}
	return slots
}

// String renders the populated slots for violation reports
func (v AttributeValue) String() string {
	parts := make([]string, 0, 1)
	if v.Text != nil {
		parts = append(parts, "text="+*v.Text)
	}
	if v.Number != nil {
		parts = append(parts, "number="+v.Number.String())
	}
	if v.Boolean != nil {
		parts = append(parts, "boolean="+strconv.FormatBool(*v.Boolean))
	}
	if v.Date != nil {
		parts = append(parts, "date="+v.Date.Format(time.RFC3339))
	}
	if len(bytes.TrimSpace(v.JSON)) > 0 {
		parts = append(parts, "json="+string(v.JSON))
	}
	return strings.Join(parts, ",")
}

// TypedValue is a strictly decoded attribute value
type TypedValue struct {
	Type    ValueType
	text    string
	number  decimal.Decimal
	boolean bool
	date    time.Time
	json    json.RawMessage
}

// Text returns the text payload
func (t TypedValue) Text() (string, bool) { return t.text, t.Type == ValueTypeText }

// Number returns the number payload
func (t TypedValue) Number() (decimal.Decimal, bool) { return t.number, t.Type == ValueTypeNumber }

// Boolean returns the boolean payload
func (t TypedValue) Boolean() (bool, bool) { return t.boolean, t.Type == ValueTypeBoolean }

// Date returns the date payload
func (t TypedValue) Date() (time.Time, bool) { return t.date, t.Type == ValueTypeDate }

// JSON returns the json payload
func (t TypedValue) JSON() (json.RawMessage, bool) { return t.json, t.Type == ValueTypeJSON }

// Decode strictly resolves the single populated slot against the declared type.
// Ambiguous (multiply-populated), empty and mismatched values are rejected.
func (v AttributeValue) Decode(declared ValueType) (TypedValue, error) {
	if !declared.IsValid() {
		return TypedValue{}, fieldTypeError("unknown declared type", string(declared), "text|number|boolean|date|json")
	}
	slots := v.Slots()
	switch {
	case len(slots) == 0:
		return TypedValue{}, fieldTypeError("no value slot populated", "", string(declared))
	case len(slots) > 1:
		return TypedValue{}, fieldTypeError("multiple value slots populated", v.String(), string(declared))
	case slots[0] != declared:
		return TypedValue{}, fieldTypeError("populated slot does not match declared type", string(slots[0]), string(declared))
	}
	out := TypedValue{Type: declared}
	switch declared {
	case ValueTypeText:
		out.text = *v.Text
	case ValueTypeNumber:
		out.number = *v.Number
	case ValueTypeBoolean:
		out.boolean = *v.Boolean
	case ValueTypeDate:
		out.date = *v.Date
	case ValueTypeJSON:
		if !json.Valid(v.JSON) {
			return TypedValue{}, fieldTypeError("json slot is not valid JSON", string(v.JSON), "valid JSON")
		}
		out.json = v.JSON
	}
	return out, nil
}

// Coerce moves a single populated slot into the declared slot when the conversion is unambiguous.
// It returns false when the value cannot be coerced.
func (v AttributeValue) Coerce(declared ValueType) (AttributeValue, bool) {
	slots := v.Slots()
	if len(slots) != 1 || !declared.IsValid() {
		return v, false
	}
	if slots[0] == declared {
		return v, true
	}
	src := slots[0]
	switch declared {
	case ValueTypeText:
		switch src {
		case ValueTypeNumber:
			return TextValue(v.Number.String()), true
		case ValueTypeBoolean:
			return TextValue(strconv.FormatBool(*v.Boolean)), true
		case ValueTypeDate:
			return TextValue(v.Date.Format(DateLayout)), true
		}
	case ValueTypeNumber:
		switch src {
		case ValueTypeText:
			if d, err := decimal.NewFromString(strings.TrimSpace(*v.Text)); err == nil {
				return NumberValue(d), true
			}
		case ValueTypeJSON:
			var n json.Number
			if err := json.Unmarshal(v.JSON, &n); err == nil {
				if d, err := decimal.NewFromString(n.String()); err == nil {
					return NumberValue(d), true
				}
			}
		}
	case ValueTypeBoolean:
		switch src {
		case ValueTypeText:
			if b, err := strconv.ParseBool(strings.TrimSpace(*v.Text)); err == nil {
				return BooleanValue(b), true
			}
		case ValueTypeJSON:
			var b bool
			if err := json.Unmarshal(v.JSON, &b); err == nil {
				return BooleanValue(b), true
			}
		}
	case ValueTypeDate:
		if src == ValueTypeText {
			if t, ok := parseDate(*v.Text); ok {
				return DateValue(t), true
			}
		}
	case ValueTypeJSON:
		var raw []byte
		var err error
		switch src {
		case ValueTypeText:
			trimmed := strings.TrimSpace(*v.Text)
			if json.Valid([]byte(trimmed)) && (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) {
				return JSONValue(json.RawMessage(trimmed)), true
			}
			return v, false
		case ValueTypeNumber:
			raw = []byte(v.Number.String())
		case ValueTypeBoolean:
			raw, err = json.Marshal(*v.Boolean)
		case ValueTypeDate:
			raw, err = json.Marshal(v.Date.Format(time.RFC3339))
		}
		if err == nil && raw != nil {
			return JSONValue(raw), true
		}
	}
	return v, false
}

// InferType returns the slot type when exactly one slot is populated
func (v AttributeValue) InferType() (ValueType, bool) {
	slots := v.Slots()
	if len(slots) != 1 {
		return "", false
	}
	return slots[0], true
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func fieldTypeError(message, value, expected string) *shared.DomainError {
	return shared.NewValidationError(shared.CodeFieldType, message, shared.Violation{
		Rule:     "field_type",
		Code:     shared.CodeFieldType,
		Field:    "value",
		Message:  message,
		Value:    value,
		Expected: expected,
	})
}

// DynamicAttribute is a typed key/value extension of an entity.
// At most one live value exists per (organization_id, entity_id, field_name).
type DynamicAttribute struct {
	shared.OrgAggregateRoot
	EntityID  uuid.UUID      `json:"entity_id"`
	FieldName string         `json:"field_name"`
	ValueType ValueType      `json:"value_type"`
	Value     AttributeValue `json:"value"`
	SmartCode string         `json:"smart_code"`
}

// NewDynamicAttribute creates a new attribute. Type consistency is checked by the guardrail engine.
func NewDynamicAttribute(orgID, entityID uuid.UUID, fieldName string, valueType ValueType, value AttributeValue, smartCode string, actor shared.Actor, now time.Time) (*DynamicAttribute, error) {
	if entityID == uuid.Nil {
		return nil, shared.NewValidationError(shared.CodeInvalidInput, "Attribute entity cannot be empty")
	}
	fieldName = strings.ToLower(strings.TrimSpace(fieldName))
	if fieldName == "" {
		return nil, shared.NewValidationError(shared.CodeInvalidInput, "Attribute field name cannot be empty")
	}
	return &DynamicAttribute{
		OrgAggregateRoot: shared.NewOrgAggregateRoot(orgID, actor, now),
		EntityID:         entityID,
		FieldName:        fieldName,
		ValueType:        valueType,
		Value:            value,
		SmartCode:        smartCode,
	}, nil
}

// Typed decodes the attribute value against its declared type
func (a *DynamicAttribute) Typed() (TypedValue, error) {
	tv, err := a.Value.Decode(a.ValueType)
	if err != nil {
		return TypedValue{}, fmt.Errorf("attribute %s: %w", a.FieldName, err)
	}
	return tv, nil
}
