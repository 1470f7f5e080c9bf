package ucr

import (
	"fmt"
	"strings"

	"github.com/erp/platform/internal/domain/smartcode"
	"github.com/shopspring/decimal"
)

// Operator compares a payload attribute with condition values
type Operator string

const (
	OperatorEquals      Operator = "EQUALS"
	OperatorNotEquals   Operator = "NOT_EQUALS"
	OperatorIn          Operator = "IN"
	OperatorNotIn       Operator = "NOT_IN"
	OperatorContains    Operator = "CONTAINS"
	OperatorGreaterThan Operator = "GREATER_THAN"
	OperatorLessThan    Operator = "LESS_THAN"
)

// IsValid checks if the operator is known
func (o Operator) IsValid() bool {
	switch o {
	case OperatorEquals, OperatorNotEquals, OperatorIn, OperatorNotIn,
		OperatorContains, OperatorGreaterThan, OperatorLessThan:
		return true
	}
	return false
}

// AttributeCondition matches one payload attribute
type AttributeCondition struct {
	Attribute string   `json:"attribute"`
	Operator  Operator `json:"operator"`
	Values    []string `json:"values"`
}

// Payload is what a rule family is evaluated against
type Payload struct {
	TransactionType string          `json:"transaction_type,omitempty"`
	SmartCode       string          `json:"smart_code,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency,omitempty"`
	Attributes      map[string]any  `json:"attributes,omitempty"`
}

// attribute looks up built-in payload fields first, then free-form attributes
func (p Payload) attribute(name string) any {
	switch strings.ToLower(name) {
	case "transaction_type":
		return p.TransactionType
	case "smart_code":
		return p.SmartCode
	case "amount", "total_amount":
		return p.Amount
	case "currency":
		return p.Currency
	}
	if p.Attributes != nil {
		if v, ok := p.Attributes[name]; ok {
			return v
		}
	}
	return nil
}

// Matches reports whether every populated part of the condition set holds for the payload
func (c Conditions) Matches(p Payload) bool {
	if len(c.TransactionTypes) > 0 && !containsFold(c.TransactionTypes, p.TransactionType) {
		return false
	}
	if c.SmartCodePrefix != "" {
		code, err := smartcode.Parse(p.SmartCode)
		if err != nil || !code.HasPrefix(c.SmartCodePrefix) {
			return false
		}
	}
	if c.MinAmount != nil && p.Amount.LessThan(*c.MinAmount) {
		return false
	}
	if c.MaxAmount != nil && !p.Amount.LessThan(*c.MaxAmount) {
		return false
	}
	for _, ac := range c.Attributes {
		if !ac.Matches(p) {
			return false
		}
	}
	return true
}

// Matches applies the operator to the payload attribute. A missing attribute never matches.
func (ac AttributeCondition) Matches(p Payload) bool {
	value := p.attribute(ac.Attribute)
	if value == nil || len(ac.Values) == 0 {
		return false
	}
	switch ac.Operator {
	case OperatorEquals, OperatorIn:
		return containsFold(ac.Values, toString(value))
	case OperatorNotEquals, OperatorNotIn:
		return !containsFold(ac.Values, toString(value))
	case OperatorContains:
		s := strings.ToLower(toString(value))
		for _, v := range ac.Values {
			if strings.Contains(s, strings.ToLower(v)) {
				return true
			}
		}
		return false
	case OperatorGreaterThan:
		return compare(value, ac.Values[0]) > 0
	case OperatorLessThan:
		return compare(value, ac.Values[0]) < 0
	}
	return false
}

// compare orders numerically when both sides are numbers, lexically otherwise
func compare(value any, cond string) int {
	if n, ok := toDecimal(value); ok {
		if c, err := decimal.NewFromString(cond); err == nil {
			return n.Cmp(c)
		}
	}
	return strings.Compare(toString(value), cond)
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case decimal.Decimal:
		return v.String()
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(value)
}

func toDecimal(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case float64:
		return decimal.NewFromFloat(v), true
	case string:
		d, err := decimal.NewFromString(v)
		return d, err == nil
	}
	return decimal.Decimal{}, false
}
