package shared

import "fmt"

// Violation is a structured description of one failed invariant.
// Rule names the check that produced it; Code is the specific failure.
type Violation struct {
	Rule     string `json:"rule"`
	Code     string `json:"code"`
	Field    string `json:"field"`
	Message  string `json:"message"`
	Value    string `json:"value,omitempty"`
	Expected string `json:"expected,omitempty"`
}

func (v Violation) String() string {
	if v.Expected != "" {
		return fmt.Sprintf("%s[%s] %s: %s (got %q, expected %q)", v.Rule, v.Code, v.Field, v.Message, v.Value, v.Expected)
	}
	return fmt.Sprintf("%s[%s] %s: %s", v.Rule, v.Code, v.Field, v.Message)
}

// IsValidation reports whether the violation is caller-correctable input
// (missing actor, bad smart code, type mismatch) rather than an invariant breach.
func (v Violation) IsValidation() bool {
	switch v.Code {
	case CodeActorRequired, CodeInvalidFormat, CodeUnregisteredNS, CodeSmartCodeRequired, CodeFieldType, CodeLineSequence, CodeInvalidInput:
		return true
	}
	return false
}
