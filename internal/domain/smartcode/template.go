package smartcode

import (
	"strings"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
)

// Handler names the behaviour a namespace selects downstream
type Handler string

const (
	HandlerFinancialPosting Handler = "financial_posting" // Balanced lines, synthesized journal
	HandlerJournal          Handler = "journal"           // Balanced lines, is itself the ledger entry
	HandlerInformational    Handler = "informational"     // Persisted as DRAFT, no ledger effect
	HandlerEntity           Handler = "entity"
	HandlerRelationship     Handler = "relationship"
	HandlerAttribute        Handler = "attribute"
	HandlerRule             Handler = "rule"
)

// IsValid checks if the handler is known
func (h Handler) IsValid() bool {
	switch h {
	case HandlerFinancialPosting, HandlerJournal, HandlerInformational,
		HandlerEntity, HandlerRelationship, HandlerAttribute, HandlerRule:
		return true
	}
	return false
}

// Template associates a namespace prefix with a handler and its posting hints
type Template struct {
	Prefix           string          `json:"prefix" yaml:"prefix"`
	Handler          Handler         `json:"handler" yaml:"handler"`
	RequiresApproval bool            `json:"requires_approval,omitempty" yaml:"requires_approval"`
	ApprovalFamily   string          `json:"approval_family,omitempty" yaml:"approval_family"`
	LineSide         schema.LineSide `json:"line_side,omitempty" yaml:"line_side"`
	AccountCode      string          `json:"account_code,omitempty" yaml:"account_code"`
	JournalSmartCode string          `json:"journal_smart_code,omitempty" yaml:"journal_smart_code"`
	LatestVersion    int             `json:"latest_version,omitempty" yaml:"latest_version"`
	Description      string          `json:"description,omitempty" yaml:"description"`
}

// Normalize uppercases the prefix and side
func (t Template) Normalize() Template {
	t.Prefix = strings.ToUpper(strings.Trim(strings.TrimSpace(t.Prefix), "."))
	t.LineSide = schema.ParseLineSide(string(t.LineSide))
	t.ApprovalFamily = strings.ToUpper(strings.TrimSpace(t.ApprovalFamily))
	return t
}

// Validate checks the template definition
func (t Template) Validate() error {
	var violations []shared.Violation
	add := func(field, msg, value, expected string) {
		violations = append(violations, shared.Violation{
			Rule: "smart_code_template", Code: shared.CodeInvalidInput, Field: field,
			Message: msg, Value: value, Expected: expected,
		})
	}
	if !ValidPrefix(t.Prefix) {
		add("prefix", "prefix must be dotted uppercase segments", t.Prefix, "DOMAIN.MODULE")
	}
	if !t.Handler.IsValid() {
		add("handler", "unknown handler", string(t.Handler), "financial_posting|journal|informational|entity|relationship|attribute|rule")
	}
	if t.LineSide != "" && !t.LineSide.IsValid() {
		add("line_side", "unknown line side", string(t.LineSide), "DEBIT|CREDIT")
	}
	if t.RequiresApproval && t.ApprovalFamily == "" {
		add("approval_family", "approval family is required when approval is required", "", "rule family name")
	}
	if t.LatestVersion < 0 {
		add("latest_version", "latest version cannot be negative", "", ">= 0")
	}
	if t.JournalSmartCode != "" {
		if _, err := Parse(t.JournalSmartCode); err != nil {
			add("journal_smart_code", "journal smart code does not parse", t.JournalSmartCode, "valid smart code")
		}
	}
	if len(violations) > 0 {
		return shared.NewValidationError(shared.CodeInvalidInput, "invalid smart code template", violations...)
	}
	return nil
}

// Classification holds the flags downstream components read from a validated code
type Classification struct {
	Code               Code            `json:"-"`
	SmartCode          string          `json:"smart_code"`
	Prefix             string          `json:"prefix"`
	Handler            Handler         `json:"handler"`
	IsFinancialPosting bool            `json:"is_financial_posting"`
	IsJournal          bool            `json:"is_journal"`
	RequiresApproval   bool            `json:"requires_approval"`
	ApprovalFamily     string          `json:"approval_family,omitempty"`
	LineSide           schema.LineSide `json:"line_side,omitempty"`
	AccountCode        string          `json:"account_code,omitempty"`
	JournalSmartCode   string          `json:"journal_smart_code,omitempty"`
}

func classify(code Code, t Template) Classification {
	return Classification{
		Code:               code,
		SmartCode:          code.String(),
		Prefix:             t.Prefix,
		Handler:            t.Handler,
		IsFinancialPosting: t.Handler == HandlerFinancialPosting || t.Handler == HandlerJournal,
		IsJournal:          t.Handler == HandlerJournal,
		RequiresApproval:   t.RequiresApproval,
		ApprovalFamily:     t.ApprovalFamily,
		LineSide:           t.LineSide,
		AccountCode:        t.AccountCode,
		JournalSmartCode:   t.JournalSmartCode,
	}
}
