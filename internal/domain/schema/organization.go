package schema

import (
	"strings"
	"time"

	"github.com/erp/platform/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrgStatus represents the lifecycle status of an organization
type OrgStatus string

const (
	OrgStatusActive    OrgStatus = "ACTIVE"
	OrgStatusSuspended OrgStatus = "SUSPENDED"
	OrgStatusArchived  OrgStatus = "ARCHIVED"
)

// IsValid checks if the status is a valid OrgStatus
func (s OrgStatus) IsValid() bool {
	switch s {
	case OrgStatusActive, OrgStatusSuspended, OrgStatusArchived:
		return true
	}
	return false
}

// String returns the string representation of OrgStatus
func (s OrgStatus) String() string {
	return string(s)
}

// Default settings applied when an organization leaves a field unset
var (
	DefaultImmediatePostingThreshold = decimal.NewFromInt(1000)
	DefaultBatchInterval             = 15 * time.Minute
	DefaultBaseCurrency              = "USD"
)

// NumberingScheme controls how transaction codes are generated for one transaction type
type NumberingScheme struct {
	Prefix            string `json:"prefix"`
	IncludeFiscalYear bool   `json:"include_fiscal_year"`
}

// OrganizationSettings holds tenant-configurable posting inputs.
// The core reads them; it never derives them.
type OrganizationSettings struct {
	ImmediatePostingThreshold *decimal.Decimal           `json:"immediate_posting_threshold,omitempty"`
	BatchIntervalMinutes      int                        `json:"batch_interval_minutes,omitempty"`
	FiscalYearStartMonth      int                        `json:"fiscal_year_start_month,omitempty"` // 1-12
	BalanceTolerance          *decimal.Decimal           `json:"balance_tolerance,omitempty"`
	BaseCurrency              string                     `json:"base_currency,omitempty"`
	Numbering                 map[string]NumberingScheme `json:"numbering,omitempty"`
}

// Threshold returns the immediate-posting threshold, falling back to def
func (s OrganizationSettings) Threshold(def decimal.Decimal) decimal.Decimal {
	if s.ImmediatePostingThreshold != nil {
		return *s.ImmediatePostingThreshold
	}
	return def
}

// BatchInterval returns the batch interval, falling back to def
func (s OrganizationSettings) BatchInterval(def time.Duration) time.Duration {
	if s.BatchIntervalMinutes > 0 {
		return time.Duration(s.BatchIntervalMinutes) * time.Minute
	}
	return def
}

// Tolerance returns the balance tolerance, falling back to def
func (s OrganizationSettings) Tolerance(def decimal.Decimal) decimal.Decimal {
	if s.BalanceTolerance != nil && !s.BalanceTolerance.IsNegative() {
		return *s.BalanceTolerance
	}
	return def
}

// FiscalYearStart returns the first day of the fiscal year that contains t
func (s OrganizationSettings) FiscalYearStart(t time.Time) time.Time {
	month := s.FiscalYearStartMonth
	if month < 1 || month > 12 {
		month = 1
	}
	year := t.Year()
	if int(t.Month()) < month {
		year--
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

// FiscalYear returns the label year of the fiscal year containing t.
// A fiscal year starting in a month other than January is labelled by the year it ends in.
func (s OrganizationSettings) FiscalYear(t time.Time) int {
	start := s.FiscalYearStart(t)
	if start.Month() == time.January {
		return start.Year()
	}
	return start.Year() + 1
}

// NumberingFor returns the numbering scheme for a transaction type
func (s OrganizationSettings) NumberingFor(transactionType string) NumberingScheme {
	if scheme, ok := s.Numbering[strings.ToUpper(transactionType)]; ok {
		return scheme
	}
	prefix := strings.ToUpper(transactionType)
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	return NumberingScheme{Prefix: prefix + "-", IncludeFiscalYear: true}
}

// Validate checks the settings ranges
func (s OrganizationSettings) Validate() error {
	var violations []shared.Violation
	if s.ImmediatePostingThreshold != nil && s.ImmediatePostingThreshold.IsNegative() {
		violations = append(violations, shared.Violation{
			Rule: "settings", Code: shared.CodeInvalidInput, Field: "immediate_posting_threshold",
			Message: "threshold cannot be negative", Value: s.ImmediatePostingThreshold.String(), Expected: ">= 0",
		})
	}
	if s.BatchIntervalMinutes < 0 {
		violations = append(violations, shared.Violation{
			Rule: "settings", Code: shared.CodeInvalidInput, Field: "batch_interval_minutes",
			Message: "batch interval cannot be negative", Expected: ">= 0",
		})
	}
	if s.FiscalYearStartMonth != 0 && (s.FiscalYearStartMonth < 1 || s.FiscalYearStartMonth > 12) {
		violations = append(violations, shared.Violation{
			Rule: "settings", Code: shared.CodeInvalidInput, Field: "fiscal_year_start_month",
			Message: "fiscal year start month out of range", Expected: "1-12",
		})
	}
	if s.BalanceTolerance != nil && s.BalanceTolerance.IsNegative() {
		violations = append(violations, shared.Violation{
			Rule: "settings", Code: shared.CodeInvalidInput, Field: "balance_tolerance",
			Message: "tolerance cannot be negative", Expected: ">= 0",
		})
	}
	if len(violations) > 0 {
		return shared.NewValidationError(shared.CodeInvalidInput, "invalid organization settings", violations...)
	}
	return nil
}

// Organization is a tenant boundary. Organizations are never physically deleted.
type Organization struct {
	shared.BaseAggregateRoot
	Name      string               `json:"name"`
	Code      string               `json:"code"`
	Status    OrgStatus            `json:"status"`
	Settings  OrganizationSettings `json:"settings"`
	CreatedBy uuid.UUID            `json:"created_by"`
	UpdatedBy uuid.UUID            `json:"updated_by"`
}

// NewOrganization provisions a new organization
func NewOrganization(name, code string, settings OrganizationSettings, actor shared.Actor, now time.Time) (*Organization, error) {
	if actor.IsAnonymous() {
		return nil, shared.ErrActorRequired
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewValidationError(shared.CodeInvalidInput, "Organization name cannot be empty")
	}
	if len(name) > 200 {
		return nil, shared.NewValidationError(shared.CodeInvalidInput, "Organization name cannot exceed 200 characters")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, shared.NewValidationError(shared.CodeInvalidInput, "Organization code cannot be empty")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Organization{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		Name:              name,
		Code:              code,
		Status:            OrgStatusActive,
		Settings:          settings,
		CreatedBy:         actor.ID,
		UpdatedBy:         actor.ID,
	}, nil
}

// UpdateSettings replaces the organization settings
func (o *Organization) UpdateSettings(settings OrganizationSettings, actor shared.Actor, now time.Time) error {
	if actor.IsAnonymous() {
		return shared.ErrActorRequired
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	o.Settings = settings
	o.touch(actor, now)
	return nil
}

// ChangeStatus moves the organization between soft statuses
func (o *Organization) ChangeStatus(status OrgStatus, actor shared.Actor, now time.Time) error {
	if actor.IsAnonymous() {
		return shared.ErrActorRequired
	}
	if !status.IsValid() {
		return shared.NewValidationError(shared.CodeInvalidInput, "Invalid organization status: "+string(status))
	}
	if o.Status == OrgStatusArchived && status != OrgStatusArchived {
		return shared.NewStateError(shared.CodeInvalidState, "Archived organizations cannot be reactivated")
	}
	o.Status = status
	o.touch(actor, now)
	return nil
}

// IsActive returns true if the organization accepts mutations
func (o *Organization) IsActive() bool {
	return o.Status == OrgStatusActive
}

func (o *Organization) touch(actor shared.Actor, now time.Time) {
	o.UpdatedBy = actor.ID
	o.UpdatedAt = now
	o.IncrementVersion()
}
