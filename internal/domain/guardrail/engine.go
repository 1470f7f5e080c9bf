// Package guardrail gates every mutation of the six tables behind an ordered
// pipeline of invariant checks. Each check allows, blocks, or autofixes the
// payload in place; the engine aggregates every violation of a request into a
// single report.
package guardrail

import (
	"context"
	"time"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Table names the storage table a request mutates
type Table string

const (
	TableOrganizations      Table = "organizations"
	TableEntities           Table = "entities"
	TableDynamicAttributes  Table = "dynamic_attributes"
	TableRelationships      Table = "relationships"
	TableTransactionHeaders Table = "transaction_headers"
	TableTransactionLines   Table = "transaction_lines"
)

// Outcome is the result of a single check
type Outcome string

const (
	OutcomeAllow   Outcome = "allow"
	OutcomeBlock   Outcome = "block"
	OutcomeAutofix Outcome = "autofix"
	OutcomeError   Outcome = "error"
)

// Autofix records a correction applied to the payload
type Autofix struct {
	Rule  string `json:"rule"`
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// Operation distinguishes content writes from lifecycle status changes
type Operation string

const (
	OperationWrite  Operation = ""       // Insert or content update; every check applies
	OperationStatus Operation = "status" // Status change only; content checks are skipped
)

// Request is a mutation under validation. Exactly one payload is set.
type Request struct {
	OrganizationID uuid.UUID
	Actor          shared.Actor
	Table          Table
	Operation      Operation
	Settings       schema.OrganizationSettings

	Organization *schema.Organization
	Entity       *schema.Entity
	Attribute    *schema.DynamicAttribute
	Relationship *schema.Relationship
	Transaction  *schema.TransactionHeader
}

// Result is what a check reports
type Result struct {
	Violations []shared.Violation
	Fixes      []Autofix
}

// Outcome derives the outcome from the result
func (r Result) Outcome() Outcome {
	switch {
	case len(r.Violations) > 0:
		return OutcomeBlock
	case len(r.Fixes) > 0:
		return OutcomeAutofix
	}
	return OutcomeAllow
}

func (r *Result) block(v shared.Violation) {
	r.Violations = append(r.Violations, v)
}

func (r *Result) fix(f Autofix) {
	r.Fixes = append(r.Fixes, f)
}

// Check is one invariant of the pipeline. A returned error is an infrastructure
// failure and aborts validation; invariant breaches are reported as violations.
type Check interface {
	Name() string
	Applies(req *Request) bool
	Run(ctx context.Context, req *Request) (Result, error)
}

// Report aggregates the results of every check run for a request
type Report struct {
	Violations []shared.Violation `json:"violations"`
	Fixes      []Autofix          `json:"autofixes"`
}

// Allowed reports whether no check blocked
func (r Report) Allowed() bool {
	return len(r.Violations) == 0
}

// Err converts a blocked report into a domain error.
// Caller-correctable input yields a ValidationError carrying the first validation code;
// otherwise the report is a GuardrailViolation.
func (r Report) Err() error {
	if r.Allowed() {
		return nil
	}
	for _, v := range r.Violations {
		if v.IsValidation() {
			return shared.NewValidationError(v.Code, v.Message, r.Violations...)
		}
	}
	return shared.NewGuardrailViolation("mutation blocked by guardrails: "+shared.ViolationSummary(r.Violations), r.Violations)
}

// Event is emitted for every check run
type Event struct {
	OrganizationID uuid.UUID
	Table          Table
	Rule           string
	Result         Outcome
	Duration       time.Duration
}

// Observer receives check events. Implementations must not block.
type Observer interface {
	GuardrailChecked(ctx context.Context, ev Event)
}

// Engine runs the ordered check pipeline
type Engine struct {
	checks   []Check
	observer Observer
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithObserver sets the observability sink
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine that runs checks in the given order
func NewEngine(checks []Check, opts ...Option) *Engine {
	e := &Engine{
		checks: checks,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Checks returns the names of the configured checks in order
func (e *Engine) Checks() []string {
	names := make([]string, len(e.checks))
	for i, c := range e.checks {
		names[i] = c.Name()
	}
	return names
}

// Validate runs every applicable check and returns the aggregated report.
// Autofixes are applied to the request payload in place. The error is non-nil
// only for infrastructure failures; use Report.Err for the business outcome.
func (e *Engine) Validate(ctx context.Context, req *Request) (Report, error) {
	report := Report{}
	for _, check := range e.checks {
		if !check.Applies(req) {
			continue
		}
		start := e.now()
		res, err := check.Run(ctx, req)
		outcome := res.Outcome()
		if err != nil {
			outcome = OutcomeError
		}
		e.emit(ctx, Event{
			OrganizationID: req.OrganizationID,
			Table:          req.Table,
			Rule:           check.Name(),
			Result:         outcome,
			Duration:       e.now().Sub(start),
		})
		if err != nil {
			e.logger.Error("guardrail check failed",
				zap.String("rule", check.Name()),
				zap.String("table", string(req.Table)),
				zap.String("organization_id", req.OrganizationID.String()),
				zap.Error(err))
			return report, err
		}
		report.Violations = append(report.Violations, res.Violations...)
		report.Fixes = append(report.Fixes, res.Fixes...)
	}
	if !report.Allowed() {
		e.logger.Info("mutation blocked",
			zap.String("table", string(req.Table)),
			zap.String("organization_id", req.OrganizationID.String()),
			zap.Int("violations", len(report.Violations)),
			zap.String("summary", shared.ViolationSummary(report.Violations)))
	}
	return report, nil
}

// Enforce runs Validate and folds the report into a single error
func (e *Engine) Enforce(ctx context.Context, req *Request) (Report, error) {
	report, err := e.Validate(ctx, req)
	if err != nil {
		return report, err
	}
	return report, report.Err()
}

func (e *Engine) emit(ctx context.Context, ev Event) {
	if e.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("guardrail observer panicked", zap.Any("panic", r))
		}
	}()
	e.observer.GuardrailChecked(ctx, ev)
}
