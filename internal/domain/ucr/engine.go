package ucr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Engine defaults
const (
	DefaultBudget         = 100 * time.Millisecond
	DefaultMaxActiveRules = 50
	DefaultCacheTTL       = time.Minute
)

// RuleLoader reads every rule of an organization from storage
type RuleLoader interface {
	LoadRules(ctx context.Context, orgID uuid.UUID) ([]Rule, error)
}

// Decision is the outcome of evaluating a rule family
type Decision struct {
	Result            Result                `json:"result"`
	Family            string                `json:"rule_family"`
	MatchedRuleID     *uuid.UUID            `json:"matched_rule_id,omitempty"`
	RuleVersion       int                   `json:"rule_version,omitempty"`
	Explanation       string                `json:"explanation"`
	ProcessingMode    schema.ProcessingMode `json:"processing_mode,omitempty"`
	RequiredApprovers int                   `json:"required_approvers,omitempty"`
	FailedClosed      bool                  `json:"failed_closed,omitempty"` // Rejected because the rule data could not be evaluated
}

// Metadata renders the decision for storage on a transaction
func (d Decision) Metadata() map[string]any {
	m := map[string]any{
		"result":      string(d.Result),
		"rule_family": d.Family,
		"explanation": d.Explanation,
	}
	if d.MatchedRuleID != nil {
		m["matched_rule_id"] = d.MatchedRuleID.String()
		m["rule_version"] = d.RuleVersion
	}
	if d.RequiredApprovers > 0 {
		m["required_approvers"] = d.RequiredApprovers
	}
	return m
}

// Event describes one evaluation for the observability adapter
type Event struct {
	OrganizationID uuid.UUID
	Family         string
	Result         Result
	Duration       time.Duration
}

// Observer receives evaluation events. Implementations must not block.
type Observer interface {
	RuleEvaluated(ctx context.Context, ev Event)
}

// Engine evaluates organization rule families with first-match semantics
type Engine struct {
	loader         RuleLoader
	cache          *RuleCache
	budget         time.Duration
	maxActiveRules int
	observer       Observer
	logger         *zap.Logger
	printer        *message.Printer
	now            func() time.Time
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithBudget bounds the duration of a single evaluation
func WithBudget(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.budget = d
		}
	}
}

// WithMaxActiveRules sets the per-organization active rule count above which a warning is logged
func WithMaxActiveRules(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxActiveRules = n
		}
	}
}

// WithCacheTTL sets how long loaded rule sets are reused
func WithCacheTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) { e.cache = NewRuleCache(ttl) }
}

// WithEngineObserver sets the observability sink
func WithEngineObserver(o Observer) EngineOption {
	return func(e *Engine) { e.observer = o }
}

// WithEngineLogger sets the logger
func WithEngineLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithLanguage sets the locale used to format amounts in explanations
func WithLanguage(tag language.Tag) EngineOption {
	return func(e *Engine) { e.printer = message.NewPrinter(tag) }
}

// WithClock sets the time source used for cache expiry
func WithClock(c shared.Clock) EngineOption {
	return func(e *Engine) { e.now = c.Now }
}

// NewEngine creates a rule engine backed by loader
func NewEngine(loader RuleLoader, opts ...EngineOption) *Engine {
	e := &Engine{
		loader:         loader,
		cache:          NewRuleCache(DefaultCacheTTL),
		budget:         DefaultBudget,
		maxActiveRules: DefaultMaxActiveRules,
		logger:         zap.NewNop(),
		printer:        message.NewPrinter(language.English),
		now:            shared.SystemClock{}.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type stackKey struct{}

// familyStack returns the rule families being evaluated on this call path
func familyStack(ctx context.Context) []string {
	s, _ := ctx.Value(stackKey{}).([]string)
	return s
}

func pushFamily(ctx context.Context, family string) context.Context {
	cur := familyStack(ctx)
	next := make([]string, len(cur), len(cur)+1)
	copy(next, cur)
	return context.WithValue(ctx, stackKey{}, append(next, family))
}

// Evaluate returns the decision of the first matching active rule of the family.
// Malformed rules, an exceeded budget and re-entrant evaluation all yield REJECTED.
// The error is non-nil only for storage failures, alongside a REJECTED decision.
func (e *Engine) Evaluate(ctx context.Context, orgID uuid.UUID, family string, payload Payload) (Decision, error) {
	start := time.Now()
	family = NormalizeFamily(family)
	d, err := e.evaluate(ctx, orgID, family, payload)
	e.emit(ctx, Event{OrganizationID: orgID, Family: family, Result: d.Result, Duration: time.Since(start)})
	if d.FailedClosed {
		e.logger.Warn("Rule evaluation failed closed",
			zap.String("organization_id", orgID.String()),
			zap.String("rule_family", family),
			zap.String("explanation", d.Explanation))
	}
	return d, err
}

func (e *Engine) evaluate(ctx context.Context, orgID uuid.UUID, family string, payload Payload) (Decision, error) {
	if family == "" {
		return rejected(family, "rule family is required"), nil
	}
	for _, f := range familyStack(ctx) {
		if f == family {
			return rejected(family, fmt.Sprintf("re-entrant evaluation of rule family %s", family)), nil
		}
	}
	ctx = pushFamily(ctx, family)

	budgetCtx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()

	set, err := e.rules(budgetCtx, orgID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || budgetCtx.Err() != nil {
			return rejected(family, fmt.Sprintf("evaluation budget of %s exceeded", e.budget)), nil
		}
		d := rejected(family, "rules could not be loaded")
		if shared.KindOf(err) == "" {
			err = shared.NewStorageError("load rules", err)
		}
		return d, err
	}

	for _, r := range set.rules {
		if !r.Active || (r.Family != family && !(r.IsMalformed() && r.Family == "")) {
			continue
		}
		if budgetCtx.Err() != nil {
			return rejected(family, fmt.Sprintf("evaluation budget of %s exceeded", e.budget)), nil
		}
		id := r.ID
		if r.IsMalformed() {
			d := rejected(family, fmt.Sprintf("rule %s is malformed: %s", ruleLabel(r), r.Malformed))
			d.MatchedRuleID = &id
			d.RuleVersion = r.Version
			return d, nil
		}
		if !r.Conditions.Matches(payload) {
			continue
		}
		return Decision{
			Result:            r.Result,
			Family:            family,
			MatchedRuleID:     &id,
			RuleVersion:       r.Version,
			Explanation:       e.explain(r, payload),
			ProcessingMode:    r.ProcessingMode,
			RequiredApprovers: r.RequiredApprovers,
		}, nil
	}
	return Decision{
		Result:      ResultPassed,
		Family:      family,
		Explanation: fmt.Sprintf("no active rule of family %s matched", family),
	}, nil
}

// rules returns the organization's rule set, loading it under the context deadline
func (e *Engine) rules(ctx context.Context, orgID uuid.UUID) (*ruleSet, error) {
	if set, ok := e.cache.get(orgID, e.now()); ok {
		return set, nil
	}

	type loaded struct {
		rules []Rule
		err   error
	}
	ch := make(chan loaded, 1)
	go func() {
		rules, err := e.loader.LoadRules(ctx, orgID)
		ch <- loaded{rules, err}
	}()

	var res loaded
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}

	set := newRuleSet(res.rules, e.now())
	e.cache.put(orgID, set)
	if set.active > e.maxActiveRules {
		e.logger.Warn("Active rule count exceeds limit",
			zap.String("organization_id", orgID.String()),
			zap.Int("active_rules", set.active),
			zap.Int("max_active_rules", e.maxActiveRules))
	}
	return set, nil
}

// Invalidate forces the next evaluation for the organization to reload its rules
func (e *Engine) Invalidate(orgID uuid.UUID) {
	e.cache.Invalidate(orgID)
}

// ActiveRuleCounts returns active rule counts of every organization with loaded rules
func (e *Engine) ActiveRuleCounts() map[uuid.UUID]int {
	return e.cache.ActiveCounts()
}

// ActiveRuleCount returns the active rule count of an organization, loading its rules if needed
func (e *Engine) ActiveRuleCount(ctx context.Context, orgID uuid.UUID) (int, error) {
	set, err := e.rules(ctx, orgID)
	if err != nil {
		return 0, err
	}
	return set.active, nil
}

// MaxActiveRules returns the configured warning limit
func (e *Engine) MaxActiveRules() int {
	return e.maxActiveRules
}

func (e *Engine) explain(r Rule, p Payload) string {
	var conds []string
	if len(r.Conditions.TransactionTypes) > 0 {
		conds = append(conds, "type in "+strings.Join(r.Conditions.TransactionTypes, ","))
	}
	if r.Conditions.SmartCodePrefix != "" {
		conds = append(conds, "smart code under "+r.Conditions.SmartCodePrefix)
	}
	if r.Conditions.MinAmount != nil {
		conds = append(conds, e.printer.Sprintf("amount >= %.2f", r.Conditions.MinAmount.InexactFloat64()))
	}
	if r.Conditions.MaxAmount != nil {
		conds = append(conds, e.printer.Sprintf("amount < %.2f", r.Conditions.MaxAmount.InexactFloat64()))
	}
	if n := len(r.Conditions.Attributes); n > 0 {
		conds = append(conds, e.printer.Sprintf("%d attribute condition(s)", n))
	}
	if len(conds) == 0 {
		conds = append(conds, "unconditional")
	}
	return e.printer.Sprintf("rule %s (priority %d, v%d) matched amount %.2f: %s -> %s",
		ruleLabel(r), r.Priority, r.Version, p.Amount.InexactFloat64(), strings.Join(conds, ", "), r.Result)
}

func (e *Engine) emit(ctx context.Context, ev Event) {
	if e.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("rule observer panicked", zap.Any("panic", r))
		}
	}()
	e.observer.RuleEvaluated(ctx, ev)
}

func rejected(family, explanation string) Decision {
	return Decision{Result: ResultRejected, Family: family, Explanation: explanation, FailedClosed: true}
}

func ruleLabel(r Rule) string {
	if r.Code != "" {
		return r.Code
	}
	if r.Name != "" {
		return r.Name
	}
	return r.ID.String()
}
