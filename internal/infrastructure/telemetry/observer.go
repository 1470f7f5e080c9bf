package telemetry

import (
	"context"
	"fmt"
	"time"

	appposting "github.com/erp/platform/internal/application/posting"
	"github.com/erp/platform/internal/domain/guardrail"
	"github.com/erp/platform/internal/domain/posting"
	"github.com/erp/platform/internal/domain/ucr"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName names the meter that owns the core instruments
const MeterName = "github.com/erp/platform/core"

// ActiveRuleCounter reports active rule counts per cached organization
type ActiveRuleCounter interface {
	ActiveRuleCounts() map[uuid.UUID]int
}

// Observer records guardrail checks, rule evaluations, postings and batch runs as
// OTel counters and millisecond histograms. Recording never blocks or fails the caller.
type Observer struct {
	guardrailChecks   metric.Int64Counter
	guardrailDuration metric.Float64Histogram
	ruleEvaluations   metric.Int64Counter
	ruleDuration      metric.Float64Histogram
	postings          metric.Int64Counter
	postingDuration   metric.Float64Histogram
	batchItems        metric.Int64Counter
	batchDuration     metric.Float64Histogram
}

var (
	_ guardrail.Observer = (*Observer)(nil)
	_ ucr.Observer       = (*Observer)(nil)
	_ posting.Observer   = (*Observer)(nil)
)

// NewObserver creates the core instruments on meter
func NewObserver(meter metric.Meter) (*Observer, error) {
	o := &Observer{}
	var err error

	if o.guardrailChecks, err = meter.Int64Counter("core.guardrail.checks",
		metric.WithDescription("Guardrail checks by table, rule and result"),
		metric.WithUnit("{check}")); err != nil {
		return nil, fmt.Errorf("failed to create guardrail counter: %w", err)
	}
	if o.guardrailDuration, err = meter.Float64Histogram("core.guardrail.duration",
		metric.WithDescription("Guardrail check latency"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(DurationBuckets...)); err != nil {
		return nil, fmt.Errorf("failed to create guardrail histogram: %w", err)
	}
	if o.ruleEvaluations, err = meter.Int64Counter("core.ucr.evaluations",
		metric.WithDescription("Rule family evaluations by result"),
		metric.WithUnit("{evaluation}")); err != nil {
		return nil, fmt.Errorf("failed to create rule counter: %w", err)
	}
	if o.ruleDuration, err = meter.Float64Histogram("core.ucr.duration",
		metric.WithDescription("Rule family evaluation latency"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(DurationBuckets...)); err != nil {
		return nil, fmt.Errorf("failed to create rule histogram: %w", err)
	}
	if o.postings, err = meter.Int64Counter("core.posting.transactions",
		metric.WithDescription("Processed transactions by type and resulting status"),
		metric.WithUnit("{transaction}")); err != nil {
		return nil, fmt.Errorf("failed to create posting counter: %w", err)
	}
	if o.postingDuration, err = meter.Float64Histogram("core.posting.duration",
		metric.WithDescription("Transaction processing latency"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(DurationBuckets...)); err != nil {
		return nil, fmt.Errorf("failed to create posting histogram: %w", err)
	}
	if o.batchItems, err = meter.Int64Counter("core.batch.items",
		metric.WithDescription("Batch posting outcomes"),
		metric.WithUnit("{transaction}")); err != nil {
		return nil, fmt.Errorf("failed to create batch counter: %w", err)
	}
	if o.batchDuration, err = meter.Float64Histogram("core.batch.duration",
		metric.WithDescription("Batch run latency"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("failed to create batch histogram: %w", err)
	}
	return o, nil
}

// GuardrailChecked implements guardrail.Observer
func (o *Observer) GuardrailChecked(ctx context.Context, ev guardrail.Event) {
	attrs := metric.WithAttributes(
		AttrOrganizationID.String(ev.OrganizationID.String()),
		AttrTable.String(string(ev.Table)),
		AttrRule.String(ev.Rule),
		AttrResult.String(string(ev.Result)),
	)
	o.guardrailChecks.Add(ctx, 1, attrs)
	o.guardrailDuration.Record(ctx, durationMs(ev.Duration), attrs)
}

// RuleEvaluated implements ucr.Observer
func (o *Observer) RuleEvaluated(ctx context.Context, ev ucr.Event) {
	attrs := metric.WithAttributes(
		AttrOrganizationID.String(ev.OrganizationID.String()),
		AttrRuleFamily.String(ev.Family),
		AttrResult.String(string(ev.Result)),
	)
	o.ruleEvaluations.Add(ctx, 1, attrs)
	o.ruleDuration.Record(ctx, durationMs(ev.Duration), attrs)
}

// TransactionProcessed implements posting.Observer
func (o *Observer) TransactionProcessed(ctx context.Context, ev posting.Event) {
	attrs := metric.WithAttributes(
		AttrOrganizationID.String(ev.OrganizationID.String()),
		AttrTransactionType.String(ev.TransactionType),
		AttrStatus.String(string(ev.Status)),
	)
	o.postings.Add(ctx, 1, attrs)
	o.postingDuration.Record(ctx, durationMs(ev.Duration), attrs)
}

// BatchCompleted records the outcome counts of one batch run
func (o *Observer) BatchCompleted(ctx context.Context, result *appposting.BatchResult, d time.Duration) {
	if result == nil {
		return
	}
	counts := map[appposting.BatchOutcome]int{
		appposting.OutcomePosted:   result.Posted,
		appposting.OutcomeDeferred: result.Deferred,
		appposting.OutcomeBlocked:  result.Blocked,
		appposting.OutcomeSkipped:  result.Skipped,
	}
	for outcome, n := range counts {
		if n > 0 {
			o.batchItems.Add(ctx, int64(n), metric.WithAttributes(AttrResult.String(string(outcome))))
		}
	}
	o.batchDuration.Record(ctx, durationMs(d))
}

// RegisterActiveRules publishes the per-organization active rule count as an observable gauge
func RegisterActiveRules(meter metric.Meter, counter ActiveRuleCounter) (metric.Registration, error) {
	gauge, err := meter.Int64ObservableGauge("core.ucr.active_rules",
		metric.WithDescription("Active well-formed rules per cached organization"),
		metric.WithUnit("{rule}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create active rules gauge: %w", err)
	}
	return meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		for orgID, n := range counter.ActiveRuleCounts() {
			obs.ObserveInt64(gauge, int64(n), metric.WithAttributes(attribute.String(string(AttrOrganizationID), orgID.String())))
		}
		return nil
	}, gauge)
}
