package posting

import (
	"context"
	"time"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// BatchOptions configures one batch posting run
type BatchOptions struct {
	Limit       int
	Lease       time.Duration
	MaxAttempts int
	// RetryDelay returns how long to wait before the given attempt
	RetryDelay func(attempt int) time.Duration
	RunID      string
}

// DefaultBatchOptions returns the options used when a field is left zero
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		Limit:       100,
		Lease:       5 * time.Minute,
		MaxAttempts: 5,
		RetryDelay:  func(attempt int) time.Duration { return time.Duration(attempt) * time.Minute },
	}
}

// BatchOutcome is the fate of one claimed transaction
type BatchOutcome string

const (
	OutcomePosted   BatchOutcome = "POSTED"
	OutcomeDeferred BatchOutcome = "DEFERRED"
	OutcomeBlocked  BatchOutcome = "BLOCKED"
	OutcomeSkipped  BatchOutcome = "SKIPPED"
)

// BatchItem reports the outcome of one transaction
type BatchItem struct {
	OrganizationID  uuid.UUID    `json:"organization_id"`
	TransactionID   uuid.UUID    `json:"transaction_id"`
	TransactionCode string       `json:"transaction_code"`
	Outcome         BatchOutcome `json:"outcome"`
	Error           string       `json:"error,omitempty"`
}

// BatchResult summarizes a batch run
type BatchResult struct {
	RunID    string      `json:"run_id"`
	Claimed  int         `json:"claimed"`
	Posted   int         `json:"posted"`
	Deferred int         `json:"deferred"`
	Blocked  int         `json:"blocked"`
	Skipped  int         `json:"skipped"`
	Items    []BatchItem `json:"items"`
}

func (r *BatchResult) record(item BatchItem) {
	r.Items = append(r.Items, item)
	switch item.Outcome {
	case OutcomePosted:
		r.Posted++
	case OutcomeDeferred:
		r.Deferred++
	case OutcomeBlocked:
		r.Blocked++
	case OutcomeSkipped:
		r.Skipped++
	}
}

// PostBatch claims due PENDING transactions and posts each one as the system actor.
// Storage failures are rescheduled; guardrail and rule failures block the transaction
// so that an operator can adjust it.
func (s *Service) PostBatch(ctx context.Context, opts BatchOptions) (*BatchResult, error) {
	opts = opts.withDefaults()
	result := &BatchResult{RunID: opts.RunID}

	now := s.clock.Now()
	due, err := s.txs.ClaimDue(ctx, now, opts.Limit, opts.Lease)
	if err != nil {
		return nil, err
	}
	result.Claimed = len(due)
	actor := shared.SystemActor()

	for i := range due {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		h := &due[i]
		item := BatchItem{OrganizationID: h.OrganizationID, TransactionID: h.ID, TransactionCode: h.TransactionCode}

		_, err := s.Post(ctx, h.OrganizationID, h.ID, actor)
		switch {
		case err == nil:
			item.Outcome = OutcomePosted
		case shared.IsRetryable(err):
			item.Outcome, item.Error = s.deferOrBlock(ctx, h, err, opts, actor)
		case shared.KindOf(err) == shared.KindState || shared.KindOf(err) == shared.KindConcurrency:
			item.Outcome, item.Error = OutcomeSkipped, err.Error()
		default:
			item.Outcome, item.Error = OutcomeBlocked, err.Error()
			if bErr := s.block(ctx, h, err.Error(), actor); bErr != nil {
				s.logger.Warn("Failed to block transaction",
					zap.String("transaction_id", h.ID.String()),
					zap.Error(bErr))
			}
		}
		result.record(item)
	}

	s.logger.Info("Batch posting run finished",
		zap.String("run_id", result.RunID),
		zap.Int("claimed", result.Claimed),
		zap.Int("posted", result.Posted),
		zap.Int("deferred", result.Deferred),
		zap.Int("blocked", result.Blocked),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (s *Service) deferOrBlock(ctx context.Context, h *schema.TransactionHeader, cause error, opts BatchOptions, actor shared.Actor) (BatchOutcome, string) {
	attempts := h.Attempts + 1
	if attempts >= opts.MaxAttempts {
		if err := s.block(ctx, h, cause.Error(), actor); err != nil {
			s.logger.Warn("Failed to block transaction", zap.String("transaction_id", h.ID.String()), zap.Error(err))
		}
		return OutcomeBlocked, cause.Error()
	}
	next := s.clock.Now().Add(opts.RetryDelay(attempts))
	if err := s.txs.Defer(ctx, h.OrganizationID, h.ID, attempts, next, cause.Error()); err != nil {
		s.logger.Warn("Failed to reschedule transaction", zap.String("transaction_id", h.ID.String()), zap.Error(err))
	}
	return OutcomeDeferred, cause.Error()
}

func (s *Service) block(ctx context.Context, h *schema.TransactionHeader, reason string, actor shared.Actor) error {
	current, err := s.txs.FindByID(ctx, h.OrganizationID, h.ID)
	if err != nil {
		return err
	}
	err = s.changeStatus(ctx, current, actor, func(now time.Time) error {
		current.Block(reason, actor, now)
		return nil
	}, []schema.TxStatus{schema.TxStatusPending})
	if err == nil {
		s.logger.Warn("Transaction blocked",
			zap.String("organization_id", current.OrganizationID.String()),
			zap.String("transaction_code", current.TransactionCode),
			zap.String("reason", reason))
	}
	return err
}

func (o BatchOptions) withDefaults() BatchOptions {
	def := DefaultBatchOptions()
	if o.Limit <= 0 {
		o.Limit = def.Limit
	}
	if o.Lease <= 0 {
		o.Lease = def.Lease
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.RetryDelay == nil {
		o.RetryDelay = def.RetryDelay
	}
	if o.RunID == "" {
		o.RunID = ulid.Make().String()
	}
	return o
}
