package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/erp/platform/internal/application/posting"
	"github.com/erp/platform/internal/infrastructure/config"
	"github.com/erp/platform/internal/infrastructure/telemetry"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// BatchRunner executes one batch posting pass
type BatchRunner interface {
	PostBatch(ctx context.Context, opts posting.BatchOptions) (*posting.BatchResult, error)
}

// BatchObserver receives a summary of each completed run
type BatchObserver interface {
	BatchCompleted(ctx context.Context, result *posting.BatchResult, d time.Duration)
}

// BatchPosterOption configures a BatchPoster
type BatchPosterOption func(*BatchPoster)

// WithBatchObserver reports every run to o
func WithBatchObserver(o BatchObserver) BatchPosterOption {
	return func(p *BatchPoster) {
		p.observer = o
	}
}

// RunStatus describes the most recent batch run
type RunStatus struct {
	RunID       string               `json:"run_id"`
	StartedAt   time.Time            `json:"started_at"`
	CompletedAt time.Time            `json:"completed_at"`
	Result      *posting.BatchResult `json:"result,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// BatchPoster periodically claims due PENDING transactions and posts them.
// Each poll drains the queue: a full batch is followed immediately by another.
type BatchPoster struct {
	cfg      config.SchedulerConfig
	runner   BatchRunner
	observer BatchObserver
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	last      *RunStatus
}

// NewBatchPoster validates cfg and creates a poster
func NewBatchPoster(cfg config.SchedulerConfig, runner BatchRunner, logger *zap.Logger, opts ...BatchPosterOption) (*BatchPoster, error) {
	if cfg.PollInterval <= 0 || cfg.BatchSize <= 0 || cfg.ClaimLease <= 0 {
		return nil, fmt.Errorf("%w: poll interval, batch size and claim lease must be positive", ErrInvalidConfig)
	}
	if cfg.InitialBackoff <= 0 || cfg.MaxBackoff < cfg.InitialBackoff {
		return nil, fmt.Errorf("%w: backoff must satisfy 0 < initial <= max", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &BatchPoster{cfg: cfg, runner: runner, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// RetryDelay returns the exponential delay before the given attempt, capped at MaxBackoff.
// It is deterministic so a rescheduled transaction's next attempt is reproducible.
func (p *BatchPoster) RetryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialBackoff
	b.MaxInterval = p.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Options returns the batch options a run uses
func (p *BatchPoster) Options() posting.BatchOptions {
	return posting.BatchOptions{
		Limit:       p.cfg.BatchSize,
		Lease:       p.cfg.ClaimLease,
		MaxAttempts: p.cfg.MaxRetries,
		RetryDelay:  p.RetryDelay,
	}
}

// RunOnce executes a single batch and records it as the last run
func (p *BatchPoster) RunOnce(ctx context.Context) (*posting.BatchResult, error) {
	opts := p.Options()
	opts.RunID = ulid.Make().String()

	ctx, span := telemetry.StartSpan(ctx, "posting", "batch", telemetry.AttrRunID.String(opts.RunID))
	defer span.End()

	status := &RunStatus{RunID: opts.RunID, StartedAt: time.Now().UTC()}
	result, err := p.runner.PostBatch(ctx, opts)
	status.CompletedAt = time.Now().UTC()
	status.Result = result
	if err != nil {
		status.Error = err.Error()
		telemetry.RecordError(span, err)
	} else if p.observer != nil {
		p.observer.BatchCompleted(ctx, result, status.CompletedAt.Sub(status.StartedAt))
	}
	if result != nil && result.Claimed > 0 {
		p.logger.Info("Batch posting run completed",
			zap.String("run_id", opts.RunID),
			zap.Int("claimed", result.Claimed),
			zap.Int("posted", result.Posted),
			zap.Int("deferred", result.Deferred),
			zap.Int("blocked", result.Blocked),
			zap.Int("skipped", result.Skipped))
	}

	p.mu.Lock()
	p.last = status
	p.mu.Unlock()
	return result, err
}

// LastRun returns the most recent run, or nil before the first one
func (p *BatchPoster) LastRun() *RunStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return nil
	}
	cp := *p.last
	return &cp
}

// Start launches the polling loop. Calling Start twice is a no-op.
func (p *BatchPoster) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isRunning {
		return nil
	}
	p.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	go p.loop(ctx)

	p.logger.Info("Batch poster started",
		zap.Duration("poll_interval", p.cfg.PollInterval),
		zap.Int("batch_size", p.cfg.BatchSize),
		zap.Int("max_retries", p.cfg.MaxRetries))
	return nil
}

// Stop cancels the loop and waits for the current run to finish or ctx to expire
func (p *BatchPoster) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	p.isRunning = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Batch poster stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.Warn("Batch poster stop timed out")
		return ctx.Err()
	}
}

func (p *BatchPoster) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		p.drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *BatchPoster) drain(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Panic in batch poster", zap.Any("panic", r))
		}
	}()

	for ctx.Err() == nil {
		result, err := p.RunOnce(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Error("Batch posting run failed", zap.Error(err))
			}
			return
		}
		if result.Claimed < p.cfg.BatchSize {
			return
		}
	}
}
