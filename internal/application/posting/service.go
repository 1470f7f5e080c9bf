package posting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/platform/internal/domain/guardrail"
	"github.com/erp/platform/internal/domain/posting"
	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/domain/smartcode"
	"github.com/erp/platform/internal/domain/ucr"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RuleEvaluator evaluates UCR rule families
type RuleEvaluator interface {
	Evaluate(ctx context.Context, orgID uuid.UUID, family string, payload ucr.Payload) (ucr.Decision, error)
}

// Config holds posting defaults used when an organization has no override
type Config struct {
	DefaultThreshold     decimal.Decimal
	DefaultBatchInterval time.Duration
}

// DefaultConfig returns the built-in posting defaults
func DefaultConfig() Config {
	return Config{
		DefaultThreshold:     schema.DefaultImmediatePostingThreshold,
		DefaultBatchInterval: schema.DefaultBatchInterval,
	}
}

// Service orchestrates guardrails, rule evaluation and journal synthesis for transactions
type Service struct {
	txs      schema.TransactionRepository
	entities schema.EntityRepository
	settings schema.SettingsReader
	registry *smartcode.Registry
	guard    *guardrail.Engine
	rules    RuleEvaluator
	codes    *posting.CodeGenerator
	cfg      Config
	clock    shared.Clock
	observer posting.Observer
	validate *validator.Validate
	logger   *zap.Logger
}

// Option configures the service
type Option func(*Service)

// WithConfig sets the posting defaults
func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

// WithClock sets the time source
func WithClock(c shared.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithObserver sets the observability sink
func WithObserver(o posting.Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithCodeGenerator sets the transaction code generator
func WithCodeGenerator(g *posting.CodeGenerator) Option {
	return func(s *Service) { s.codes = g }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a new posting service
func NewService(
	txs schema.TransactionRepository,
	entities schema.EntityRepository,
	settings schema.SettingsReader,
	registry *smartcode.Registry,
	guard *guardrail.Engine,
	rules RuleEvaluator,
	opts ...Option,
) *Service {
	s := &Service{
		txs:      txs,
		entities: entities,
		settings: settings,
		registry: registry,
		guard:    guard,
		rules:    rules,
		codes:    posting.NewCodeGenerator(nil),
		cfg:      DefaultConfig(),
		clock:    shared.SystemClock{},
		validate: validator.New(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates and stores a transaction. Financial transactions are then routed
// by rule evaluation: posted immediately, queued for the batch poster, or held in
// DRAFT when approval is escalated.
func (s *Service) Create(ctx context.Context, orgID uuid.UUID, cmd CreateTransactionCommand, actor shared.Actor) (*CreateResult, error) {
	start := time.Now()
	res, err := s.create(ctx, orgID, cmd, actor)
	ev := posting.Event{OrganizationID: orgID, TransactionType: strings.ToUpper(strings.TrimSpace(cmd.TransactionType)), Status: schema.TxStatusBlocked, Duration: time.Since(start)}
	if res != nil {
		ev.TransactionType = res.Transaction.TransactionType
		ev.Status = res.Transaction.Status
	}
	s.emit(ctx, ev)
	return res, err
}

func (s *Service) create(ctx context.Context, orgID uuid.UUID, cmd CreateTransactionCommand, actor shared.Actor) (*CreateResult, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, shared.NewValidationError(shared.CodeInvalidInput, err.Error())
	}
	settings, err := s.orgSettings(ctx, orgID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	txDate := now
	if cmd.TransactionDate != nil {
		txDate = cmd.TransactionDate.UTC()
	}
	h, err := schema.NewTransactionHeader(orgID, cmd.TransactionType, cmd.TransactionCode, txDate, cmd.TotalAmount, cmd.SmartCode, toLines(cmd.Lines), actor, now)
	if err != nil {
		return nil, err
	}
	h.Currency = s.currency(cmd.Currency, settings)
	h.SourceEntityID = cmd.SourceEntityID
	h.TargetEntityID = cmd.TargetEntityID
	h.Metadata = cmd.Metadata

	cls, clsErr := s.registry.Classify(h.SmartCode)
	if clsErr == nil && cls.IsJournal {
		h.TransactionType = schema.TransactionTypeJournalEntry
	}

	report, err := s.guard.Enforce(ctx, &guardrail.Request{
		OrganizationID: orgID,
		Actor:          actor,
		Table:          guardrail.TableTransactionHeaders,
		Settings:       settings,
		Transaction:    h,
	})
	if err != nil {
		return nil, err
	}
	if clsErr != nil {
		return nil, clsErr
	}
	posting.MaterializeSides(s.registry, h.Lines)

	if h.TransactionCode == "" {
		if h.TransactionCode, err = s.nextCode(settings, h.TransactionType, txDate, now); err != nil {
			return nil, err
		}
	}
	result := &CreateResult{Transaction: h, Fixes: report.Fixes}

	if !cls.IsFinancialPosting {
		return result, s.txs.Create(ctx, h)
	}

	payload := rulePayload(h)

	if cls.RequiresApproval {
		d, err := s.rules.Evaluate(ctx, orgID, cls.ApprovalFamily, payload)
		if err != nil {
			return nil, err
		}
		result.Approval = &d
		h.SetMetadata(posting.MetaApprovalDecision, d.Metadata())
		switch d.Result {
		case ucr.ResultRejected:
			return nil, ruleRejected(d)
		case ucr.ResultEscalated:
			s.logger.Info("Transaction held for approval",
				zap.String("organization_id", orgID.String()),
				zap.String("transaction_code", h.TransactionCode),
				zap.Int("required_approvers", d.RequiredApprovers))
			return result, s.txs.Create(ctx, h)
		}
	}

	d, err := s.rules.Evaluate(ctx, orgID, ucr.FamilyPostingMode, payload)
	if err != nil {
		return nil, err
	}
	if d.Result == ucr.ResultRejected {
		return nil, ruleRejected(d)
	}
	result.PostingDecision = &d

	threshold := settings.Threshold(s.cfg.DefaultThreshold)
	mode := d.ProcessingMode
	if !mode.IsValid() {
		mode = schema.ProcessingBatch
		if h.TotalAmount.GreaterThanOrEqual(threshold) {
			mode = schema.ProcessingImmediate
		}
	}
	h.SetMetadata(posting.MetaPostingDecision, map[string]any{
		"mode":      string(mode),
		"threshold": threshold.String(),
		"rule":      d.Metadata(),
	})

	if mode == schema.ProcessingBatch {
		h.MarkPending(now.Add(settings.BatchInterval(s.cfg.DefaultBatchInterval)))
		return result, s.txs.Create(ctx, h)
	}

	h.ProcessingMode = schema.ProcessingImmediate
	journal, err := s.prepareJournal(ctx, h, settings, "", actor, now)
	if err != nil {
		return nil, err
	}
	if err := s.txs.Create(ctx, h); err != nil {
		return nil, err
	}
	receipt, err := s.commit(ctx, h, journal, h.TransactionDate, actor, now)
	if err != nil {
		return nil, err
	}
	result.Receipt = receipt
	if posted, err := s.txs.FindByID(ctx, orgID, h.ID); err == nil {
		result.Transaction = posted
	}
	return result, nil
}

// Post posts a DRAFT or PENDING transaction. Posting an already posted
// transaction returns its existing receipt.
func (s *Service) Post(ctx context.Context, orgID, id uuid.UUID, actor shared.Actor) (*posting.PostedReceipt, error) {
	start := time.Now()
	receipt, err := s.post(ctx, orgID, id, actor)
	ev := posting.Event{OrganizationID: orgID, Status: schema.TxStatusBlocked, Duration: time.Since(start)}
	if receipt != nil {
		ev.TransactionType = receipt.TransactionType
		ev.Status = receipt.Status
	}
	s.emit(ctx, ev)
	return receipt, err
}

func (s *Service) post(ctx context.Context, orgID, id uuid.UUID, actor shared.Actor) (*posting.PostedReceipt, error) {
	h, err := s.txs.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if h.IsPosted() {
		return s.receiptFor(ctx, h)
	}
	if !h.Status.In(schema.PostableStatuses...) {
		return nil, shared.NewStateError(shared.CodeInvalidState, fmt.Sprintf("Transaction %s is %s and cannot be posted", h.TransactionCode, h.Status))
	}
	settings, err := s.orgSettings(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if _, err := s.guard.Enforce(ctx, &guardrail.Request{
		OrganizationID: orgID,
		Actor:          actor,
		Table:          guardrail.TableTransactionHeaders,
		Settings:       settings,
		Transaction:    h,
	}); err != nil {
		return nil, err
	}
	cls, err := s.registry.Classify(h.SmartCode)
	if err != nil {
		return nil, err
	}
	if !cls.IsFinancialPosting {
		return nil, shared.NewStateError(shared.CodeInvalidState, "Transaction "+h.TransactionCode+" is informational and has no ledger entry")
	}
	if err := s.checkApproval(ctx, h, cls); err != nil {
		if errors.Is(err, errApprovalRequired) && h.Status == schema.TxStatusPending {
			s.holdForApproval(ctx, h, actor)
		}
		return nil, err
	}
	posting.MaterializeSides(s.registry, h.Lines)

	now := s.clock.Now()
	journal, err := s.prepareJournal(ctx, h, settings, "", actor, now)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, h, journal, h.TransactionDate, actor, now)
}

// commit marks the header posted and stores it with its journal. A lost race is
// resolved by returning the winner's receipt.
func (s *Service) commit(ctx context.Context, h, journal *schema.TransactionHeader, postingDate time.Time, actor shared.Actor, now time.Time) (*posting.PostedReceipt, error) {
	journalID := h.ID
	if journal != nil {
		journalID = journal.ID
	}
	if err := h.MarkPosted(postingDate, journalID, actor, now); err != nil {
		return nil, err
	}
	ok, err := s.txs.Post(ctx, h, journal)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.txs.FindByID(ctx, h.OrganizationID, h.ID)
		if err != nil {
			return nil, err
		}
		if current.IsPosted() {
			s.logger.Info("Concurrent posting resolved to existing receipt",
				zap.String("transaction_id", h.ID.String()))
			return s.receiptFor(ctx, current)
		}
		return nil, shared.ErrConcurrencyConflict
	}
	s.logger.Info("Transaction posted",
		zap.String("organization_id", h.OrganizationID.String()),
		zap.String("transaction_id", h.ID.String()),
		zap.String("transaction_code", h.TransactionCode),
		zap.String("journal_id", journalID.String()),
		zap.String("actor_id", actor.ID.String()))
	stored, err := s.txs.FindByID(ctx, h.OrganizationID, h.ID)
	if err != nil {
		return nil, err
	}
	return s.receiptFor(ctx, stored)
}

// receiptFor builds the receipt of a posted transaction from stored state
func (s *Service) receiptFor(ctx context.Context, h *schema.TransactionHeader) (*posting.PostedReceipt, error) {
	var journal *schema.TransactionHeader
	if h.JournalID != nil && *h.JournalID != h.ID {
		j, err := s.txs.FindByID(ctx, h.OrganizationID, *h.JournalID)
		if err != nil {
			return nil, err
		}
		journal = j
	}
	r := posting.NewReceipt(h, journal)
	return &r, nil
}

// prepareJournal resolves GL accounts and synthesizes the ledger entry of h.
// Journal transactions are their own ledger entry: their lines receive the
// resolved accounts and nil is returned.
func (s *Service) prepareJournal(ctx context.Context, h *schema.TransactionHeader, settings schema.OrganizationSettings, smartCode string, actor shared.Actor, now time.Time) (*schema.TransactionHeader, error) {
	planned, err := posting.PlanJournal(s.registry, h)
	if err != nil {
		return nil, err
	}
	accounts, err := s.resolveAccounts(ctx, h.OrganizationID, planned)
	if err != nil {
		return nil, err
	}

	if h.TransactionType == schema.TransactionTypeJournalEntry {
		for i := range planned {
			id := accounts[i]
			h.Lines[i].EntityID = &id
			h.Lines[i].Side = planned[i].Side
		}
		return nil, nil
	}

	resolved := make([]posting.ResolvedLine, len(planned))
	for i, p := range planned {
		resolved[i] = posting.ResolvedLine{SourceLine: p.SourceLine, Side: p.Side, Amount: p.Amount, AccountID: accounts[i]}
	}
	if smartCode == "" {
		if cls, err := s.registry.Classify(h.SmartCode); err == nil {
			smartCode = cls.JournalSmartCode
		}
	}
	code, err := s.nextCode(settings, schema.TransactionTypeJournalEntry, h.TransactionDate, now)
	if err != nil {
		return nil, err
	}
	return posting.BuildJournal(posting.JournalInput{
		Source:      h,
		Lines:       resolved,
		SmartCode:   smartCode,
		Code:        code,
		PostingDate: h.TransactionDate,
		Actor:       actor,
		Now:         now,
	})
}

// resolveAccounts maps every planned line to an active GL_ACCOUNT entity of the organization
func (s *Service) resolveAccounts(ctx context.Context, orgID uuid.UUID, planned []posting.PlannedLine) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(planned))
	byCode := make(map[string]uuid.UUID)
	var violations []shared.Violation
	for i, p := range planned {
		field := fmt.Sprintf("lines[%d]", i)
		if p.AccountCode != "" {
			if id, ok := byCode[p.AccountCode]; ok {
				ids[i] = id
				continue
			}
			acct, err := s.entities.FindByCode(ctx, orgID, schema.EntityTypeGLAccount, p.AccountCode)
			if errors.Is(err, shared.ErrNotFound) {
				violations = append(violations, accountViolation(field, p.AccountCode))
				continue
			}
			if err != nil {
				return nil, err
			}
			byCode[p.AccountCode] = acct.ID
			ids[i] = acct.ID
			continue
		}
		acct, err := s.entities.FindByID(ctx, orgID, *p.AccountID)
		if errors.Is(err, shared.ErrNotFound) || (err == nil && acct.EntityType != schema.EntityTypeGLAccount) {
			violations = append(violations, accountViolation(field, p.AccountID.String()))
			continue
		}
		if err != nil {
			return nil, err
		}
		ids[i] = acct.ID
	}
	if len(violations) > 0 {
		return nil, shared.NewGuardrailViolation("journal references unknown GL accounts", violations)
	}
	return ids, nil
}

func accountViolation(field, value string) shared.Violation {
	return shared.Violation{
		Rule:     "journal",
		Code:     shared.CodeAccountNotFound,
		Field:    field,
		Message:  "GL account not found in organization",
		Value:    value,
		Expected: schema.EntityTypeGLAccount,
	}
}

// Cancel cancels an unposted transaction
func (s *Service) Cancel(ctx context.Context, orgID, id uuid.UUID, actor shared.Actor) (*schema.TransactionHeader, error) {
	h, err := s.txs.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := s.changeStatus(ctx, h, actor, func(now time.Time) error { return h.Cancel(actor, now) }, schema.CancellableStatuses); err != nil {
		return nil, err
	}
	s.logger.Info("Transaction cancelled",
		zap.String("organization_id", orgID.String()),
		zap.String("transaction_code", h.TransactionCode),
		zap.String("actor_id", actor.ID.String()))
	return h, nil
}

// changeStatus applies a status transition and persists it conditionally on the prior status
func (s *Service) changeStatus(ctx context.Context, h *schema.TransactionHeader, actor shared.Actor, apply func(time.Time) error, from []schema.TxStatus) error {
	if _, err := s.guard.Enforce(ctx, &guardrail.Request{
		OrganizationID: h.OrganizationID,
		Actor:          actor,
		Table:          guardrail.TableTransactionHeaders,
		Operation:      guardrail.OperationStatus,
		Transaction:    h,
	}); err != nil {
		return err
	}
	if err := apply(s.clock.Now()); err != nil {
		return err
	}
	ok, err := s.txs.UpdateStatus(ctx, h, from)
	if err != nil {
		return err
	}
	if !ok {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// AdjustLines replaces the lines of an unposted transaction. A BLOCKED
// transaction returns to DRAFT and can be posted again.
func (s *Service) AdjustLines(ctx context.Context, orgID, id uuid.UUID, cmd AdjustLinesCommand, actor shared.Actor) (*AdjustResult, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, shared.NewValidationError(shared.CodeInvalidInput, err.Error())
	}
	h, err := s.txs.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	settings, err := s.orgSettings(ctx, orgID)
	if err != nil {
		return nil, err
	}
	prior := h.Status
	if err := h.ReplaceLines(toLines(cmd.Lines), cmd.TotalAmount, actor, s.clock.Now()); err != nil {
		return nil, err
	}
	report, err := s.guard.Enforce(ctx, &guardrail.Request{
		OrganizationID: orgID,
		Actor:          actor,
		Table:          guardrail.TableTransactionHeaders,
		Settings:       settings,
		Transaction:    h,
	})
	if err != nil {
		return nil, err
	}
	posting.MaterializeSides(s.registry, h.Lines)
	if cls, err := s.registry.Classify(h.SmartCode); err == nil && cls.IsFinancialPosting && cls.RequiresApproval {
		posting.ClearApprovals(h)
		if err := s.checkApproval(ctx, h, cls); err != nil {
			if !errors.Is(err, errApprovalRequired) {
				return nil, err
			}
			h.HoldForApproval()
		}
	}
	ok, err := s.txs.ReplaceLines(ctx, h, []schema.TxStatus{prior})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.ErrConcurrencyConflict
	}
	s.logger.Info("Transaction lines adjusted",
		zap.String("organization_id", orgID.String()),
		zap.String("transaction_code", h.TransactionCode),
		zap.Int("lines", len(h.Lines)))
	return &AdjustResult{Transaction: h, Fixes: report.Fixes}, nil
}

// Reverse posts a mirror transaction with every side swapped and links it to
// the original. Synthesized journals are reversed through their source transaction.
func (s *Service) Reverse(ctx context.Context, orgID, id uuid.UUID, cmd ReverseCommand, actor shared.Actor) (*ReverseResult, error) {
	orig, err := s.txs.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if src, ok := orig.Metadata[posting.MetaSourceTransactionID]; ok {
		return nil, shared.NewStateError(shared.CodeInvalidState, fmt.Sprintf("Journal %s was synthesized for transaction %v; reverse the source transaction", orig.TransactionCode, src))
	}
	settings, err := s.orgSettings(ctx, orgID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	postingDate := now
	if cmd.PostingDate != nil {
		postingDate = cmd.PostingDate.UTC()
	}
	code, err := s.nextCode(settings, orig.TransactionType, postingDate, now)
	if err != nil {
		return nil, err
	}
	rev, err := posting.BuildReversal(s.registry, posting.ReversalInput{
		Original:    orig,
		Code:        code,
		PostingDate: postingDate,
		Actor:       actor,
		Now:         now,
	})
	if err != nil {
		return nil, err
	}
	if cmd.Reason != "" {
		rev.SetMetadata("reversal_reason", cmd.Reason)
	}
	if _, err := s.guard.Enforce(ctx, &guardrail.Request{
		OrganizationID: orgID,
		Actor:          actor,
		Table:          guardrail.TableTransactionHeaders,
		Settings:       settings,
		Transaction:    rev,
	}); err != nil {
		return nil, err
	}
	journal, err := s.prepareJournal(ctx, rev, settings, posting.ReversalJournalSmartCode, actor, now)
	if err != nil {
		return nil, err
	}
	journalID := rev.ID
	if journal != nil {
		journalID = journal.ID
	}
	if err := rev.MarkPosted(postingDate, journalID, actor, now); err != nil {
		return nil, err
	}
	revID := rev.ID
	orig.ReversedBy = &revID
	orig.SetMetadata(posting.MetaReversedBy, rev.ID.String())
	orig.Touch(actor, now)

	ok, err := s.txs.Reverse(ctx, orig, rev, journal)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.txs.FindByID(ctx, orgID, id)
		if err != nil {
			return nil, err
		}
		if current.ReversedBy != nil {
			return nil, shared.NewStateError(shared.CodeAlreadyReversed, "Transaction "+current.TransactionCode+" is already reversed")
		}
		return nil, shared.ErrConcurrencyConflict
	}
	s.logger.Info("Transaction reversed",
		zap.String("organization_id", orgID.String()),
		zap.String("transaction_code", orig.TransactionCode),
		zap.String("reversal_code", rev.TransactionCode),
		zap.String("actor_id", actor.ID.String()))

	stored, err := s.txs.FindByID(ctx, orgID, rev.ID)
	if err != nil {
		return nil, err
	}
	receipt, err := s.receiptFor(ctx, stored)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, posting.Event{OrganizationID: orgID, TransactionType: rev.TransactionType, Status: schema.TxStatusPosted})
	return &ReverseResult{Original: orig, Reversal: stored, Receipt: *receipt}, nil
}

// Get returns a transaction with its lines
func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (*schema.TransactionHeader, error) {
	return s.txs.FindByID(ctx, orgID, id)
}

// List returns the transactions of an organization
func (s *Service) List(ctx context.Context, orgID uuid.UUID, filter schema.TransactionFilter) ([]schema.TransactionHeader, int64, error) {
	return s.txs.FindAll(ctx, orgID, filter)
}

func (s *Service) orgSettings(ctx context.Context, orgID uuid.UUID) (schema.OrganizationSettings, error) {
	settings, err := s.settings.Settings(ctx, orgID)
	if errors.Is(err, shared.ErrNotFound) {
		return schema.OrganizationSettings{}, nil
	}
	return settings, err
}

func (s *Service) nextCode(settings schema.OrganizationSettings, transactionType string, date, now time.Time) (string, error) {
	return s.codes.Next(settings.NumberingFor(transactionType), settings.FiscalYear(date), now)
}

func (s *Service) currency(requested string, settings schema.OrganizationSettings) string {
	switch {
	case requested != "":
		return strings.ToUpper(requested)
	case settings.BaseCurrency != "":
		return settings.BaseCurrency
	default:
		return schema.DefaultBaseCurrency
	}
}

func (s *Service) emit(ctx context.Context, ev posting.Event) {
	if s.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("Posting observer panicked", zap.Any("panic", r))
		}
	}()
	s.observer.TransactionProcessed(ctx, ev)
}

var errApprovalRequired = shared.NewStateError(shared.CodeApprovalRequired, "")

// checkApproval re-evaluates the approval family of h against its current
// amount. An ESCALATED decision holds until enough approvers other than the
// creator have approved.
func (s *Service) checkApproval(ctx context.Context, h *schema.TransactionHeader, cls smartcode.Classification) error {
	if !cls.RequiresApproval {
		return nil
	}
	d, err := s.rules.Evaluate(ctx, h.OrganizationID, cls.ApprovalFamily, rulePayload(h))
	if err != nil {
		return err
	}
	h.SetMetadata(posting.MetaApprovalDecision, d.Metadata())
	switch d.Result {
	case ucr.ResultRejected:
		return ruleRejected(d)
	case ucr.ResultEscalated:
		required := max(d.RequiredApprovers, 1)
		if got := posting.ApprovalCount(h); got < required {
			return shared.NewStateError(shared.CodeApprovalRequired,
				fmt.Sprintf("Transaction %s needs %d approvals, has %d", h.TransactionCode, required, got))
		}
	}
	return nil
}

// holdForApproval moves a queued transaction back to DRAFT so the batch stops claiming it
func (s *Service) holdForApproval(ctx context.Context, h *schema.TransactionHeader, actor shared.Actor) {
	h.HoldForApproval()
	h.Touch(actor, s.clock.Now())
	ok, err := s.txs.UpdateStatus(ctx, h, []schema.TxStatus{schema.TxStatusPending})
	switch {
	case err != nil:
		s.logger.Warn("Failed to hold transaction for approval", zap.String("transaction_id", h.ID.String()), zap.Error(err))
	case ok:
		s.logger.Info("Transaction held for approval",
			zap.String("organization_id", h.OrganizationID.String()),
			zap.String("transaction_code", h.TransactionCode))
	}
}

// Approve records actor's approval of a transaction held in DRAFT for approval.
// The creator cannot approve their own transaction and repeated approvals by
// the same actor count once.
func (s *Service) Approve(ctx context.Context, orgID, id uuid.UUID, actor shared.Actor) (*schema.TransactionHeader, error) {
	h, err := s.txs.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if h.Status != schema.TxStatusDraft {
		return nil, shared.NewStateError(shared.CodeInvalidState, fmt.Sprintf("Transaction %s is %s; only DRAFT transactions take approvals", h.TransactionCode, h.Status))
	}
	cls, err := s.registry.Classify(h.SmartCode)
	if err != nil {
		return nil, err
	}
	if !cls.RequiresApproval {
		return nil, shared.NewStateError(shared.CodeInvalidState, "Transaction "+h.TransactionCode+" does not require approval")
	}
	if actor.ID == h.CreatedBy {
		return nil, shared.NewStateError(shared.CodeSelfApproval, "Transaction "+h.TransactionCode+" cannot be approved by its creator")
	}
	if !posting.RecordApproval(h, actor.ID) {
		return h, nil
	}
	err = s.changeStatus(ctx, h, actor, func(now time.Time) error {
		h.Touch(actor, now)
		return nil
	}, []schema.TxStatus{schema.TxStatusDraft})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Transaction approved",
		zap.String("organization_id", orgID.String()),
		zap.String("transaction_code", h.TransactionCode),
		zap.String("actor_id", actor.ID.String()),
		zap.Int("approvals", posting.ApprovalCount(h)))
	return h, nil
}

// rulePayload exposes a header to rule conditions. Keys written by posting are not rule input.
func rulePayload(h *schema.TransactionHeader) ucr.Payload {
	attrs := make(map[string]any, len(h.Metadata))
	for k, v := range h.Metadata {
		switch k {
		case posting.MetaApprovalDecision, posting.MetaPostingDecision, posting.MetaApprovals:
			continue
		}
		attrs[k] = v
	}
	return ucr.Payload{
		TransactionType: h.TransactionType,
		SmartCode:       h.SmartCode,
		Amount:          h.TotalAmount,
		Currency:        h.Currency,
		Attributes:      attrs,
	}
}

func ruleRejected(d ucr.Decision) error {
	return shared.NewRuleEvaluationError(shared.CodeRuleRejected, d.Explanation)
}
