package report

import (
	"context"
	"errors"
	"time"

	"github.com/erp/platform/internal/domain/posting"
	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AccountTypeField is the attribute that classifies a GL_ACCOUNT explicitly
const AccountTypeField = "account_type"

const accountPageSize = 500

// LedgerReader reads posted journal lines
type LedgerReader interface {
	LedgerLines(ctx context.Context, orgID uuid.UUID, from *time.Time, to time.Time) ([]schema.LedgerLine, error)
}

// Service builds financial statements from posted journal lines
type Service struct {
	entities   schema.EntityRepository
	attributes schema.AttributeRepository
	ledger     LedgerReader
	settings   schema.SettingsReader
	logger     *zap.Logger
}

// Option configures the service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a new report service
func NewService(entities schema.EntityRepository, attributes schema.AttributeRepository, ledger LedgerReader, settings schema.SettingsReader, opts ...Option) *Service {
	s := &Service{
		entities:   entities,
		attributes: attributes,
		ledger:     ledger,
		settings:   settings,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TrialBalance returns per-account net balances up to asOf
func (s *Service) TrialBalance(ctx context.Context, orgID uuid.UUID, asOf time.Time) (*posting.TrialBalance, error) {
	accounts, err := s.accounts(ctx, orgID)
	if err != nil {
		return nil, err
	}
	lines, err := s.ledger.LedgerLines(ctx, orgID, nil, asOf)
	if err != nil {
		return nil, err
	}
	tb := posting.BuildTrialBalance(orgID, asOf, accounts, lines)
	if !tb.Balanced {
		s.logger.Warn("Trial balance does not balance",
			zap.String("organization_id", orgID.String()),
			zap.String("total_debit", tb.TotalDebit.String()),
			zap.String("total_credit", tb.TotalCredit.String()))
	}
	return &tb, nil
}

// ProfitAndLoss returns revenue and expenses posted in [from, to]
func (s *Service) ProfitAndLoss(ctx context.Context, orgID uuid.UUID, from, to time.Time) (*posting.ProfitAndLoss, error) {
	if to.Before(from) {
		return nil, shared.NewValidationError(shared.CodeInvalidInput, "Period end must not precede period start")
	}
	accounts, err := s.accounts(ctx, orgID)
	if err != nil {
		return nil, err
	}
	lines, err := s.ledger.LedgerLines(ctx, orgID, &from, to)
	if err != nil {
		return nil, err
	}
	pl := posting.BuildProfitAndLoss(orgID, from, to, accounts, lines)
	return &pl, nil
}

// BalanceSheet returns the financial position at asOf. Earnings are split at the
// start of the fiscal year containing asOf.
func (s *Service) BalanceSheet(ctx context.Context, orgID uuid.UUID, asOf time.Time) (*posting.BalanceSheet, error) {
	settings, err := s.settings.Settings(ctx, orgID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	accounts, err := s.accounts(ctx, orgID)
	if err != nil {
		return nil, err
	}
	lines, err := s.ledger.LedgerLines(ctx, orgID, nil, asOf)
	if err != nil {
		return nil, err
	}
	bs := posting.BuildBalanceSheet(orgID, asOf, settings.FiscalYearStart(asOf), accounts, lines)
	return &bs, nil
}

// accounts loads every GL_ACCOUNT of the organization with its explicit type
func (s *Service) accounts(ctx context.Context, orgID uuid.UUID) (map[uuid.UUID]posting.Account, error) {
	var rows []schema.Entity
	for page := 1; ; page++ {
		batch, _, err := s.entities.FindAll(ctx, orgID, schema.EntityFilter{
			Filter:     shared.Filter{Page: page, PageSize: accountPageSize, OrderBy: "code", OrderDir: "asc"},
			EntityType: schema.EntityTypeGLAccount,
		})
		if err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
		if len(batch) < accountPageSize {
			break
		}
	}

	accounts := make(map[uuid.UUID]posting.Account, len(rows))
	if len(rows) == 0 {
		return accounts, nil
	}
	ids := make([]uuid.UUID, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	attrs, err := s.attributes.FindByEntities(ctx, orgID, ids)
	if err != nil {
		return nil, err
	}
	explicit := make(map[uuid.UUID]string)
	for i := range attrs {
		if attrs[i].FieldName != AccountTypeField {
			continue
		}
		tv, err := attrs[i].Typed()
		if err != nil {
			continue
		}
		if text, ok := tv.Text(); ok {
			explicit[attrs[i].EntityID] = text
		}
	}
	for _, e := range rows {
		accounts[e.ID] = posting.Account{
			ID:   e.ID,
			Code: e.Code,
			Name: e.Name,
			Type: posting.ClassifyAccount(e.Code, explicit[e.ID]),
		}
	}
	return accounts, nil
}
