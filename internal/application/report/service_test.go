package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/platform/internal/domain/posting"
	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEntityRepository struct {
	mock.Mock
}

func (m *MockEntityRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*schema.Entity, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.Entity), args.Error(1)
}

func (m *MockEntityRepository) FindByCode(ctx context.Context, orgID uuid.UUID, entityType, code string) (*schema.Entity, error) {
	args := m.Called(ctx, orgID, entityType, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.Entity), args.Error(1)
}

func (m *MockEntityRepository) FindAll(ctx context.Context, orgID uuid.UUID, filter schema.EntityFilter) ([]schema.Entity, int64, error) {
	args := m.Called(ctx, orgID, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]schema.Entity), args.Get(1).(int64), args.Error(2)
}

func (m *MockEntityRepository) Create(ctx context.Context, entity *schema.Entity) error {
	return m.Called(ctx, entity).Error(0)
}

func (m *MockEntityRepository) Update(ctx context.Context, entity *schema.Entity) error {
	return m.Called(ctx, entity).Error(0)
}

type MockAttributeRepository struct {
	mock.Mock
}

func (m *MockAttributeRepository) Upsert(ctx context.Context, attr *schema.DynamicAttribute) error {
	return m.Called(ctx, attr).Error(0)
}

func (m *MockAttributeRepository) FindByEntity(ctx context.Context, orgID, entityID uuid.UUID) ([]schema.DynamicAttribute, error) {
	args := m.Called(ctx, orgID, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schema.DynamicAttribute), args.Error(1)
}

func (m *MockAttributeRepository) FindByEntities(ctx context.Context, orgID uuid.UUID, entityIDs []uuid.UUID) ([]schema.DynamicAttribute, error) {
	args := m.Called(ctx, orgID, entityIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schema.DynamicAttribute), args.Error(1)
}

func (m *MockAttributeRepository) FindByField(ctx context.Context, orgID, entityID uuid.UUID, fieldName string) (*schema.DynamicAttribute, error) {
	args := m.Called(ctx, orgID, entityID, fieldName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.DynamicAttribute), args.Error(1)
}

type MockLedgerReader struct {
	mock.Mock
}

func (m *MockLedgerReader) LedgerLines(ctx context.Context, orgID uuid.UUID, from *time.Time, to time.Time) ([]schema.LedgerLine, error) {
	args := m.Called(ctx, orgID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schema.LedgerLine), args.Error(1)
}

type MockSettingsReader struct {
	mock.Mock
}

func (m *MockSettingsReader) Settings(ctx context.Context, orgID uuid.UUID) (schema.OrganizationSettings, error) {
	args := m.Called(ctx, orgID)
	return args.Get(0).(schema.OrganizationSettings), args.Error(1)
}

type ledgerFixture struct {
	orgID    uuid.UUID
	ids      map[string]uuid.UUID
	entities *MockEntityRepository
	attrs    *MockAttributeRepository
	ledger   *MockLedgerReader
	settings *MockSettingsReader
	svc      *Service
}

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	f := &ledgerFixture{
		orgID:    uuid.New(),
		ids:      make(map[string]uuid.UUID),
		entities: new(MockEntityRepository),
		attrs:    new(MockAttributeRepository),
		ledger:   new(MockLedgerReader),
		settings: new(MockSettingsReader),
	}

	// CASH has no leading digit, so only its account_type attribute classifies it
	var accounts []schema.Entity
	for _, code := range []string{"CASH", "2200", "3000", "4100", "6100"} {
		id := uuid.New()
		f.ids[code] = id
		e := schema.Entity{EntityType: schema.EntityTypeGLAccount, Code: code, Name: "Account " + code, Status: schema.EntityStatusActive}
		e.ID = id
		e.OrganizationID = f.orgID
		accounts = append(accounts, e)
	}
	f.entities.On("FindAll", mock.Anything, f.orgID, mock.MatchedBy(func(fl schema.EntityFilter) bool {
		return fl.EntityType == schema.EntityTypeGLAccount && fl.Page == 1
	})).Return(accounts, int64(len(accounts)), nil)

	attr, err := schema.NewDynamicAttribute(f.orgID, f.ids["CASH"], AccountTypeField, schema.ValueTypeText, schema.TextValue("asset"), "FIN.GL.ACCOUNT.ATTR.v1", shared.NewUserActor(uuid.New()), day(2025, 1, 1))
	require.NoError(t, err)
	f.attrs.On("FindByEntities", mock.Anything, f.orgID, mock.Anything).Return([]schema.DynamicAttribute{*attr}, nil)

	f.settings.On("Settings", mock.Anything, f.orgID).Return(schema.OrganizationSettings{FiscalYearStartMonth: 1}, nil)

	f.svc = NewService(f.entities, f.attrs, f.ledger, f.settings)
	return f
}

func (f *ledgerFixture) line(code string, side schema.LineSide, amount string, date time.Time) schema.LedgerLine {
	return schema.LedgerLine{AccountID: f.ids[code], Side: side, Amount: decimal.RequireFromString(amount), PostingDate: date}
}

func (f *ledgerFixture) lines() []schema.LedgerLine {
	return []schema.LedgerLine{
		f.line("CASH", schema.SideDebit, "1000", day(2025, 6, 1)),
		f.line("3000", schema.SideCredit, "1000", day(2025, 6, 1)),
		f.line("CASH", schema.SideDebit, "200", day(2025, 12, 1)),
		f.line("4100", schema.SideCredit, "200", day(2025, 12, 1)),
		f.line("CASH", schema.SideDebit, "126", day(2026, 2, 1)),
		f.line("4100", schema.SideCredit, "120", day(2026, 2, 1)),
		f.line("2200", schema.SideCredit, "6", day(2026, 2, 1)),
		f.line("6100", schema.SideDebit, "50", day(2026, 2, 10)),
		f.line("CASH", schema.SideCredit, "50", day(2026, 2, 10)),
	}
}

func TestTrialBalance(t *testing.T) {
	f := newLedgerFixture(t)
	asOf := day(2026, 3, 31)
	f.ledger.On("LedgerLines", mock.Anything, f.orgID, (*time.Time)(nil), asOf).Return(f.lines(), nil)

	tb, err := f.svc.TrialBalance(context.Background(), f.orgID, asOf)
	require.NoError(t, err)

	assert.True(t, tb.Balanced)
	assert.Len(t, tb.Rows, 5)
	assert.True(t, tb.TotalDebit.Equal(decimal.NewFromInt(1326)), tb.TotalDebit.String())
	f.ledger.AssertExpectations(t)
}

func TestProfitAndLoss(t *testing.T) {
	f := newLedgerFixture(t)
	from, to := day(2026, 1, 1), day(2026, 3, 31)
	f.ledger.On("LedgerLines", mock.Anything, f.orgID, &from, to).Return(f.lines(), nil)

	pl, err := f.svc.ProfitAndLoss(context.Background(), f.orgID, from, to)
	require.NoError(t, err)

	assert.True(t, pl.TotalRevenue.Equal(decimal.NewFromInt(120)))
	assert.True(t, pl.TotalExpenses.Equal(decimal.NewFromInt(50)))
	assert.True(t, pl.NetIncome.Equal(decimal.NewFromInt(70)))
}

func TestProfitAndLoss_InvertedPeriod(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.svc.ProfitAndLoss(context.Background(), f.orgID, day(2026, 3, 31), day(2026, 1, 1))
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
	f.ledger.AssertNotCalled(t, "LedgerLines", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBalanceSheet(t *testing.T) {
	f := newLedgerFixture(t)
	asOf := day(2026, 3, 31)
	f.ledger.On("LedgerLines", mock.Anything, f.orgID, (*time.Time)(nil), asOf).Return(f.lines(), nil)

	bs, err := f.svc.BalanceSheet(context.Background(), f.orgID, asOf)
	require.NoError(t, err)

	assert.Equal(t, day(2026, 1, 1), bs.FiscalYearStart)
	require.Len(t, bs.Assets, 1)
	assert.Equal(t, posting.AccountTypeAsset, bs.Assets[0].Type)
	assert.True(t, bs.TotalAssets.Equal(decimal.NewFromInt(1276)), bs.TotalAssets.String())
	assert.True(t, bs.TotalLiabilities.Equal(decimal.NewFromInt(6)))
	assert.True(t, bs.RetainedEarnings.Equal(decimal.NewFromInt(200)))
	assert.True(t, bs.CurrentYearEarnings.Equal(decimal.NewFromInt(70)))
	assert.True(t, bs.TotalEquity.Equal(decimal.NewFromInt(1270)))
	assert.True(t, bs.Balanced)
}

func TestBalanceSheet_StorageFailure(t *testing.T) {
	f := newLedgerFixture(t)
	asOf := day(2026, 3, 31)
	f.ledger.On("LedgerLines", mock.Anything, f.orgID, (*time.Time)(nil), asOf).
		Return(nil, shared.NewStorageError("ledger lines", errors.New("connection refused")))

	_, err := f.svc.BalanceSheet(context.Background(), f.orgID, asOf)
	assert.True(t, shared.IsRetryable(err))
}
