package handler

import (
	"context"
	"time"

	appentity "github.com/erp/platform/internal/application/entity"
	apporg "github.com/erp/platform/internal/application/organization"
	appposting "github.com/erp/platform/internal/application/posting"
	apprule "github.com/erp/platform/internal/application/rule"
	"github.com/erp/platform/internal/domain/posting"
	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/domain/smartcode"
	"github.com/erp/platform/internal/domain/ucr"
	"github.com/erp/platform/internal/infrastructure/scheduler"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type mockOrganizationService struct{ mock.Mock }

func (m *mockOrganizationService) Provision(ctx context.Context, cmd apporg.ProvisionCommand, actor shared.Actor) (*schema.Organization, error) {
	args := m.Called(ctx, cmd, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.Organization), args.Error(1)
}

func (m *mockOrganizationService) Get(ctx context.Context, id uuid.UUID) (*schema.Organization, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.Organization), args.Error(1)
}

func (m *mockOrganizationService) List(ctx context.Context, filter shared.Filter) ([]schema.Organization, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]schema.Organization), args.Get(1).(int64), args.Error(2)
}

func (m *mockOrganizationService) UpdateSettings(ctx context.Context, id uuid.UUID, settings schema.OrganizationSettings, actor shared.Actor) (*schema.Organization, error) {
	args := m.Called(ctx, id, settings, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.Organization), args.Error(1)
}

func (m *mockOrganizationService) ChangeStatus(ctx context.Context, id uuid.UUID, status schema.OrgStatus, actor shared.Actor) (*schema.Organization, error) {
	args := m.Called(ctx, id, status, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.Organization), args.Error(1)
}

type mockEntityService struct{ mock.Mock }

func (m *mockEntityService) CreateEntity(ctx context.Context, orgID uuid.UUID, cmd appentity.CreateEntityCommand, actor shared.Actor) (*schema.Entity, error) {
	args := m.Called(ctx, orgID, cmd, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.Entity), args.Error(1)
}

func (m *mockEntityService) UpdateEntity(ctx context.Context, orgID, id uuid.UUID, update schema.EntityUpdate, actor shared.Actor) (*schema.Entity, error) {
	args := m.Called(ctx, orgID, id, update, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.Entity), args.Error(1)
}

func (m *mockEntityService) GetEntity(ctx context.Context, orgID, id uuid.UUID) (*schema.Entity, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.Entity), args.Error(1)
}

func (m *mockEntityService) ListEntities(ctx context.Context, orgID uuid.UUID, filter schema.EntityFilter) ([]schema.Entity, int64, error) {
	args := m.Called(ctx, orgID, filter)
	return args.Get(0).([]schema.Entity), args.Get(1).(int64), args.Error(2)
}

func (m *mockEntityService) SetAttribute(ctx context.Context, orgID, entityID uuid.UUID, cmd appentity.SetAttributeCommand, actor shared.Actor) (*appentity.AttributeResult, error) {
	args := m.Called(ctx, orgID, entityID, cmd, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appentity.AttributeResult), args.Error(1)
}

func (m *mockEntityService) ListAttributes(ctx context.Context, orgID, entityID uuid.UUID) ([]schema.DynamicAttribute, error) {
	args := m.Called(ctx, orgID, entityID)
	return args.Get(0).([]schema.DynamicAttribute), args.Error(1)
}

func (m *mockEntityService) CreateRelationship(ctx context.Context, orgID uuid.UUID, cmd appentity.CreateRelationshipCommand, actor shared.Actor) (*schema.Relationship, error) {
	args := m.Called(ctx, orgID, cmd, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.Relationship), args.Error(1)
}

func (m *mockEntityService) DeactivateRelationship(ctx context.Context, orgID, id uuid.UUID, actor shared.Actor) (*schema.Relationship, error) {
	args := m.Called(ctx, orgID, id, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.Relationship), args.Error(1)
}

func (m *mockEntityService) ListRelationships(ctx context.Context, orgID, entityID uuid.UUID, activeOnly bool) ([]schema.Relationship, error) {
	args := m.Called(ctx, orgID, entityID, activeOnly)
	return args.Get(0).([]schema.Relationship), args.Error(1)
}

type mockTransactionService struct{ mock.Mock }

func (m *mockTransactionService) Create(ctx context.Context, orgID uuid.UUID, cmd appposting.CreateTransactionCommand, actor shared.Actor) (*appposting.CreateResult, error) {
	args := m.Called(ctx, orgID, cmd, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appposting.CreateResult), args.Error(1)
}

func (m *mockTransactionService) Get(ctx context.Context, orgID, id uuid.UUID) (*schema.TransactionHeader, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.TransactionHeader), args.Error(1)
}

func (m *mockTransactionService) List(ctx context.Context, orgID uuid.UUID, filter schema.TransactionFilter) ([]schema.TransactionHeader, int64, error) {
	args := m.Called(ctx, orgID, filter)
	return args.Get(0).([]schema.TransactionHeader), args.Get(1).(int64), args.Error(2)
}

func (m *mockTransactionService) AdjustLines(ctx context.Context, orgID, id uuid.UUID, cmd appposting.AdjustLinesCommand, actor shared.Actor) (*appposting.AdjustResult, error) {
	args := m.Called(ctx, orgID, id, cmd, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appposting.AdjustResult), args.Error(1)
}

func (m *mockTransactionService) Post(ctx context.Context, orgID, id uuid.UUID, actor shared.Actor) (*posting.PostedReceipt, error) {
	args := m.Called(ctx, orgID, id, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*posting.PostedReceipt), args.Error(1)
}

func (m *mockTransactionService) Cancel(ctx context.Context, orgID, id uuid.UUID, actor shared.Actor) (*schema.TransactionHeader, error) {
	args := m.Called(ctx, orgID, id, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.TransactionHeader), args.Error(1)
}

func (m *mockTransactionService) Approve(ctx context.Context, orgID, id uuid.UUID, actor shared.Actor) (*schema.TransactionHeader, error) {
	args := m.Called(ctx, orgID, id, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.TransactionHeader), args.Error(1)
}

func (m *mockTransactionService) Reverse(ctx context.Context, orgID, id uuid.UUID, cmd appposting.ReverseCommand, actor shared.Actor) (*appposting.ReverseResult, error) {
	args := m.Called(ctx, orgID, id, cmd, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appposting.ReverseResult), args.Error(1)
}

type mockRuleService struct{ mock.Mock }

func (m *mockRuleService) CreateRule(ctx context.Context, orgID uuid.UUID, cmd apprule.CreateRuleCommand, actor shared.Actor) (*ucr.Rule, error) {
	args := m.Called(ctx, orgID, cmd, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ucr.Rule), args.Error(1)
}

func (m *mockRuleService) SetActive(ctx context.Context, orgID, ruleID uuid.UUID, active bool, actor shared.Actor) (*ucr.Rule, error) {
	args := m.Called(ctx, orgID, ruleID, active, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ucr.Rule), args.Error(1)
}

func (m *mockRuleService) ListRules(ctx context.Context, orgID uuid.UUID, family string) ([]ucr.Rule, error) {
	args := m.Called(ctx, orgID, family)
	return args.Get(0).([]ucr.Rule), args.Error(1)
}

func (m *mockRuleService) Evaluate(ctx context.Context, orgID uuid.UUID, family string, payload ucr.Payload) (ucr.Decision, error) {
	args := m.Called(ctx, orgID, family, payload)
	return args.Get(0).(ucr.Decision), args.Error(1)
}

func (m *mockRuleService) ActiveRuleCount(ctx context.Context, orgID uuid.UUID) (int, error) {
	args := m.Called(ctx, orgID)
	return args.Int(0), args.Error(1)
}

type mockSmartCodeService struct{ mock.Mock }

func (m *mockSmartCodeService) Validate(code string) (smartcode.Validated, error) {
	args := m.Called(code)
	return args.Get(0).(smartcode.Validated), args.Error(1)
}

func (m *mockSmartCodeService) Classify(code string) (smartcode.Classification, error) {
	args := m.Called(code)
	return args.Get(0).(smartcode.Classification), args.Error(1)
}

func (m *mockSmartCodeService) Templates() []smartcode.Template {
	return m.Called().Get(0).([]smartcode.Template)
}

func (m *mockSmartCodeService) RegisterTemplate(ctx context.Context, t smartcode.Template, actor shared.Actor) (smartcode.Template, error) {
	args := m.Called(ctx, t, actor)
	return args.Get(0).(smartcode.Template), args.Error(1)
}

type mockReportService struct{ mock.Mock }

func (m *mockReportService) TrialBalance(ctx context.Context, orgID uuid.UUID, asOf time.Time) (*posting.TrialBalance, error) {
	args := m.Called(ctx, orgID, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*posting.TrialBalance), args.Error(1)
}

func (m *mockReportService) ProfitAndLoss(ctx context.Context, orgID uuid.UUID, from, to time.Time) (*posting.ProfitAndLoss, error) {
	args := m.Called(ctx, orgID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*posting.ProfitAndLoss), args.Error(1)
}

func (m *mockReportService) BalanceSheet(ctx context.Context, orgID uuid.UUID, asOf time.Time) (*posting.BalanceSheet, error) {
	args := m.Called(ctx, orgID, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*posting.BalanceSheet), args.Error(1)
}

type mockBatchScheduler struct{ mock.Mock }

func (m *mockBatchScheduler) RunOnce(ctx context.Context) (*appposting.BatchResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appposting.BatchResult), args.Error(1)
}

func (m *mockBatchScheduler) LastRun() *scheduler.RunStatus {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*scheduler.RunStatus)
}
