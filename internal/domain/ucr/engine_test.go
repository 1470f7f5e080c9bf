package ucr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockLoader is a mock implementation of RuleLoader
type MockLoader struct {
	mock.Mock
}

func (m *MockLoader) LoadRules(ctx context.Context, orgID uuid.UUID) ([]Rule, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Rule), args.Error(1)
}

// blockingLoader waits for the context to expire
type blockingLoader struct{}

func (blockingLoader) LoadRules(ctx context.Context, _ uuid.UUID) ([]Rule, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *recordingObserver) RuleEvaluated(_ context.Context, ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func rule(id string, family string, priority int, result Result, cond Conditions) Rule {
	return Rule{
		ID:         uuid.MustParse(id),
		Name:       "rule " + id[:1],
		Family:     family,
		Priority:   priority,
		Active:     true,
		Conditions: cond,
		Result:     result,
		Version:    1,
	}
}

func sale(amount int64) Payload {
	return Payload{TransactionType: "SALE", SmartCode: "SALES.POS.TXN.RETAIL.v1", Amount: decimal.NewFromInt(amount)}
}

func TestEngine_FirstMatchByPriority(t *testing.T) {
	orgID := uuid.New()
	loader := new(MockLoader)
	loader.On("LoadRules", mock.Anything, orgID).Return([]Rule{
		rule("10000000-0000-0000-0000-000000000000", "SALES_APPROVAL", 1, ResultApproved, Conditions{}),
		rule("20000000-0000-0000-0000-000000000000", "SALES_APPROVAL", 10, ResultEscalated, Conditions{MinAmount: ptr(decimal.NewFromInt(5000))}),
		rule("30000000-0000-0000-0000-000000000000", "SALES_APPROVAL", 5, ResultRejected, Conditions{TransactionTypes: []string{"REFUND"}}),
		rule("40000000-0000-0000-0000-000000000000", "OTHER", 100, ResultRejected, Conditions{}),
	}, nil).Once()
	engine := NewEngine(loader)

	d, err := engine.Evaluate(context.Background(), orgID, "sales_approval", sale(6000))
	require.NoError(t, err)
	assert.Equal(t, ResultEscalated, d.Result)
	assert.Equal(t, uuid.MustParse("20000000-0000-0000-0000-000000000000"), *d.MatchedRuleID)
	assert.Contains(t, d.Explanation, "6,000.00")

	d, err = engine.Evaluate(context.Background(), orgID, "SALES_APPROVAL", sale(100))
	require.NoError(t, err)
	assert.Equal(t, ResultApproved, d.Result)
	assert.False(t, d.FailedClosed)

	loader.AssertExpectations(t)
}

func TestEngine_EqualPriorityBreaksTiesByID(t *testing.T) {
	orgID := uuid.New()
	loader := new(MockLoader)
	loader.On("LoadRules", mock.Anything, orgID).Return([]Rule{
		rule("b0000000-0000-0000-0000-000000000000", "F", 5, ResultRejected, Conditions{}),
		rule("a0000000-0000-0000-0000-000000000000", "F", 5, ResultApproved, Conditions{}),
	}, nil)

	for i := 0; i < 3; i++ {
		engine := NewEngine(loader)
		d, err := engine.Evaluate(context.Background(), orgID, "F", sale(1))
		require.NoError(t, err)
		assert.Equal(t, ResultApproved, d.Result)
	}
}

func TestEngine_NoMatchPasses(t *testing.T) {
	orgID := uuid.New()
	loader := new(MockLoader)
	loader.On("LoadRules", mock.Anything, orgID).Return([]Rule{}, nil)

	d, err := NewEngine(loader).Evaluate(context.Background(), orgID, FamilyPostingMode, sale(1))
	require.NoError(t, err)
	assert.Equal(t, ResultPassed, d.Result)
	assert.Nil(t, d.MatchedRuleID)
}

func TestEngine_MalformedRuleFailsClosed(t *testing.T) {
	orgID := uuid.New()
	broken := rule("20000000-0000-0000-0000-000000000000", "F", 10, "", Conditions{})
	broken.Malformed = "result is required"
	loader := new(MockLoader)
	loader.On("LoadRules", mock.Anything, orgID).Return([]Rule{
		rule("10000000-0000-0000-0000-000000000000", "F", 1, ResultApproved, Conditions{}),
		broken,
	}, nil)

	d, err := NewEngine(loader).Evaluate(context.Background(), orgID, "F", sale(1))
	require.NoError(t, err)
	assert.Equal(t, ResultRejected, d.Result)
	assert.True(t, d.FailedClosed)
	assert.Contains(t, d.Explanation, "malformed")
	assert.Equal(t, broken.ID, *d.MatchedRuleID)
}

func TestEngine_InactiveRulesAreSkipped(t *testing.T) {
	orgID := uuid.New()
	off := rule("20000000-0000-0000-0000-000000000000", "F", 10, ResultRejected, Conditions{})
	off.Active = false
	loader := new(MockLoader)
	loader.On("LoadRules", mock.Anything, orgID).Return([]Rule{off}, nil)

	engine := NewEngine(loader)
	d, err := engine.Evaluate(context.Background(), orgID, "F", sale(1))
	require.NoError(t, err)
	assert.Equal(t, ResultPassed, d.Result)
	assert.Equal(t, 0, engine.ActiveRuleCounts()[orgID])
}

func TestEngine_BudgetExceeded(t *testing.T) {
	d, err := NewEngine(blockingLoader{}, WithBudget(10*time.Millisecond)).
		Evaluate(context.Background(), uuid.New(), "F", sale(1))
	require.NoError(t, err)
	assert.Equal(t, ResultRejected, d.Result)
	assert.Contains(t, d.Explanation, "budget")
}

func TestEngine_StorageFailure(t *testing.T) {
	orgID := uuid.New()
	loader := new(MockLoader)
	loader.On("LoadRules", mock.Anything, orgID).Return(nil, errors.New("connection refused"))

	d, err := NewEngine(loader).Evaluate(context.Background(), orgID, "F", sale(1))
	require.Error(t, err)
	assert.True(t, shared.IsRetryable(err))
	assert.Equal(t, ResultRejected, d.Result)
}

func TestEngine_ReentrantFamilyRejected(t *testing.T) {
	orgID := uuid.New()
	loader := new(MockLoader)
	loader.On("LoadRules", mock.Anything, orgID).Return([]Rule{
		rule("10000000-0000-0000-0000-000000000000", "F", 1, ResultApproved, Conditions{}),
	}, nil)
	engine := NewEngine(loader)

	ctx := pushFamily(context.Background(), "F")
	d, err := engine.Evaluate(ctx, orgID, "f", sale(1))
	require.NoError(t, err)
	assert.Equal(t, ResultRejected, d.Result)
	assert.Contains(t, d.Explanation, "re-entrant")

	d, err = engine.Evaluate(ctx, orgID, "G", sale(1))
	require.NoError(t, err)
	assert.Equal(t, ResultPassed, d.Result)
}

func TestEngine_CacheAndInvalidate(t *testing.T) {
	orgID := uuid.New()
	clock := shared.NewFakeClock(testNow)
	loader := new(MockLoader)
	loader.On("LoadRules", mock.Anything, orgID).Return([]Rule{
		rule("10000000-0000-0000-0000-000000000000", "F", 1, ResultApproved, Conditions{}),
	}, nil).Times(3)
	engine := NewEngine(loader, WithCacheTTL(time.Minute), WithClock(clock))

	for i := 0; i < 5; i++ {
		_, err := engine.Evaluate(context.Background(), orgID, "F", sale(1))
		require.NoError(t, err)
	}
	loader.AssertNumberOfCalls(t, "LoadRules", 1)
	assert.Equal(t, 1, engine.ActiveRuleCounts()[orgID])

	engine.Invalidate(orgID)
	_, err := engine.Evaluate(context.Background(), orgID, "F", sale(1))
	require.NoError(t, err)
	loader.AssertNumberOfCalls(t, "LoadRules", 2)

	clock.Advance(2 * time.Minute)
	_, err = engine.Evaluate(context.Background(), orgID, "F", sale(1))
	require.NoError(t, err)
	loader.AssertNumberOfCalls(t, "LoadRules", 3)
}

func TestEngine_ProcessingModeDecision(t *testing.T) {
	orgID := uuid.New()
	batch := rule("10000000-0000-0000-0000-000000000000", FamilyPostingMode, 1, ResultApproved, Conditions{MaxAmount: ptr(decimal.NewFromInt(250))})
	batch.ProcessingMode = schema.ProcessingBatch
	loader := new(MockLoader)
	loader.On("LoadRules", mock.Anything, orgID).Return([]Rule{batch}, nil)
	engine := NewEngine(loader)

	d, err := engine.Evaluate(context.Background(), orgID, FamilyPostingMode, sale(100))
	require.NoError(t, err)
	assert.Equal(t, schema.ProcessingBatch, d.ProcessingMode)

	d, err = engine.Evaluate(context.Background(), orgID, FamilyPostingMode, sale(250))
	require.NoError(t, err)
	assert.Equal(t, ResultPassed, d.Result)
	assert.Empty(t, d.ProcessingMode)
}

func TestEngine_ObserverAndDeterminism(t *testing.T) {
	orgID := uuid.New()
	obs := &recordingObserver{}
	loader := new(MockLoader)
	loader.On("LoadRules", mock.Anything, orgID).Return([]Rule{
		rule("10000000-0000-0000-0000-000000000000", "F", 1, ResultApproved, Conditions{MinAmount: ptr(decimal.NewFromInt(10))}),
	}, nil)
	engine := NewEngine(loader, WithEngineObserver(obs))

	first, err := engine.Evaluate(context.Background(), orgID, "F", sale(50))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		d, err := engine.Evaluate(context.Background(), orgID, "F", sale(50))
		require.NoError(t, err)
		assert.Equal(t, first, d)
	}
	require.Len(t, obs.events, 11)
	assert.Equal(t, "F", obs.events[0].Family)
	assert.Equal(t, ResultApproved, obs.events[0].Result)
}

func TestEngine_ConcurrentEvaluateAndInvalidate(t *testing.T) {
	orgID := uuid.New()
	loader := new(MockLoader)
	loader.On("LoadRules", mock.Anything, orgID).Return([]Rule{
		rule("10000000-0000-0000-0000-000000000000", "F", 1, ResultApproved, Conditions{}),
	}, nil)
	engine := NewEngine(loader)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%5 == 0 {
				engine.Invalidate(orgID)
				return
			}
			d, err := engine.Evaluate(context.Background(), orgID, "F", sale(1))
			assert.NoError(t, err)
			assert.Equal(t, ResultApproved, d.Result)
		}(i)
	}
	wg.Wait()
}
