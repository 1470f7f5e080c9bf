package posting

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/erp/platform/internal/domain/posting"
	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/domain/ucr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockEntityRepository is a mock implementation of schema.EntityRepository
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

// MockSettingsReader is a mock implementation of schema.SettingsReader
type MockSettingsReader struct {
	mock.Mock
}

func (m *MockSettingsReader) Settings(ctx context.Context, orgID uuid.UUID) (schema.OrganizationSettings, error) {
	args := m.Called(ctx, orgID)
	return args.Get(0).(schema.OrganizationSettings), args.Error(1)
}

// MockRuleEvaluator is a mock implementation of RuleEvaluator
type MockRuleEvaluator struct {
	mock.Mock
}

func (m *MockRuleEvaluator) Evaluate(ctx context.Context, orgID uuid.UUID, family string, payload ucr.Payload) (ucr.Decision, error) {
	args := m.Called(ctx, orgID, family, payload)
	return args.Get(0).(ucr.Decision), args.Error(1)
}

// MockResolver is a mock implementation of guardrail.ReferenceResolver
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) OrganizationStatus(ctx context.Context, orgID uuid.UUID) (schema.OrgStatus, error) {
	args := m.Called(ctx, orgID)
	return args.Get(0).(schema.OrgStatus), args.Error(1)
}

func (m *MockResolver) EntityOwners(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]uuid.UUID), args.Error(1)
}

// memTransactions is an in-memory schema.TransactionRepository with the same
// conditional-update semantics as the database repository.
type memTransactions struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*schema.TransactionHeader

	// postedElsewhere makes Post lose the race to a writer that posted the same header
	postedElsewhere bool
	// cancelledElsewhere makes Post lose the race to a writer that cancelled the header
	cancelledElsewhere bool
	// postFailures makes Post fail for the given ids
	postFailures map[uuid.UUID]error
}

func newMemTransactions() *memTransactions {
	return &memTransactions{
		rows:         make(map[uuid.UUID]*schema.TransactionHeader),
		postFailures: make(map[uuid.UUID]error),
	}
}

func clone(h *schema.TransactionHeader) *schema.TransactionHeader {
	c := *h
	c.Lines = append([]schema.TransactionLine(nil), h.Lines...)
	c.Metadata = maps.Clone(h.Metadata)
	return &c
}

func (r *memTransactions) put(h *schema.TransactionHeader) {
	if h != nil {
		r.rows[h.ID] = clone(h)
	}
}

func (r *memTransactions) stored(id uuid.UUID) *schema.TransactionHeader {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.rows[id]; ok {
		return clone(h)
	}
	return nil
}

func (r *memTransactions) journals() []*schema.TransactionHeader {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*schema.TransactionHeader
	for _, h := range r.rows {
		if h.TransactionType == schema.TransactionTypeJournalEntry {
			out = append(out, clone(h))
		}
	}
	return out
}

func (r *memTransactions) FindByID(_ context.Context, orgID, id uuid.UUID) (*schema.TransactionHeader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.rows[id]
	if !ok || h.OrganizationID != orgID {
		return nil, shared.ErrNotFound
	}
	return clone(h), nil
}

func (r *memTransactions) FindByCode(_ context.Context, orgID uuid.UUID, code string) (*schema.TransactionHeader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.rows {
		if h.OrganizationID == orgID && h.TransactionCode == code {
			return clone(h), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memTransactions) FindAll(_ context.Context, orgID uuid.UUID, filter schema.TransactionFilter) ([]schema.TransactionHeader, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []schema.TransactionHeader
	for _, h := range r.rows {
		if h.OrganizationID != orgID {
			continue
		}
		if filter.Status != nil && h.Status != *filter.Status {
			continue
		}
		c := clone(h)
		c.Lines = nil
		out = append(out, *c)
	}
	return out, int64(len(out)), nil
}

func (r *memTransactions) Create(_ context.Context, h *schema.TransactionHeader) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[h.ID]; ok {
		return shared.ErrAlreadyExists
	}
	r.put(h)
	return nil
}

func (r *memTransactions) transition(h *schema.TransactionHeader, from []schema.TxStatus) bool {
	cur, ok := r.rows[h.ID]
	if !ok || !cur.Status.In(from...) {
		return false
	}
	r.put(h)
	return true
}

func (r *memTransactions) ReplaceLines(_ context.Context, h *schema.TransactionHeader, from []schema.TxStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transition(h, from), nil
}

func (r *memTransactions) UpdateStatus(_ context.Context, h *schema.TransactionHeader, from []schema.TxStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transition(h, from), nil
}

func (r *memTransactions) Post(_ context.Context, h, journal *schema.TransactionHeader) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.postFailures[h.ID]; err != nil {
		return false, err
	}
	switch {
	case r.postedElsewhere:
		r.put(h)
		r.put(journal)
		return false, nil
	case r.cancelledElsewhere:
		r.rows[h.ID].Status = schema.TxStatusCancelled
		return false, nil
	}
	if !r.transition(h, schema.PostableStatuses) {
		return false, nil
	}
	r.put(journal)
	return true, nil
}

func (r *memTransactions) Reverse(_ context.Context, original, reversal, journal *schema.TransactionHeader) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[original.ID]
	if !ok || !cur.IsPosted() || cur.ReversedBy != nil {
		return false, nil
	}
	r.put(original)
	r.put(reversal)
	r.put(journal)
	return true, nil
}

func (r *memTransactions) ClaimDue(_ context.Context, now time.Time, limit int, _ time.Duration) ([]schema.TransactionHeader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []schema.TransactionHeader
	for _, h := range r.rows {
		if h.Status == schema.TxStatusPending && h.NextAttemptAt != nil && !h.NextAttemptAt.After(now) {
			due = append(due, *clone(h))
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].TransactionCode < due[j].TransactionCode })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *memTransactions) Defer(_ context.Context, orgID, id uuid.UUID, attempts int, next time.Time, lastErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.rows[id]
	if !ok || h.OrganizationID != orgID {
		return shared.ErrNotFound
	}
	h.Attempts = attempts
	h.NextAttemptAt = &next
	h.LastError = lastErr
	return nil
}

func (r *memTransactions) LedgerLines(context.Context, uuid.UUID, *time.Time, time.Time) ([]schema.LedgerLine, error) {
	return nil, nil
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) TransactionProcessed(_ context.Context, ev posting.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev.TransactionType+":"+string(ev.Status))
}
