package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransactionSortFields contains allowed sort fields for transactions
var TransactionSortFields = map[string]bool{
	"created_at":       true,
	"updated_at":       true,
	"transaction_code": true,
	"transaction_date": true,
	"total_amount":     true,
	"status":           true,
}

// GormTransactionRepository implements schema.TransactionRepository using GORM.
// Every status transition is an UPDATE guarded by the expected current status,
// so two writers racing on one header serialize in the database.
type GormTransactionRepository struct {
	db *gorm.DB
}

// NewGormTransactionRepository creates a new GormTransactionRepository
func NewGormTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

func withLines(db *gorm.DB) *gorm.DB {
	return db.Order("line_number ASC")
}

// FindByID loads a header and its lines ordered by line number
func (r *GormTransactionRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*schema.TransactionHeader, error) {
	var model models.TransactionHeaderModel
	if err := r.db.WithContext(ctx).
		Preload("Lines", withLines).
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&model).Error; err != nil {
		return nil, mapError("find transaction", err)
	}
	return model.ToDomain(), nil
}

// FindByCode loads a header by its per-organization code
func (r *GormTransactionRepository) FindByCode(ctx context.Context, orgID uuid.UUID, code string) (*schema.TransactionHeader, error) {
	var model models.TransactionHeaderModel
	if err := r.db.WithContext(ctx).
		Preload("Lines", withLines).
		Where("organization_id = ? AND transaction_code = ?", orgID, strings.TrimSpace(code)).
		First(&model).Error; err != nil {
		return nil, mapError("find transaction", err)
	}
	return model.ToDomain(), nil
}

// FindAll lists headers without lines
func (r *GormTransactionRepository) FindAll(ctx context.Context, orgID uuid.UUID, filter schema.TransactionFilter) ([]schema.TransactionHeader, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.TransactionHeaderModel{}).Where("organization_id = ?", orgID)
	if filter.TransactionType != "" {
		query = query.Where("transaction_type = ?", strings.ToUpper(filter.TransactionType))
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.FromDate != nil {
		query = query.Where("transaction_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("transaction_date <= ?", *filter.ToDate)
	}
	if filter.Search != "" {
		query = query.Where("transaction_code LIKE ?", "%"+filter.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, mapError("count transactions", err)
	}
	var rows []models.TransactionHeaderModel
	if err := transactionOrder.paginate(query, filter.Filter).Find(&rows).Error; err != nil {
		return nil, 0, mapError("list transactions", err)
	}
	out := make([]schema.TransactionHeader, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, total, nil
}

// Create inserts a header and its lines atomically
func (r *GormTransactionRepository) Create(ctx context.Context, header *schema.TransactionHeader) error {
	return mapError("create transaction", r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return insertHeader(tx, header)
	}))
}

func insertHeader(tx *gorm.DB, header *schema.TransactionHeader) error {
	var model models.TransactionHeaderModel
	model.FromDomain(header)
	lines := model.Lines
	model.Lines = nil
	if err := tx.Omit(clause.Associations).Create(&model).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	return tx.Create(&lines).Error
}

func replaceLines(tx *gorm.DB, header *schema.TransactionHeader) error {
	if err := tx.Where("transaction_id = ?", header.ID).Delete(&models.TransactionLineModel{}).Error; err != nil {
		return err
	}
	lines := models.LinesFromDomain(header)
	if len(lines) == 0 {
		return nil
	}
	return tx.Create(&lines).Error
}

// headerColumns are the mutable header columns written by status transitions
func headerColumns(header *schema.TransactionHeader) map[string]any {
	var model models.TransactionHeaderModel
	model.FromDomain(header)
	return map[string]any{
		"total_amount":    model.TotalAmount,
		"currency":        model.Currency,
		"status":          model.Status,
		"metadata":        model.Metadata,
		"processing_mode": model.ProcessingMode,
		"posting_date":    model.PostingDate,
		"posted_at":       model.PostedAt,
		"posted_by":       model.PostedBy,
		"journal_id":      model.JournalID,
		"reversed_by":     model.ReversedBy,
		"attempts":        model.Attempts,
		"next_attempt_at": model.NextAttemptAt,
		"last_error":      model.LastError,
		"claimed_until":   nil,
		"claim_token":     "",
		"version":         model.Version,
		"updated_at":      model.UpdatedAt,
		"updated_by":      model.UpdatedBy,
	}
}

// transition applies header's columns if the stored status is in from
func transition(tx *gorm.DB, header *schema.TransactionHeader, from []schema.TxStatus, extra ...func(*gorm.DB) *gorm.DB) (bool, error) {
	query := tx.Model(&models.TransactionHeaderModel{}).
		Where("organization_id = ? AND id = ? AND status IN ?", header.OrganizationID, header.ID, from)
	for _, scope := range extra {
		query = scope(query)
	}
	result := query.Updates(headerColumns(header))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// conditional runs fn in a transaction and reports whether its guarded update won.
// A serialization failure means another writer committed first.
func (r *GormTransactionRepository) conditional(ctx context.Context, op string, fn func(tx *gorm.DB) (bool, error)) (bool, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := fn(tx)
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}
		return nil
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errLostRace), isSerializationFailure(err):
		return false, nil
	}
	return false, mapError(op, err)
}

var errLostRace = errors.New("conditional update matched no row")

// ReplaceLines rewrites the lines and header totals if the stored status is in from
func (r *GormTransactionRepository) ReplaceLines(ctx context.Context, header *schema.TransactionHeader, from []schema.TxStatus) (bool, error) {
	return r.conditional(ctx, "replace transaction lines", func(tx *gorm.DB) (bool, error) {
		ok, err := transition(tx, header, from)
		if err != nil || !ok {
			return ok, err
		}
		return true, replaceLines(tx, header)
	})
}

// UpdateStatus writes the header status fields if the stored status is in from
func (r *GormTransactionRepository) UpdateStatus(ctx context.Context, header *schema.TransactionHeader, from []schema.TxStatus) (bool, error) {
	return r.conditional(ctx, "update transaction status", func(tx *gorm.DB) (bool, error) {
		return transition(tx, header, from)
	})
}

// Post marks the header posted and inserts the synthesized journal in one unit of work.
// The header's lines are rewritten because posting resolves their sides and accounts.
func (r *GormTransactionRepository) Post(ctx context.Context, header *schema.TransactionHeader, journal *schema.TransactionHeader) (bool, error) {
	return r.conditional(ctx, "post transaction", func(tx *gorm.DB) (bool, error) {
		ok, err := transition(tx, header, schema.PostableStatuses)
		if err != nil || !ok {
			return ok, err
		}
		if err := replaceLines(tx, header); err != nil {
			return false, err
		}
		if journal != nil {
			if err := insertHeader(tx, journal); err != nil {
				return false, err
			}
		}
		return true, nil
	})
}

// Reverse inserts the posted reversal and its journal and annotates the original,
// provided the original is POSTED and not yet reversed
func (r *GormTransactionRepository) Reverse(ctx context.Context, original, reversal, reversalJournal *schema.TransactionHeader) (bool, error) {
	return r.conditional(ctx, "reverse transaction", func(tx *gorm.DB) (bool, error) {
		ok, err := transition(tx, original, []schema.TxStatus{schema.TxStatusPosted}, func(q *gorm.DB) *gorm.DB {
			return q.Where("reversed_by IS NULL")
		})
		if err != nil || !ok {
			return ok, err
		}
		if err := insertHeader(tx, reversal); err != nil {
			return false, err
		}
		if reversalJournal != nil {
			if err := insertHeader(tx, reversalJournal); err != nil {
				return false, err
			}
		}
		return true, nil
	})
}

// ClaimDue leases up to limit PENDING headers whose next attempt is due.
// Claimed rows get a lease so a second scheduler instance skips them until it
// expires; on postgres the candidate scan also skips rows locked by a concurrent claim.
func (r *GormTransactionRepository) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]schema.TransactionHeader, error) {
	if limit <= 0 {
		return nil, nil
	}
	token := ulid.Make().String()
	claimable := func(q *gorm.DB) *gorm.DB {
		return q.Where("status = ? AND next_attempt_at IS NOT NULL AND next_attempt_at <= ?", schema.TxStatusPending, now).
			Where("claimed_until IS NULL OR claimed_until < ?", now)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		candidates := claimable(tx.Model(&models.TransactionHeaderModel{}).Select("id")).
			Order("next_attempt_at ASC, transaction_code ASC").
			Limit(limit)
		if tx.Dialector.Name() == "postgres" {
			candidates = candidates.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		return claimable(tx.Model(&models.TransactionHeaderModel{})).
			Where("id IN (?)", candidates).
			Updates(map[string]any{
				"claimed_until": now.Add(lease),
				"claim_token":   token,
			}).Error
	})
	if err != nil {
		return nil, mapError("claim due transactions", err)
	}

	var rows []models.TransactionHeaderModel
	if err := r.db.WithContext(ctx).
		Preload("Lines", withLines).
		Where("claim_token = ?", token).
		Order("next_attempt_at ASC, transaction_code ASC").
		Find(&rows).Error; err != nil {
		return nil, mapError("load claimed transactions", err)
	}
	out := make([]schema.TransactionHeader, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// Defer records a failed batch attempt, reschedules it and releases the claim
func (r *GormTransactionRepository) Defer(ctx context.Context, orgID, id uuid.UUID, attempts int, next time.Time, lastErr string) error {
	result := r.db.WithContext(ctx).
		Model(&models.TransactionHeaderModel{}).
		Where("organization_id = ? AND id = ? AND status = ?", orgID, id, schema.TxStatusPending).
		Updates(map[string]any{
			"attempts":        attempts,
			"next_attempt_at": next,
			"last_error":      lastErr,
			"claimed_until":   nil,
			"claim_token":     "",
		})
	if result.Error != nil {
		return mapError("defer transaction", result.Error)
	}
	if result.RowsAffected == 0 {
		return mapError("defer transaction", gorm.ErrRecordNotFound)
	}
	return nil
}

// LedgerLines returns posted journal lines with posting_date in [from, to]; a nil from means unbounded
func (r *GormTransactionRepository) LedgerLines(ctx context.Context, orgID uuid.UUID, from *time.Time, to time.Time) ([]schema.LedgerLine, error) {
	query := r.db.WithContext(ctx).
		Table(models.TransactionLineModel{}.TableName()+" AS l").
		Select("l.entity_id AS account_id, l.side, l.line_amount AS amount, h.posting_date").
		Joins("JOIN "+models.TransactionHeaderModel{}.TableName()+" AS h ON h.id = l.transaction_id").
		Where("h.organization_id = ? AND h.status = ? AND h.transaction_type = ?", orgID, schema.TxStatusPosted, schema.TransactionTypeJournalEntry).
		Where("l.entity_id IS NOT NULL AND h.posting_date <= ?", to)
	if from != nil {
		query = query.Where("h.posting_date >= ?", *from)
	}

	var rows []struct {
		AccountID   uuid.UUID
		Side        schema.LineSide
		Amount      decimal.Decimal
		PostingDate time.Time
	}
	if err := query.Order("h.posting_date ASC, l.line_number ASC").Scan(&rows).Error; err != nil {
		return nil, mapError("read ledger", err)
	}
	out := make([]schema.LedgerLine, len(rows))
	for i, row := range rows {
		out[i] = schema.LedgerLine{AccountID: row.AccountID, Side: row.Side, Amount: row.Amount, PostingDate: row.PostingDate}
	}
	return out, nil
}
