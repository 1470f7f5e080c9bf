package models

import (
	"encoding/json"
	"time"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// OrganizationModel is the persistence model of the tenant table
type OrganizationModel struct {
	AggregateModel
	Name      string                                         `gorm:"type:varchar(200);not null"`
	Code      string                                         `gorm:"type:varchar(100);not null;uniqueIndex:idx_organizations_code"`
	Status    schema.OrgStatus                               `gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	Settings  datatypes.JSONType[schema.OrganizationSettings] `gorm:"type:jsonb"`
	CreatedBy uuid.UUID                                      `gorm:"type:uuid;not null"`
	UpdatedBy uuid.UUID                                      `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (OrganizationModel) TableName() string {
	return "organizations"
}

// ToDomain converts the model to a domain organization
func (m *OrganizationModel) ToDomain() *schema.Organization {
	return &schema.Organization{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
			Version:    m.Version,
		},
		Name:      m.Name,
		Code:      m.Code,
		Status:    m.Status,
		Settings:  m.Settings.Data(),
		CreatedBy: m.CreatedBy,
		UpdatedBy: m.UpdatedBy,
	}
}

// FromDomain populates the model from a domain organization
func (m *OrganizationModel) FromDomain(o *schema.Organization) {
	m.ID = o.ID
	m.CreatedAt = o.CreatedAt
	m.UpdatedAt = o.UpdatedAt
	m.Version = o.Version
	m.Name = o.Name
	m.Code = o.Code
	m.Status = o.Status
	m.Settings = datatypes.NewJSONType(o.Settings)
	m.CreatedBy = o.CreatedBy
	m.UpdatedBy = o.UpdatedBy
}

// EntityModel is the persistence model of core_entities
type EntityModel struct {
	AuditedModel
	OrganizationID uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_entities_org_type_code,priority:1"`
	EntityType     string              `gorm:"type:varchar(100);not null;uniqueIndex:idx_entities_org_type_code,priority:2"`
	Name           string              `gorm:"type:varchar(255);not null"`
	Code           *string             `gorm:"type:varchar(100);uniqueIndex:idx_entities_org_type_code,priority:3"`
	SmartCode      string              `gorm:"type:varchar(200);not null;index:idx_entities_smart_code"`
	Status         schema.EntityStatus `gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	Metadata       datatypes.JSONMap   `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (EntityModel) TableName() string {
	return "core_entities"
}

// ToDomain converts the model to a domain entity
func (m *EntityModel) ToDomain() *schema.Entity {
	e := &schema.Entity{
		OrgAggregateRoot: m.ToDomainOrgAggregateRoot(m.OrganizationID),
		EntityType:       m.EntityType,
		Name:             m.Name,
		SmartCode:        m.SmartCode,
		Status:           m.Status,
		Metadata:         map[string]any(m.Metadata),
	}
	if m.Code != nil {
		e.Code = *m.Code
	}
	return e
}

// FromDomain populates the model from a domain entity.
// An empty code is stored as NULL so the per-type code uniqueness ignores it.
func (m *EntityModel) FromDomain(e *schema.Entity) {
	m.FromDomainOrgAggregateRoot(e.OrgAggregateRoot)
	m.OrganizationID = e.OrganizationID
	m.EntityType = e.EntityType
	m.Name = e.Name
	m.Code = nil
	if e.Code != "" {
		code := e.Code
		m.Code = &code
	}
	m.SmartCode = e.SmartCode
	m.Status = e.Status
	m.Metadata = datatypes.JSONMap(e.Metadata)
}

// DynamicAttributeModel is the persistence model of core_dynamic_data.
// Each value slot is its own column; exactly one is expected to be non-null.
type DynamicAttributeModel struct {
	AuditedModel
	OrganizationID uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_dynamic_data_org_entity_field,priority:1"`
	EntityID       uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_dynamic_data_org_entity_field,priority:2"`
	FieldName      string              `gorm:"type:varchar(100);not null;uniqueIndex:idx_dynamic_data_org_entity_field,priority:3"`
	ValueType      schema.ValueType    `gorm:"type:varchar(20);not null"`
	ValueText      *string             `gorm:"type:text"`
	ValueNumber    decimal.NullDecimal `gorm:"type:decimal(20,6)"`
	ValueBoolean   *bool
	ValueDate      *time.Time
	ValueJSON      datatypes.JSON `gorm:"column:value_json;type:jsonb"`
	SmartCode      string         `gorm:"type:varchar(200);not null"`
}

// TableName returns the table name for GORM
func (DynamicAttributeModel) TableName() string {
	return "core_dynamic_data"
}

// ToDomain converts the model to a domain attribute
func (m *DynamicAttributeModel) ToDomain() *schema.DynamicAttribute {
	v := schema.AttributeValue{
		Text:    m.ValueText,
		Boolean: m.ValueBoolean,
		Date:    m.ValueDate,
	}
	if m.ValueNumber.Valid {
		n := m.ValueNumber.Decimal
		v.Number = &n
	}
	if len(m.ValueJSON) > 0 {
		v.JSON = json.RawMessage(m.ValueJSON)
	}
	return &schema.DynamicAttribute{
		OrgAggregateRoot: m.ToDomainOrgAggregateRoot(m.OrganizationID),
		EntityID:         m.EntityID,
		FieldName:        m.FieldName,
		ValueType:        m.ValueType,
		Value:            v,
		SmartCode:        m.SmartCode,
	}
}

// FromDomain populates the model from a domain attribute
func (m *DynamicAttributeModel) FromDomain(a *schema.DynamicAttribute) {
	m.FromDomainOrgAggregateRoot(a.OrgAggregateRoot)
	m.OrganizationID = a.OrganizationID
	m.EntityID = a.EntityID
	m.FieldName = a.FieldName
	m.ValueType = a.ValueType
	m.ValueText = a.Value.Text
	m.ValueNumber = decimal.NullDecimal{}
	if a.Value.Number != nil {
		m.ValueNumber = decimal.NewNullDecimal(*a.Value.Number)
	}
	m.ValueBoolean = a.Value.Boolean
	m.ValueDate = a.Value.Date
	m.ValueJSON = nil
	if len(a.Value.JSON) > 0 {
		m.ValueJSON = datatypes.JSON(a.Value.JSON)
	}
	m.SmartCode = a.SmartCode
}

// RelationshipModel is the persistence model of core_relationships
type RelationshipModel struct {
	AuditedModel
	OrganizationID   uuid.UUID         `gorm:"type:uuid;not null;index:idx_relationships_org"`
	FromEntityID     uuid.UUID         `gorm:"type:uuid;not null;index:idx_relationships_from"`
	ToEntityID       uuid.UUID         `gorm:"type:uuid;not null;index:idx_relationships_to"`
	RelationshipType string            `gorm:"type:varchar(100);not null"`
	SmartCode        string            `gorm:"type:varchar(200);not null"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb"`
	IsActive         bool              `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (RelationshipModel) TableName() string {
	return "core_relationships"
}

// ToDomain converts the model to a domain relationship
func (m *RelationshipModel) ToDomain() *schema.Relationship {
	return &schema.Relationship{
		OrgAggregateRoot: m.ToDomainOrgAggregateRoot(m.OrganizationID),
		FromEntityID:     m.FromEntityID,
		ToEntityID:       m.ToEntityID,
		RelationshipType: m.RelationshipType,
		SmartCode:        m.SmartCode,
		Metadata:         map[string]any(m.Metadata),
		IsActive:         m.IsActive,
	}
}

// FromDomain populates the model from a domain relationship
func (m *RelationshipModel) FromDomain(r *schema.Relationship) {
	m.FromDomainOrgAggregateRoot(r.OrgAggregateRoot)
	m.OrganizationID = r.OrganizationID
	m.FromEntityID = r.FromEntityID
	m.ToEntityID = r.ToEntityID
	m.RelationshipType = r.RelationshipType
	m.SmartCode = r.SmartCode
	m.Metadata = datatypes.JSONMap(r.Metadata)
	m.IsActive = r.IsActive
}

// TransactionHeaderModel is the persistence model of universal_transactions.
// ClaimedUntil and ClaimToken are batch-scheduler bookkeeping with no domain counterpart.
type TransactionHeaderModel struct {
	AuditedModel
	OrganizationID  uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:idx_transactions_org_code,priority:1"`
	TransactionType string                `gorm:"type:varchar(100);not null"`
	TransactionCode string                `gorm:"type:varchar(100);not null;uniqueIndex:idx_transactions_org_code,priority:2"`
	TransactionDate time.Time             `gorm:"not null"`
	TotalAmount     decimal.Decimal       `gorm:"type:decimal(20,6);not null;default:0"`
	Currency        string                `gorm:"type:varchar(3)"`
	Status          schema.TxStatus       `gorm:"type:varchar(20);not null;default:'DRAFT';index:idx_transactions_status"`
	SourceEntityID  *uuid.UUID            `gorm:"type:uuid"`
	TargetEntityID  *uuid.UUID            `gorm:"type:uuid"`
	SmartCode       string                `gorm:"type:varchar(200);not null"`
	Metadata        datatypes.JSONMap     `gorm:"type:jsonb"`
	ProcessingMode  schema.ProcessingMode `gorm:"type:varchar(20)"`
	PostingDate     *time.Time            `gorm:"index:idx_transactions_posting_date"`
	PostedAt        *time.Time
	PostedBy        *uuid.UUID `gorm:"type:uuid"`
	JournalID       *uuid.UUID `gorm:"type:uuid"`
	ReversalOf      *uuid.UUID `gorm:"type:uuid"`
	ReversedBy      *uuid.UUID `gorm:"type:uuid"`
	Attempts        int        `gorm:"not null;default:0"`
	NextAttemptAt   *time.Time `gorm:"index:idx_transactions_next_attempt"`
	LastError       string     `gorm:"type:text"`
	ClaimedUntil    *time.Time
	ClaimToken      string `gorm:"type:varchar(50)"`

	Lines []TransactionLineModel `gorm:"foreignKey:TransactionID"`
}

// TableName returns the table name for GORM
func (TransactionHeaderModel) TableName() string {
	return "universal_transactions"
}

// ToDomain converts the model and any loaded lines to a domain header
func (m *TransactionHeaderModel) ToDomain() *schema.TransactionHeader {
	h := &schema.TransactionHeader{
		OrgAggregateRoot: m.ToDomainOrgAggregateRoot(m.OrganizationID),
		TransactionType:  m.TransactionType,
		TransactionCode:  m.TransactionCode,
		TransactionDate:  m.TransactionDate,
		TotalAmount:      m.TotalAmount,
		Currency:         m.Currency,
		Status:           m.Status,
		SourceEntityID:   m.SourceEntityID,
		TargetEntityID:   m.TargetEntityID,
		SmartCode:        m.SmartCode,
		Metadata:         map[string]any(m.Metadata),
		ProcessingMode:   m.ProcessingMode,
		PostingDate:      m.PostingDate,
		PostedAt:         m.PostedAt,
		PostedBy:         m.PostedBy,
		JournalID:        m.JournalID,
		ReversalOf:       m.ReversalOf,
		ReversedBy:       m.ReversedBy,
		Attempts:         m.Attempts,
		NextAttemptAt:    m.NextAttemptAt,
		LastError:        m.LastError,
	}
	if len(m.Lines) > 0 {
		h.Lines = make([]schema.TransactionLine, len(m.Lines))
		for i := range m.Lines {
			h.Lines[i] = m.Lines[i].ToDomain()
		}
	}
	return h
}

// FromDomain populates the model and its lines from a domain header
func (m *TransactionHeaderModel) FromDomain(h *schema.TransactionHeader) {
	m.FromDomainOrgAggregateRoot(h.OrgAggregateRoot)
	m.OrganizationID = h.OrganizationID
	m.TransactionType = h.TransactionType
	m.TransactionCode = h.TransactionCode
	m.TransactionDate = h.TransactionDate
	m.TotalAmount = h.TotalAmount
	m.Currency = h.Currency
	m.Status = h.Status
	m.SourceEntityID = h.SourceEntityID
	m.TargetEntityID = h.TargetEntityID
	m.SmartCode = h.SmartCode
	m.Metadata = datatypes.JSONMap(h.Metadata)
	m.ProcessingMode = h.ProcessingMode
	m.PostingDate = h.PostingDate
	m.PostedAt = h.PostedAt
	m.PostedBy = h.PostedBy
	m.JournalID = h.JournalID
	m.ReversalOf = h.ReversalOf
	m.ReversedBy = h.ReversedBy
	m.Attempts = h.Attempts
	m.NextAttemptAt = h.NextAttemptAt
	m.LastError = h.LastError
	m.Lines = LinesFromDomain(h)
}

// LinesFromDomain converts the lines of a header
func LinesFromDomain(h *schema.TransactionHeader) []TransactionLineModel {
	lines := make([]TransactionLineModel, len(h.Lines))
	for i, l := range h.Lines {
		lines[i].FromDomain(l)
		lines[i].OrganizationID = h.OrganizationID
		lines[i].TransactionID = h.ID
	}
	return lines
}

// TransactionLineModel is the persistence model of universal_transaction_lines
type TransactionLineModel struct {
	ID             uuid.UUID         `gorm:"type:uuid;primary_key"`
	OrganizationID uuid.UUID         `gorm:"type:uuid;not null;index:idx_lines_org"`
	TransactionID  uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_lines_tx_number,priority:1"`
	LineNumber     int               `gorm:"not null;uniqueIndex:idx_lines_tx_number,priority:2"`
	LineType       string            `gorm:"type:varchar(50)"`
	Side           schema.LineSide   `gorm:"type:varchar(10)"`
	Quantity       decimal.Decimal   `gorm:"type:decimal(20,6);not null;default:0"`
	UnitAmount     decimal.Decimal   `gorm:"type:decimal(20,6);not null;default:0"`
	LineAmount     decimal.Decimal   `gorm:"type:decimal(20,6);not null;default:0"`
	SmartCode      string            `gorm:"type:varchar(200);not null"`
	EntityID       *uuid.UUID        `gorm:"type:uuid;index:idx_lines_entity"`
	LineData       datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt      time.Time         `gorm:"not null"`
}

// TableName returns the table name for GORM
func (TransactionLineModel) TableName() string {
	return "universal_transaction_lines"
}

// ToDomain converts the model to a domain line
func (m *TransactionLineModel) ToDomain() schema.TransactionLine {
	return schema.TransactionLine{
		ID:             m.ID,
		OrganizationID: m.OrganizationID,
		TransactionID:  m.TransactionID,
		LineNumber:     m.LineNumber,
		LineType:       m.LineType,
		Side:           m.Side,
		Quantity:       m.Quantity,
		UnitAmount:     m.UnitAmount,
		LineAmount:     m.LineAmount,
		SmartCode:      m.SmartCode,
		EntityID:       m.EntityID,
		LineData:       map[string]any(m.LineData),
		CreatedAt:      m.CreatedAt,
	}
}

// FromDomain populates the model from a domain line
func (m *TransactionLineModel) FromDomain(l schema.TransactionLine) {
	m.ID = l.ID
	m.OrganizationID = l.OrganizationID
	m.TransactionID = l.TransactionID
	m.LineNumber = l.LineNumber
	m.LineType = l.LineType
	m.Side = l.Side
	m.Quantity = l.Quantity
	m.UnitAmount = l.UnitAmount
	m.LineAmount = l.LineAmount
	m.SmartCode = l.SmartCode
	m.EntityID = l.EntityID
	m.LineData = datatypes.JSONMap(l.LineData)
	m.CreatedAt = l.CreatedAt
}

// All returns every model of the core schema, in dependency order, for AutoMigrate in tests
func All() []any {
	return []any{
		&OrganizationModel{},
		&EntityModel{},
		&DynamicAttributeModel{},
		&RelationshipModel{},
		&TransactionHeaderModel{},
		&TransactionLineModel{},
	}
}
