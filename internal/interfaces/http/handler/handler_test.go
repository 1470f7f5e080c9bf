package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
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
	"github.com/erp/platform/internal/interfaces/http/dto"
	"github.com/erp/platform/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testScope struct {
	org   uuid.UUID
	actor uuid.UUID
}

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Scope())
	return r
}

func do(r *gin.Engine, method, path string, body any, scope testScope) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if scope.org != uuid.Nil {
		req.Header.Set(middleware.HeaderOrganizationID, scope.org.String())
	}
	if scope.actor != uuid.Nil {
		req.Header.Set(middleware.HeaderActorID, scope.actor.String())
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func dataMap(t *testing.T, resp dto.Response) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

func newScope() testScope {
	return testScope{org: uuid.New(), actor: uuid.New()}
}

// Organizations

func orgRouter(svc *mockOrganizationService) *gin.Engine {
	h := NewOrganizationHandler(svc)
	r := newEngine()
	r.POST("/organizations", h.Provision)
	r.GET("/organizations", h.List)
	r.GET("/organizations/:id", h.Get)
	r.PUT("/organizations/:id/settings", h.UpdateSettings)
	r.PUT("/organizations/:id/status", h.ChangeStatus)
	return r
}

func TestOrganizationHandler_Provision(t *testing.T) {
	svc := new(mockOrganizationService)
	actorID := uuid.New()
	org := &schema.Organization{Name: "Acme", Code: "ACME", Status: schema.OrgStatusActive}
	svc.On("Provision", mock.Anything, apporg.ProvisionCommand{Name: "Acme"}, shared.NewUserActor(actorID)).Return(org, nil)

	w := do(orgRouter(svc), http.MethodPost, "/organizations", map[string]any{"name": "Acme"}, testScope{actor: actorID})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "ACME", dataMap(t, decode(t, w))["code"])
	svc.AssertExpectations(t)
}

func TestOrganizationHandler_ProvisionAnonymousReachesCore(t *testing.T) {
	svc := new(mockOrganizationService)
	svc.On("Provision", mock.Anything, mock.Anything, shared.Actor{}).Return(nil, shared.ErrActorRequired)

	w := do(orgRouter(svc), http.MethodPost, "/organizations", map[string]any{"name": "Acme"}, testScope{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, shared.CodeActorRequired, decode(t, w).Error.Code)
	svc.AssertExpectations(t)
}

func TestOrganizationHandler_GetOutsideScope(t *testing.T) {
	svc := new(mockOrganizationService)
	scope := newScope()

	w := do(orgRouter(svc), http.MethodGet, "/organizations/"+uuid.NewString(), nil, scope)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, shared.CodeTenantIsolation, decode(t, w).Error.Code)
	svc.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestOrganizationHandler_GetNotFound(t *testing.T) {
	svc := new(mockOrganizationService)
	scope := newScope()
	svc.On("Get", mock.Anything, scope.org).Return(nil, shared.NewNotFoundError("Organization"))

	w := do(orgRouter(svc), http.MethodGet, "/organizations/"+scope.org.String(), nil, scope)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrganizationHandler_List(t *testing.T) {
	svc := new(mockOrganizationService)
	svc.On("List", mock.Anything, mock.MatchedBy(func(f shared.Filter) bool {
		return f.Page == 2 && f.PageSize == 10
	})).Return([]schema.Organization{{Name: "A"}}, int64(11), nil)

	w := do(orgRouter(svc), http.MethodGet, "/organizations?page=2&page_size=10", nil, testScope{})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(11), resp.Meta.Total)
	assert.Equal(t, 2, resp.Meta.TotalPages)
}

func TestOrganizationHandler_ChangeStatus(t *testing.T) {
	svc := new(mockOrganizationService)
	scope := newScope()
	svc.On("ChangeStatus", mock.Anything, scope.org, schema.OrgStatusSuspended, shared.NewUserActor(scope.actor)).
		Return(&schema.Organization{Status: schema.OrgStatusSuspended}, nil)
	r := orgRouter(svc)

	w := do(r, http.MethodPut, "/organizations/"+scope.org.String()+"/status", map[string]any{"status": "SUSPENDED"}, scope)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPut, "/organizations/"+scope.org.String()+"/status", map[string]any{"status": "DELETED"}, scope)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeValidation, decode(t, w).Error.Code)
	svc.AssertNumberOfCalls(t, "ChangeStatus", 1)
}

func TestOrganizationHandler_UpdateSettings(t *testing.T) {
	svc := new(mockOrganizationService)
	scope := newScope()
	svc.On("UpdateSettings", mock.Anything, scope.org, mock.MatchedBy(func(s schema.OrganizationSettings) bool {
		return s.FiscalYearStartMonth == 4 && s.ImmediatePostingThreshold != nil &&
			s.ImmediatePostingThreshold.Equal(decimal.NewFromInt(1000))
	}), shared.NewUserActor(scope.actor)).Return(&schema.Organization{}, nil)

	body := `{"fiscal_year_start_month":4,"immediate_posting_threshold":"1000"}`
	w := do(orgRouter(svc), http.MethodPut, "/organizations/"+scope.org.String()+"/settings", body, scope)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

// Entities

func entityRouter(svc *mockEntityService) *gin.Engine {
	h := NewEntityHandler(svc)
	r := newEngine()
	r.POST("/entities", h.Create)
	r.GET("/entities", h.List)
	r.GET("/entities/:id", h.Get)
	r.PATCH("/entities/:id", h.Update)
	r.PUT("/entities/:id/attributes", h.SetAttribute)
	r.GET("/entities/:id/attributes", h.ListAttributes)
	r.GET("/entities/:id/relationships", h.ListRelationships)
	r.POST("/relationships", h.CreateRelationship)
	r.DELETE("/relationships/:id", h.DeactivateRelationship)
	return r
}

func TestEntityHandler_CreateRequiresOrganization(t *testing.T) {
	svc := new(mockEntityService)
	w := do(entityRouter(svc), http.MethodPost, "/entities", map[string]any{"entity_type": "CUSTOMER", "name": "Jane"}, testScope{actor: uuid.New()})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeOrgRequired, decode(t, w).Error.Code)
	svc.AssertNotCalled(t, "CreateEntity", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEntityHandler_Create(t *testing.T) {
	svc := new(mockEntityService)
	scope := newScope()
	cmd := appentity.CreateEntityCommand{EntityType: "CUSTOMER", Name: "Jane", SmartCode: "CRM.CUSTOMER.PROFILE.v1"}
	svc.On("CreateEntity", mock.Anything, scope.org, cmd, shared.NewUserActor(scope.actor)).
		Return(&schema.Entity{EntityType: "CUSTOMER", Name: "Jane", SmartCode: cmd.SmartCode}, nil)

	w := do(entityRouter(svc), http.MethodPost, "/entities", cmd, scope)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Jane", dataMap(t, decode(t, w))["name"])
	svc.AssertExpectations(t)
}

func TestEntityHandler_CreateGuardrailViolation(t *testing.T) {
	svc := new(mockEntityService)
	scope := newScope()
	violation := shared.Violation{Rule: "smart_code", Code: shared.CodeUnregisteredNS, Field: "smart_code", Message: "unregistered"}
	svc.On("CreateEntity", mock.Anything, scope.org, mock.Anything, mock.Anything).
		Return(nil, shared.NewGuardrailViolation("entity rejected", []shared.Violation{violation}))

	w := do(entityRouter(svc), http.MethodPost, "/entities", map[string]any{"entity_type": "X", "name": "Y", "smart_code": "ZZZ.A.B.v1"}, scope)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode(t, w)
	assert.Equal(t, shared.CodeGuardrailViolation, resp.Error.Code)
	require.Len(t, resp.Error.Violations, 1)
	assert.Equal(t, shared.CodeUnregisteredNS, resp.Error.Violations[0].Code)
	assert.NotEmpty(t, resp.Error.RequestID)
}

func TestEntityHandler_List(t *testing.T) {
	svc := new(mockEntityService)
	scope := newScope()
	svc.On("ListEntities", mock.Anything, scope.org, mock.MatchedBy(func(f schema.EntityFilter) bool {
		return f.EntityType == "CUSTOMER" && f.Status != nil && *f.Status == schema.EntityStatusActive && f.SmartCodePrefix == "CRM"
	})).Return([]schema.Entity{{Name: "Jane"}}, int64(1), nil)

	w := do(entityRouter(svc), http.MethodGet, "/entities?entity_type=customer&status=ACTIVE&smart_code_prefix=CRM", nil, scope)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestEntityHandler_GetInvalidID(t *testing.T) {
	svc := new(mockEntityService)
	w := do(entityRouter(svc), http.MethodGet, "/entities/not-a-uuid", nil, newScope())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEntityHandler_Update(t *testing.T) {
	svc := new(mockEntityService)
	scope := newScope()
	id := uuid.New()
	svc.On("UpdateEntity", mock.Anything, scope.org, id, mock.MatchedBy(func(u schema.EntityUpdate) bool {
		return u.Name != nil && *u.Name == "Renamed" && u.Code == nil && u.Status != nil && *u.Status == schema.EntityStatusInactive
	}), shared.NewUserActor(scope.actor)).Return(&schema.Entity{Name: "Renamed"}, nil)

	w := do(entityRouter(svc), http.MethodPatch, "/entities/"+id.String(), map[string]any{"name": "Renamed", "status": "INACTIVE"}, scope)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestEntityHandler_SetAttribute(t *testing.T) {
	svc := new(mockEntityService)
	scope := newScope()
	id := uuid.New()
	svc.On("SetAttribute", mock.Anything, scope.org, id, mock.MatchedBy(func(cmd appentity.SetAttributeCommand) bool {
		return cmd.FieldName == "credit_limit" && cmd.ValueType == schema.ValueType("number")
	}), shared.NewUserActor(scope.actor)).Return(&appentity.AttributeResult{}, nil)

	body := `{"field_name":"credit_limit","value_type":"number","value":{"number":"5000"},"smart_code":"CRM.ATTR.CREDIT.v1"}`
	w := do(entityRouter(svc), http.MethodPut, "/entities/"+id.String()+"/attributes", body, scope)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestEntityHandler_Relationships(t *testing.T) {
	svc := new(mockEntityService)
	scope := newScope()
	entityID, relID := uuid.New(), uuid.New()
	svc.On("ListRelationships", mock.Anything, scope.org, entityID, false).Return([]schema.Relationship{}, nil)
	svc.On("DeactivateRelationship", mock.Anything, scope.org, relID, shared.NewUserActor(scope.actor)).
		Return(nil, shared.ErrInvalidState)
	r := entityRouter(svc)

	w := do(r, http.MethodGet, "/entities/"+entityID.String()+"/relationships?active_only=false", nil, scope)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodDelete, "/relationships/"+relID.String(), nil, scope)
	assert.Equal(t, http.StatusConflict, w.Code)
	svc.AssertExpectations(t)
}

// Transactions

func txRouter(svc *mockTransactionService) *gin.Engine {
	h := NewTransactionHandler(svc)
	r := newEngine()
	r.POST("/transactions", h.Create)
	r.GET("/transactions", h.List)
	r.GET("/transactions/:id", h.Get)
	r.PUT("/transactions/:id/lines", h.AdjustLines)
	r.POST("/transactions/:id/post", h.Post)
	r.POST("/transactions/:id/cancel", h.Cancel)
	r.POST("/transactions/:id/approve", h.Approve)
	r.POST("/transactions/:id/reverse", h.Reverse)
	return r
}

func TestTransactionHandler_CreateQueued(t *testing.T) {
	svc := new(mockTransactionService)
	scope := newScope()
	svc.On("Create", mock.Anything, scope.org, mock.MatchedBy(func(cmd appposting.CreateTransactionCommand) bool {
		return cmd.TransactionType == "POS_SALE" && cmd.TotalAmount.Equal(decimal.RequireFromString("100.50")) && len(cmd.Lines) == 2
	}), shared.NewUserActor(scope.actor)).Return(&appposting.CreateResult{
		Transaction: &schema.TransactionHeader{Status: schema.TxStatusPending},
	}, nil)

	body := `{"transaction_type":"POS_SALE","total_amount":"100.50","smart_code":"SALES.POS.TXN.SALE.v1",
		"lines":[{"line_amount":"100.50","smart_code":"SALES.POS.LINE.SERVICE.v1"},{"line_amount":"100.50","smart_code":"SALES.POS.LINE.PAYMENT.v1"}]}`
	w := do(txRouter(svc), http.MethodPost, "/transactions", body, scope)

	assert.Equal(t, http.StatusAccepted, w.Code)
	svc.AssertExpectations(t)
}

func TestTransactionHandler_CreatePostedImmediately(t *testing.T) {
	svc := new(mockTransactionService)
	scope := newScope()
	svc.On("Create", mock.Anything, scope.org, mock.Anything, mock.Anything).Return(&appposting.CreateResult{
		Transaction: &schema.TransactionHeader{Status: schema.TxStatusPosted},
		Receipt:     &posting.PostedReceipt{Status: schema.TxStatusPosted, LineCount: 2},
	}, nil)

	w := do(txRouter(svc), http.MethodPost, "/transactions", map[string]any{"transaction_type": "POS_SALE"}, scope)

	require.Equal(t, http.StatusCreated, w.Code)
	receipt, ok := dataMap(t, decode(t, w))["receipt"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "POSTED", receipt["status"])
}

func TestTransactionHandler_CreateRejectedByRule(t *testing.T) {
	svc := new(mockTransactionService)
	scope := newScope()
	svc.On("Create", mock.Anything, scope.org, mock.Anything, mock.Anything).
		Return(nil, shared.NewRuleEvaluationError(shared.CodeRuleRejected, "refund rejected"))

	w := do(txRouter(svc), http.MethodPost, "/transactions", map[string]any{"transaction_type": "REFUND"}, scope)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, shared.CodeRuleRejected, decode(t, w).Error.Code)
}

func TestTransactionHandler_List(t *testing.T) {
	svc := new(mockTransactionService)
	scope := newScope()
	svc.On("List", mock.Anything, scope.org, mock.MatchedBy(func(f schema.TransactionFilter) bool {
		return f.Status != nil && *f.Status == schema.TxStatusBlocked &&
			f.FromDate != nil && f.FromDate.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) &&
			f.ToDate != nil && f.ToDate.Equal(time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC))
	})).Return([]schema.TransactionHeader{}, int64(0), nil)
	r := txRouter(svc)

	w := do(r, http.MethodGet, "/transactions?status=BLOCKED&from_date=2026-01-01&to_date=2026-01-31", nil, scope)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/transactions?from_date=01/02/2026", nil, scope)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNumberOfCalls(t, "List", 1)
}

func TestTransactionHandler_Lifecycle(t *testing.T) {
	svc := new(mockTransactionService)
	scope := newScope()
	id := uuid.New()
	actor := shared.NewUserActor(scope.actor)
	svc.On("Get", mock.Anything, scope.org, id).Return(&schema.TransactionHeader{Status: schema.TxStatusDraft}, nil)
	svc.On("AdjustLines", mock.Anything, scope.org, id, mock.MatchedBy(func(cmd appposting.AdjustLinesCommand) bool {
		return len(cmd.Lines) == 1
	}), actor).Return(&appposting.AdjustResult{Transaction: &schema.TransactionHeader{}}, nil)
	svc.On("Post", mock.Anything, scope.org, id, actor).Return(&posting.PostedReceipt{TransactionID: id}, nil)
	svc.On("Cancel", mock.Anything, scope.org, id, actor).Return(nil, shared.ErrInvalidState)
	r := txRouter(svc)
	base := "/transactions/" + id.String()

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, base, nil, scope).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPut, base+"/lines", `{"lines":[{"line_amount":"10"}]}`, scope).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, base+"/post", nil, scope).Code)

	w := do(r, http.MethodPost, base+"/cancel", nil, scope)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(shared.KindState), decode(t, w).Error.Kind)
	svc.AssertExpectations(t)
}

func TestTransactionHandler_Approve(t *testing.T) {
	svc := new(mockTransactionService)
	scope := newScope()
	held, own := uuid.New(), uuid.New()
	actor := shared.NewUserActor(scope.actor)
	svc.On("Approve", mock.Anything, scope.org, held, actor).
		Return(&schema.TransactionHeader{Status: schema.TxStatusDraft}, nil)
	svc.On("Approve", mock.Anything, scope.org, own, actor).
		Return(nil, shared.NewStateError(shared.CodeSelfApproval, "creator cannot approve"))
	r := txRouter(svc)

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/transactions/"+held.String()+"/approve", nil, scope).Code)

	w := do(r, http.MethodPost, "/transactions/"+own.String()+"/approve", nil, scope)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, shared.CodeSelfApproval, decode(t, w).Error.Code)
	svc.AssertExpectations(t)
}

func TestTransactionHandler_Reverse(t *testing.T) {
	svc := new(mockTransactionService)
	scope := newScope()
	id := uuid.New()
	svc.On("Reverse", mock.Anything, scope.org, id, appposting.ReverseCommand{}, shared.NewUserActor(scope.actor)).
		Return(&appposting.ReverseResult{}, nil).Once()
	svc.On("Reverse", mock.Anything, scope.org, id, appposting.ReverseCommand{Reason: "duplicate"}, shared.NewUserActor(scope.actor)).
		Return(nil, shared.NewStateError(shared.CodeAlreadyReversed, "already reversed")).Once()
	r := txRouter(svc)

	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/transactions/"+id.String()+"/reverse", nil, scope).Code)

	w := do(r, http.MethodPost, "/transactions/"+id.String()+"/reverse", map[string]any{"reason": "duplicate"}, scope)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, shared.CodeAlreadyReversed, decode(t, w).Error.Code)
	svc.AssertExpectations(t)
}

func TestTransactionHandler_StorageErrorIsRetryable(t *testing.T) {
	svc := new(mockTransactionService)
	scope := newScope()
	id := uuid.New()
	svc.On("Post", mock.Anything, scope.org, id, mock.Anything).Return(nil, shared.NewStorageError("post", errors.New("connection reset")))

	w := do(txRouter(svc), http.MethodPost, "/transactions/"+id.String()+"/post", nil, scope)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decode(t, w)
	assert.True(t, resp.Error.Retryable)
	assert.NotContains(t, resp.Error.Message, "connection reset")
}

// Rules

func ruleRouter(svc *mockRuleService) *gin.Engine {
	h := NewRuleHandler(svc)
	r := newEngine()
	r.POST("/rules", h.Create)
	r.GET("/rules", h.List)
	r.GET("/rules/active-count", h.ActiveCount)
	r.POST("/rules/evaluate", h.Evaluate)
	r.PUT("/rules/:id/active", h.SetActive)
	return r
}

func TestRuleHandler_Create(t *testing.T) {
	svc := new(mockRuleService)
	scope := newScope()
	svc.On("CreateRule", mock.Anything, scope.org, mock.MatchedBy(func(cmd apprule.CreateRuleCommand) bool {
		return cmd.Family == "refund_approval" && cmd.Priority == 10 && cmd.Result == ucr.Result("APPROVED")
	}), shared.NewUserActor(scope.actor)).Return(&ucr.Rule{Name: "small refunds"}, nil)

	body := `{"name":"small refunds","rule_family":"refund_approval","priority":10,"result":"APPROVED"}`
	w := do(ruleRouter(svc), http.MethodPost, "/rules", body, scope)

	assert.Equal(t, http.StatusCreated, w.Code)
	svc.AssertExpectations(t)
}

func TestRuleHandler_Evaluate(t *testing.T) {
	svc := new(mockRuleService)
	scope := newScope()
	svc.On("Evaluate", mock.Anything, scope.org, "refund_approval", mock.MatchedBy(func(p ucr.Payload) bool {
		return p.TransactionType == "REFUND" && p.Amount.Equal(decimal.NewFromInt(250)) && p.Attributes["channel"] == "store"
	})).Return(ucr.Decision{Result: ucr.Result("REJECTED"), Family: "refund_approval", FailedClosed: true}, nil)

	body := `{"rule_family":"refund_approval","transaction_type":"REFUND","amount":"250","attributes":{"channel":"store"}}`
	w := do(ruleRouter(svc), http.MethodPost, "/rules/evaluate", body, scope)

	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, decode(t, w))
	assert.Equal(t, "REJECTED", data["result"])
	assert.Equal(t, true, data["failed_closed"])
}

func TestRuleHandler_SetActive(t *testing.T) {
	svc := new(mockRuleService)
	scope := newScope()
	id := uuid.New()
	svc.On("SetActive", mock.Anything, scope.org, id, false, shared.NewUserActor(scope.actor)).Return(&ucr.Rule{ID: id}, nil)
	r := ruleRouter(svc)

	assert.Equal(t, http.StatusOK, do(r, http.MethodPut, "/rules/"+id.String()+"/active", `{"active":false}`, scope).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/rules/"+id.String()+"/active", `{}`, scope).Code)
	svc.AssertNumberOfCalls(t, "SetActive", 1)
}

func TestRuleHandler_ListAndCount(t *testing.T) {
	svc := new(mockRuleService)
	scope := newScope()
	svc.On("ListRules", mock.Anything, scope.org, "posting_mode").Return([]ucr.Rule{{Name: "a"}, {Name: "b"}}, nil)
	svc.On("ActiveRuleCount", mock.Anything, scope.org).Return(2, nil)
	r := ruleRouter(svc)

	w := do(r, http.MethodGet, "/rules?rule_family=posting_mode", nil, scope)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w).Data, 2)

	w = do(r, http.MethodGet, "/rules/active-count", nil, scope)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), dataMap(t, decode(t, w))["active_rules"])
}

// Smart codes

func smartCodeRouter(svc *mockSmartCodeService) *gin.Engine {
	h := NewSmartCodeHandler(svc)
	r := newEngine()
	r.GET("/smart-codes/validate", h.Validate)
	r.GET("/smart-codes/classify", h.Classify)
	r.GET("/smart-codes/templates", h.ListTemplates)
	r.POST("/smart-codes/templates", h.RegisterTemplate)
	return r
}

func TestSmartCodeHandler_Validate(t *testing.T) {
	svc := new(mockSmartCodeService)
	svc.On("Validate", "SALES.POS.TXN.SALE.v1").Return(smartcode.Validated{SmartCode: "SALES.POS.TXN.SALE.v1", Version: 1, Prefix: "SALES.POS.TXN"}, nil)
	svc.On("Validate", "sales.pos").Return(smartcode.Validated{}, shared.NewValidationError(shared.CodeInvalidFormat, "bad format"))
	r := smartCodeRouter(svc)

	w := do(r, http.MethodGet, "/smart-codes/validate?code=SALES.POS.TXN.SALE.v1", nil, testScope{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, dataMap(t, decode(t, w))["valid"])

	w = do(r, http.MethodGet, "/smart-codes/validate?code=sales.pos", nil, testScope{})
	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, decode(t, w))
	assert.Equal(t, false, data["valid"])
	assert.Equal(t, shared.CodeInvalidFormat, data["code"])

	w = do(r, http.MethodGet, "/smart-codes/validate", nil, testScope{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSmartCodeHandler_ClassifyUnregistered(t *testing.T) {
	svc := new(mockSmartCodeService)
	svc.On("Classify", "ZZZ.A.B.C.v1").Return(smartcode.Classification{}, shared.NewValidationError(shared.CodeUnregisteredNS, "not registered"))

	w := do(smartCodeRouter(svc), http.MethodGet, "/smart-codes/classify?code=ZZZ.A.B.C.v1", nil, testScope{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, shared.CodeUnregisteredNS, decode(t, w).Error.Code)
}

func TestSmartCodeHandler_Templates(t *testing.T) {
	svc := new(mockSmartCodeService)
	actorID := uuid.New()
	svc.On("Templates").Return([]smartcode.Template{{Prefix: "SALES.POS.TXN"}})
	svc.On("RegisterTemplate", mock.Anything, mock.MatchedBy(func(tpl smartcode.Template) bool {
		return tpl.Prefix == "HR.PAYROLL.RUN"
	}), shared.NewUserActor(actorID)).Return(smartcode.Template{Prefix: "HR.PAYROLL.RUN"}, nil)
	r := smartCodeRouter(svc)

	w := do(r, http.MethodGet, "/smart-codes/templates", nil, testScope{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w).Data, 1)

	w = do(r, http.MethodPost, "/smart-codes/templates", map[string]any{"prefix": "HR.PAYROLL.RUN", "handler": "informational"}, testScope{actor: actorID})
	assert.Equal(t, http.StatusCreated, w.Code)
	svc.AssertExpectations(t)
}

// Reports

func reportRouter(svc *mockReportService, now time.Time) *gin.Engine {
	h := NewReportHandler(svc)
	h.now = func() time.Time { return now }
	r := newEngine()
	r.GET("/reports/trial-balance", h.TrialBalance)
	r.GET("/reports/profit-and-loss", h.ProfitAndLoss)
	r.GET("/reports/balance-sheet", h.BalanceSheet)
	return r
}

func TestReportHandler_TrialBalance(t *testing.T) {
	svc := new(mockReportService)
	scope := newScope()
	svc.On("TrialBalance", mock.Anything, scope.org, mock.MatchedBy(func(asOf time.Time) bool {
		return asOf.Equal(time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC))
	})).Return(&posting.TrialBalance{Balanced: true}, nil)
	r := reportRouter(svc, time.Now())

	w := do(r, http.MethodGet, "/reports/trial-balance?as_of=2026-03-31", nil, scope)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, dataMap(t, decode(t, w))["balanced"])

	w = do(r, http.MethodGet, "/reports/trial-balance?as_of=yesterday", nil, scope)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNumberOfCalls(t, "TrialBalance", 1)
}

func TestReportHandler_ProfitAndLossDefaultsToCurrentMonth(t *testing.T) {
	svc := new(mockReportService)
	scope := newScope()
	now := time.Date(2026, 5, 17, 10, 0, 0, 0, time.UTC)
	svc.On("ProfitAndLoss", mock.Anything, scope.org,
		mock.MatchedBy(func(from time.Time) bool { return from.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)) }),
		mock.MatchedBy(func(to time.Time) bool { return to.Equal(now) }),
	).Return(&posting.ProfitAndLoss{}, nil)
	r := reportRouter(svc, now)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/reports/profit-and-loss", nil, scope).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/reports/profit-and-loss?from=2026-06-01&to=2026-05-01", nil, scope).Code)
	svc.AssertExpectations(t)
}

func TestReportHandler_BalanceSheet(t *testing.T) {
	svc := new(mockReportService)
	scope := newScope()
	svc.On("BalanceSheet", mock.Anything, scope.org, mock.Anything).Return(nil, shared.NewStorageError("ledger", errors.New("timeout")))

	w := do(reportRouter(svc, time.Now()), http.MethodGet, "/reports/balance-sheet", nil, scope)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// System

func TestSystemHandler_Health(t *testing.T) {
	healthy := NewSystemHandler("1.2.3", WithHealthCheck("database", func(_ context.Context) error { return nil }))
	r := newEngine()
	r.GET("/health", healthy.Health)
	r.GET("/health/live", healthy.Liveness)

	w := do(r, http.MethodGet, "/health", nil, testScope{})
	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, decode(t, w))
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "1.2.3", data["version"])
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health/live", nil, testScope{}).Code)

	degraded := NewSystemHandler("1.2.3",
		WithHealthCheck("database", func(_ context.Context) error { return nil }),
		WithHealthCheck("redis", func(_ context.Context) error { return errors.New("dial tcp: refused") }))
	r = newEngine()
	r.GET("/health", degraded.Health)

	w = do(r, http.MethodGet, "/health", nil, testScope{})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	checks := dataMap(t, decode(t, w))["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["database"])
	assert.Contains(t, checks["redis"], "refused")
}

func TestSystemHandler_Batch(t *testing.T) {
	disabled := NewSystemHandler("dev")
	r := newEngine()
	r.POST("/batch/run", disabled.RunBatch)
	r.GET("/batch/status", disabled.BatchStatus)
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodPost, "/batch/run", nil, testScope{}).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/batch/status", nil, testScope{}).Code)

	batch := new(mockBatchScheduler)
	batch.On("RunOnce", mock.Anything).Return(&appposting.BatchResult{RunID: "01J", Claimed: 3, Posted: 2, Blocked: 1}, nil)
	batch.On("LastRun").Return(&scheduler.RunStatus{RunID: "01J"})
	enabled := NewSystemHandler("dev", WithBatchScheduler(batch))
	r = newEngine()
	r.POST("/batch/run", enabled.RunBatch)
	r.GET("/batch/status", enabled.BatchStatus)

	w := do(r, http.MethodPost, "/batch/run", nil, testScope{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), dataMap(t, decode(t, w))["posted"])

	w = do(r, http.MethodGet, "/batch/status", nil, testScope{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "01J", dataMap(t, decode(t, w))["run_id"])
}
