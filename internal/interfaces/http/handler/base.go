package handler

import (
	"net/http"
	"time"

	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/infrastructure/logger"
	"github.com/erp/platform/internal/interfaces/http/dto"
	"github.com/erp/platform/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BaseHandler provides common response helpers for handlers
type BaseHandler struct{}

// Success sends a 200 response with data
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a 200 response with data and pagination metadata
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 response with data
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with an explicit status and code
func (h *BaseHandler) Error(c *gin.Context, status int, code, message string) {
	resp := dto.NewErrorResponse(code, message)
	resp.Error.RequestID = middleware.GetRequestID(c)
	c.JSON(status, resp)
}

// BadRequest sends a 400 response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// HandleError converts err to a response. Domain errors keep their code, kind and
// violations; anything else is logged and reported as an internal error.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	status, info := dto.ErrorFromDomain(err)
	info.RequestID = middleware.GetRequestID(c)
	_ = c.Error(err)

	l := logger.L(c.Request.Context())
	switch {
	case status >= http.StatusInternalServerError:
		l.Error("Request failed", zap.Error(err), zap.String("code", info.Code))
	case info.Kind == string(shared.KindGuardrail):
		l.Info("Request blocked by guardrail", zap.String("violations", shared.ViolationSummary(info.Violations)))
	}
	c.JSON(status, dto.Response{Success: false, Error: info})
}

// BindJSON binds the request body and writes a 400 on failure
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

// BindQuery binds query parameters and writes a 400 on failure
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

// ParamUUID parses a UUID path parameter and writes a 400 on failure
func (h *BaseHandler) ParamUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, "Invalid "+name+": must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// Organization returns the organization the request is scoped to and writes a 400 when absent
func (h *BaseHandler) Organization(c *gin.Context) (uuid.UUID, bool) {
	orgID, ok := middleware.GetOrganizationID(c)
	if !ok {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeOrgRequired, "An organization is required")
		return uuid.Nil, false
	}
	return orgID, true
}

// Actor returns the actor of the request; it may be anonymous
func (h *BaseHandler) Actor(c *gin.Context) shared.Actor {
	return middleware.GetActor(c)
}

// QueryDate parses an optional YYYY-MM-DD query parameter, returning def when absent.
// The returned time is the end of that day in UTC.
func (h *BaseHandler) QueryDate(c *gin.Context, name string, def time.Time) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		h.BadRequest(c, "Invalid "+name+": expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return endOfDay(d), true
}

func endOfDay(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, time.UTC)
}

func startOfDay(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}
