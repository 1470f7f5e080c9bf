package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	appposting "github.com/erp/platform/internal/application/posting"
	"github.com/erp/platform/internal/infrastructure/scheduler"
	"github.com/erp/platform/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// HealthCheck probes one dependency
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// BatchScheduler runs and reports batch posting passes
type BatchScheduler interface {
	RunOnce(ctx context.Context) (*appposting.BatchResult, error)
	LastRun() *scheduler.RunStatus
}

// SystemHandler handles health, info and batch control endpoints
type SystemHandler struct {
	BaseHandler
	version   string
	startTime time.Time
	checks    []HealthCheck
	batch     BatchScheduler
	timeout   time.Duration
}

// SystemHandlerOption configures a SystemHandler
type SystemHandlerOption func(*SystemHandler)

// WithHealthCheck adds a readiness probe
func WithHealthCheck(name string, check func(ctx context.Context) error) SystemHandlerOption {
	return func(h *SystemHandler) {
		h.checks = append(h.checks, HealthCheck{Name: name, Check: check})
	}
}

// WithBatchScheduler exposes batch posting control; without it the batch endpoints answer 503
func WithBatchScheduler(b BatchScheduler) SystemHandlerOption {
	return func(h *SystemHandler) { h.batch = b }
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(version string, opts ...SystemHandlerOption) *SystemHandler {
	h := &SystemHandler{version: version, startTime: time.Now(), timeout: 2 * time.Second}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthResponse reports readiness per dependency
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Uptime  string            `json:"uptime"`
	Go      string            `json:"go_version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Liveness handles GET /health/live
func (h *SystemHandler) Liveness(c *gin.Context) {
	h.Success(c, gin.H{"status": "ok"})
}

// Health handles GET /health. Any failed probe answers 503.
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:  "ok",
		Version: h.version,
		Uptime:  time.Since(h.startTime).Round(time.Second).String(),
		Go:      runtime.Version(),
	}
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks[check.Name] = err.Error()
			continue
		}
		resp.Checks[check.Name] = "ok"
	}

	if resp.Status != "ok" {
		c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Data: resp})
		return
	}
	h.Success(c, resp)
}

// RunBatch handles POST /system/batch/run
func (h *SystemHandler) RunBatch(c *gin.Context) {
	if h.batch == nil {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeSchedulerStopped, "Batch posting is disabled")
		return
	}
	result, err := h.batch.RunOnce(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// BatchStatus handles GET /system/batch/status
func (h *SystemHandler) BatchStatus(c *gin.Context) {
	if h.batch == nil {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeSchedulerStopped, "Batch posting is disabled")
		return
	}
	h.Success(c, h.batch.LastRun())
}
