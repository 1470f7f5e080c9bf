package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/infrastructure/auth"
	"github.com/erp/platform/internal/infrastructure/config"
	"github.com/erp/platform/internal/infrastructure/logger"
	"github.com/erp/platform/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newJWT() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{Secret: "test-secret-of-sufficient-length", Issuer: "core-test"})
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *dto.ErrorInfo {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	var seenCtx, seenGin string
	r.GET("/", func(c *gin.Context) {
		seenGin = GetRequestID(c)
		seenCtx = logger.RequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		id := w.Header().Get(HeaderRequestID)
		assert.Len(t, id, 26)
		assert.Equal(t, id, seenGin)
		assert.Equal(t, id, seenCtx)
	})

	t.Run("propagated", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, "caller-id")
		r.ServeHTTP(w, req)
		assert.Equal(t, "caller-id", w.Header().Get(HeaderRequestID))
	})

	t.Run("oversized header replaced", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, strings.Repeat("x", 200))
		r.ServeHTTP(w, req)
		assert.Len(t, w.Header().Get(HeaderRequestID), 26)
	})
}

func TestCORSWithConfig(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://app.example.com"}
	r := gin.New()
	r.Use(CORSWithConfig(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("allowed origin", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://app.example.com")
		r.ServeHTTP(w, req)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", "https://app.example.com")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), HeaderOrganizationID)
	})
}

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodyLimit(16))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", 64))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, dto.ErrCodeRequestTooLarge, decodeError(t, w).Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small")))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBodyLimit_ChunkedBodyFailsOnBind(t *testing.T) {
	r := gin.New()
	r.Use(BodyLimit(16))
	r.POST("/", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"note":"`+strings.Repeat("a", 64)+`"}`))
	req.ContentLength = -1
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, dto.ErrCodeRequestTooLarge, decodeError(t, w).Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
	req.ContentLength = -1
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJWTAuth(t *testing.T) {
	svc := newJWT()
	actorID, orgID := uuid.New(), uuid.New()
	valid, err := svc.Sign(actorID, orgID, time.Hour)
	require.NoError(t, err)

	build := func(required bool) *gin.Engine {
		r := gin.New()
		r.Use(JWTAuth(JWTMiddlewareConfig{Validator: svc, Required: required, SkipPaths: []string{"/health"}}))
		r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
		r.GET("/", func(c *gin.Context) {
			if claims, ok := GetClaims(c); ok {
				c.String(http.StatusOK, claims.Subject)
				return
			}
			c.String(http.StatusOK, "anonymous")
		})
		return r
	}

	tests := []struct {
		name     string
		required bool
		path     string
		header   string
		status   int
		code     string
		body     string
	}{
		{"valid token", true, "/", "Bearer " + valid, http.StatusOK, "", actorID.String()},
		{"optional without token", false, "/", "", http.StatusOK, "", "anonymous"},
		{"required without token", true, "/", "", http.StatusUnauthorized, dto.ErrCodeUnauthorized, ""},
		{"skipped path", true, "/health", "", http.StatusOK, "", ""},
		{"wrong scheme", false, "/", "Basic abc", http.StatusUnauthorized, dto.ErrCodeTokenInvalid, ""},
		{"garbage token", false, "/", "Bearer not-a-jwt", http.StatusUnauthorized, dto.ErrCodeTokenInvalid, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			build(tt.required).ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, decodeError(t, w).Code)
			}
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestJWTAuth_Expired(t *testing.T) {
	svc := newJWT()
	token, err := svc.Sign(uuid.New(), uuid.Nil, -time.Minute)
	require.NoError(t, err)

	r := gin.New()
	r.Use(JWTAuth(JWTMiddlewareConfig{Validator: svc}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, dto.ErrCodeTokenExpired, decodeError(t, w).Code)
}

type scopeResult struct {
	org    uuid.UUID
	hasOrg bool
	actor  shared.Actor
	ctxOrg string
	ctxAct string
}

func scopeRouter(svc *auth.JWTService, res *scopeResult) *gin.Engine {
	r := gin.New()
	r.Use(JWTAuth(JWTMiddlewareConfig{Validator: svc}), Scope())
	r.GET("/", func(c *gin.Context) {
		res.org, res.hasOrg = GetOrganizationID(c)
		res.actor = GetActor(c)
		res.ctxOrg = logger.OrganizationID(c.Request.Context())
		res.ctxAct = logger.ActorID(c.Request.Context())
		c.Status(http.StatusOK)
	})
	return r
}

func TestScope(t *testing.T) {
	svc := newJWT()
	actorID, orgID := uuid.New(), uuid.New()

	t.Run("token supplies actor and organization", func(t *testing.T) {
		token, err := svc.Sign(actorID, orgID, time.Hour)
		require.NoError(t, err)
		var res scopeResult
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		scopeRouter(svc, &res).ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, res.hasOrg)
		assert.Equal(t, orgID, res.org)
		assert.Equal(t, shared.NewUserActor(actorID), res.actor)
		assert.Equal(t, orgID.String(), res.ctxOrg)
		assert.Equal(t, actorID.String(), res.ctxAct)
	})

	t.Run("headers without token", func(t *testing.T) {
		var res scopeResult
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderOrganizationID, orgID.String())
		req.Header.Set(HeaderActorID, actorID.String())
		scopeRouter(svc, &res).ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, orgID, res.org)
		assert.Equal(t, actorID, res.actor.ID)
	})

	t.Run("missing actor passes through anonymous", func(t *testing.T) {
		var res scopeResult
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderOrganizationID, orgID.String())
		scopeRouter(svc, &res).ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, res.actor.IsAnonymous())
		assert.Empty(t, res.ctxAct)
	})

	t.Run("token subject wins over actor header", func(t *testing.T) {
		token, err := svc.Sign(actorID, uuid.Nil, time.Hour)
		require.NoError(t, err)
		var res scopeResult
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(HeaderActorID, uuid.NewString())
		scopeRouter(svc, &res).ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, actorID, res.actor.ID)
		assert.False(t, res.hasOrg)
	})

	t.Run("header disagrees with token organization", func(t *testing.T) {
		token, err := svc.Sign(actorID, orgID, time.Hour)
		require.NoError(t, err)
		var res scopeResult
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(HeaderOrganizationID, uuid.NewString())
		scopeRouter(svc, &res).ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, shared.CodeTenantIsolation, decodeError(t, w).Code)
	})

	t.Run("malformed organization header", func(t *testing.T) {
		var res scopeResult
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderOrganizationID, "acme")
		scopeRouter(svc, &res).ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRequireOrganization(t *testing.T) {
	r := gin.New()
	r.Use(Scope(), RequireOrganization())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeOrgRequired, decodeError(t, w).Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderOrganizationID, uuid.NewString())
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestValidationErrors(t *testing.T) {
	SetupValidator()
	type body struct {
		Name string `json:"name" binding:"required"`
	}
	r := gin.New()
	r.POST("/", func(c *gin.Context) {
		var b body
		if err := c.ShouldBindJSON(&b); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusBadRequest, w.Code)
	info := decodeError(t, w)
	assert.Equal(t, dto.ErrCodeValidation, info.Code)
	require.Len(t, info.Details, 1)
	assert.Equal(t, "name", info.Details[0].Field)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`)))
	assert.Equal(t, dto.ErrCodeBadRequest, decodeError(t, w).Code)
}

func TestTracingAndSpanAttributes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	orgID := uuid.New()

	r := gin.New()
	r.Use(RequestID(), Tracing(TracingConfig{ServiceName: "core-test", Enabled: true, TracerProvider: tp}), Scope(), SpanAttributes())
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/items/42", nil)
	req.Header.Set(HeaderOrganizationID, orgID.String())
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Name(), "/items/:id")
	found := false
	for _, kv := range spans[0].Attributes() {
		if string(kv.Key) == "core.organization_id" {
			found = true
			assert.Equal(t, orgID.String(), kv.Value.AsString())
		}
	}
	assert.True(t, found)
}

func TestTracing_Disabled(t *testing.T) {
	r := gin.New()
	r.Use(Tracing(TracingConfig{Enabled: false}), SpanAttributes())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
