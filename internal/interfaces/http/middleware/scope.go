package middleware

import (
	"net/http"

	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/infrastructure/logger"
	"github.com/erp/platform/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Gin context keys set by Scope
const (
	OrganizationIDKey = "organization_id"
	ActorKey          = "actor"
)

// Scope resolves the organization and actor of a request.
//
// The organization comes from the X-Organization-ID header or the token's org_id claim;
// when both are present they must agree. The actor comes from the token subject, or from
// X-Actor-ID when no token was presented. A request without an actor is not rejected
// here: mutating operations refuse anonymous actors themselves.
func Scope() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, hasClaims := GetClaims(c)

		orgID, err := parseOptionalUUID(c.GetHeader(HeaderOrganizationID))
		if err != nil {
			abortScope(c, http.StatusBadRequest, dto.ErrCodeBadRequest, "X-Organization-ID must be a UUID")
			return
		}
		if hasClaims {
			claimOrg, err := claims.OrganizationUUID()
			if err != nil {
				abortScope(c, http.StatusUnauthorized, dto.ErrCodeTokenInvalid, "Invalid org_id claim")
				return
			}
			switch {
			case claimOrg == uuid.Nil:
			case orgID == uuid.Nil:
				orgID = claimOrg
			case orgID != claimOrg:
				abortScope(c, http.StatusForbidden, shared.CodeTenantIsolation, "X-Organization-ID does not match the token organization")
				return
			}
		}

		actor := shared.Actor{}
		if hasClaims {
			id, err := claims.ActorID()
			if err != nil {
				abortScope(c, http.StatusUnauthorized, dto.ErrCodeTokenInvalid, "Invalid sub claim")
				return
			}
			actor = shared.NewUserActor(id)
		} else {
			id, err := parseOptionalUUID(c.GetHeader(HeaderActorID))
			if err != nil {
				abortScope(c, http.StatusBadRequest, dto.ErrCodeBadRequest, "X-Actor-ID must be a UUID")
				return
			}
			if id != uuid.Nil {
				actor = shared.NewUserActor(id)
			}
		}

		ctx := c.Request.Context()
		if orgID != uuid.Nil {
			c.Set(OrganizationIDKey, orgID)
			ctx = logger.WithOrganizationID(ctx, orgID.String())
		}
		if !actor.IsAnonymous() {
			ctx = logger.WithActorID(ctx, actor.ID.String())
		}
		c.Set(ActorKey, actor)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireOrganization rejects requests that resolved no organization
func RequireOrganization() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetOrganizationID(c); !ok {
			abortScope(c, http.StatusBadRequest, dto.ErrCodeOrgRequired, "An organization is required: send X-Organization-ID or an org_id claim")
			return
		}
		c.Next()
	}
}

// GetOrganizationID returns the organization resolved by Scope
func GetOrganizationID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(OrganizationIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// GetActor returns the actor resolved by Scope, anonymous when none was given
func GetActor(c *gin.Context) shared.Actor {
	v, ok := c.Get(ActorKey)
	if !ok {
		return shared.Actor{}
	}
	actor, _ := v.(shared.Actor)
	return actor
}

func parseOptionalUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}

func abortScope(c *gin.Context, status int, code, message string) {
	resp := dto.NewErrorResponse(code, message)
	resp.Error.RequestID = GetRequestID(c)
	c.AbortWithStatusJSON(status, resp)
}
