package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/erp/platform/internal/infrastructure/auth"
	"github.com/erp/platform/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// JWTClaimsKey is the gin context key holding validated claims
const JWTClaimsKey = "jwt_claims"

// TokenValidator validates bearer tokens
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// JWTMiddlewareConfig configures JWT authentication
type JWTMiddlewareConfig struct {
	Validator TokenValidator
	// Required rejects requests without a bearer token; otherwise they pass through unauthenticated
	Required  bool
	SkipPaths []string
}

// JWTAuth validates the bearer token when present and stores its claims.
// A presented token that fails validation is always rejected.
func JWTAuth(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.FullPath()]; ok {
			c.Next()
			return
		}

		token, present := bearerToken(c.GetHeader("Authorization"))
		if !present {
			if cfg.Required {
				abortUnauthorized(c, dto.ErrCodeUnauthorized, "Authorization header is required")
				return
			}
			c.Next()
			return
		}
		if token == "" {
			abortUnauthorized(c, dto.ErrCodeTokenInvalid, "Authorization header must be a bearer token")
			return
		}

		claims, err := cfg.Validator.Validate(token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				abortUnauthorized(c, dto.ErrCodeTokenExpired, "Token has expired")
				return
			}
			abortUnauthorized(c, dto.ErrCodeTokenInvalid, "Invalid token")
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Next()
	}
}

// GetClaims returns the validated claims, if any
func GetClaims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(JWTClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

// bearerToken extracts the token; present is false when no Authorization header was sent
func bearerToken(header string) (token string, present bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	scheme, rest, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", true
	}
	return strings.TrimSpace(rest), true
}

func abortUnauthorized(c *gin.Context, code, message string) {
	resp := dto.NewErrorResponse(code, message)
	resp.Error.RequestID = GetRequestID(c)
	c.AbortWithStatusJSON(http.StatusUnauthorized, resp)
}
