package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/erp/platform/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// BodyLimit caps request bodies at maxBytes. A declared oversize body is
// refused before the handler runs; a chunked one fails when the handler reads
// past the cap. A non-positive maxBytes disables the cap.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.Body == http.NoBody {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			abortTooLarge(c, maxBytes)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// tooLarge reports whether err came from reading past the body cap
func tooLarge(err error) (int64, bool) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return mbe.Limit, true
	}
	return 0, false
}

func abortTooLarge(c *gin.Context, limit int64) {
	resp := dto.NewErrorResponse(dto.ErrCodeRequestTooLarge, fmt.Sprintf("Request body exceeds %d bytes", limit))
	resp.Error.RequestID = GetRequestID(c)
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, resp)
}
