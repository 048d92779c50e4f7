package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mobilsoft/edire/internal/interfaces/http/dto"
)

// BodyLimit rejects bodies larger than maxBytes. A declared Content-Length is
// checked before the handler runs; a chunked body fails on read with
// *http.MaxBytesError, which HandleValidationError reports the same way.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.Body == http.NoBody {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			abortTooLarge(c)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func abortTooLarge(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeTooLarge,
		"Request body exceeds maximum allowed size",
		RequestID(c),
	))
}
