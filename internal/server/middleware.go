package server

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	contextStudentIDKey  = "student_id"
)

// StudentContext exposes the student a request acts on to the request
// logger.
func StudentContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.Param("id")); id != "" {
			c.Set(contextStudentIDKey, id)
		}
		c.Next()
	}
}
