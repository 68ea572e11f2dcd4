package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/feeledger/internal/authorization"
)

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		keyID := strings.TrimSpace(c.GetString(contextAPIKeyIDKey))
		if keyID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		role := c.GetString(contextAPIKeyRoleKey)
		if err := s.authzSvc.Authorize(c.Request.Context(), authorization.APIKeyActor(keyID), role, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
