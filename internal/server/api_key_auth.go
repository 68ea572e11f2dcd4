package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/feeledger/internal/observability/context"
)

const (
	contextAPIKeyIDKey   = "api_key_id"
	contextAPIKeyRoleKey = "api_key_role"
)

// APIKeyRequired authenticates requests using a bearer API key. The key's
// role is carried on the gin context for authorize.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		key, err := s.apiKeySvc.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), obscontext.ActorTypeAPIKey, key.KeyID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextAPIKeyIDKey, key.KeyID)
		c.Set(contextAPIKeyRoleKey, key.Role)
		c.Next()
	}
}
