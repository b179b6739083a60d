package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admission-api/internal/models"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
	"github.com/noah-isme/sma-admission-api/pkg/identity"
	"github.com/noah-isme/sma-admission-api/pkg/response"
)

// ContextIdentityKey is the gin context key storing the verified identity.
const ContextIdentityKey = "currentIdentity"

// Identity protects routes by requiring a verified bearer token.
func Identity(verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing or malformed authorization header"))
			return
		}
		id, err := verifier.Verify(token)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Set(ContextIdentityKey, id)
		c.Next()
	}
}

// OptionalIdentity attaches the identity when a valid token is present but does not block.
func OptionalIdentity(verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c.GetHeader("Authorization")); ok {
			if id, err := verifier.Verify(token); err == nil {
				c.Set(ContextIdentityKey, id)
			}
		}
		c.Next()
	}
}

// IdentityFrom returns the identity stored by Identity, or nil.
func IdentityFrom(c *gin.Context) *models.Identity {
	value, exists := c.Get(ContextIdentityKey)
	if !exists {
		return nil
	}
	id, _ := value.(*models.Identity)
	return id
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
