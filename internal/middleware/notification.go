package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
	"github.com/noah-isme/sma-admission-api/pkg/response"
)

// NotificationTokenHeader carries the shared secret on gateway callbacks.
const NotificationTokenHeader = "X-Notification-Token"

// NotificationToken guards callback endpoints with a shared secret. An empty
// secret leaves the route open.
func NotificationToken(secret string) gin.HandlerFunc {
	expected := []byte(secret)
	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.Next()
			return
		}
		got := []byte(c.GetHeader(NotificationTokenHeader))
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid notification token"))
			return
		}
		c.Next()
	}
}
