package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestNotificationTokenRequiresSharedSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/notify", NotificationToken("s3cret"), func(c *gin.Context) { c.Status(http.StatusOK) })

	for token, want := range map[string]int{"": http.StatusUnauthorized, "wrong": http.StatusUnauthorized, "s3cret": http.StatusOK} {
		req := httptest.NewRequest(http.MethodPost, "/notify", nil)
		if token != "" {
			req.Header.Set(NotificationTokenHeader, token)
		}
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)
		assert.Equal(t, want, recorder.Code, "token %q", token)
	}
}

func TestNotificationTokenOpenWithoutSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/notify", NotificationToken(""), func(c *gin.Context) { c.Status(http.StatusOK) })

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/notify", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)
}
