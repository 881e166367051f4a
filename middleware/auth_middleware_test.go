package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"mediavault/models"
	"mediavault/services"
	"mediavault/utils"
)

const testSecret = "middleware-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func signedToken(t *testing.T, identity models.Identity) string {
	t.Helper()
	token, err := utils.GenerateJWTTokenWithSecret(identity, testSecret, "test", time.Hour)
	require.NoError(t, err)
	return token
}

func newAuthRouter() *gin.Engine {
	router := gin.New()
	router.GET("/me", AuthMiddleware(testSecret), func(c *gin.Context) {
		identity := CurrentIdentity(c)
		c.JSON(http.StatusOK, gin.H{"id": identity.ID.Hex(), "role": identity.Role})
	})
	router.GET("/admin", AuthMiddleware(testSecret), RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/unguarded", RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	router := newAuthRouter()
	user := models.Identity{ID: primitive.NewObjectID(), Role: models.RoleUser}
	token := signedToken(t, user)

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := serve(router, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), user.ID.Hex())
	})

	t.Run("query parameter", func(t *testing.T) {
		w := serve(router, httptest.NewRequest(http.MethodGet, "/me?access_token="+token, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		w := serve(router, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Basic "+token)
		w := serve(router, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		other, err := utils.GenerateJWTTokenWithSecret(user, "some-other-secret", "test", time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+other)
		w := serve(router, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequireRole(t *testing.T) {
	router := newAuthRouter()

	user := models.Identity{ID: primitive.NewObjectID(), Role: models.RoleUser}
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, user))
	assert.Equal(t, http.StatusForbidden, serve(router, req).Code)

	admin := models.Identity{ID: primitive.NewObjectID(), Role: models.RoleAdmin}
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, admin))
	assert.Equal(t, http.StatusOK, serve(router, req).Code)

	assert.Equal(t, http.StatusUnauthorized, serve(router, httptest.NewRequest(http.MethodGet, "/unguarded", nil)).Code)
}

func TestCurrentIdentity_Anonymous(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.True(t, CurrentIdentity(c).IsAnonymous())
}

func TestInternalTokenMiddleware(t *testing.T) {
	handler := func(c *gin.Context) { c.Status(http.StatusNoContent) }

	closed := gin.New()
	closed.POST("/notify", InternalTokenMiddleware(""), handler)
	req := httptest.NewRequest(http.MethodPost, "/notify", nil)
	req.Header.Set(services.InternalTokenHeader, "anything")
	assert.Equal(t, http.StatusForbidden, serve(closed, req).Code)

	open := gin.New()
	open.POST("/notify", InternalTokenMiddleware("s3cret"), handler)

	req = httptest.NewRequest(http.MethodPost, "/notify", nil)
	req.Header.Set(services.InternalTokenHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(open, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/notify", nil)
	req.Header.Set(services.InternalTokenHeader, "s3cret")
	assert.Equal(t, http.StatusNoContent, serve(open, req).Code)
}

func TestCORSMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(CORSMiddleware([]string{"https://app.example"}))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://app.example")
	w := serve(router, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = serve(router, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	wildcard := gin.New()
	wildcard.Use(CORSMiddleware(nil))
	wildcard.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://any.example")
	assert.Equal(t, "*", serve(wildcard, req).Header().Get("Access-Control-Allow-Origin"))
}
