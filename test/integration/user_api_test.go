package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"rest-user-service/internal/adapter/cache"
	"rest-user-service/internal/adapter/db/postgres"
	ginhandler "rest-user-service/internal/adapter/gin/handler"
	"rest-user-service/internal/adapter/gin/middleware"
	ginrouter "rest-user-service/internal/adapter/gin/router"
	"rest-user-service/internal/adapter/repository/cached"
	"rest-user-service/internal/usecase/user"
)

// newTestServer wires the full stack: sqlite-backed repository, miniredis
// cache, usecase, handler, and the production router with its middleware.
func newTestServer(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, postgres.Migrate(db))

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	userCache := cache.NewRedisUserCache(client, 5*time.Minute, log)
	repo := cached.NewCachedUserRepository(postgres.NewUserRepoPG(db, log), userCache, log)
	uc := user.New(repo, log)
	handler := ginhandler.NewUserHandler(uc, log)

	rateLimiter := middleware.NewRateLimiter(client, middleware.RateLimiterConfig{
		RequestsPerSecond: 100,
		BurstCapacity:     200,
		Enabled:           true,
	}, log)

	return ginrouter.SetupRouter(handler, rateLimiter, log)
}

func createUser(t *testing.T, router *gin.Engine, name, email string) ginhandler.UserResponse {
	body, _ := json.Marshal(map[string]string{"name": name, "email": email})
	req := httptest.NewRequest(http.MethodPost, "/v1/users", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	var resp ginhandler.UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAPI_Health(t *testing.T) {
	router := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestAPI_CreateUser_ReturnsPositiveID(t *testing.T) {
	router := newTestServer(t)

	resp := createUser(t, router, "John Doe", "john@example.com")
	assert.Positive(t, resp.ID)
	assert.Equal(t, "John Doe", resp.Name)
	assert.Equal(t, "john@example.com", resp.Email)
}

func TestAPI_CreateUser_DuplicateEmailConflict(t *testing.T) {
	router := newTestServer(t)

	createUser(t, router, "John Doe", "john@example.com")

	body := `{"name":"Johnny Doe","email":"john@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/users", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already_exists")
}

func TestAPI_ListUsers_ReturnsAllCreated(t *testing.T) {
	router := newTestServer(t)

	const n = 4
	for i := 0; i < n; i++ {
		createUser(t, router, fmt.Sprintf("User %d", i), fmt.Sprintf("user%d@example.com", i))
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp ginhandler.ListUsersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Users, n)

	for i := 1; i < len(resp.Users); i++ {
		assert.Greater(t, resp.Users[i].ID, resp.Users[i-1].ID)
	}
}

func TestAPI_GetUser_RoundTrip(t *testing.T) {
	router := newTestServer(t)

	created := createUser(t, router, "John Doe", "john@example.com")

	// First read fills the cache, second is served from it; both must agree
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/users/%d", created.ID), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp ginhandler.UserResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, created, resp)
	}
}

func TestAPI_GetUser_NotFound(t *testing.T) {
	router := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/users/12345", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_DeleteUser_RemovesRecord(t *testing.T) {
	router := newTestServer(t)

	created := createUser(t, router, "John Doe", "john@example.com")

	// Warm the cache so the delete has something to invalidate
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/users/%d", created.ID), nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/v1/users/%d", created.ID), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Subsequent reads must miss both cache and DB
	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/users/%d", created.ID), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_DeleteUser_NonexistentID(t *testing.T) {
	router := newTestServer(t)

	req := httptest.NewRequest(http.MethodDelete, "/v1/users/999", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not_found")
}

func TestAPI_RequestIDHeader(t *testing.T) {
	router := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	// An inbound ID is echoed back unchanged
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "test-request-id")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "test-request-id", w.Header().Get("X-Request-ID"))
}
