package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	usecase "rest-user-service/internal/usecase/user"
	pkgerrors "rest-user-service/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// MockUserUsecase is a mock implementation of user.Usecase
type MockUserUsecase struct {
	mock.Mock
}

func (m *MockUserUsecase) CreateUser(ctx context.Context, req usecase.CreateUserRequest) (*usecase.CreateUserResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.CreateUserResponse), args.Error(1)
}

func (m *MockUserUsecase) GetUser(ctx context.Context, req usecase.GetUserRequest) (*usecase.GetUserResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.GetUserResponse), args.Error(1)
}

func (m *MockUserUsecase) DeleteUser(ctx context.Context, req usecase.DeleteUserRequest) (*usecase.DeleteUserResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.DeleteUserResponse), args.Error(1)
}

func (m *MockUserUsecase) ListUsers(ctx context.Context) (*usecase.ListUsersResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.ListUsersResponse), args.Error(1)
}

func setupRouter(t *testing.T) (*gin.Engine, *MockUserUsecase) {
	gin.SetMode(gin.TestMode)

	uc := new(MockUserUsecase)
	h := NewUserHandler(uc, zaptest.NewLogger(t))

	router := gin.New()
	v1 := router.Group("/v1")
	users := v1.Group("/users")
	users.POST("", h.CreateUser)
	users.GET("", h.ListUsers)
	users.GET("/:id", h.GetUser)
	users.DELETE("/:id", h.DeleteUser)

	return router, uc
}

func TestCreateUser_Created(t *testing.T) {
	router, uc := setupRouter(t)

	uc.On("CreateUser", mock.Anything, usecase.CreateUserRequest{
		Name:  "John Doe",
		Email: "john@example.com",
	}).Return(&usecase.CreateUserResponse{
		ID:    1,
		Name:  "John Doe",
		Email: "john@example.com",
	}, nil)

	body, _ := json.Marshal(map[string]string{
		"name":  "John Doe",
		"email": "john@example.com",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/users", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.ID)
	assert.Equal(t, "John Doe", resp.Name)
	assert.Equal(t, "john@example.com", resp.Email)
}

func TestCreateUser_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "malformed json", body: "{not-json"},
		{name: "missing email", body: `{"name":"John Doe"}`},
		{name: "invalid email", body: `{"name":"John Doe","email":"nope"}`},
		{name: "name too short", body: `{"name":"Jo","email":"john@example.com"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, uc := setupRouter(t)

			req := httptest.NewRequest(http.MethodPost, "/v1/users", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			uc.AssertNotCalled(t, "CreateUser")
		})
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	router, uc := setupRouter(t)

	uc.On("CreateUser", mock.Anything, mock.Anything).
		Return(nil, pkgerrors.NewAlreadyExistsError("user", "email already exists"))

	body := `{"name":"John Doe","email":"john@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/users", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "already_exists", resp.Error)
}

func TestCreateUser_InternalErrorNotLeaked(t *testing.T) {
	router, uc := setupRouter(t)

	uc.On("CreateUser", mock.Anything, mock.Anything).
		Return(nil, pkgerrors.NewInternalError("db exploded", errors.New("connection refused")))

	body := `{"name":"John Doe","email":"john@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/users", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "internal_error", resp.Error)
	assert.NotContains(t, resp.Message, "connection refused")
}

func TestGetUser_OK(t *testing.T) {
	router, uc := setupRouter(t)

	uc.On("GetUser", mock.Anything, usecase.GetUserRequest{ID: 1}).Return(&usecase.GetUserResponse{
		ID:    1,
		Name:  "John Doe",
		Email: "john@example.com",
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/users/1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.ID)
}

func TestGetUser_NotFound(t *testing.T) {
	router, uc := setupRouter(t)

	uc.On("GetUser", mock.Anything, usecase.GetUserRequest{ID: 99}).
		Return(nil, pkgerrors.NewNotFoundError("user", "user not found: id=99"))

	req := httptest.NewRequest(http.MethodGet, "/v1/users/99", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp.Error)
}

func TestGetUser_NonNumericID(t *testing.T) {
	router, uc := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/users/abc", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	uc.AssertNotCalled(t, "GetUser")
}

func TestDeleteUser_OK(t *testing.T) {
	router, uc := setupRouter(t)

	uc.On("DeleteUser", mock.Anything, usecase.DeleteUserRequest{ID: 1}).
		Return(&usecase.DeleteUserResponse{ID: 1}, nil)

	req := httptest.NewRequest(http.MethodDelete, "/v1/users/1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeleteUser_NotFound(t *testing.T) {
	router, uc := setupRouter(t)

	uc.On("DeleteUser", mock.Anything, usecase.DeleteUserRequest{ID: 99}).
		Return(nil, pkgerrors.NewNotFoundError("user", "user not found: id=99"))

	req := httptest.NewRequest(http.MethodDelete, "/v1/users/99", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListUsers_OK(t *testing.T) {
	router, uc := setupRouter(t)

	uc.On("ListUsers", mock.Anything).Return(&usecase.ListUsersResponse{
		Users: []usecase.User{
			{ID: 1, Name: "John Doe", Email: "john@example.com"},
			{ID: 2, Name: "Jane Smith", Email: "jane@example.com"},
		},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp ListUsersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Users, 2)
	assert.Equal(t, "jane@example.com", resp.Users[1].Email)
}

func TestListUsers_Error(t *testing.T) {
	router, uc := setupRouter(t)

	uc.On("ListUsers", mock.Anything).Return(nil, errors.New("db down"))

	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
