package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rongwang/intentmarket/internal/api"
	"github.com/rongwang/intentmarket/internal/models"
	"github.com/rongwang/intentmarket/internal/repository"
	"github.com/rongwang/intentmarket/internal/service"
	"github.com/rongwang/intentmarket/internal/utils"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// TestPassword is the password of every user created by CreateTestUser
const TestPassword = "testpassword"

const testJWTSecret = "test-secret-key"

// TestContext holds all dependencies for tests
type TestContext struct {
	Router      *gin.Engine
	Repository  repository.Repository
	Service     service.Service
	JWTSecret   []byte
	ConsumerID  string
	ConsumerJWT string
	ProducerID  string
	ProducerJWT string
}

// SetupTestContext wires the full HTTP stack over an in-memory store and
// creates one consumer and one producer
func SetupTestContext(t *testing.T) *TestContext {
	t.Helper()

	repo := repository.NewMemoryRepository()
	logger := utils.NewDiscardLogger()
	svc := service.NewDefaultService(repo, testJWTSecret, service.WithLogger(logger))

	// Set up Gin router the same way the server does
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(api.JWTSecretMiddleware(testJWTSecret))
	api.NewHandler(svc, logger).SetupRoutes(router)

	tc := &TestContext{
		Router:     router,
		Repository: repo,
		Service:    svc,
		JWTSecret:  []byte(testJWTSecret),
	}
	tc.ConsumerID, tc.ConsumerJWT = tc.CreateTestUser(t, "testconsumer", models.RoleConsumer)
	tc.ProducerID, tc.ProducerJWT = tc.CreateTestUser(t, "testproducer", models.RoleProducer)
	return tc
}

// CreateTestUser stores a user with TestPassword and returns its id and a token
func (tc *TestContext) CreateTestUser(t *testing.T, username string, role models.Role) (string, string) {
	t.Helper()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		Username: username,
		Name:     "Test " + username,
		Password: string(hashedPassword),
		Role:     role,
	}
	require.NoError(t, tc.Repository.CreateUser(context.Background(), user), "Failed to create test user")

	return user.ID, tc.Token(t, user.ID, role, time.Hour)
}

// Token signs a token for userID valid for ttl. A negative ttl yields an expired token.
func (tc *TestContext) Token(t *testing.T, userID string, role models.Role, ttl time.Duration) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": string(role),
		"exp":  time.Now().Add(ttl).Unix(),
		"iat":  time.Now().Unix(),
	})
	tokenString, err := token.SignedString(tc.JWTSecret)
	require.NoError(t, err, "Failed to generate JWT token")
	return tokenString
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// DecodeJSON unmarshals a response body into v
func DecodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), "body: %s", w.Body.String())
}

// AuthHeaders returns headers with Authorization token
func AuthHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", token),
	}
}
