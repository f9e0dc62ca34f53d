package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavechat/wavechat-backend/internal/handler"
	"github.com/wavechat/wavechat-backend/internal/service"
	"github.com/wavechat/wavechat-backend/internal/ws"
	"github.com/wavechat/wavechat-backend/pkg/jwt"
)

const testSecret = "routes-secret"

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	jwtManager := jwt.NewManager(testSecret)
	svc := service.NewChatService(nil, nil, nil, nil)
	hub := ws.NewHub(nil)
	Setup(router,
		jwtManager,
		handler.NewUserHandler(svc),
		handler.NewChatHandler(svc),
		handler.NewWSHandler(hub, nil, jwtManager, ""),
	)
	return router
}

func mintToken(t *testing.T) string {
	t.Helper()
	claims := jwt.Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: 1,
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestAPIRoutesRequireBearerToken(t *testing.T) {
	router := testRouter()

	for _, path := range []string{"/api/users", "/api/chats/1"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestAPIRoutesPassAuthenticatedRequests(t *testing.T) {
	router := testRouter()

	// Bad path param proves the request cleared the auth middleware and
	// reached the handler's own validation.
	req := httptest.NewRequest(http.MethodGet, "/api/chats/not-a-number", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWSRouteAuthenticatesItself(t *testing.T) {
	router := testRouter()

	// No bearer middleware on /ws; the handshake handler rejects on its own
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing credentials")
}
