package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/wavechat/wavechat-backend/internal/ws"
	"github.com/wavechat/wavechat-backend/pkg/jwt"
	pkglogger "github.com/wavechat/wavechat-backend/pkg/logger"
)

// WSHandler handles WebSocket connections
type WSHandler struct {
	hub            *ws.Hub
	engine         *ws.Engine
	jwtManager     *jwt.Manager
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler
func NewWSHandler(hub *ws.Hub, engine *ws.Engine, jwtManager *jwt.Manager, allowedOrigins string) *WSHandler {
	h := &WSHandler{
		hub:            hub,
		engine:         engine,
		jwtManager:     jwtManager,
		allowedOrigins: parseOrigins(allowedOrigins),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// parseOrigins parses comma-separated origins string
func parseOrigins(origins string) []string {
	if origins == "" {
		return nil
	}
	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// checkOrigin validates the request origin against allowed origins
func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // Same-origin requests don't have Origin header
	}

	// If no allowed origins configured, allow all (development mode)
	if len(h.allowedOrigins) == 0 {
		return true
	}

	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			return true
		}
	}

	return false
}

// bearerToken pulls the credential from the Authorization header or, since
// browser WebSocket clients cannot set headers, the token query parameter.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

// Connect handles GET /ws — authenticated WebSocket upgrade.
// The bearer credential is verified before the upgrade; a connection that
// never authenticates receives no protocol events and joins no room.
// @Summary Real-time chat WebSocket
// @Tags chat
// @Param token query string false "bearer token"
// @Router /ws [get]
func (h *WSHandler) Connect(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing credentials"})
		return
	}
	claims, err := h.jwtManager.VerifyToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := ws.NewClient(h.hub, h.engine, conn, claims.UserID, claims.Nickname)
	if previous := h.hub.Register(client); previous != nil {
		// Last writer wins: the old socket is closed, no offline broadcast
		previous.Close("session replaced")
		pkglogger.GetLogger().Info().Uint64("user_id", claims.UserID).Msg("session replaced")
	}

	go client.WritePump()
	h.engine.HandleConnect(&ws.Session{UserID: claims.UserID, Nickname: claims.Nickname})
	go client.ReadPump()
}
