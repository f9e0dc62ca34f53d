package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wavechat/wavechat-backend/internal/common"
	"github.com/wavechat/wavechat-backend/internal/service"
)

// ChatHandler serves chat listings over REST
type ChatHandler struct {
	svc *service.ChatService
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(svc *service.ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// ListUserChats handles GET /api/chats/:userId
// @Summary A user's chats enriched with member lists
// @Tags chats
// @Produce json
// @Security BearerAuth
// @Param userId path int true "user id"
// @Success 200 {object} common.APIResponse
// @Router /api/chats/{userId} [get]
func (h *ChatHandler) ListUserChats(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid user id", err)
		return
	}

	chats, err := h.svc.ListChatsByUser(userID)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to list chats", err)
		return
	}

	enriched := make([]*service.ChatResponse, 0, len(chats))
	for _, chat := range chats {
		enriched = append(enriched, h.svc.EnrichChat(chat))
	}
	common.SuccessResponse(c, enriched, nil)
}
