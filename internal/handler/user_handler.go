package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wavechat/wavechat-backend/internal/common"
	"github.com/wavechat/wavechat-backend/internal/domain"
	"github.com/wavechat/wavechat-backend/internal/service"
	"github.com/wavechat/wavechat-backend/pkg/cache"
)

// UserHandler serves the user directory
type UserHandler struct {
	svc   *service.ChatService
	cache cache.Service // optional
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(svc *service.ChatService) *UserHandler {
	return &UserHandler{svc: svc}
}

// SetCache enables Redis caching of the directory
func (h *UserHandler) SetCache(c cache.Service) { h.cache = c }

// ListUsers handles GET /api/users
// @Summary All users with presence flags
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} common.APIResponse
// @Router /api/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	ctx := context.Background()
	cacheKey := cache.PrefixUsers + "all"

	if h.cache != nil {
		var cached []*domain.User
		if err := h.cache.Get(ctx, cacheKey, &cached); err == nil {
			c.Header("X-Cache", "HIT")
			common.SuccessResponse(c, cached, nil)
			return
		}
	}

	users, err := h.svc.ListUsers()
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to list users", err)
		return
	}

	if h.cache != nil {
		_ = h.cache.Set(ctx, cacheKey, users, cache.TTLUsers)
	}
	common.SuccessResponse(c, users, nil)
}
