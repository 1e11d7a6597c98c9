package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/mygpt/internal/common"
	"github.com/suPer8Hu/mygpt/internal/httpapi/middleware"
)

func (h *Handler) ListConversations(c *gin.Context) {
	uid, ok := middleware.UserIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	list, err := h.Conversations.ListForOwner(c.Request.Context(), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, gin.H{"conversations": list})
}

func (h *Handler) GetConversation(c *gin.Context) {
	uid, ok := middleware.UserIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	conv, err := h.Conversations.Get(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, conv)
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	uid, ok := middleware.UserIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if err := h.Conversations.Delete(c.Request.Context(), c.Param("id"), uid); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
