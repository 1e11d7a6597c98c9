package handlers

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/mygpt/internal/common"
	"github.com/suPer8Hu/mygpt/internal/httpapi/middleware"
	"github.com/suPer8Hu/mygpt/internal/orchestrator"
	"github.com/suPer8Hu/mygpt/internal/turnjob"
)

const maxMessageRunes = 16000

type chatReq struct {
	Message         string `json:"message"`
	ConversationID  string `json:"conversation_id"`
	ModelPreference string `json:"model_preference"`
}

func bindChat(c *gin.Context) (orchestrator.TurnRequest, bool) {
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return orchestrator.TurnRequest{}, false
	}
	if strings.TrimSpace(req.Message) == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "message required")
		return orchestrator.TurnRequest{}, false
	}
	if utf8.RuneCountInString(req.Message) > maxMessageRunes {
		common.Fail(c, http.StatusBadRequest, 10003, "message too long")
		return orchestrator.TurnRequest{}, false
	}
	return orchestrator.TurnRequest{
		Message:         req.Message,
		ConversationID:  strings.TrimSpace(req.ConversationID),
		ModelPreference: strings.TrimSpace(req.ModelPreference),
		RequesterID:     middleware.RequesterID(c),
	}, true
}

// Chat runs one turn synchronously. Total model failure still answers 200
// with degraded=true.
func (h *Handler) Chat(c *gin.Context) {
	req, ok := bindChat(c)
	if !ok {
		return
	}
	res, err := h.Turns.HandleTurn(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, gin.H{
		"conversation_id":        res.ConversationID,
		"conversation_id_is_new": res.IsNew,
		"title":                  res.Title,
		"response":               res.Response,
		"model_used":             res.ModelUsed,
		"category":               res.Category,
		"degraded":               res.Degraded,
	})
}

func (h *Handler) ChatAsync(c *gin.Context) {
	if h.Jobs == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async chat not enabled")
		return
	}
	req, ok := bindChat(c)
	if !ok {
		return
	}
	j, created, err := h.Jobs.Submit(c.Request.Context(), req, c.GetHeader("Idempotency-Key"))
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"code":    0,
		"message": "ok",
		"data": gin.H{
			"job_id":          j.ID,
			"conversation_id": j.ConversationID,
			"status":          j.Status,
		},
	})
}

func (h *Handler) GetChatJob(c *gin.Context) {
	if h.Jobs == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async chat not enabled")
		return
	}
	j, err := h.Jobs.Get(c.Request.Context(), c.Param("job_id"), middleware.RequesterID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, gin.H{"job": jobView(j)})
}

func jobView(j *turnjob.Job) gin.H {
	return gin.H{
		"id":              j.ID,
		"conversation_id": j.ConversationID,
		"status":          j.Status,
		"response":        j.Response,
		"model_used":      j.ModelUsed,
		"degraded":        j.Degraded,
		"error":           j.Error,
		"created_at":      j.CreatedAt,
		"updated_at":      j.UpdatedAt,
	}
}
