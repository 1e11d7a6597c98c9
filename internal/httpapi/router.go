package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/mygpt/internal/common"
	"github.com/suPer8Hu/mygpt/internal/httpapi/handlers"
	"github.com/suPer8Hu/mygpt/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler, limiter middleware.Limiter) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)
	r.GET("/health", h.Health)
	r.GET("/models", h.Models)

	// auth
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(h.Tokens))
	authGroup.GET("/auth/me", h.Me)
	authGroup.PATCH("/auth/me", h.UpdateMe)
	authGroup.POST("/auth/logout", h.Logout)

	// conversations (JWT required)
	authGroup.GET("/conversations", h.ListConversations)
	authGroup.GET("/conversations/:id", h.GetConversation)
	authGroup.DELETE("/conversations/:id", h.DeleteConversation)

	// chat (guests allowed)
	chatGroup := r.Group("/chat")
	chatGroup.Use(middleware.OptionalAuth(h.Tokens))
	chatGroup.GET("/jobs/:job_id", h.GetChatJob)
	if limiter != nil {
		chatGroup.Use(middleware.RateLimit(limiter))
	}
	chatGroup.POST("", h.Chat)
	chatGroup.POST("/async", h.ChatAsync)
	return r
}
