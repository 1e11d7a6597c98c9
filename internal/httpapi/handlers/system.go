package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/mygpt/internal/catalog"
	"github.com/suPer8Hu/mygpt/internal/common"
)

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

// Health pings every registered dependency; any failure turns the response
// into a 503.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := gin.H{}
	healthy := true
	for _, name := range names {
		if err := h.Checks[name](ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}
	data := gin.H{"status": "ok", "checks": checks, "models": len(h.Catalog.List())}
	if !healthy {
		data["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": 50302, "message": "dependency unavailable", "data": data})
		return
	}
	common.OK(c, data)
}

func (h *Handler) Models(c *gin.Context) {
	categories := catalog.Categories()
	byCategory := make(map[catalog.Category][]string, len(categories))
	for _, p := range h.Catalog.List() {
		byCategory[p.Category] = append(byCategory[p.Category], p.ID)
	}
	common.OK(c, gin.H{
		"models":      h.Catalog.List(),
		"categories":  categories,
		"by_category": byCategory,
	})
}
