package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/mygpt/internal/account"
	"github.com/suPer8Hu/mygpt/internal/common"
	"github.com/suPer8Hu/mygpt/internal/httpapi/middleware"
)

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateMeReq struct {
	Name string `json:"name"`
}

// writeAccountError treats a token whose user no longer exists (e.g. the
// in-memory account store was reset) as an invalid token.
func writeAccountError(c *gin.Context, err error) {
	if errors.Is(err, common.ErrNotFound) {
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid or expired token")
		return
	}
	writeError(c, err)
}

func (h *Handler) issue(c *gin.Context, u *account.User) {
	token, err := h.Tokens.Issue(u.ID)
	if err != nil {
		common.LoggerFromContext(c.Request.Context()).Error("sign token", "err", err, "user_id", u.ID)
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}
	common.OK(c, gin.H{"token": token, "user": u})
}

func (h *Handler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Email == "" || req.Password == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "email and password required")
		return
	}
	u, err := h.Accounts.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	h.issue(c, u)
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	u, err := h.Accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	h.issue(c, u)
}

func (h *Handler) Me(c *gin.Context) {
	uid, ok := middleware.UserIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	u, err := h.Accounts.Get(c.Request.Context(), uid)
	if err != nil {
		writeAccountError(c, err)
		return
	}
	common.OK(c, u)
}

func (h *Handler) UpdateMe(c *gin.Context) {
	uid, ok := middleware.UserIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req updateMeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	u, err := h.Accounts.UpdateName(c.Request.Context(), uid, req.Name)
	if err != nil {
		writeAccountError(c, err)
		return
	}
	common.OK(c, u)
}

// Logout revokes the presented token for the rest of its lifetime.
func (h *Handler) Logout(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if err := h.Tokens.Revoke(c.Request.Context(), claims); err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, gin.H{"logged_out": true})
}
