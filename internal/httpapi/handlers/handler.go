package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/mygpt/internal/account"
	"github.com/suPer8Hu/mygpt/internal/auth"
	"github.com/suPer8Hu/mygpt/internal/catalog"
	"github.com/suPer8Hu/mygpt/internal/common"
	"github.com/suPer8Hu/mygpt/internal/conversation"
	"github.com/suPer8Hu/mygpt/internal/orchestrator"
	"github.com/suPer8Hu/mygpt/internal/turnjob"
)

type TurnRunner interface {
	HandleTurn(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnResult, error)
}

// Pinger reports the health of one dependency.
type Pinger func(ctx context.Context) error

type Handler struct {
	Accounts      *account.Service
	Tokens        *auth.TokenManager
	Turns         TurnRunner
	Conversations conversation.Store
	Catalog       *catalog.Catalog
	// Jobs is nil when async turns are not configured.
	Jobs   *turnjob.Service
	Checks map[string]Pinger
}

// writeError maps the shared error taxonomy to a status and business code.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrValidation):
		common.Fail(c, http.StatusBadRequest, 10002, err.Error())
	case errors.Is(err, common.ErrUnauthorized):
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
	case errors.Is(err, common.ErrForbidden):
		common.Fail(c, http.StatusForbidden, 40301, "forbidden")
	case errors.Is(err, common.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "not found")
	case errors.Is(err, common.ErrConflict):
		common.Fail(c, http.StatusConflict, 40901, err.Error())
	case errors.Is(err, context.Canceled):
		// client went away; nobody reads the body
		c.AbortWithStatus(499)
	case errors.Is(err, context.DeadlineExceeded):
		common.Fail(c, http.StatusGatewayTimeout, 50401, "request timed out")
	default:
		common.LoggerFromContext(c.Request.Context()).Error("request failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}
