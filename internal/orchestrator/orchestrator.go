// Package orchestrator runs one chat turn: resolve the conversation, route,
// invoke candidates with fallback and record both sides of the exchange.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/mygpt/internal/ai"
	"github.com/suPer8Hu/mygpt/internal/catalog"
	"github.com/suPer8Hu/mygpt/internal/common"
	"github.com/suPer8Hu/mygpt/internal/conversation"
	"github.com/suPer8Hu/mygpt/internal/gateway"
	"github.com/suPer8Hu/mygpt/internal/router"
)

// ExhaustedNotice is recorded as the assistant reply when every candidate
// model failed.
const ExhaustedNotice = "Sorry, none of the available models could answer right now. Please try again in a moment."

type TurnState string

const (
	StateReceived  TurnState = "received"
	StateRouted    TurnState = "routed"
	StateInvoking  TurnState = "invoking"
	StateRetrying  TurnState = "retrying"
	StateInvoked   TurnState = "invoked"
	StateExhausted TurnState = "exhausted"
)

type TurnRequest struct {
	Message         string
	ConversationID  string
	ModelPreference string
	// RequesterID 0 is a guest.
	RequesterID uint64
}

// Attempt records one gateway call.
type Attempt struct {
	ModelID string            `json:"model_id"`
	Error   gateway.ErrorKind `json:"error,omitempty"`
	Latency time.Duration     `json:"latency"`
}

type TurnResult struct {
	ConversationID string
	IsNew          bool
	Title          string
	Response       string
	ModelUsed      string
	Category       catalog.Category
	Rule           string
	State          TurnState
	Degraded       bool
	Attempts       []Attempt
}

type Router interface {
	Decide(message, preference string) router.Decision
}

type Invoker interface {
	Invoke(ctx context.Context, modelID string, history []ai.Message, newUserMessage string, timeout time.Duration) gateway.Result
}

type Orchestrator struct {
	store   conversation.Store
	router  Router
	gateway Invoker
	timeout time.Duration
	locks   *keyedLock
}

func New(store conversation.Store, r Router, gw Invoker, timeout time.Duration) *Orchestrator {
	return &Orchestrator{
		store:   store,
		router:  r,
		gateway: gw,
		timeout: timeout,
		locks:   newKeyedLock(),
	}
}

// HandleTurn runs one turn. A turn on a given conversation never overlaps
// another turn on the same conversation in this process. If ctx ends before
// a model answers, ctx.Err() is returned and nothing is appended.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (_ *TurnResult, err error) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return nil, fmt.Errorf("%w: message must not be empty", common.ErrValidation)
	}
	res := &TurnResult{State: StateReceived, ConversationID: req.ConversationID}
	log := common.LoggerFromContext(ctx)

	if res.ConversationID == "" {
		var owner *uint64
		if req.RequesterID != 0 {
			id := req.RequesterID
			owner = &id
		}
		conv, err := o.store.Create(ctx, owner)
		if err != nil {
			return nil, err
		}
		res.ConversationID = conv.ID
		res.IsNew = true
		// a conversation exists only once its first turn is recorded
		defer func() {
			if err != nil {
				o.discard(ctx, res.ConversationID, req.RequesterID)
			}
		}()
	} else if _, err := o.store.Get(ctx, res.ConversationID, req.RequesterID); err != nil {
		// fail fast on access errors before queueing behind the lock
		return nil, err
	}

	unlock, err := o.locks.Lock(ctx, res.ConversationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	conv, err := o.store.Get(ctx, res.ConversationID, req.RequesterID)
	if err != nil {
		return nil, err
	}
	history := toAIMessages(conv.Messages)

	decision := o.router.Decide(msg, req.ModelPreference)
	res.State = StateRouted
	res.Category = decision.Category
	res.Rule = decision.Rule
	log.Info("turn routed",
		"conversation_id", res.ConversationID,
		"category", decision.Category,
		"rule", decision.Rule,
		"explicit", decision.Explicit,
		"chain", decision.Chain,
	)

	for _, modelID := range decision.Chain {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.State = StateInvoking
		out := o.gateway.Invoke(ctx, modelID, history, msg, o.timeout)
		attempt := Attempt{ModelID: modelID, Latency: out.Latency}
		if out.OK() {
			res.Attempts = append(res.Attempts, attempt)
			res.State = StateInvoked
			res.Response = out.Text
			res.ModelUsed = modelID
			break
		}
		attempt.Error = out.Err.Kind
		res.Attempts = append(res.Attempts, attempt)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log.Warn("model attempt failed",
			"conversation_id", res.ConversationID,
			"model", modelID,
			"kind", out.Err.Kind,
			"status", out.Err.StatusCode,
			"err", out.Err.Cause,
		)
		res.State = StateRetrying
	}

	if res.State != StateInvoked {
		res.State = StateExhausted
		res.Degraded = true
		res.Response = ExhaustedNotice
	}

	// the answer exists now; a late disconnect must not drop it
	appendCtx := context.WithoutCancel(ctx)
	err = o.store.Append(appendCtx, res.ConversationID, req.RequesterID,
		conversation.Message{Role: conversation.RoleUser, Content: msg},
		conversation.Message{Role: conversation.RoleAssistant, Content: res.Response, ModelUsed: res.ModelUsed},
	)
	if err != nil {
		return nil, fmt.Errorf("record turn: %w", err)
	}

	res.Title = conv.Title
	if res.Title == "" {
		res.Title = conversation.DeriveTitle(msg)
	}
	log.Info("turn done",
		"conversation_id", res.ConversationID,
		"state", res.State,
		"model_used", res.ModelUsed,
		"attempts", len(res.Attempts),
	)
	return res, nil
}

func (o *Orchestrator) discard(ctx context.Context, id string, requesterID uint64) {
	if err := o.store.Delete(context.WithoutCancel(ctx), id, requesterID); err != nil {
		common.LoggerFromContext(ctx).Warn("drop unrecorded conversation", "conversation_id", id, "err", err)
	}
}

func toAIMessages(msgs []conversation.Message) []ai.Message {
	out := make([]ai.Message, 0, len(msgs))
	for _, m := range msgs {
		role := ai.RoleUser
		if m.Role == conversation.RoleAssistant {
			role = ai.RoleAssistant
		}
		out = append(out, ai.Message{Role: role, Content: m.Content})
	}
	return out
}
