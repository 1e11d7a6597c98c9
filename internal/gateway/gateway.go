// Package gateway invokes one hosted model for one turn and normalizes every
// outcome into a Result.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/suPer8Hu/mygpt/internal/ai"
	"github.com/suPer8Hu/mygpt/internal/catalog"
	"github.com/suPer8Hu/mygpt/internal/common"
)

const (
	defaultWindow  = 10
	defaultTimeout = 30 * time.Second
)

type Gateway struct {
	catalog      *catalog.Catalog
	registry     *ai.Registry
	window       int
	systemPrompt string
}

// New returns a gateway that sends at most window messages (history plus the
// new user message) per call.
func New(cat *catalog.Catalog, registry *ai.Registry, window int) *Gateway {
	if window <= 0 || window > 100 {
		window = defaultWindow
	}
	return &Gateway{catalog: cat, registry: registry, window: window}
}

// WithSystemPrompt prepends a system message to every call.
func (g *Gateway) WithSystemPrompt(prompt string) *Gateway {
	g.systemPrompt = prompt
	return g
}

// Invoke calls modelID with the trailing context window. It never panics and
// never returns a bare error: every failure is a classified *Error.
func (g *Gateway) Invoke(ctx context.Context, modelID string, history []ai.Message, newUserMessage string, timeout time.Duration) (res Result) {
	res.ModelID = modelID
	start := time.Now()
	defer func() {
		res.Latency = time.Since(start)
		if r := recover(); r != nil {
			res.Text = ""
			res.Err = &Error{Kind: KindProviderError, ModelID: modelID, Cause: fmt.Errorf("provider panic: %v", r)}
		}
		log := common.LoggerFromContext(ctx)
		if res.Err != nil {
			log.Debug("gateway invoke failed", "model", modelID, "kind", res.Err.Kind, "latency_ms", res.Latency.Milliseconds(), "err", res.Err.Cause)
		} else {
			log.Debug("gateway invoke ok", "model", modelID, "latency_ms", res.Latency.Milliseconds())
		}
	}()

	profile, err := g.catalog.Resolve(modelID)
	if err != nil {
		res.Err = &Error{Kind: KindUnavailable, ModelID: modelID, Cause: err}
		return res
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	provider, err := g.registry.Get(callCtx, profile.Provider, profile.UpstreamModel)
	if err != nil {
		res.Err = &Error{Kind: KindUnavailable, ModelID: modelID, Cause: err}
		return res
	}

	text, err := provider.Chat(callCtx, g.buildMessages(history, newUserMessage))
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		res.Err = classify(modelID, err)
		return res
	}
	res.Text = text
	return res
}

func (g *Gateway) buildMessages(history []ai.Message, newUserMessage string) []ai.Message {
	keep := g.window - 1
	if keep > len(history) {
		keep = len(history)
	}
	if keep < 0 {
		keep = 0
	}
	recent := history[len(history)-keep:]

	out := make([]ai.Message, 0, len(recent)+2)
	if g.systemPrompt != "" {
		out = append(out, ai.Message{Role: ai.RoleSystem, Content: g.systemPrompt})
	}
	out = append(out, recent...)
	out = append(out, ai.Message{Role: ai.RoleUser, Content: newUserMessage})
	return out
}
