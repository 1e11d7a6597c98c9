package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/suPer8Hu/mygpt/internal/ai"
)

type ErrorKind string

const (
	KindTimeout       ErrorKind = "timeout"
	KindProviderError ErrorKind = "provider_error"
	KindRateLimited   ErrorKind = "rate_limited"
	KindUnavailable   ErrorKind = "unavailable"
)

// Error is the only failure shape that leaves the gateway.
type Error struct {
	Kind       ErrorKind
	ModelID    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s (%s, status %d): %v", e.Kind, e.ModelID, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("gateway %s (%s): %v", e.Kind, e.ModelID, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Result is either Text (Err == nil) or a classified Err.
type Result struct {
	ModelID string
	Text    string
	Latency time.Duration
	Err     *Error
}

func (r Result) OK() bool { return r.Err == nil }

func classify(modelID string, err error) *Error {
	e := &Error{ModelID: modelID, Cause: err, Kind: KindProviderError}

	var se *ai.StatusError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		e.Kind = KindTimeout
	case errors.As(err, &se):
		e.StatusCode = se.StatusCode
		switch se.StatusCode {
		case http.StatusTooManyRequests:
			e.Kind = KindRateLimited
		case http.StatusNotFound, http.StatusGone, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			e.Kind = KindUnavailable
		}
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			e.Kind = KindTimeout
		} else {
			e.Kind = KindUnavailable
		}
	}
	return e
}
