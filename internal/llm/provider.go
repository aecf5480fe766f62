// Package llm defines embedding backends and the wrappers applied to them.
package llm

import (
	"context"
	"fmt"
	"net/http"
)

// Provider is the interface all embedding backends must implement.
type Provider interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the provider identifier (e.g. "openai", "tei", "local").
	Name() string
}

// Pinger is implemented by providers that can cheaply verify reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks p when it supports it and reports success otherwise.
func Ping(ctx context.Context, p Provider) error {
	if pinger, ok := p.(Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// StatusError is returned by HTTP backends for a non-2xx response.
type StatusError struct {
	Provider string
	Op       string
	Code     int
	Status   string
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, e.Status)
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Provider, e.Op, e.Status, e.Body)
}

// Temporary reports whether the request may succeed if repeated.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}
