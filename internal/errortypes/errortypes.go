// Package errortypes defines the closed set of failure kinds surfaced by the
// ingestion and search pipeline.
package errortypes

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindService      Kind = "service"
	KindInput        Kind = "input"
	KindEmbedding    Kind = "embedding"
	KindStore        Kind = "store"
	KindStoreTimeout Kind = "store_timeout"
)

// Error is a pipeline failure with its kind and the operation that produced it.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// Sentinels for errors.Is. They carry only a kind.
var (
	ErrService      = &Error{Kind: KindService}
	ErrInput        = &Error{Kind: KindInput}
	ErrEmbedding    = &Error{Kind: KindEmbedding}
	ErrStore        = &Error{Kind: KindStore}
	ErrStoreTimeout = &Error{Kind: KindStoreTimeout}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind) + " error"
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by kind. A store timeout is also a store error,
// and every kind is a service error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Message != "" || t.Err != nil {
		return false
	}
	switch t.Kind {
	case KindService:
		return true
	case KindStore:
		return e.Kind == KindStore || e.Kind == KindStoreTimeout
	default:
		return e.Kind == t.Kind
	}
}

// Input reports invalid caller-supplied text.
func Input(op, message string) *Error {
	return &Error{Kind: KindInput, Op: op, Message: message}
}

// Embedding reports a model failure or malformed model output.
func Embedding(op, message string, err error) *Error {
	return &Error{Kind: KindEmbedding, Op: op, Message: message, Err: err}
}

// Store reports a vector store failure other than a timeout.
func Store(op string, err error) *Error {
	return &Error{Kind: KindStore, Op: op, Message: "vector store failure", Err: err}
}

// StoreTimeout reports a vector store call that exceeded its deadline.
func StoreTimeout(op string, timeout time.Duration) *Error {
	return &Error{
		Kind:    KindStoreTimeout,
		Op:      op,
		Message: fmt.Sprintf("vector store operation timed out after %s", timeout),
	}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTimeout reports whether err is a vector store timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrStoreTimeout)
}

// HTTPStatus maps err to the status code the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInput:
		return http.StatusUnprocessableEntity
	case KindStoreTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
