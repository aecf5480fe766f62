// Package vector is the gateway to the vector store. Backends implement
// Client and Index; the Gateway adds lazy connection, idempotent index
// creation and a deadline on every blocking call.
package vector

import (
	"context"
	"fmt"
)

// Space is the similarity metric of an index.
type Space string

const SpaceCosine Space = "cosine"

// Precision is the storage precision of index vectors.
type Precision string

const (
	PrecisionInt8    Precision = "int8"
	PrecisionFloat16 Precision = "float16"
	PrecisionFloat32 Precision = "float32"
)

// ParsePrecision validates a configured precision name.
func ParsePrecision(s string) (Precision, error) {
	switch p := Precision(s); p {
	case PrecisionInt8, PrecisionFloat16, PrecisionFloat32:
		return p, nil
	case "":
		return PrecisionInt8, nil
	default:
		return "", fmt.Errorf("unknown vector precision %q", s)
	}
}

// IndexSpec describes an index to create.
type IndexSpec struct {
	Name      string
	Dimension int
	Space     Space
	Precision Precision
}

// Record is one vector with its metadata.
type Record struct {
	ID     string
	Vector []float32
	Meta   map[string]any
}

// Match is a query hit as returned by the store. Fields are untyped because
// backends disagree on their shapes; callers coerce them.
type Match struct {
	ID         any
	Similarity any
	Meta       any
}

// Endpoint holds connection settings for a backend.
type Endpoint struct {
	Host  string
	Port  int
	Token string
	TLS   bool
	DSN   string
}

// Client is a connection to a vector store.
type Client interface {
	// ListIndexes returns the names of existing indexes.
	ListIndexes(ctx context.Context) ([]string, error)
	// CreateIndex creates an index. It may fail if the index exists.
	CreateIndex(ctx context.Context, spec IndexSpec) error
	// GetIndex returns a handle to an existing index.
	GetIndex(ctx context.Context, name string) (Index, error)
	// Close releases resources.
	Close() error
}

// Index is a handle to one index.
type Index interface {
	// Upsert inserts or replaces records.
	Upsert(ctx context.Context, records []Record) error
	// Query returns up to topK matches, most similar first.
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
}

// Connector builds a Client for an endpoint.
type Connector func(ctx context.Context, ep Endpoint) (Client, error)
