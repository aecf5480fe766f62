package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"unicode/utf8"
)

// Request limits, in characters.
const (
	MaxTextLen  = 1_000_000
	MaxDocIDLen = 256
	MaxQueryLen = 10_000
	MinTopK     = 1
	MaxTopK     = 50
	DefaultTopK = 5

	// maxBodyBytes leaves room for a full-length text of multi-byte runes.
	maxBodyBytes = 4*MaxTextLen + 64*1024
)

var docIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// FieldError describes one invalid field.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"error"`
}

// ValidationError is the 422 response body.
type ValidationError struct {
	Message string       `json:"message"`
	Detail  []FieldError `json:"detail"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Detail)
}

type validator struct {
	errs []FieldError
}

func (v *validator) add(field, format string, args ...any) {
	v.errs = append(v.errs, FieldError{Field: field, Msg: fmt.Sprintf(format, args...)})
}

func (v *validator) requiredText(field string, s *string, max int) {
	if s == nil {
		v.add(field, "field required")
		return
	}
	n := utf8.RuneCountInString(*s)
	switch {
	case n < 1:
		v.add(field, "must contain at least 1 character")
	case n > max:
		v.add(field, "must contain at most %d characters", max)
	}
}

func (v *validator) docID(s *string) {
	if s == nil {
		return
	}
	if utf8.RuneCountInString(*s) > MaxDocIDLen {
		v.add("doc_id", "must contain at most %d characters", MaxDocIDLen)
		return
	}
	if !docIDPattern.MatchString(*s) {
		v.add("doc_id", "must contain only letters, digits, '_' or '-'")
	}
}

func (v *validator) topK(k *int) {
	if k == nil {
		return
	}
	if *k < MinTopK || *k > MaxTopK {
		v.add("top_k", "must be between %d and %d", MinTopK, MaxTopK)
	}
}

func (v *validator) err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return &ValidationError{Message: "Validation failed", Detail: v.errs}
}

// decode reads a JSON body into dst. Malformed bodies are validation errors.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		msg := "invalid JSON: " + err.Error()
		switch {
		case errors.As(err, &tooLarge):
			msg = "request body too large"
		case errors.Is(err, io.EOF):
			msg = "request body is empty"
		}
		return &ValidationError{
			Message: "Validation failed",
			Detail:  []FieldError{{Field: "body", Msg: msg}},
		}
	}
	return nil
}

// IngestRequest is the body of POST /api/v1/ingest.
type IngestRequest struct {
	Text  *string `json:"text"`
	DocID *string `json:"doc_id"`
}

func (r *IngestRequest) validate() error {
	var v validator
	v.requiredText("text", r.Text, MaxTextLen)
	v.docID(r.DocID)
	return v.err()
}

// DocumentRequest is the body of POST /api/v1/ingest/document.
type DocumentRequest struct {
	Content *string `json:"content"`
	DocID   *string `json:"doc_id"`
}

func (r *DocumentRequest) validate() error {
	var v validator
	v.requiredText("content", r.Content, MaxTextLen)
	v.docID(r.DocID)
	return v.err()
}

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Query *string `json:"query"`
	TopK  *int    `json:"top_k"`
}

func (r *SearchRequest) validate() error {
	var v validator
	v.requiredText("query", r.Query, MaxQueryLen)
	v.topK(r.TopK)
	return v.err()
}

func (r *SearchRequest) topK() int {
	if r.TopK == nil {
		return DefaultTopK
	}
	return *r.TopK
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
