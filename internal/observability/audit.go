package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventIngest      AuditEventType = "ingest"
	AuditEventSearch      AuditEventType = "search"
	AuditEventIndexCreate AuditEventType = "index.create"
	AuditEventWorkflowRun AuditEventType = "workflow.start"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	EventType   AuditEventType `json:"event_type"`
	SessionID   string         `json:"session_id"`
	RequestID   string         `json:"request_id,omitempty"`
	DocID       string         `json:"doc_id,omitempty"`
	Success     bool           `json:"success"`
	DurationMS  int64          `json:"duration_ms,omitempty"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	ErrorKind   string         `json:"error_kind,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
}

// AuditLogger writes audit events as JSON lines.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	enabled   bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // File path or "stdout"/"stderr"
	SessionID  string
}

// DefaultAuditConfig returns default audit configuration.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		Enabled:    true,
		OutputPath: "stdout",
	}
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil {
		config = DefaultAuditConfig()
	}

	var writer io.Writer
	switch config.OutputPath {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
	}

	return NewAuditWriter(writer, config.SessionID, config.Enabled), nil
}

// NewAuditWriter creates an audit logger on an existing writer.
func NewAuditWriter(w io.Writer, sessionID string, enabled bool) *AuditLogger {
	if sessionID == "" {
		sessionID = "session-" + uuid.NewString()[:8]
	}
	return &AuditLogger{writer: w, sessionID: sessionID, enabled: enabled}
}

// Log writes an audit event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if l == nil || !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

func (l *AuditLogger) outcome(ctx context.Context, event *AuditEvent, duration time.Duration, err error) {
	event.RequestID = RequestID(ctx)
	event.DurationMS = duration.Milliseconds()
	event.Success = err == nil
	if err != nil {
		event.ErrorKind = errorKind(err)
		event.ErrorDetail = err.Error()
	}
	_ = l.Log(event)
}

// LogIngest records one ingestion call.
func (l *AuditLogger) LogIngest(ctx context.Context, docID string, chunks int, duration time.Duration, err error) {
	l.outcome(ctx, &AuditEvent{
		EventType: AuditEventIngest,
		DocID:     docID,
		Details:   map[string]any{"chunks_stored": chunks},
	}, duration, err)
}

// LogSearch records one search call. The query itself is not recorded.
func (l *AuditLogger) LogSearch(ctx context.Context, queryLen, topK, results int, duration time.Duration, err error) {
	l.outcome(ctx, &AuditEvent{
		EventType: AuditEventSearch,
		Details:   map[string]any{"query_len": queryLen, "top_k": topK, "results": results},
	}, duration, err)
}

// LogIndexCreate records creation of a vector index.
func (l *AuditLogger) LogIndexCreate(ctx context.Context, index string, dimension int, precision string) {
	l.outcome(ctx, &AuditEvent{
		EventType: AuditEventIndexCreate,
		Message:   index,
		Details:   map[string]any{"dimension": dimension, "precision": precision},
	}, 0, nil)
}

// LogWorkflowStart records submission of an asynchronous ingestion.
func (l *AuditLogger) LogWorkflowStart(ctx context.Context, workflowID, docID string) {
	l.outcome(ctx, &AuditEvent{
		EventType: AuditEventWorkflowRun,
		DocID:     docID,
		Details:   map[string]any{"workflow_id": workflowID},
	}, 0, nil)
}

// Close closes the audit logger (if using a file).
func (l *AuditLogger) Close() error {
	if l == nil {
		return nil
	}
	if closer, ok := l.writer.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}

var (
	globalAuditLogger *AuditLogger
	auditMu           sync.RWMutex
)

// InitGlobalAuditLogger initializes the global audit logger.
func InitGlobalAuditLogger(config *AuditConfig) error {
	l, err := NewAuditLogger(config)
	if err != nil {
		return err
	}
	SetGlobalAuditLogger(l)
	return nil
}

// SetGlobalAuditLogger replaces the global audit logger.
func SetGlobalAuditLogger(l *AuditLogger) {
	auditMu.Lock()
	globalAuditLogger = l
	auditMu.Unlock()
}

// Audit returns the global audit logger, or a disabled one if none is set.
func Audit() *AuditLogger {
	auditMu.RLock()
	defer auditMu.RUnlock()
	if globalAuditLogger == nil {
		return &AuditLogger{enabled: false}
	}
	return globalAuditLogger
}
