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
	AuditEventScanStart     AuditEventType = "scan.start"
	AuditEventScanComplete  AuditEventType = "scan.complete"
	AuditEventScanError     AuditEventType = "scan.error"
	AuditEventFileSkip      AuditEventType = "file.skip"
	AuditEventReportWrite   AuditEventType = "report.write"
	AuditEventGraphStore    AuditEventType = "graph.store"
	AuditEventWorkflowStart AuditEventType = "workflow.start"
	AuditEventWorkflowEnd   AuditEventType = "workflow.end"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	EventType   AuditEventType         `json:"event_type"`
	SessionID   string                 `json:"session_id"`
	ScanID      string                 `json:"scan_id,omitempty"`
	WorkflowID  string                 `json:"workflow_id,omitempty"`
	UserID      string                 `json:"user_id,omitempty"`
	Success     bool                   `json:"success"`
	DurationMS  int64                  `json:"duration_ms,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	ErrorDetail string                 `json:"error_detail,omitempty"`
}

// AuditLogger writes audit events as JSON lines.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	userID    string
	enabled   bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // File path or "stdout"/"stderr"
	SessionID  string
	UserID     string
}

// DefaultAuditConfig returns default audit configuration.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		Enabled:    true,
		OutputPath: "stderr",
	}
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil {
		config = DefaultAuditConfig()
	}

	var writer io.Writer
	switch config.OutputPath {
	case "stderr", "":
		writer = os.Stderr
	case "stdout":
		writer = os.Stdout
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
	}

	sessionID := config.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	return &AuditLogger{
		writer:    writer,
		sessionID: sessionID,
		userID:    config.UserID,
		enabled:   config.Enabled,
	}, nil
}

// SessionID returns the session identifier stamped on every event.
func (l *AuditLogger) SessionID() string {
	return l.sessionID
}

// Log writes an audit event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if !l.enabled {
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
	if event.UserID == "" {
		event.UserID = l.userID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// LogScanStart logs the start of a scan.
func (l *AuditLogger) LogScanStart(ctx context.Context, scanID, root string, workers int) {
	l.Log(&AuditEvent{
		EventType: AuditEventScanStart,
		ScanID:    scanID,
		Success:   true,
		Message:   fmt.Sprintf("Scan started: %s", root),
		Details: map[string]interface{}{
			"root":    root,
			"workers": workers,
		},
	})
}

// LogFileSkip logs a file that could not be read or decoded.
func (l *AuditLogger) LogFileSkip(ctx context.Context, scanID, path string, err error) {
	event := &AuditEvent{
		EventType: AuditEventFileSkip,
		ScanID:    scanID,
		Success:   false,
		Message:   fmt.Sprintf("Skipped %s", path),
		Details: map[string]interface{}{
			"path": path,
		},
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}

// LogScanComplete logs a finished scan.
func (l *AuditLogger) LogScanComplete(ctx context.Context, scanID string, duration time.Duration, scanned, skipped, edges int, fingerprint string) {
	l.Log(&AuditEvent{
		EventType:  AuditEventScanComplete,
		ScanID:     scanID,
		Success:    true,
		DurationMS: duration.Milliseconds(),
		Message:    fmt.Sprintf("Scan completed: %d files, %d skipped", scanned, skipped),
		Details: map[string]interface{}{
			"files_scanned": scanned,
			"files_skipped": skipped,
			"edges":         edges,
			"fingerprint":   fingerprint,
		},
	})
}

// LogScanError logs a scan that aborted before producing a result.
func (l *AuditLogger) LogScanError(ctx context.Context, scanID, root string, err error) {
	l.Log(&AuditEvent{
		EventType:   AuditEventScanError,
		ScanID:      scanID,
		Success:     false,
		Message:     fmt.Sprintf("Scan failed: %s", root),
		ErrorDetail: err.Error(),
	})
}

// LogReportWrite logs the report document being persisted.
func (l *AuditLogger) LogReportWrite(ctx context.Context, scanID, path string, size int) {
	l.Log(&AuditEvent{
		EventType: AuditEventReportWrite,
		ScanID:    scanID,
		Success:   true,
		Message:   fmt.Sprintf("Report written: %s", path),
		Details: map[string]interface{}{
			"path": path,
			"size": size,
		},
	})
}

// LogGraphStore logs an attempt to persist the graph to the graph database.
func (l *AuditLogger) LogGraphStore(ctx context.Context, scanID, project string, edges int, duration time.Duration, err error) {
	event := &AuditEvent{
		EventType:  AuditEventGraphStore,
		ScanID:     scanID,
		Success:    err == nil,
		DurationMS: duration.Milliseconds(),
		Message:    fmt.Sprintf("Graph stored for project %s", project),
		Details: map[string]interface{}{
			"project": project,
			"edges":   edges,
		},
	}
	if err != nil {
		event.Message = fmt.Sprintf("Graph store failed for project %s", project)
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}

// LogWorkflowStart logs a workflow start event.
func (l *AuditLogger) LogWorkflowStart(ctx context.Context, workflowID, root string) {
	l.Log(&AuditEvent{
		EventType:  AuditEventWorkflowStart,
		WorkflowID: workflowID,
		Success:    true,
		Message:    fmt.Sprintf("Workflow started: %s", root),
		Details: map[string]interface{}{
			"root": root,
		},
	})
}

// LogWorkflowEnd logs a workflow completion event.
func (l *AuditLogger) LogWorkflowEnd(ctx context.Context, workflowID string, success bool, duration time.Duration, outputPath string) {
	l.Log(&AuditEvent{
		EventType:  AuditEventWorkflowEnd,
		WorkflowID: workflowID,
		Success:    success,
		DurationMS: duration.Milliseconds(),
		Message:    "Workflow completed",
		Details: map[string]interface{}{
			"output_path": outputPath,
		},
	})
}

// Close closes the audit logger (if using a file).
func (l *AuditLogger) Close() error {
	if closer, ok := l.writer.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}

var globalAuditLogger *AuditLogger
var auditOnce sync.Once

// InitGlobalAuditLogger initializes the global audit logger.
func InitGlobalAuditLogger(config *AuditConfig) error {
	var err error
	auditOnce.Do(func() {
		globalAuditLogger, err = NewAuditLogger(config)
	})
	return err
}

// Audit returns the global audit logger.
func Audit() *AuditLogger {
	if globalAuditLogger == nil {
		// Disabled until initialized.
		return &AuditLogger{enabled: false}
	}
	return globalAuditLogger
}
