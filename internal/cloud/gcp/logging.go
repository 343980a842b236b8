// Package gcp holds the Google Cloud integrations: structured run logging
// compatible with the Cloud Logging agent, and provider API key retrieval
// from Secret Manager.
package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// Severity levels for structured logs
type Severity string

const (
	SeverityDefault  Severity = "DEFAULT"
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// LogEntry is one structured log record of a piece run.
type LogEntry struct {
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	RunID     string                 `json:"run_id"`
	Movement  string                 `json:"movement,omitempty"`
	Labels    map[string]string      `json:"labels,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LoggerInterface defines the run-logging operations the rest of the code
// depends on.
type LoggerInterface interface {
	Log(severity Severity, message string, fields map[string]interface{})
	LogInfo(message string)
	LogWarning(message string)
	LogError(message string)
	SetMovement(movement string)
	Flush() error
	Close() error
}

// CloudLogger writes structured JSON logs compatible with the Cloud Logging
// agent. On GCP VMs the agent picks up structured JSON from stderr and
// forwards it with proper severity and labels.
type CloudLogger struct {
	writer   io.Writer
	runID    string
	movement string
	labels   map[string]string
	mu       sync.Mutex
	closed   bool
	flushFn  func() error
}

// CloudLoggerOption configures the CloudLogger.
type CloudLoggerOption func(*CloudLogger)

// WithLabels adds custom labels to all log entries.
func WithLabels(labels map[string]string) CloudLoggerOption {
	return func(cl *CloudLogger) {
		for k, v := range labels {
			cl.labels[k] = v
		}
	}
}

// WithWriter sets a custom writer for log output.
func WithWriter(w io.Writer) CloudLoggerOption {
	return func(cl *CloudLogger) {
		cl.writer = w
	}
}

// WithFlushFunc sets a custom flush function for buffered writers.
func WithFlushFunc(fn func() error) CloudLoggerOption {
	return func(cl *CloudLogger) {
		cl.flushFn = fn
	}
}

// NewCloudLogger creates a logger that writes structured JSON compatible
// with Cloud Logging, labeled with the run ID.
func NewCloudLogger(runID string, opts ...CloudLoggerOption) *CloudLogger {
	cl := &CloudLogger{
		writer: os.Stderr, // the Cloud Logging agent reads stderr by default
		runID:  runID,
		labels: map[string]string{
			"run_id":    runID,
			"component": "ensemble-engine",
		},
	}

	for _, opt := range opts {
		opt(cl)
	}

	return cl
}

// Log writes a structured log entry.
func (cl *CloudLogger) Log(severity Severity, message string, fields map[string]interface{}) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return
	}

	entry := LogEntry{
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now().UTC(),
		RunID:     cl.runID,
		Movement:  cl.movement,
		Labels:    cl.labels,
		Fields:    fields,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(cl.writer, `{"severity":"ERROR","message":"failed to marshal log entry: %v"}`+"\n", err)
		return
	}
	fmt.Fprintf(cl.writer, "%s\n", data)
}

// LogInfo writes an INFO level log entry.
func (cl *CloudLogger) LogInfo(message string) {
	cl.Log(SeverityInfo, message, nil)
}

// LogWarning writes a WARNING level log entry.
func (cl *CloudLogger) LogWarning(message string) {
	cl.Log(SeverityWarning, message, nil)
}

// LogError writes an ERROR level log entry.
func (cl *CloudLogger) LogError(message string) {
	cl.Log(SeverityError, message, nil)
}

// SetMovement updates the movement label for subsequent entries.
func (cl *CloudLogger) SetMovement(movement string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.movement = movement
}

// Flush ensures all buffered logs are written.
func (cl *CloudLogger) Flush() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return nil
	}

	if cl.flushFn != nil {
		return cl.flushFn()
	}

	if syncer, ok := cl.writer.(interface{ Sync() error }); ok {
		return syncer.Sync()
	}

	return nil
}

// Close flushes remaining logs and marks the logger as closed.
func (cl *CloudLogger) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return nil
	}

	cl.closed = true

	if cl.flushFn != nil {
		return cl.flushFn()
	}

	return nil
}

// FallbackLogger writes the same structured JSON to a local writer for runs
// outside GCP.
type FallbackLogger struct {
	writer   io.Writer
	runID    string
	movement string
	labels   map[string]string
	mu       sync.Mutex
}

// NewFallbackLogger creates a logger that writes structured JSON to the
// given writer.
func NewFallbackLogger(writer io.Writer, runID string) *FallbackLogger {
	return &FallbackLogger{
		writer: writer,
		runID:  runID,
		labels: map[string]string{
			"run_id":    runID,
			"component": "ensemble-engine",
		},
	}
}

// Log writes a structured log entry to the writer.
func (fl *FallbackLogger) Log(severity Severity, message string, fields map[string]interface{}) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	entry := LogEntry{
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now().UTC(),
		RunID:     fl.runID,
		Movement:  fl.movement,
		Labels:    fl.labels,
		Fields:    fields,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(fl.writer, `{"severity":"ERROR","message":"failed to marshal log entry: %v"}`+"\n", err)
		return
	}
	fmt.Fprintf(fl.writer, "%s\n", data)
}

// LogInfo writes an INFO level log entry.
func (fl *FallbackLogger) LogInfo(message string) {
	fl.Log(SeverityInfo, message, nil)
}

// LogWarning writes a WARNING level log entry.
func (fl *FallbackLogger) LogWarning(message string) {
	fl.Log(SeverityWarning, message, nil)
}

// LogError writes an ERROR level log entry.
func (fl *FallbackLogger) LogError(message string) {
	fl.Log(SeverityError, message, nil)
}

// SetMovement updates the movement label for subsequent entries.
func (fl *FallbackLogger) SetMovement(movement string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.movement = movement
}

// Flush is a no-op; writes are synchronous.
func (fl *FallbackLogger) Flush() error {
	return nil
}

// Close is a no-op for the fallback logger.
func (fl *FallbackLogger) Close() error {
	return nil
}

// NewLogger creates the appropriate logger for the environment: structured
// stderr logging on GCP (picked up by the agent), structured stdout logging
// elsewhere.
func NewLogger(_ context.Context, runID string, opts ...CloudLoggerOption) LoggerInterface {
	if isRunningOnGCP() {
		return NewCloudLogger(runID, opts...)
	}
	return NewFallbackLogger(os.Stdout, runID)
}

// isRunningOnGCP probes the metadata server.
func isRunningOnGCP() bool {
	client := &http.Client{Timeout: 1 * time.Second}
	req, err := http.NewRequest("GET", "http://metadata.google.internal/computeMetadata/v1/", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

var _ LoggerInterface = (*CloudLogger)(nil)
var _ LoggerInterface = (*FallbackLogger)(nil)

// SanitizeForLog redacts common credential patterns before logging.
func SanitizeForLog(s string) string {
	if strings.HasPrefix(s, "sk-") {
		return "[REDACTED_API_KEY]"
	}
	if strings.HasPrefix(s, "ghs_") || strings.HasPrefix(s, "ghp_") || strings.HasPrefix(s, "gho_") {
		return "[REDACTED_GITHUB_TOKEN]"
	}
	if strings.HasPrefix(s, "Bearer ") {
		return "Bearer [REDACTED]"
	}
	return s
}
