//
//
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/media-admin/livefeed/internal/auth"
)

// Outcomes.
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFailure = "FAILURE"
)

// knownCodes are the error codes lifted out of error text, most specific
// first.
var knownCodes = []string{
	"NOT_FOUND",
	"INVALID_FOLDER",
	"FOLDER_EXISTS",
	"BUSY",
	"UNAVAILABLE",
	"UNAUTHORIZED",
	"FORBIDDEN",
	"INTERNAL",
}

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	Timestamp time.Time      `json:"ts"`
	User      string         `json:"user"`
	FolderID  string         `json:"folderId"`
	Action    string         `json:"action"`
	Params    map[string]any `json:"params"`
	Outcome   string         `json:"outcome"`
	Code      string         `json:"code"`
	LatencyMs int64          `json:"latencyMs"`
}

// Logger implements the audit logging functionality.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      *lumberjack.Logger
	logger   *slog.Logger
	now      func() time.Time
}

// NewLogger creates an audit logger writing to <logDir>/audit.jsonl.
func NewLogger(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(logDir, "audit.jsonl")

	// Create the file up front so permission problems surface at startup.
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	_ = file.Close()

	return &Logger{
		filePath: filePath,
		out: &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    20, // megabytes
			MaxBackups: 10,
			MaxAge:     90, // days
			Compress:   true,
		},
		logger: slog.Default().With("component", "audit"),
		now:    time.Now,
	}, nil
}

// LogAction records one folder action. err nil means success.
func (l *Logger) LogAction(ctx context.Context, action, folderID string, params map[string]any, err error, latency time.Duration) {
	if params == nil {
		params = map[string]any{}
	}

	entry := AuditEntry{
		Timestamp: l.now().UTC(),
		User:      userFromContext(ctx),
		FolderID:  folderID,
		Action:    action,
		Params:    params,
		Outcome:   OutcomeSuccess,
		Code:      CodeForError(err),
		LatencyMs: latency.Milliseconds(),
	}
	if err != nil {
		entry.Outcome = OutcomeFailure
	}

	l.writeEntry(entry)
}

func (l *Logger) writeEntry(entry AuditEntry) {
	jsonData, err := json.Marshal(entry)
	if err != nil {
		l.logger.Error("failed to marshal audit entry", "action", entry.Action, "error", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil {
		l.logger.Warn("audit entry after close", "action", entry.Action, "folder_id", entry.FolderID)
		return
	}
	if _, err := l.out.Write(append(jsonData, '\n')); err != nil {
		l.logger.Error("failed to write audit entry", "action", entry.Action, "error", err)
	}
}

func userFromContext(ctx context.Context) string {
	if claims := auth.ClaimsFromContext(ctx); claims != nil && claims.Subject != "" {
		return claims.Subject
	}
	return "unknown"
}

// CodeForError maps an error to the code recorded in the log.
func CodeForError(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	case errors.Is(err, context.Canceled):
		return "CANCELLED"
	}

	msg := err.Error()
	for _, code := range knownCodes {
		if strings.Contains(msg, code) {
			return code
		}
	}
	return "ERROR"
}

// Close closes the audit log. Later entries are dropped with a warning.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return nil
	}
	err := l.out.Close()
	l.out = nil
	return err
}

// GetFilePath returns the path to the audit log file.
func (l *Logger) GetFilePath() string {
	return l.filePath
}

// Rotate moves the current file aside and starts a new one.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return fmt.Errorf("audit logger closed")
	}
	if err := l.out.Rotate(); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}
	return nil
}
