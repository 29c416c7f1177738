package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/media-admin/livefeed/internal/config"
)

func TestFanoutWriter_ContinuesWhenOneDestinationFails(t *testing.T) {
	var dst bytes.Buffer
	w := newFanoutWriter(errorWriter{err: errors.New("broken stdout")}, &dst)

	n, err := w.Write([]byte("test"))
	if err != nil {
		t.Fatalf("write returned error: %v", err)
	}
	if n != len("test") {
		t.Fatalf("unexpected bytes written: got %d, want %d", n, len("test"))
	}
	if got := dst.String(); got != "test" {
		t.Fatalf("unexpected destination contents: got %q", got)
	}
}

func TestFanoutWriter_AllDestinationsFail(t *testing.T) {
	w := newFanoutWriter(errorWriter{err: errors.New("a")}, errorWriter{err: errors.New("b")})

	if _, err := w.Write([]byte("x")); err == nil || err.Error() != "a" {
		t.Fatalf("expected first error, got %v", err)
	}
}

func TestManagerConfigure_WritesJSONToFile(t *testing.T) {
	origDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(origDefault) })

	var stdout bytes.Buffer
	m := NewManager()
	m.stdout = &stdout
	t.Cleanup(func() { _ = m.Close() })

	logPath := filepath.Join(t.TempDir(), "logs", "livefeed.log")
	cfg := config.LoggingConfig{Level: "debug", Format: "json", File: logPath}
	if err := m.Configure(cfg); err != nil {
		t.Fatalf("configure manager: %v", err)
	}

	m.Logger("test").Debug("file must receive this message")

	if err := m.Close(); err != nil {
		t.Fatalf("close manager: %v", err)
	}

	raw, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !bytes.Contains(raw, []byte(`"msg":"file must receive this message"`)) {
		t.Fatalf("log file does not contain test message, contents: %q", string(raw))
	}
	if !bytes.Contains(raw, []byte(`"component":"test"`)) {
		t.Fatalf("log record missing component, contents: %q", string(raw))
	}
	if !strings.Contains(stdout.String(), "file must receive this message") {
		t.Fatalf("stdout did not receive the message: %q", stdout.String())
	}
}

func TestManagerConfigure_LevelFilters(t *testing.T) {
	origDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(origDefault) })

	var stdout bytes.Buffer
	m := NewManager()
	m.stdout = &stdout

	if err := m.Configure(config.LoggingConfig{Level: "warn"}); err != nil {
		t.Fatalf("configure manager: %v", err)
	}

	log := m.Logger("test")
	log.Info("hidden")
	log.Warn("shown")

	if strings.Contains(stdout.String(), "hidden") {
		t.Errorf("info record should be filtered at warn level")
	}
	if !strings.Contains(stdout.String(), "shown") {
		t.Errorf("warn record missing: %q", stdout.String())
	}
}

func TestManagerConfigure_RejectsBadSettings(t *testing.T) {
	m := NewManager()

	if err := m.Configure(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := m.Configure(config.LoggingConfig{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestManagerClose_Idempotent(t *testing.T) {
	origDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(origDefault) })

	m := NewManager()
	m.stdout = &bytes.Buffer{}
	if err := m.Close(); err != nil {
		t.Fatalf("close without a file: %v", err)
	}

	cfg := config.LoggingConfig{File: filepath.Join(t.TempDir(), "livefeed.log")}
	if err := m.Configure(cfg); err != nil {
		t.Fatalf("configure manager: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := m.Close(); err != nil {
			t.Fatalf("close #%d: %v", i+1, err)
		}
	}
	if err := m.Rotate(); err != nil {
		t.Errorf("rotate after close should be a no-op, got %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		" info ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for raw, want := range tests {
		got, err := ParseLevel(raw)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", raw, got, err, want)
		}
	}
}

type errorWriter struct {
	err error
}

func (w errorWriter) Write(_ []byte) (int, error) {
	return 0, w.err
}
