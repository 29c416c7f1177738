package sse

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Encoder writes messages in event stream format.
type Encoder struct {
	w io.Writer
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// SetHeaders sets the response headers for an event stream.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Encode writes msg followed by the blank dispatch line and flushes.
func (e *Encoder) Encode(msg Message) error {
	var b strings.Builder

	if msg.ID != "" {
		if strings.ContainsAny(msg.ID, "\r\n") {
			return fmt.Errorf("event id contains a line break")
		}
		fmt.Fprintf(&b, "id: %s\n", msg.ID)
	}
	if msg.Event != "" {
		if strings.ContainsAny(msg.Event, "\r\n") {
			return fmt.Errorf("event name contains a line break")
		}
		fmt.Fprintf(&b, "event: %s\n", msg.Event)
	}
	if msg.Retry > 0 {
		fmt.Fprintf(&b, "retry: %d\n", msg.Retry.Milliseconds())
	}

	data := strings.ReplaceAll(msg.Data, "\r\n", "\n")
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteByte('\n')

	if _, err := io.WriteString(e.w, b.String()); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	e.flush()
	return nil
}

// Comment writes a comment line, used as a keep-alive.
func (e *Encoder) Comment(text string) error {
	if _, err := fmt.Fprintf(e.w, ": %s\n\n", strings.ReplaceAll(text, "\n", " ")); err != nil {
		return fmt.Errorf("failed to write comment: %w", err)
	}
	e.flush()
	return nil
}

func (e *Encoder) flush() {
	if flusher, ok := e.w.(http.Flusher); ok {
		flusher.Flush()
	}
}
