// Package sse implements the text/event-stream wire format used by the
// drive-folder live update endpoint.
//
// The decoder follows the WHATWG event stream interpretation rules: lines may
// end in LF, CRLF or CR, data lines are joined with LF, a blank line
// dispatches the pending event and events without data are discarded.
package sse

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"
)

// MaxLineSize bounds a single field line.
const MaxLineSize = 1 << 20

// Message is a single dispatched event.
type Message struct {
	ID    string
	Event string
	Data  string
	Retry time.Duration

	// HasID reports whether the event carried an id field, even an empty one.
	HasID bool
}

// Decoder reads messages from an event stream.
type Decoder struct {
	scanner *bufio.Scanner
	started bool

	// Comment, when set, is called for every comment line. Servers use
	// comments as keep-alives.
	Comment func(text string)

	// Line, when set, is called for every line read, before it is
	// interpreted.
	Line func()
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), MaxLineSize)
	scanner.Split((&lineSplitter{}).split)
	return &Decoder{scanner: scanner}
}

// Next returns the next dispatched message. It returns io.EOF when the
// stream ends; a partially received event at end of stream is discarded.
func (d *Decoder) Next() (Message, error) {
	var (
		msg     Message
		data    strings.Builder
		hasData bool
	)

	for d.scanner.Scan() {
		line := d.scanner.Text()
		if d.Line != nil {
			d.Line()
		}

		// A leading byte order mark is stripped from the first line only.
		if !d.started {
			line = strings.TrimPrefix(line, "\ufeff")
			d.started = true
		}

		if line == "" {
			if !hasData {
				msg.Event = ""
				continue
			}
			msg.Data = data.String()
			return msg, nil
		}

		if strings.HasPrefix(line, ":") {
			if d.Comment != nil {
				d.Comment(strings.TrimPrefix(line[1:], " "))
			}
			continue
		}

		field, value := splitField(line)
		switch field {
		case "event":
			msg.Event = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				msg.ID = value
				msg.HasID = true
			}
		case "retry":
			if ms, ok := parseRetry(value); ok {
				msg.Retry = time.Duration(ms) * time.Millisecond
			}
		default:
			// Unknown fields are ignored.
		}
	}

	if err := d.scanner.Err(); err != nil {
		return Message{}, err
	}
	return Message{}, io.EOF
}

// splitField splits "name: value" into name and value, removing a single
// leading space from the value.
func splitField(line string) (string, string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return line, ""
	}
	value := line[idx+1:]
	value = strings.TrimPrefix(value, " ")
	return line[:idx], value
}

// parseRetry accepts ASCII digits only.
func parseRetry(value string) (int64, bool) {
	if value == "" {
		return 0, false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

// lineSplitter is a bufio.SplitFunc source accepting LF, CRLF and CR
// terminators. A CR ends the line as soon as it is seen; when it was the
// last buffered byte, an LF arriving next belongs to it and is skipped.
type lineSplitter struct {
	skipLF bool
}

func (s *lineSplitter) split(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if s.skipLF && len(data) > 0 {
		s.skipLF = false
		if data[0] == '\n' {
			return 1, nil, nil
		}
	}
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 == len(data) {
			s.skipLF = true
			return i + 1, data[:i], nil
		}
		if data[i+1] == '\n' {
			return i + 2, data[:i], nil
		}
		return i + 1, data[:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
