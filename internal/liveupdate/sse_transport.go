package liveupdate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/media-admin/livefeed/internal/sse"
)

// SSEDialer opens text/event-stream transports over HTTP.
type SSEDialer struct {
	// Client performs the request. It must not set a Timeout, which would
	// cut long-lived streams; use IdleTimeout instead. Defaults to
	// http.DefaultClient.
	Client *http.Client

	// Header is added to every request.
	Header http.Header

	// Token, when set, is sent as a bearer token.
	Token string

	// IdleTimeout fails the transport when no line, including keep-alive
	// comments, arrives for this long. Zero disables the watchdog.
	IdleTimeout time.Duration
}

// Dial starts the request on a new goroutine and returns immediately.
func (d *SSEDialer) Dial(req DialRequest, h Handler) (Transport, error) {
	ctx, cancel := context.WithCancel(context.Background())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		cancel()
		return nil, &TransportError{URL: req.URL, Reason: err}
	}
	for key, values := range d.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	if req.LastEventID != "" {
		httpReq.Header.Set("Last-Event-ID", req.LastEventID)
	}
	if d.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.Token)
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	t := &sseTransport{cancel: cancel, url: req.URL, handler: h}
	go t.run(client, httpReq, d.IdleTimeout)
	return t, nil
}

type sseTransport struct {
	cancel  context.CancelFunc
	url     string
	handler Handler
	closed  atomic.Bool

	mu          sync.Mutex
	idleExpired bool
}

func (t *sseTransport) Close() error {
	t.closed.Store(true)
	t.cancel()
	return nil
}

func (t *sseTransport) run(client *http.Client, req *http.Request, idle time.Duration) {
	defer t.cancel()

	resp, err := client.Do(req)
	if err != nil {
		t.fail(&TransportError{URL: t.url, Reason: err})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.fail(&TransportError{URL: t.url, StatusCode: resp.StatusCode, Reason: errors.New(http.StatusText(resp.StatusCode))})
		return
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "text/event-stream" {
		t.fail(&TransportError{URL: t.url, StatusCode: resp.StatusCode, Reason: fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))})
		return
	}

	dec := sse.NewDecoder(resp.Body)
	if idle > 0 {
		watchdog := time.AfterFunc(idle, func() {
			t.mu.Lock()
			t.idleExpired = true
			t.mu.Unlock()
			t.cancel()
		})
		defer watchdog.Stop()
		dec.Line = func() { watchdog.Reset(idle) }
	}

	if t.closed.Load() {
		return
	}
	t.handler.Opened()

	for {
		msg, err := dec.Next()
		if err != nil {
			if err == io.EOF {
				err = errors.New("stream closed by server")
			}
			t.mu.Lock()
			if t.idleExpired {
				err = fmt.Errorf("no data for %v", idle)
			}
			t.mu.Unlock()
			t.fail(&TransportError{URL: t.url, Reason: err})
			return
		}
		if t.closed.Load() {
			return
		}
		t.handler.Message(Record{
			ID:    msg.ID,
			HasID: msg.HasID,
			Event: msg.Event,
			Data:  []byte(msg.Data),
		})
	}
}

func (t *sseTransport) fail(err error) {
	if t.closed.Load() {
		return
	}
	t.handler.Failed(err)
}
