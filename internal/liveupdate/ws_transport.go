package liveupdate

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSDialer opens WebSocket transports. Every text frame is one record;
// binary frames are ignored.
type WSDialer struct {
	// Dialer defaults to a copy of websocket.DefaultDialer.
	Dialer *websocket.Dialer

	Header http.Header
	Token  string

	// IdleTimeout fails the transport when neither a frame nor a ping
	// arrives for this long. Zero disables the read deadline.
	IdleTimeout time.Duration
}

// Dial starts the handshake on a new goroutine and returns immediately.
func (d *WSDialer) Dial(req DialRequest, h Handler) (Transport, error) {
	wsURL := websocketURL(req.URL)

	header := http.Header{}
	for key, values := range d.Header {
		for _, v := range values {
			header.Add(key, v)
		}
	}
	if req.LastEventID != "" {
		header.Set("Last-Event-ID", req.LastEventID)
	}
	if d.Token != "" {
		header.Set("Authorization", "Bearer "+d.Token)
	}

	dialer := d.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &wsTransport{cancel: cancel, url: wsURL, handler: h}
	go t.run(ctx, dialer, header, d.IdleTimeout)
	return t, nil
}

// websocketURL maps http and https endpoints onto ws and wss.
func websocketURL(raw string) string {
	switch {
	case strings.HasPrefix(raw, "https://"):
		return "wss://" + strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		return "ws://" + strings.TrimPrefix(raw, "http://")
	}
	return raw
}

type wsTransport struct {
	cancel  context.CancelFunc
	url     string
	handler Handler
	closed  atomic.Bool

	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *wsTransport) Close() error {
	t.closed.Store(true)
	t.cancel()

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (t *wsTransport) run(ctx context.Context, dialer *websocket.Dialer, header http.Header, idle time.Duration) {
	conn, resp, err := dialer.DialContext(ctx, t.url, header)
	if err != nil {
		terr := &TransportError{URL: t.url, Reason: err}
		if resp != nil {
			terr.StatusCode = resp.StatusCode
		}
		t.fail(terr)
		return
	}
	defer conn.Close()

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	if t.closed.Load() {
		return
	}

	if idle > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(idle))
		conn.SetPingHandler(func(data string) error {
			_ = conn.SetReadDeadline(time.Now().Add(idle))
			err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		})
	}

	t.handler.Opened()

	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			t.fail(&TransportError{URL: t.url, Reason: err})
			return
		}
		if idle > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(idle))
		}
		if kind != websocket.TextMessage {
			continue
		}
		if t.closed.Load() {
			return
		}
		t.handler.Message(Record{Data: payload})
	}
}

func (t *wsTransport) fail(err error) {
	if t.closed.Load() {
		return
	}
	t.handler.Failed(err)
}
