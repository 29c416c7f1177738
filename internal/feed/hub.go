//
//
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/media-admin/livefeed/internal/clock"
	"github.com/media-admin/livefeed/internal/config"
)

// ErrHubStopped is returned once Stop has been called.
var ErrHubStopped = errors.New("HUB_STOPPED")

// Event types on the SSE stream. Folder updates are unnamed so a browser
// EventSource delivers them to onmessage.
const (
	EventUpdate    = ""
	EventReady     = "ready"
	EventHeartbeat = "heartbeat"
)

// clientQueueSize bounds the per-subscriber backlog.
const clientQueueSize = 100

// slowClientGrace is how long Publish waits on a full subscriber queue
// before dropping the event for that subscriber.
const slowClientGrace = 100 * time.Millisecond

// Event is one entry of the update stream.
type Event struct {
	ID     int64          `json:"id,omitempty"`
	Type   string         `json:"type,omitempty"`
	Data   map[string]any `json:"data"`
	Folder string         `json:"folder,omitempty"`
	At     time.Time      `json:"at"`
}

type clientKind int

const (
	kindSSE clientKind = iota
	kindWS
)

// Client is a connected subscriber.
type Client struct {
	ID     string
	Folder string // empty receives every folder
	Events chan Event

	kind     clientKind
	ctx      context.Context
	cancel   context.CancelFunc
	lastSent int64
}

func (c *Client) wants(event Event) bool {
	return c.Folder == "" || event.Type != EventUpdate || event.Folder == c.Folder
}

// Option configures a Hub.
type Option func(*Hub)

// WithClock sets the clock driving heartbeats and buffer retention.
func WithClock(clk clock.Clock) Option {
	return func(h *Hub) { h.clock = clk }
}

// WithLogger sets the hub logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

// WithSnapshot sets the payload of the ready event sent to new subscribers.
func WithSnapshot(snapshot func() any) Option {
	return func(h *Hub) { h.snapshot = snapshot }
}

// Hub distributes folder updates to subscribers.
//
// Event IDs come from a single monotonic counter so one Last-Event-ID is
// meaningful across folders. Heartbeats run only while someone listens.
type Hub struct {
	// publishMu orders fan-out so every queue sees IDs ascending; the
	// writers drop IDs at or below the last one sent.
	publishMu sync.Mutex

	mu             sync.RWMutex
	clients        map[string]*Client
	lastID         int64
	buffer         *EventBuffer
	heartbeatTimer clock.Timer

	config   *config.TimingConfig
	clock    clock.Clock
	logger   *slog.Logger
	snapshot func() any
	upgrader websocket.Upgrader

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHub creates a hub with the given timing configuration.
func NewHub(timingConfig *config.TimingConfig, opts ...Option) *Hub {
	h := &Hub{
		clients: make(map[string]*Client),
		config:  timingConfig,
		clock:   clock.Real{},
		logger:  slog.Default(),
		snapshot: func() any {
			return map[string]any{}
		},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.buffer = NewEventBuffer(timingConfig.EventBufferSize, timingConfig.EventBufferRetention)
	h.logger = h.logger.With("component", "feed")
	return h
}

// Publish assigns the next ID to an update event, buffers it and fans it
// out. Subscribers whose queue stays full are skipped.
func (h *Hub) Publish(event Event) error {
	if h.stopped() {
		return ErrHubStopped
	}
	if event.Type != EventUpdate {
		return fmt.Errorf("only update events can be published, got %q", event.Type)
	}

	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	h.mu.Lock()
	h.lastID++
	event.ID = h.lastID
	if event.At.IsZero() {
		event.At = h.clock.Now()
	}
	h.buffer.Add(event)
	clients := h.matchingLocked(event)
	h.mu.Unlock()

	for _, client := range clients {
		h.deliver(client, event)
	}
	return nil
}

// PublishFolder publishes fields as an update for folderID. The folder_id
// field is always set.
func (h *Hub) PublishFolder(folderID string, fields map[string]any) error {
	data := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		data[k] = v
	}
	data["folder_id"] = folderID
	return h.Publish(Event{Type: EventUpdate, Folder: folderID, Data: data})
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// LastID returns the ID of the most recent update.
func (h *Hub) LastID() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastID
}

func (h *Hub) matchingLocked(event Event) []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		if client.wants(event) {
			clients = append(clients, client)
		}
	}
	return clients
}

func (h *Hub) deliver(client *Client, event Event) {
	select {
	case client.Events <- event:
		return
	default:
	}

	timer := time.NewTimer(slowClientGrace)
	defer timer.Stop()
	select {
	case client.Events <- event:
	case <-client.ctx.Done():
	case <-h.done:
	case <-timer.C:
		h.logger.Warn("dropping event for slow subscriber", "client", client.ID, "event_id", event.ID)
	}
}

// register adds a subscriber and starts heartbeats for the first one.
func (h *Hub) register(ctx context.Context, kind clientKind, folder string) (*Client, error) {
	clientCtx, cancel := context.WithCancel(ctx)
	client := &Client{
		ID:     uuid.NewString(),
		Folder: folder,
		Events: make(chan Event, clientQueueSize),
		kind:   kind,
		ctx:    clientCtx,
		cancel: cancel,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped() {
		cancel()
		return nil, ErrHubStopped
	}
	h.clients[client.ID] = client
	h.wg.Add(1)
	if h.heartbeatTimer == nil {
		h.scheduleHeartbeatLocked()
	}
	h.logger.Debug("subscriber connected", "client", client.ID, "folder", folder, "clients", len(h.clients))
	return client, nil
}

// unregister removes a subscriber; the last one stops heartbeats.
func (h *Hub) unregister(client *Client) {
	client.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	h.wg.Done()
	if len(h.clients) == 0 && h.heartbeatTimer != nil {
		h.heartbeatTimer.Stop()
		h.heartbeatTimer = nil
	}
	h.logger.Debug("subscriber disconnected", "client", client.ID, "clients", len(h.clients))
}

// replay returns the buffered updates a subscriber missed.
func (h *Hub) replay(client *Client, lastEventID int64) []Event {
	if lastEventID <= 0 {
		return nil
	}
	var events []Event
	for _, event := range h.buffer.EventsAfter(lastEventID, h.clock.Now()) {
		if client.wants(event) {
			events = append(events, event)
		}
	}
	return events
}

// nextHeartbeat returns the interval with uniform jitter applied.
func (h *Hub) nextHeartbeat() time.Duration {
	interval := h.config.HeartbeatInterval
	if jitter := h.config.HeartbeatJitter; jitter > 0 {
		interval += time.Duration(rand.Int64N(int64(2*jitter)+1)) - jitter
	}
	return interval
}

func (h *Hub) scheduleHeartbeatLocked() {
	h.heartbeatTimer = h.clock.AfterFunc(h.nextHeartbeat(), h.heartbeat)
}

func (h *Hub) heartbeat() {
	h.mu.Lock()
	if h.stopped() || len(h.clients) == 0 {
		h.heartbeatTimer = nil
		h.mu.Unlock()
		return
	}
	beat := Event{
		Type: EventHeartbeat,
		Data: map[string]any{"ts": h.clock.Now().UTC().Format(time.RFC3339)},
	}
	clients := h.matchingLocked(beat)
	h.scheduleHeartbeatLocked()
	h.mu.Unlock()

	for _, client := range clients {
		select {
		case client.Events <- beat:
		default:
			// A backed-up subscriber is already receiving data.
		}
	}
}

// Stop disconnects every subscriber and rejects further publishing.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		for _, client := range h.clients {
			client.cancel()
		}
		if h.heartbeatTimer != nil {
			h.heartbeatTimer.Stop()
			h.heartbeatTimer = nil
		}
		h.mu.Unlock()

		done := make(chan struct{})
		go func() {
			h.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			h.logger.Warn("subscribers did not exit within 5s")
		}
	})
}

func (h *Hub) stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// parseLastEventID reads the resume point from the Last-Event-ID header or,
// for clients that cannot set headers, the lastEventId query parameter.
func parseLastEventID(r *http.Request) int64 {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("lastEventId")
	}
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

func marshalData(event Event) ([]byte, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}
	return data, nil
}
