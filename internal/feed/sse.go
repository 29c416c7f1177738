//
//
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/media-admin/livefeed/internal/sse"
)

// Subscribe streams updates to an SSE client until ctx ends, the client
// disconnects or the hub stops.
//
// The stream opens with a ready event carrying the snapshot, then replays
// buffered updates after Last-Event-ID, then follows live updates. The
// optional ?folder= query parameter restricts updates to one folder.
func (h *Hub) Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	client, err := h.register(ctx, kindSSE, r.URL.Query().Get("folder"))
	if err != nil {
		return err
	}
	defer h.unregister(client)

	sse.SetHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	enc := sse.NewEncoder(w)

	snapshot, err := json.Marshal(h.snapshot())
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := enc.Encode(sse.Message{Event: EventReady, Data: string(snapshot)}); err != nil {
		return fmt.Errorf("failed to send ready event: %w", err)
	}

	for _, event := range h.replay(client, parseLastEventID(r)) {
		if err := h.writeSSE(enc, client, event); err != nil {
			return fmt.Errorf("failed to replay events: %w", err)
		}
	}

	for {
		select {
		case <-client.ctx.Done():
			return nil
		case event := <-client.Events:
			if err := h.writeSSE(enc, client, event); err != nil {
				h.logger.Debug("subscriber write failed", "client", client.ID, "error", err)
				return nil
			}
		}
	}
}

func (h *Hub) writeSSE(enc *sse.Encoder, client *Client, event Event) error {
	msg := sse.Message{Event: event.Type}
	if event.Type == EventUpdate {
		// Already sent during replay.
		if event.ID <= client.lastSent {
			return nil
		}
		client.lastSent = event.ID
		msg.ID = strconv.FormatInt(event.ID, 10)
	}

	data, err := marshalData(event)
	if err != nil {
		return err
	}
	msg.Data = string(data)
	return enc.Encode(msg)
}
