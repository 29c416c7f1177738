//
//
package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

// SubscribeWS upgrades the request and streams updates as text frames, one
// JSON record per frame. Heartbeats are sent as ping frames. Resume and
// folder filtering work as in Subscribe.
func (h *Hub) SubscribeWS(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade failed: %w", err)
	}
	defer conn.Close()

	client, err := h.register(ctx, kindWS, r.URL.Query().Get("folder"))
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		return err
	}
	defer h.unregister(client)

	// The reader only watches for the peer going away; pongs and close
	// frames are handled by gorilla while reading.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				client.cancel()
				return
			}
		}
	}()

	for _, event := range h.replay(client, parseLastEventID(r)) {
		if err := h.writeWS(conn, client, event); err != nil {
			return fmt.Errorf("failed to replay events: %w", err)
		}
	}

	for {
		select {
		case <-client.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return nil
		case event := <-client.Events:
			if err := h.writeWS(conn, client, event); err != nil {
				h.logger.Debug("websocket write failed", "client", client.ID, "error", err)
				return nil
			}
		}
	}
}

func (h *Hub) writeWS(conn *websocket.Conn, client *Client, event Event) error {
	deadline := time.Now().Add(wsWriteTimeout)

	switch event.Type {
	case EventHeartbeat:
		return conn.WriteControl(websocket.PingMessage, nil, deadline)
	case EventUpdate:
		if event.ID <= client.lastSent {
			return nil
		}
		client.lastSent = event.ID
	default:
		return nil
	}

	data, err := marshalData(event)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(deadline)
	return conn.WriteMessage(websocket.TextMessage, data)
}
