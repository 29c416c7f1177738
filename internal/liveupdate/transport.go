package liveupdate

// DialRequest describes one connection attempt.
type DialRequest struct {
	URL string

	// LastEventID is the id of the last record seen on a previous
	// transport, empty on a fresh start.
	LastEventID string
}

// Record is one unit delivered by a transport.
type Record struct {
	ID    string
	HasID bool
	Event string
	Data  []byte
}

// Handler receives transport callbacks. Calls for a single transport are
// made sequentially from one goroutine.
type Handler interface {
	Opened()
	Message(rec Record)
	Failed(err error)
}

// Transport is a live server-push connection.
type Transport interface {
	// Close tears the connection down. It must not block on the reader and
	// must not invoke the Handler. A callback racing with Close may still
	// arrive; the Channel discards callbacks from retired transports.
	Close() error
}

// Dialer opens transports. Establishment may complete asynchronously: Dial
// returns as soon as the attempt is under way and reports the outcome
// through the Handler.
type Dialer interface {
	Dial(req DialRequest, h Handler) (Transport, error)
}
