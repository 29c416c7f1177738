// Package liveupdate implements the client side of the drive-folder live
// update stream.
//
// A Channel keeps exactly one server-push transport open for as long as the
// owning view is active. Each record received is parsed into an UpdateEvent
// and handed to the caller's callback. When the transport fails the channel
// waits a fixed retry delay and dials again, forever, until Stop is called.
//
// Transports are pluggable through Dialer: SSEDialer speaks text/event-stream
// over net/http and WSDialer reads JSON records from a WebSocket.
package liveupdate
