// Package feed implements the drive-folder update hub.
//
// The hub fans folder updates out to every event stream subscriber, over SSE
// or WebSocket, and keeps a bounded replay buffer so a reconnecting client
// that sends Last-Event-ID receives what it missed.
package feed
