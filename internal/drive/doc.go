// Package drive defines the video sources a folder sync reads from.
//
// A Source answers one question: how many videos a folder holds right now.
// Backend failures are normalized to NOT_FOUND, BUSY, UNAVAILABLE and
// INTERNAL so the command and API layers never see backend-specific text.
package drive
