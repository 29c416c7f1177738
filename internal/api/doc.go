// Package api implements the HTTP surface of the drive-folder dashboard.
//
// Folder commands are JSON over HTTP; live updates are served as an SSE
// stream and as a WebSocket. Every JSON response uses one envelope with a
// correlation ID.
package api
