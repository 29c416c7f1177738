// Package command implements the folder orchestrator.
//
// The orchestrator validates requests, calls the video source under a
// command timeout, persists results in the folder registry, publishes an
// update for every change and writes an audit record for every action.
package command
