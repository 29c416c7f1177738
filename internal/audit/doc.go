// Package audit writes an append-only JSON Lines record of every folder
// action: who, which folder, parameters, outcome and latency. Files rotate
// by size and are kept compressed for a bounded number of days.
package audit
