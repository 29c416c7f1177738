// Package folder implements the drive-folder registry.
//
// Folders are keyed by their Drive folder ID and persisted in SQLite. The
// Manager validates input on top of the Store.
package folder
