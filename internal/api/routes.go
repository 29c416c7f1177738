//
//
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/media-admin/livefeed/internal/auth"
	"github.com/media-admin/livefeed/internal/feed"
)

// Route paths.
const (
	healthPath      = auth.HealthPath
	foldersPath     = "/admin/drive-folders/"
	eventsPath      = "/admin/drive-folders/events/"
	wsPath          = "/admin/drive-folders/ws"
	folderPrefix    = "/admin/drive-folder/"
	maxRequestBytes = 64 << 10
)

var (
	errMalformedJSON = errors.New("malformed JSON or unknown fields")
	errTrailingData  = errors.New("trailing data after JSON object")
)

// RegisterRoutes registers every endpoint.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(healthPath, s.handleHealth)

	mux.HandleFunc(foldersPath, s.protect(s.handleFolders))
	mux.HandleFunc(eventsPath, s.protect(s.requireScope(auth.ScopeEvents, s.handleEvents)))
	mux.HandleFunc(wsPath, s.protect(s.requireScope(auth.ScopeEvents, s.handleWS)))
	mux.HandleFunc(folderPrefix, s.protect(s.handleFolderEndpoints))
}

// protect authenticates when a middleware is configured.
func (s *Server) protect(next http.HandlerFunc) http.HandlerFunc {
	if s.authMiddleware == nil {
		return next
	}
	return s.authMiddleware.RequireAuth(next)
}

func (s *Server) requireScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	if s.authMiddleware == nil {
		return next
	}
	return s.authMiddleware.RequireScope(scope)(next)
}

// handleFolders handles GET (list) and POST (add) on /admin/drive-folders/.
func (s *Server) handleFolders(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != foldersPath {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Unknown endpoint", nil)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.requireScope(auth.ScopeRead, s.handleListFolders)(w, r)
	case http.MethodPost:
		s.requireScope(auth.ScopeControl, s.handleAddFolder)(w, r)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET and POST methods are allowed", nil)
	}
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	if s.folders == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Folder registry not available", nil)
		return
	}

	list, err := s.folders.List(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, list)
}

// addFolderRequest accepts a bare folder id or a Drive folder URL.
type addFolderRequest struct {
	Name     string `json:"name"`
	FolderID string `json:"folder_id"`
}

func (s *Server) handleAddFolder(w http.ResponseWriter, r *http.Request) {
	var req addFolderRequest
	if err := decodeStrict(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	if strings.TrimSpace(req.FolderID) == "" {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "folder_id is required", nil)
		return
	}
	if s.orchestrator == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Service not available", nil)
		return
	}

	f, err := s.orchestrator.AddFolder(r.Context(), req.FolderID, req.Name)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccessMessage(w, http.StatusCreated, f, "Folder created successfully")
}

// handleFolderEndpoints routes /admin/drive-folder/{id}/[sync/|delete/].
func (s *Server) handleFolderEndpoints(w http.ResponseWriter, r *http.Request) {
	folderID, action, ok := parseFolderPath(r.URL.Path)
	if !ok {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Unknown endpoint", nil)
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
				"Only GET method is allowed", nil)
			return
		}
		s.requireScope(auth.ScopeRead, func(w http.ResponseWriter, r *http.Request) {
			s.handleGetFolder(w, r, folderID)
		})(w, r)
	case "sync", "delete":
		if r.Method != http.MethodPost {
			WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
				"Only POST method is allowed", nil)
			return
		}
		handler := s.handleSyncFolder
		if action == "delete" {
			handler = s.handleDeleteFolder
		}
		s.requireScope(auth.ScopeControl, func(w http.ResponseWriter, r *http.Request) {
			handler(w, r, folderID)
		})(w, r)
	default:
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Unknown endpoint", nil)
	}
}

func (s *Server) handleGetFolder(w http.ResponseWriter, r *http.Request, folderID string) {
	if s.folders == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Folder registry not available", nil)
		return
	}
	f, err := s.folders.Get(r.Context(), folderID)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, f)
}

func (s *Server) handleSyncFolder(w http.ResponseWriter, r *http.Request, folderID string) {
	if !s.syncLimiter.Allow() {
		w.Header().Set("Retry-After", "1")
		WriteError(w, http.StatusTooManyRequests, "BUSY", "Too many sync requests, retry later", nil)
		return
	}
	if s.orchestrator == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Service not available", nil)
		return
	}

	f, err := s.orchestrator.SyncFolder(r.Context(), folderID)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccessMessage(w, http.StatusOK, f, "Folder synced successfully")
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request, folderID string) {
	if s.orchestrator == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Service not available", nil)
		return
	}

	if err := s.orchestrator.DeleteFolder(r.Context(), folderID); err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccessMessage(w, http.StatusOK, map[string]any{"id": folderID, "deleted": true}, "Folder deleted successfully")
}

// handleEvents handles GET /admin/drive-folders/events/ (SSE).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, "sse", FeedPort.Subscribe)
}

// handleWS handles GET /admin/drive-folders/ws (WebSocket).
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, "ws", FeedPort.SubscribeWS)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, kind string,
	subscribe func(FeedPort, context.Context, http.ResponseWriter, *http.Request) error) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}
	if s.feed == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Update stream not available", nil)
		return
	}

	err := subscribe(s.feed, r.Context(), w, r)
	switch {
	case errors.Is(err, feed.ErrHubStopped):
		writeAPIError(w, err)
	case err != nil:
		s.logger.Warn("update stream ended with error", "transport", kind, "error", err)
	}
}

// handleHealth handles GET /api/v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}

	subsystems := map[string]bool{
		"folders": s.folders != nil,
		"feed":    s.feed != nil,
		"command": s.orchestrator != nil,
	}
	status := "ok"
	for _, healthy := range subsystems {
		if !healthy {
			status = "degraded"
		}
	}

	subscribers := 0
	if s.feed != nil {
		subscribers = s.feed.ClientCount()
	}

	WriteSuccess(w, map[string]interface{}{
		"status":      status,
		"uptimeSec":   time.Since(s.startTime).Seconds(),
		"subscribers": subscribers,
		"subsystems":  subsystems,
	})
}

// parseFolderPath splits /admin/drive-folder/{id}/[action/] into id and
// action. The trailing slash is optional.
func parseFolderPath(path string) (folderID, action string, ok bool) {
	rest := strings.Trim(strings.TrimPrefix(path, folderPrefix), "/")
	if rest == "" {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		return parts[0], "", true
	case 2:
		return parts[0], parts[1], true
	default:
		return "", "", false
	}
}

// decodeStrict decodes one JSON object, rejecting unknown fields and
// trailing data.
func decodeStrict(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errMalformedJSON
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errTrailingData
	}
	return nil
}
