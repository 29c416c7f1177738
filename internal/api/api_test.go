package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/media-admin/livefeed/internal/auth"
	"github.com/media-admin/livefeed/internal/clock"
	"github.com/media-admin/livefeed/internal/command"
	"github.com/media-admin/livefeed/internal/config"
	"github.com/media-admin/livefeed/internal/drive/fake"
	"github.com/media-admin/livefeed/internal/feed"
	"github.com/media-admin/livefeed/internal/folder"
	"github.com/media-admin/livefeed/internal/liveupdate"
)

const testSecret = "test-secret-key"

type apiEnv struct {
	server  *httptest.Server
	hub     *feed.Hub
	source  *fake.Source
	folders *folder.Manager
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupAPITest wires the real registry, hub and orchestrator behind the
// authenticated handler.
func setupAPITest(t *testing.T, opts ...Option) *apiEnv {
	t.Helper()
	ctx := context.Background()

	store, err := folder.Open(ctx, filepath.Join(t.TempDir(), "folders.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clk := clock.NewManualAt(time.Date(2025, 10, 3, 10, 0, 0, 0, time.UTC))
	logger := quietLogger()
	folders := folder.NewManager(store, clk, logger)
	hub := feed.NewHub(config.LoadTimingBaseline(), feed.WithClock(clk), feed.WithLogger(logger))
	source := fake.New()
	orch := command.NewOrchestrator(folders, source, hub, config.LoadTimingBaseline(),
		command.WithClock(clk), command.WithLogger(logger))

	verifier, err := auth.NewVerifier(auth.VerifierConfig{Algorithm: "HS256", SecretKey: testSecret})
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	opts = append([]Option{WithAuth(auth.NewMiddleware(verifier, logger)), WithLogger(logger)}, opts...)
	api := NewServer(hub, orch, folders, opts...)

	server := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		hub.Stop()
		server.Close()
	})

	return &apiEnv{server: server, hub: hub, source: source, folders: folders}
}

func signToken(t *testing.T, roles []string, scopes ...string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    "user-" + roles[0],
		"roles":  roles,
		"scopes": scopes,
		"exp":    time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func adminToken(t *testing.T) string {
	return signToken(t, []string{auth.RoleAdmin}, auth.ScopeRead, auth.ScopeControl, auth.ScopeEvents)
}

func viewerToken(t *testing.T) string {
	return signToken(t, []string{auth.RoleViewer}, auth.ScopeRead)
}

type envelope struct {
	Result        string          `json:"result"`
	Status        string          `json:"status"`
	Data          json.RawMessage `json:"data"`
	Code          string          `json:"code"`
	Message       string          `json:"message"`
	CorrelationID string          `json:"correlationId"`
}

func (e *apiEnv) do(t *testing.T, method, path, token, body string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(resp.Body)
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("%s %s: invalid JSON body %q: %v", method, path, raw, err)
	}
	return resp.StatusCode, env
}

func TestHealthNeedsNoAuth(t *testing.T) {
	env := setupAPITest(t)

	status, body := env.do(t, "GET", "/api/v1/health", "", "")
	if status != http.StatusOK || body.Result != "ok" || body.Status != "success" {
		t.Fatalf("Unexpected health response %d %+v", status, body)
	}
	var data map[string]any
	_ = json.Unmarshal(body.Data, &data)
	if data["status"] != "ok" {
		t.Errorf("Expected healthy status, got %v", data)
	}

	if status, _ := env.do(t, "POST", "/api/v1/health", "", ""); status != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", status)
	}
}

func TestAuthorization(t *testing.T) {
	env := setupAPITest(t)
	viewer := viewerToken(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		want   int
		code   string
	}{
		{"list without token", "GET", "/admin/drive-folders/", "", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"list with garbage token", "GET", "/admin/drive-folders/", "garbage", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"viewer lists", "GET", "/admin/drive-folders/", viewer, "", http.StatusOK, ""},
		{"viewer cannot add", "POST", "/admin/drive-folders/", viewer, `{"folder_id":"abc"}`, http.StatusForbidden, "FORBIDDEN"},
		{"viewer cannot sync", "POST", "/admin/drive-folder/abc/sync/", viewer, "", http.StatusForbidden, "FORBIDDEN"},
		{"viewer cannot subscribe", "GET", "/admin/drive-folders/events/", viewer, "", http.StatusForbidden, "FORBIDDEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, tt.method, tt.path, tt.token, tt.body)
			if status != tt.want {
				t.Errorf("Expected status %d, got %d (%+v)", tt.want, status, body)
			}
			if tt.code != "" && body.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, body.Code)
			}
		})
	}
}

func TestFolderLifecycle(t *testing.T) {
	env := setupAPITest(t)
	admin := adminToken(t)

	status, body := env.do(t, "POST", "/admin/drive-folders/", admin,
		`{"name":"Lectures","folder_id":"https://drive.google.com/drive/folders/abc123?usp=sharing"}`)
	if status != http.StatusCreated || body.Status != "success" {
		t.Fatalf("Add failed: %d %+v", status, body)
	}
	var added folder.Folder
	_ = json.Unmarshal(body.Data, &added)
	if added.ID != "abc123" || added.Name != "Lectures" {
		t.Errorf("Unexpected folder %+v", added)
	}

	status, body = env.do(t, "GET", "/admin/drive-folders/", admin, "")
	if status != http.StatusOK {
		t.Fatalf("List failed: %d", status)
	}
	var list folder.FolderList
	_ = json.Unmarshal(body.Data, &list)
	if len(list.Items) != 1 || list.Items[0].ID != "abc123" {
		t.Errorf("Unexpected list %+v", list)
	}

	env.source.SetCount("abc123", 5)
	status, body = env.do(t, "POST", "/admin/drive-folder/abc123/sync/", admin, "")
	if status != http.StatusOK || body.Message != "Folder synced successfully" {
		t.Fatalf("Sync failed: %d %+v", status, body)
	}
	var synced folder.Folder
	_ = json.Unmarshal(body.Data, &synced)
	if synced.VideoCount != 5 {
		t.Errorf("Expected 5 videos, got %+v", synced)
	}

	if status, _ := env.do(t, "GET", "/admin/drive-folder/abc123/", admin, ""); status != http.StatusOK {
		t.Errorf("Get failed: %d", status)
	}

	if status, body := env.do(t, "POST", "/admin/drive-folder/abc123/delete/", admin, ""); status != http.StatusOK {
		t.Fatalf("Delete failed: %d %+v", status, body)
	}
	if status, body := env.do(t, "GET", "/admin/drive-folder/abc123/", admin, ""); status != http.StatusNotFound || body.Code != "NOT_FOUND" {
		t.Errorf("Expected 404 after delete, got %d %+v", status, body)
	}
}

func TestFolderErrors(t *testing.T) {
	env := setupAPITest(t)
	admin := adminToken(t)
	_, _ = env.do(t, "POST", "/admin/drive-folders/", admin, `{"folder_id":"abc123"}`)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
		code   string
	}{
		{"duplicate", "POST", "/admin/drive-folders/", `{"folder_id":"abc123"}`, http.StatusConflict, "FOLDER_EXISTS"},
		{"invalid id", "POST", "/admin/drive-folders/", `{"folder_id":"../etc"}`, http.StatusBadRequest, "INVALID_FOLDER"},
		{"missing id", "POST", "/admin/drive-folders/", `{"name":"x"}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown field", "POST", "/admin/drive-folders/", `{"folder_id":"x","extra":1}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"trailing data", "POST", "/admin/drive-folders/", `{"folder_id":"x"} {}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"sync unknown folder", "POST", "/admin/drive-folder/nope/sync/", "", http.StatusNotFound, "NOT_FOUND"},
		{"sync missing on disk", "POST", "/admin/drive-folder/abc123/sync/", "", http.StatusNotFound, "NOT_FOUND"},
		{"delete unknown folder", "POST", "/admin/drive-folder/nope/delete/", "", http.StatusNotFound, "NOT_FOUND"},
		{"sync via GET", "GET", "/admin/drive-folder/abc123/sync/", "", http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
		{"unknown action", "POST", "/admin/drive-folder/abc123/rename/", "", http.StatusNotFound, "NOT_FOUND"},
		{"unknown subpath", "GET", "/admin/drive-folders/other", "", http.StatusNotFound, "NOT_FOUND"},
		{"list via DELETE", "DELETE", "/admin/drive-folders/", "", http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, tt.method, tt.path, admin, tt.body)
			if status != tt.want || body.Code != tt.code {
				t.Errorf("Expected %d %s, got %d %+v", tt.want, tt.code, status, body)
			}
			if body.Status != "error" || body.CorrelationID == "" {
				t.Errorf("Error envelope incomplete: %+v", body)
			}
		})
	}
}

func TestSyncRateLimited(t *testing.T) {
	env := setupAPITest(t, WithSyncLimit(0.001, 1))
	admin := adminToken(t)
	_, _ = env.do(t, "POST", "/admin/drive-folders/", admin, `{"folder_id":"abc123"}`)
	env.source.SetCount("abc123", 1)

	if status, _ := env.do(t, "POST", "/admin/drive-folder/abc123/sync/", admin, ""); status != http.StatusOK {
		t.Fatalf("First sync should pass, got %d", status)
	}
	status, body := env.do(t, "POST", "/admin/drive-folder/abc123/sync/", admin, "")
	if status != http.StatusTooManyRequests || body.Code != "BUSY" {
		t.Errorf("Expected 429 BUSY, got %d %+v", status, body)
	}
}

func TestEventsStreamDeliversSyncUpdates(t *testing.T) {
	env := setupAPITest(t)
	admin := adminToken(t)
	_, _ = env.do(t, "POST", "/admin/drive-folders/", admin, `{"folder_id":"abc123"}`)
	env.source.SetCount("abc123", 5)

	events := make(chan liveupdate.UpdateEvent, 4)
	ch := liveupdate.New(&liveupdate.SSEDialer{Token: admin},
		liveupdate.WithClock(clock.Real{}), liveupdate.WithLogger(quietLogger()))
	ch.Start(env.server.URL+"/admin/drive-folders/events/", func(e liveupdate.UpdateEvent) { events <- e })
	defer ch.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Subscriber never connected, channel state %v", ch.State())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if status, _ := env.do(t, "POST", "/admin/drive-folder/abc123/sync/", admin, ""); status != http.StatusOK {
		t.Fatalf("Sync failed: %d", status)
	}

	select {
	case e := <-events:
		if e.EntityID != "abc123" {
			t.Errorf("Expected update for abc123, got %q", e.EntityID)
		}
		if e.Fields["video_count"] != json.Number("5") {
			t.Errorf("Expected video_count 5, got %#v", e.Fields["video_count"])
		}
		if e.Fields["last_synced"] != "2025-10-03T10:00:00Z" {
			t.Errorf("Unexpected last_synced %v", e.Fields["last_synced"])
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for the sync update")
	}
}

func TestWebSocketStreamRequiresEventsScope(t *testing.T) {
	env := setupAPITest(t)
	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/admin/drive-folders/ws"

	header := http.Header{}
	header.Set("Authorization", "Bearer "+viewerToken(t))
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("Expected the handshake to fail for a viewer without events scope")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403, got %v", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?access_token="+adminToken(t), nil)
	if err != nil {
		t.Fatalf("Admin handshake failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("WebSocket subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := env.hub.PublishFolder("abc123", map[string]any{"video_count": 2}); err != nil {
		t.Fatalf("PublishFolder() failed: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() failed: %v", err)
	}
	if msgType != websocket.TextMessage || !bytes.Contains(data, []byte(`"folder_id":"abc123"`)) {
		t.Errorf("Unexpected frame %d %s", msgType, data)
	}
}

func TestNoAuthModeServesRoutes(t *testing.T) {
	hub := feed.NewHub(config.LoadTimingBaseline(), feed.WithLogger(quietLogger()))
	defer hub.Stop()
	api := NewServer(hub, nil, nil, WithLogger(quietLogger()))

	w := httptest.NewRecorder()
	api.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/admin/drive-folders/", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a registry, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	api.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/health", nil))
	if !strings.Contains(w.Body.String(), `"degraded"`) {
		t.Errorf("Expected degraded health, got %s", w.Body.String())
	}
}
