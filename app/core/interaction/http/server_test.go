package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"atlas/app/core/assistant"
	"atlas/app/core/handlers"
	"atlas/app/core/intent"
	"atlas/app/core/storage"
	"atlas/app/pkg/types"
)

func newTestService() *assistant.Service {
	registry := assistant.NewRegistry()
	registry.Register(intent.TypeWeather, handlers.NewWeatherHandler("Berlin"))
	return assistant.NewService(intent.NewRecognizer(), registry, 0.6)
}

func newTestStore(t *testing.T) *storage.ReminderStore {
	t.Helper()
	db, err := storage.NewSQLiteDB(t.TempDir())
	if err != nil {
		t.Fatalf("open database failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return storage.NewReminderStore(db)
}

func TestSetShutdownTimeout(t *testing.T) {
	ch := NewHTTPChannel(8080)
	if ch.shutdownTimeout != 5*time.Second {
		t.Fatalf("unexpected default shutdown timeout: %s", ch.shutdownTimeout)
	}

	ch.SetShutdownTimeout(12 * time.Second)
	if ch.shutdownTimeout != 12*time.Second {
		t.Fatalf("unexpected shutdown timeout after set: %s", ch.shutdownTimeout)
	}

	ch.SetShutdownTimeout(0)
	if ch.shutdownTimeout != 12*time.Second {
		t.Fatalf("zero timeout should be ignored, got: %s", ch.shutdownTimeout)
	}
}

func TestHandleStatusReturnsJSONSnapshot(t *testing.T) {
	ch := NewHTTPChannel(8080)
	ch.startedUnix.Store(time.Now().Add(-5 * time.Second).Unix())

	ch.pendingMu.Lock()
	ch.pending["req-1"] = make(chan types.Message)
	ch.pending["req-2"] = make(chan types.Message)
	ch.pendingMu.Unlock()

	ch.SetStatusProvider(func(ctx context.Context) map[string]interface{} {
		return map[string]interface{}{"ok": true}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rr := httptest.NewRecorder()
	ch.handleStatus(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("unexpected content type: %s", rr.Header().Get("Content-Type"))
	}

	var payload statusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if payload.ChannelID != "http" {
		t.Fatalf("unexpected channel id: %s", payload.ChannelID)
	}
	if payload.PendingRequests != 2 {
		t.Fatalf("unexpected pending requests: %d", payload.PendingRequests)
	}
	if payload.StartedAt == "" {
		t.Fatal("expected started_at to be set")
	}
	if payload.UptimeSec <= 0 {
		t.Fatalf("expected positive uptime, got %d", payload.UptimeSec)
	}
	ok, found := payload.Runtime["ok"].(bool)
	if !found || !ok {
		t.Fatalf("unexpected runtime payload: %+v", payload.Runtime)
	}
}

func TestHandleStatusRejectsNonGet(t *testing.T) {
	ch := NewHTTPChannel(8080)
	req := httptest.NewRequest(http.MethodPost, "/api/status", nil)
	rr := httptest.NewRecorder()
	ch.handleStatus(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for non-GET, got %d", rr.Code)
	}
}

func TestHandleQueryReturnsJSONResponse(t *testing.T) {
	ch := NewHTTPChannel(8080)
	ch.handler = func(msg types.Message) {
		err := ch.Send(context.Background(), types.Message{
			RequestID: msg.RequestID,
			Content:   "It is sunny in Berlin.",
			Meta: map[string]interface{}{
				"assistant": assistant.Response{
					Success:         true,
					Message:         "It is sunny in Berlin.",
					IntentType:      "weather",
					Confidence:      0.9,
					IsAssistantTask: true,
				},
			},
		})
		if err != nil {
			t.Errorf("send response failed: %v", err)
		}
	}

	body := []byte(`{"text":"what is the weather","user_id":"u-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/assistant/query", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	ch.handleQuery(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d body=%s", rr.Code, rr.Body.String())
	}

	var payload queryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if payload.Reply != "It is sunny in Berlin." {
		t.Fatalf("unexpected reply: %q", payload.Reply)
	}
	if payload.Assistant == nil || payload.Assistant.IntentType != "weather" {
		t.Fatalf("unexpected assistant payload: %+v", payload.Assistant)
	}

	ch.pendingMu.Lock()
	remaining := len(ch.pending)
	ch.pendingMu.Unlock()
	if remaining != 0 {
		t.Fatalf("pending request was not cleaned up: %d", remaining)
	}
}

func TestHandleQueryValidatesInput(t *testing.T) {
	ch := NewHTTPChannel(8080)
	ch.handler = func(types.Message) {}

	req := httptest.NewRequest(http.MethodPost, "/api/assistant/query", strings.NewReader(`{"text":"   "}`))
	rr := httptest.NewRecorder()
	ch.handleQuery(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank text, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/assistant/query", strings.NewReader(`{`))
	rr = httptest.NewRecorder()
	ch.handleQuery(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid JSON, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/assistant/query", nil)
	rr = httptest.NewRecorder()
	ch.handleQuery(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rr.Code)
	}
}

func TestHandleQueryWithoutHandlerIsUnavailable(t *testing.T) {
	ch := NewHTTPChannel(8080)
	req := httptest.NewRequest(http.MethodPost, "/api/assistant/query", strings.NewReader(`{"text":"hello"}`))
	rr := httptest.NewRecorder()
	ch.handleQuery(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without handler, got %d", rr.Code)
	}
}

func TestHandleQueryStreamsNDJSON(t *testing.T) {
	ch := NewHTTPChannel(8080)
	ch.handler = func(msg types.Message) {
		_ = ch.Send(context.Background(), types.Message{
			RequestID: msg.RequestID,
			Content:   "abcdef",
		})
	}

	body := []byte(`{"text":"hi","stream":true}`)
	req := httptest.NewRequest(http.MethodPost, "/api/assistant/query?chunk_size=4", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	ch.handleQuery(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Content-Type"), "application/x-ndjson") {
		t.Fatalf("unexpected content type: %s", rr.Header().Get("Content-Type"))
	}

	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 2 chunks plus done event, got %d lines: %q", len(lines), lines)
	}

	var first streamResponseEvent
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode first chunk failed: %v", err)
	}
	if first.Type != "chunk" || first.Chunk != "abcd" || first.Total != 2 {
		t.Fatalf("unexpected first chunk: %+v", first)
	}

	var last streamResponseEvent
	if err := json.Unmarshal([]byte(lines[2]), &last); err != nil {
		t.Fatalf("decode done event failed: %v", err)
	}
	if last.Type != "done" {
		t.Fatalf("unexpected final event: %+v", last)
	}
}

func TestHandleCapabilities(t *testing.T) {
	ch := NewHTTPChannel(8080)

	req := httptest.NewRequest(http.MethodGet, "/api/assistant/capabilities", nil)
	rr := httptest.NewRecorder()
	ch.handleCapabilities(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without service, got %d", rr.Code)
	}

	ch.SetAssistantService(newTestService())
	rr = httptest.NewRecorder()
	ch.handleCapabilities(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}

	var payload assistant.CapabilitiesDescriptor
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if _, ok := payload.AvailableCapabilities["weather"]; !ok {
		t.Fatalf("expected weather capability, got %+v", payload.AvailableCapabilities)
	}
	if len(payload.SupportedIntents) != 7 {
		t.Fatalf("unexpected supported intents: %v", payload.SupportedIntents)
	}
}

func TestHandleTestIntentClassifiesWithoutDispatch(t *testing.T) {
	ch := NewHTTPChannel(8080)
	ch.SetAssistantService(newTestService())

	body := []byte(`{"text":"Remind me to call mom"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/assistant/test-intent", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	ch.handleTestIntent(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d body=%s", rr.Code, rr.Body.String())
	}

	var payload testIntentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if payload.Intent.Type != intent.TypeReminder {
		t.Fatalf("unexpected intent type: %s", payload.Intent.Type)
	}
	if len(payload.RequiredEntities) == 0 {
		t.Fatal("expected required entities for reminder create")
	}
	if len(payload.MissingEntities) == 0 {
		t.Fatal("expected missing entities for bare reminder text")
	}
}

func TestHandleRemindersCreateAndList(t *testing.T) {
	ch := NewHTTPChannel(8080)
	ch.SetReminderStore(newTestStore(t))

	body := []byte(`{"user_id":"u-1","title":"Buy milk","due_text":"tomorrow"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/assistant/reminders", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	ch.handleReminders(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("unexpected create status: %d body=%s", rr.Code, rr.Body.String())
	}

	var created storage.Reminder
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created reminder failed: %v", err)
	}
	if created.ID == "" || created.Title != "Buy milk" {
		t.Fatalf("unexpected created reminder: %+v", created)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/assistant/reminders?user_id=u-1", nil)
	rr = httptest.NewRecorder()
	ch.handleReminders(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected list status: %d", rr.Code)
	}

	var listed reminderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list failed: %v", err)
	}
	if len(listed.Reminders) != 1 || listed.Reminders[0].ID != created.ID {
		t.Fatalf("unexpected reminder list: %+v", listed.Reminders)
	}
}

func TestHandleRemindersListRequiresUserID(t *testing.T) {
	ch := NewHTTPChannel(8080)
	ch.SetReminderStore(newTestStore(t))

	req := httptest.NewRequest(http.MethodGet, "/api/assistant/reminders", nil)
	rr := httptest.NewRecorder()
	ch.handleReminders(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without user_id, got %d", rr.Code)
	}
}

func TestHandleReminderItemCompleteAndFetch(t *testing.T) {
	store := newTestStore(t)
	ch := NewHTTPChannel(8080)
	ch.SetReminderStore(store)

	created, err := store.CreateReminder(context.Background(), "u-1", "Stretch", "", "", 0)
	if err != nil {
		t.Fatalf("seed reminder failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/assistant/reminders/"+created.ID+"/complete?user_id=u-1", nil)
	rr := httptest.NewRecorder()
	ch.handleReminderItem(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("unexpected complete status: %d body=%s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/assistant/reminders/"+created.ID, nil)
	rr = httptest.NewRecorder()
	ch.handleReminderItem(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected fetch status: %d", rr.Code)
	}

	var fetched storage.Reminder
	if err := json.Unmarshal(rr.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("decode reminder failed: %v", err)
	}
	if fetched.Status != storage.ReminderStatusCompleted {
		t.Fatalf("unexpected status after complete: %s", fetched.Status)
	}
}

func TestHandleReminderItemUnknownIsNotFound(t *testing.T) {
	ch := NewHTTPChannel(8080)
	ch.SetReminderStore(newTestStore(t))

	req := httptest.NewRequest(http.MethodGet, "/api/assistant/reminders/missing-id", nil)
	rr := httptest.NewRecorder()
	ch.handleReminderItem(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown reminder, got %d", rr.Code)
	}
}

func TestSendWithoutPendingRequestIsDropped(t *testing.T) {
	ch := NewHTTPChannel(8080)
	if err := ch.Send(context.Background(), types.Message{RequestID: "req-missing", Content: "late"}); err != nil {
		t.Fatalf("send should not fail for unknown request: %v", err)
	}
	if err := ch.Send(context.Background(), types.Message{Content: "no request id"}); err != nil {
		t.Fatalf("send should not fail without request id: %v", err)
	}
}

func TestParseReminderPath(t *testing.T) {
	if _, _, ok := parseReminderPath("/api/assistant/reminders/"); ok {
		t.Fatal("expected empty tail to be rejected")
	}
	id, action, ok := parseReminderPath("/api/assistant/reminders/abc")
	if !ok || id != "abc" || action != "" {
		t.Fatalf("unexpected parse result: %q %q %v", id, action, ok)
	}
	id, action, ok = parseReminderPath("/api/assistant/reminders/abc/cancel")
	if !ok || id != "abc" || action != "cancel" {
		t.Fatalf("unexpected parse result: %q %q %v", id, action, ok)
	}
	if _, _, ok := parseReminderPath("/api/assistant/reminders/a/b/c"); ok {
		t.Fatal("expected deep path to be rejected")
	}
}
