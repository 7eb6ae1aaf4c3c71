package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"atlas/app/core/assistant"
	"atlas/app/core/intent"
	"atlas/app/core/storage"
	"atlas/app/pkg/logger"
	"atlas/app/pkg/types"
)

const (
	defaultResponseTimeout = 60 * time.Second
	defaultChunkSizeRunes  = 1200
	maxChunkSizeRunes      = 4000
)

// HTTPChannel exposes the assistant over a small JSON API. Query requests
// block on a per-request channel until the gateway delivers the agent reply.
type HTTPChannel struct {
	id              string
	port            int
	server          *http.Server
	handler         func(types.Message)
	statusProvider  func(context.Context) map[string]interface{}
	service         *assistant.Service
	reminders       *storage.ReminderStore
	shutdownTimeout time.Duration

	pendingMu   sync.Mutex
	pending     map[string]chan types.Message
	counter     uint64
	startedUnix atomic.Int64
}

func NewHTTPChannel(port int) *HTTPChannel {
	return &HTTPChannel{
		id:              "http",
		port:            port,
		pending:         map[string]chan types.Message{},
		shutdownTimeout: 5 * time.Second,
	}
}

func (c *HTTPChannel) ID() string {
	return c.id
}

// SetStatusProvider installs the runtime snapshot used by /api/status.
func (c *HTTPChannel) SetStatusProvider(provider func(context.Context) map[string]interface{}) {
	c.statusProvider = provider
}

// SetAssistantService wires the service backing the capabilities and
// intent-diagnostic endpoints.
func (c *HTTPChannel) SetAssistantService(service *assistant.Service) {
	c.service = service
}

// SetReminderStore wires the store backing the reminder endpoints.
func (c *HTTPChannel) SetReminderStore(store *storage.ReminderStore) {
	c.reminders = store
}

func (c *HTTPChannel) SetShutdownTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	c.shutdownTimeout = timeout
}

func (c *HTTPChannel) Start(ctx context.Context, handler func(types.Message)) error {
	c.handler = handler
	c.startedUnix.Store(time.Now().Unix())

	mux := http.NewServeMux()
	mux.HandleFunc("/api/assistant/query", c.handleQuery)
	mux.HandleFunc("/api/assistant/capabilities", c.handleCapabilities)
	mux.HandleFunc("/api/assistant/test-intent", c.handleTestIntent)
	mux.HandleFunc("/api/assistant/reminders", c.handleReminders)
	mux.HandleFunc("/api/assistant/reminders/", c.handleReminderItem)
	mux.HandleFunc("/api/status", c.handleStatus)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	c.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", c.port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.shutdownTimeout)
		defer cancel()
		if err := c.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown error: %v", err)
		}
	}()

	logger.Info("HTTP listening on port %d...", c.port)
	if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Send routes the agent reply back to the goroutine blocked in handleQuery.
// Replies without a known pending request are dropped; direct deliveries
// (scheduler notifications) land here too and have nowhere to go over HTTP.
func (c *HTTPChannel) Send(ctx context.Context, msg types.Message) error {
	if strings.TrimSpace(msg.RequestID) == "" {
		logger.Info("HTTP outgoing message without request id: %s", msg.Content)
		return nil
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[msg.RequestID]
	c.pendingMu.Unlock()
	if !ok {
		logger.Info("HTTP pending request not found: %s", msg.RequestID)
		return nil
	}

	select {
	case ch <- msg:
	default:
	}
	return nil
}

type queryRequest struct {
	Text   string `json:"text"`
	UserID string `json:"user_id"`
	Stream bool   `json:"stream,omitempty"`
}

type queryResponse struct {
	Reply     string              `json:"reply"`
	Assistant *assistant.Response `json:"assistant,omitempty"`
}

type streamResponseEvent struct {
	Type      string              `json:"type"`
	Index     int                 `json:"index,omitempty"`
	Total     int                 `json:"total,omitempty"`
	Chunk     string              `json:"chunk,omitempty"`
	Assistant *assistant.Response `json:"assistant,omitempty"`
}

type testIntentRequest struct {
	Text string `json:"text"`
}

type testIntentResponse struct {
	Intent           intent.Intent `json:"intent"`
	RequiredEntities []string      `json:"required_entities"`
	MissingEntities  []string      `json:"missing_entities"`
}

type createReminderRequest struct {
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	DueText     string `json:"due_text,omitempty"`
	DueAt       int64  `json:"due_at,omitempty"`
	Description string `json:"description,omitempty"`
}

type reminderListResponse struct {
	Reminders []storage.Reminder `json:"reminders"`
}

type statusResponse struct {
	ChannelID       string                 `json:"channel_id"`
	PendingRequests int                    `json:"pending_requests"`
	StartedAt       string                 `json:"started_at,omitempty"`
	UptimeSec       int64                  `json:"uptime_sec"`
	Runtime         map[string]interface{} `json:"runtime,omitempty"`
}

func (c *HTTPChannel) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req queryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if c.handler == nil {
		http.Error(w, "handler not ready", http.StatusServiceUnavailable)
		return
	}

	msg, respCh := c.prepareMessage(req)
	defer c.removePendingRequest(msg.RequestID)

	c.handler(msg)

	streamRequested := req.Stream || parseBoolQuery(r.URL.Query().Get("stream"))
	chunkSize := parseChunkSize(r.URL.Query().Get("chunk_size"))

	select {
	case reply := <-respCh:
		result := extractAssistantResponse(reply)
		if streamRequested {
			c.writeStreamResponse(w, reply.Content, result, chunkSize)
			return
		}
		writeJSON(w, http.StatusOK, queryResponse{Reply: reply.Content, Assistant: result})
	case <-time.After(defaultResponseTimeout):
		http.Error(w, "request timeout", http.StatusGatewayTimeout)
	}
}

func (c *HTTPChannel) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if c.service == nil {
		http.Error(w, "assistant service unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, c.service.Capabilities())
}

// handleTestIntent runs classification without dispatching to a handler, so
// new phrasings can be checked against the catalog.
func (c *HTTPChannel) handleTestIntent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if c.service == nil {
		http.Error(w, "assistant service unavailable", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req testIntentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	it := c.service.Recognize(req.Text)
	required := intent.RequiredEntities(it.Type, it.Action)
	resp := testIntentResponse{
		Intent:           it,
		RequiredEntities: required,
		MissingEntities:  intent.MissingEntities(it.Entities, required),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (c *HTTPChannel) handleReminders(w http.ResponseWriter, r *http.Request) {
	if c.reminders == nil {
		http.Error(w, "reminder store unavailable", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if userID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		status := strings.TrimSpace(r.URL.Query().Get("status"))
		limit := parseListLimit(r.URL.Query().Get("limit"))
		items, err := c.reminders.ListReminders(r.Context(), userID, status, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, reminderListResponse{Reminders: items})
	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		var req createReminderRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		reminder, err := c.reminders.CreateReminder(r.Context(), req.UserID, req.Title, req.DueText, req.Description, req.DueAt)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, reminder)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (c *HTTPChannel) handleReminderItem(w http.ResponseWriter, r *http.Request) {
	if c.reminders == nil {
		http.Error(w, "reminder store unavailable", http.StatusServiceUnavailable)
		return
	}

	id, action, ok := parseReminderPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		reminder, err := c.reminders.GetReminder(r.Context(), id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, reminder)
	case "complete", "cancel":
		if r.Method != http.MethodPost && r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if userID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		var err error
		if action == "complete" {
			err = c.reminders.CompleteReminder(r.Context(), id, userID)
		} else {
			err = c.reminders.CancelReminder(r.Context(), id, userID)
		}
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func parseReminderPath(path string) (id string, action string, ok bool) {
	if !strings.HasPrefix(path, "/api/assistant/reminders/") {
		return "", "", false
	}
	tail := strings.Trim(strings.TrimPrefix(path, "/api/assistant/reminders/"), "/")
	if tail == "" {
		return "", "", false
	}
	parts := strings.Split(tail, "/")
	if len(parts) == 1 {
		return parts[0], "", true
	}
	if len(parts) == 2 {
		return parts[0], parts[1], true
	}
	return "", "", false
}

func (c *HTTPChannel) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := statusResponse{ChannelID: c.id}
	c.pendingMu.Lock()
	resp.PendingRequests = len(c.pending)
	c.pendingMu.Unlock()

	if started := c.startedUnix.Load(); started > 0 {
		startAt := time.Unix(started, 0).UTC()
		resp.StartedAt = startAt.Format(time.RFC3339)
		resp.UptimeSec = int64(time.Since(startAt).Seconds())
		if resp.UptimeSec < 0 {
			resp.UptimeSec = 0
		}
	}
	if c.statusProvider != nil {
		resp.Runtime = c.statusProvider(r.Context())
	}

	writeJSON(w, http.StatusOK, resp)
}

func (c *HTTPChannel) prepareMessage(req queryRequest) (types.Message, chan types.Message) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = "local_user"
	}

	requestID := c.newID("req")
	respCh := make(chan types.Message, 1)
	c.pendingMu.Lock()
	c.pending[requestID] = respCh
	c.pendingMu.Unlock()

	msg := types.Message{
		ID:        c.newID("http"),
		Content:   req.Text,
		Role:      types.MessageRoleUser,
		ChannelID: c.id,
		UserID:    userID,
		RequestID: requestID,
		Meta: map[string]interface{}{
			"user_id": userID,
		},
	}
	return msg, respCh
}

func (c *HTTPChannel) removePendingRequest(requestID string) {
	c.pendingMu.Lock()
	delete(c.pending, requestID)
	c.pendingMu.Unlock()
}

// extractAssistantResponse pulls the structured dispatch result the agent
// attaches to reply metadata, if present.
func extractAssistantResponse(reply types.Message) *assistant.Response {
	if reply.Meta == nil {
		return nil
	}
	if resp, ok := reply.Meta["assistant"].(assistant.Response); ok {
		return &resp
	}
	if resp, ok := reply.Meta["assistant"].(*assistant.Response); ok {
		return resp
	}
	return nil
}

func (c *HTTPChannel) writeStreamResponse(w http.ResponseWriter, content string, result *assistant.Response, chunkSize int) {
	chunks := splitByRunes(content, chunkSize)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	encoder := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)
	for i, chunk := range chunks {
		_ = encoder.Encode(streamResponseEvent{
			Type:  "chunk",
			Index: i + 1,
			Total: len(chunks),
			Chunk: chunk,
		})
		if flusher != nil {
			flusher.Flush()
		}
	}

	_ = encoder.Encode(streamResponseEvent{
		Type:      "done",
		Total:     len(chunks),
		Assistant: result,
	})
	if flusher != nil {
		flusher.Flush()
	}
}

func splitByRunes(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSizeRunes
	}
	if utf8.RuneCountInString(text) <= chunkSize {
		return []string{text}
	}

	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+chunkSize-1)/chunkSize)
	for start := 0; start < len(runes); start += chunkSize {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func parseBoolQuery(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseChunkSize(raw string) int {
	size, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || size <= 0 {
		return defaultChunkSizeRunes
	}
	if size > maxChunkSizeRunes {
		return maxChunkSizeRunes
	}
	return size
}

func parseListLimit(raw string) int {
	const (
		defaultLimit = 20
		maxLimit     = 100
	)
	size, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || size <= 0 {
		return defaultLimit
	}
	if size > maxLimit {
		return maxLimit
	}
	return size
}

func (c *HTTPChannel) newID(prefix string) string {
	seq := atomic.AddUint64(&c.counter, 1)
	return prefix + "-" + strconv.FormatInt(time.Now().UnixNano(), 10) + "-" + strconv.FormatUint(seq, 10)
}
