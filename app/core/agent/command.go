package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	config "atlas/app/configs"
	"atlas/app/core/assistant"
	"atlas/app/core/storage"
	"atlas/app/pkg/logger"
	"atlas/app/pkg/types"
)

// commandAuditBasePath is overridable in tests.
var commandAuditBasePath = filepath.Join("output", "logs")

type commandAuditEntry struct {
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	RequestID string `json:"request_id"`
	Command   string `json:"command"`
	Decision  string `json:"decision"`
	Reason    string `json:"reason,omitempty"`
}

// Executor handles slash commands. /config set is admin-only; every
// authorization decision is logged and appended to the audit trail.
type Executor struct {
	cfgMgr    *config.Manager
	service   *assistant.Service
	reminders *storage.ReminderStore

	mu             sync.RWMutex
	adminUsers     map[string]struct{}
	statusProvider func(context.Context) map[string]interface{}
	applyConfig    func(config.Config)
}

func NewExecutor(cfgMgr *config.Manager, service *assistant.Service, reminders *storage.ReminderStore, adminUserIDs []string) *Executor {
	e := &Executor{
		cfgMgr:    cfgMgr,
		service:   service,
		reminders: reminders,
	}
	e.SetAdminUsers(adminUserIDs)
	return e
}

func (e *Executor) SetAdminUsers(userIDs []string) {
	admins := make(map[string]struct{})
	for _, id := range userIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		admins[id] = struct{}{}
	}
	e.mu.Lock()
	e.adminUsers = admins
	e.mu.Unlock()
}

func (e *Executor) SetStatusProvider(provider func(context.Context) map[string]interface{}) {
	e.mu.Lock()
	e.statusProvider = provider
	e.mu.Unlock()
}

// SetConfigApplier registers the callback invoked after /config set persists
// a change, so running components can pick up the new values.
func (e *Executor) SetConfigApplier(apply func(config.Config)) {
	e.mu.Lock()
	e.applyConfig = apply
	e.mu.Unlock()
}

func (e *Executor) isAdminUser(userID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.adminUsers[strings.TrimSpace(userID)]
	return ok
}

func (e *Executor) ExecuteSlash(ctx context.Context, msg types.Message) (string, bool, error) {
	cmd := strings.TrimSpace(strings.TrimPrefix(msg.Content, "/"))
	if cmd == "" {
		return "", false, nil
	}
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return "", false, nil
	}

	if err := e.authorizeCommand(msg.UserID, parts); err != nil {
		e.recordAudit(msg, cmd, "deny", err.Error())
		return "", true, err
	}
	e.recordAudit(msg, cmd, "allow", "")

	switch parts[0] {
	case "help":
		return e.helpText(), true, nil
	case "capabilities":
		return e.capabilitiesText(), true, nil
	case "reminders":
		out, err := e.remindersText(ctx, msg.UserID, parts[1:])
		return out, true, err
	case "status":
		out, err := e.statusText(ctx)
		return out, true, err
	case "config":
		out, err := e.executeConfigCommand(parts[1:])
		return out, true, err
	default:
		return "", true, fmt.Errorf("unknown command: %s", parts[0])
	}
}

// authorizeCommand enforces the admin requirement on mutating commands.
// Read-only commands are open to everyone.
func (e *Executor) authorizeCommand(userID string, parts []string) error {
	if len(parts) == 0 {
		return nil
	}
	adminOnly := false
	if parts[0] == "config" && len(parts) > 1 && strings.EqualFold(parts[1], "set") {
		adminOnly = true
	}
	if adminOnly && !e.isAdminUser(userID) {
		return fmt.Errorf("permission denied: /%s requires admin", strings.Join(parts[:2], " "))
	}
	return nil
}

func (e *Executor) recordAudit(msg types.Message, command, decision, reason string) {
	logger.Info("%s", formatAuditCommandLine(msg.UserID, msg.ChannelID, msg.RequestID, command, decision, reason))
	if err := appendCommandAuditEntry(time.Now().UTC(), msg.UserID, msg.ChannelID, msg.RequestID, command, decision, reason); err != nil {
		logger.Error("Failed to append command audit entry: %v", err)
	}
}

func (e *Executor) helpText() string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	b.WriteString("  /help\n")
	b.WriteString("  /capabilities\n")
	b.WriteString("  /reminders [active|completed|cancelled|all]\n")
	b.WriteString("  /status\n")
	b.WriteString("Config:\n")
	b.WriteString("  /config\n")
	b.WriteString("  /config get [key]\n")
	b.WriteString("  /config set <key> <value>  (admin)\n")
	return strings.TrimSpace(b.String())
}

func (e *Executor) capabilitiesText() string {
	if e.service == nil {
		return "Capabilities are not available."
	}
	desc := e.service.Capabilities()

	names := make([]string, 0, len(desc.AvailableCapabilities))
	for name := range desc.AvailableCapabilities {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Capabilities:\n")
	for _, name := range names {
		c := desc.AvailableCapabilities[name]
		b.WriteString(fmt.Sprintf("  %s: %s (%s)\n", c.Name, c.Description, strings.Join(c.Actions, ", ")))
	}
	b.WriteString(fmt.Sprintf("Confidence threshold: %.2f\n", desc.ConfidenceThreshold))
	b.WriteString("Supported intents: ")
	b.WriteString(strings.Join(desc.SupportedIntents, ", "))
	return strings.TrimSpace(b.String())
}

func (e *Executor) remindersText(ctx context.Context, userID string, args []string) (string, error) {
	if e.reminders == nil {
		return "", fmt.Errorf("reminder store is not available")
	}
	if strings.TrimSpace(userID) == "" {
		userID = "anonymous"
	}
	status := storage.ReminderStatusActive
	if len(args) > 0 {
		status = strings.ToLower(strings.TrimSpace(args[0]))
	}
	items, err := e.reminders.ListReminders(ctx, userID, status, 30)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "No reminders found.", nil
	}
	var b strings.Builder
	b.WriteString("Reminders:\n")
	for _, r := range items {
		line := fmt.Sprintf("  %s [%s] %s", r.ID, r.Status, r.Title)
		if r.DueText != "" {
			line += fmt.Sprintf(" (%s)", r.DueText)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), nil
}

func (e *Executor) statusText(ctx context.Context) (string, error) {
	e.mu.RLock()
	provider := e.statusProvider
	e.mu.RUnlock()
	if provider == nil {
		return "Status is not available.", nil
	}
	snapshot := provider(ctx)
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("Status:\n")
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("  %s: %v\n", k, snapshot[k]))
	}
	return strings.TrimSpace(b.String()), nil
}

// executeConfigCommand reads and writes config values addressed by JSON path
// (e.g. "assistant.confidence_threshold").
func (e *Executor) executeConfigCommand(args []string) (string, error) {
	if e.cfgMgr == nil {
		return "", fmt.Errorf("config manager is not available")
	}
	raw, err := json.Marshal(e.cfgMgr.Get())
	if err != nil {
		return "", err
	}

	if len(args) == 0 || strings.EqualFold(args[0], "get") {
		key := ""
		if len(args) > 1 {
			key = args[1]
		}
		if key == "" {
			pretty, err := json.MarshalIndent(e.cfgMgr.Get(), "", "  ")
			if err != nil {
				return "", err
			}
			return "Config:\n" + string(pretty), nil
		}
		value := gjson.GetBytes(raw, key)
		if !value.Exists() {
			return "", fmt.Errorf("unknown config key: %s", key)
		}
		return fmt.Sprintf("%s = %s", key, value.Raw), nil
	}

	if strings.EqualFold(args[0], "set") {
		if len(args) < 3 {
			return "", fmt.Errorf("usage: /config set <key> <value>")
		}
		key := args[1]
		if !gjson.GetBytes(raw, key).Exists() {
			return "", fmt.Errorf("unknown config key: %s", key)
		}
		updatedRaw, err := sjson.SetBytes(raw, key, coerceValue(strings.Join(args[2:], " ")))
		if err != nil {
			return "", fmt.Errorf("set %s: %w", key, err)
		}
		var next config.Config
		if err := json.Unmarshal(updatedRaw, &next); err != nil {
			return "", fmt.Errorf("invalid value for %s: %w", key, err)
		}
		next = config.NormalizeConfig(next)

		saved, err := e.cfgMgr.Update(func(cfg *config.Config) { *cfg = next })
		if err != nil {
			return "", err
		}

		e.mu.RLock()
		apply := e.applyConfig
		e.mu.RUnlock()
		if apply != nil {
			apply(saved)
		}
		return fmt.Sprintf("Updated %s = %s", key, gjson.Get(mustJSON(saved), key).Raw), nil
	}

	// bare key shorthand: /config assistant.home_location
	key := args[0]
	value := gjson.GetBytes(raw, key)
	if !value.Exists() {
		return "", fmt.Errorf("unknown config key: %s", key)
	}
	return fmt.Sprintf("%s = %s", key, value.Raw), nil
}

// coerceValue maps the textual command argument onto the JSON type it parses
// as, so sjson writes booleans and numbers instead of quoted strings.
func coerceValue(raw string) interface{} {
	trimmed := strings.TrimSpace(raw)
	if b, err := strconv.ParseBool(trimmed); err == nil {
		return b
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	return trimmed
}

func mustJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func formatAuditCommandLine(userID, channelID, requestID, command, decision, reason string) string {
	if strings.TrimSpace(userID) == "" {
		userID = "anonymous"
	}
	if strings.TrimSpace(channelID) == "" {
		channelID = "unknown"
	}
	if strings.TrimSpace(requestID) == "" {
		requestID = "n/a"
	}
	line := fmt.Sprintf("[AUDIT] user=%s channel=%s request=%s decision=%s command=%q", userID, channelID, requestID, decision, strings.TrimSpace(command))
	if strings.TrimSpace(reason) != "" {
		line += fmt.Sprintf(" reason=%q", strings.TrimSpace(reason))
	}
	return line
}

func appendCommandAuditEntry(ts time.Time, userID, channelID, requestID, command, decision, reason string) error {
	if strings.TrimSpace(userID) == "" {
		userID = "anonymous"
	}
	if strings.TrimSpace(channelID) == "" {
		channelID = "unknown"
	}
	if strings.TrimSpace(requestID) == "" {
		requestID = "n/a"
	}
	entry := commandAuditEntry{
		Timestamp: ts.Format(time.RFC3339),
		UserID:    userID,
		ChannelID: channelID,
		RequestID: requestID,
		Command:   strings.TrimSpace(command),
		Decision:  decision,
		Reason:    strings.TrimSpace(reason),
	}

	dir := filepath.Join(commandAuditBasePath, ts.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, "command_permission.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}
