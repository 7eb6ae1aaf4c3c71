package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"atlas/app/core/assistant"
	"atlas/app/core/intent"
	"atlas/app/core/storage"
)

var relativeDuePattern = regexp.MustCompile(`(?i)in\s+(\d+)\s+(minutes?|hours?|days?|weeks?)`)

// ReminderHandler manages persisted reminders. All operations are scoped to
// the requesting user taken from the handler context.
type ReminderHandler struct {
	store *storage.ReminderStore
	now   func() time.Time
}

func NewReminderHandler(store *storage.ReminderStore) *ReminderHandler {
	return &ReminderHandler{store: store, now: time.Now}
}

func (h *ReminderHandler) Execute(ctx context.Context, it intent.Intent, entities []intent.Entity, reqContext map[string]interface{}) (assistant.HandlerResponse, error) {
	userID := contextUserID(reqContext)
	if userID == "" {
		return assistant.HandlerResponse{}, fmt.Errorf("reminder request without user id")
	}

	switch it.Action {
	case "create":
		return h.create(ctx, it, entities, userID)
	case "read", "list":
		return h.list(ctx, userID)
	case "update":
		return h.update(ctx, entities, userID)
	case "delete":
		return h.cancel(ctx, entities, userID)
	default:
		return assistant.HandlerResponse{}, fmt.Errorf("unsupported reminder action %q", it.Action)
	}
}

func (h *ReminderHandler) Capability() assistant.Capability {
	return assistant.Capability{
		Name:        "reminders",
		Description: "Create and manage reminders",
		Actions:     []string{"create", "read", "update", "delete", "list"},
		Examples: []string{
			"Remind me to call mom tomorrow",
			"Set a reminder for the meeting in 2 hours",
			"Show my reminders",
		},
	}
}

func (h *ReminderHandler) create(ctx context.Context, it intent.Intent, entities []intent.Entity, userID string) (assistant.HandlerResponse, error) {
	title := stripTopicPrefix(firstValue(entities, "topic"))
	dueText := firstValue(entities, "datetime")
	dueAt := ParseDueText(dueText, h.now())

	reminder, err := h.store.CreateReminder(ctx, userID, title, dueText, it.RawText, dueAt)
	if err != nil {
		return assistant.HandlerResponse{}, err
	}

	message := fmt.Sprintf("Reminder set: %q", reminder.Title)
	if reminder.DueText != "" {
		message = fmt.Sprintf("Reminder set: %q (%s)", reminder.Title, reminder.DueText)
	}
	return assistant.HandlerResponse{
		Success: true,
		Message: message,
		Data:    map[string]interface{}{"reminder": reminder},
	}, nil
}

func (h *ReminderHandler) list(ctx context.Context, userID string) (assistant.HandlerResponse, error) {
	items, err := h.store.ListReminders(ctx, userID, storage.ReminderStatusActive, 20)
	if err != nil {
		return assistant.HandlerResponse{}, err
	}
	if len(items) == 0 {
		return assistant.HandlerResponse{
			Success: true,
			Message: "You have no active reminders.",
			Data:    map[string]interface{}{"reminders": items, "count": 0},
		}, nil
	}

	var lines []string
	for i, r := range items {
		line := fmt.Sprintf("%d. %s", i+1, r.Title)
		if r.DueText != "" {
			line += fmt.Sprintf(" (%s)", r.DueText)
		}
		lines = append(lines, line)
	}
	return assistant.HandlerResponse{
		Success: true,
		Message: fmt.Sprintf("You have %d active reminder(s):\n%s", len(items), strings.Join(lines, "\n")),
		Data:    map[string]interface{}{"reminders": items, "count": len(items)},
	}, nil
}

func (h *ReminderHandler) update(ctx context.Context, entities []intent.Entity, userID string) (assistant.HandlerResponse, error) {
	target, err := h.findTarget(ctx, entities, userID)
	if err != nil {
		return assistant.HandlerResponse{}, err
	}
	if target == nil {
		return noMatchResponse(), nil
	}

	dueText := firstValue(entities, "datetime")
	dueAt := ParseDueText(dueText, h.now())
	updated, err := h.store.UpdateReminder(ctx, target.ID, userID, "", dueText, dueAt)
	if err != nil {
		return assistant.HandlerResponse{}, err
	}
	return assistant.HandlerResponse{
		Success: true,
		Message: fmt.Sprintf("Updated reminder %q (%s).", updated.Title, updated.DueText),
		Data:    map[string]interface{}{"reminder": updated},
	}, nil
}

func (h *ReminderHandler) cancel(ctx context.Context, entities []intent.Entity, userID string) (assistant.HandlerResponse, error) {
	target, err := h.findTarget(ctx, entities, userID)
	if err != nil {
		return assistant.HandlerResponse{}, err
	}
	if target == nil {
		return noMatchResponse(), nil
	}

	if err := h.store.CancelReminder(ctx, target.ID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return noMatchResponse(), nil
		}
		return assistant.HandlerResponse{}, err
	}
	return assistant.HandlerResponse{
		Success: true,
		Message: fmt.Sprintf("Cancelled reminder %q.", target.Title),
		Data:    map[string]interface{}{"reminder_id": target.ID},
	}, nil
}

// findTarget picks the reminder an update or delete refers to: the newest
// active reminder whose title contains the topic, or the newest active
// reminder when no topic narrows it down.
func (h *ReminderHandler) findTarget(ctx context.Context, entities []intent.Entity, userID string) (*storage.Reminder, error) {
	items, err := h.store.ListReminders(ctx, userID, storage.ReminderStatusActive, 50)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	topic := strings.ToLower(stripTopicPrefix(firstValue(entities, "topic")))
	if topic == "" {
		return &items[0], nil
	}
	for i := range items {
		if strings.Contains(strings.ToLower(items[i].Title), topic) {
			return &items[i], nil
		}
	}
	return nil, nil
}

func noMatchResponse() assistant.HandlerResponse {
	return assistant.HandlerResponse{
		Success: false,
		Message: "I couldn't find a matching reminder.",
		Error:   "no matching reminder found",
	}
}

// ParseDueText resolves a due phrase to unix seconds. Supported forms are
// relative offsets ("in 30 minutes", "in 2 days"), "today"/"tomorrow" and
// RFC 3339 timestamps. Anything else resolves to 0, meaning unscheduled.
func ParseDueText(dueText string, now time.Time) int64 {
	dueText = strings.TrimSpace(dueText)
	if dueText == "" {
		return 0
	}

	if m := relativeDuePattern.FindStringSubmatch(dueText); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return 0
		}
		switch strings.ToLower(strings.TrimSuffix(m[2], "s")) {
		case "minute":
			return now.Add(time.Duration(n) * time.Minute).Unix()
		case "hour":
			return now.Add(time.Duration(n) * time.Hour).Unix()
		case "day":
			return now.AddDate(0, 0, n).Unix()
		case "week":
			return now.AddDate(0, 0, 7*n).Unix()
		}
	}

	switch strings.ToLower(dueText) {
	case "today":
		return now.Unix()
	case "tomorrow":
		return now.AddDate(0, 0, 1).Unix()
	}

	if ts, err := time.Parse(time.RFC3339, dueText); err == nil {
		return ts.Unix()
	}
	return 0
}

// stripTopicPrefix drops the connective the topic extractor keeps as part of
// the match ("about the rent" -> "the rent").
func stripTopicPrefix(value string) string {
	fields := strings.Fields(value)
	if len(fields) > 1 {
		switch strings.ToLower(fields[0]) {
		case "about", "regarding", "concerning":
			return strings.Join(fields[1:], " ")
		}
	}
	return value
}

func contextUserID(reqContext map[string]interface{}) string {
	if reqContext == nil {
		return ""
	}
	if v, ok := reqContext["user_id"].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
