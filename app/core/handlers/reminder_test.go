package handlers

import (
	"context"
	"strings"
	"testing"
	"time"

	"atlas/app/core/intent"
	"atlas/app/core/storage"
)

func newTestReminderHandler(t *testing.T) (*ReminderHandler, *storage.ReminderStore) {
	t.Helper()
	db, err := storage.NewSQLiteDB(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store := storage.NewReminderStore(db)
	return NewReminderHandler(store), store
}

func userContext(userID string) map[string]interface{} {
	return map[string]interface{}{"user_id": userID}
}

func TestReminderCreateStripsTopicPrefix(t *testing.T) {
	h, store := newTestReminderHandler(t)
	it := intent.Intent{Type: intent.TypeReminder, Action: "create", RawText: "Remind me about the rent tomorrow"}
	entities := []intent.Entity{
		{Kind: "datetime", Value: "tomorrow"},
		{Kind: "topic", Value: "about the rent tomorrow"},
	}

	resp, err := h.Execute(context.Background(), it, entities, userContext("u1"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !resp.Success || !strings.Contains(resp.Message, "the rent tomorrow") {
		t.Fatalf("unexpected response: %#v", resp)
	}

	items, err := store.ListReminders(context.Background(), "u1", "active", 0)
	if err != nil {
		t.Fatalf("ListReminders: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one stored reminder, got %d", len(items))
	}
	if items[0].Title != "the rent tomorrow" || items[0].DueText != "tomorrow" {
		t.Fatalf("unexpected stored reminder: %#v", items[0])
	}
	if items[0].DueAt == 0 {
		t.Fatal("'tomorrow' should resolve to a due time")
	}
}

func TestReminderRequiresUserID(t *testing.T) {
	h, _ := newTestReminderHandler(t)
	it := intent.Intent{Type: intent.TypeReminder, Action: "list"}
	if _, err := h.Execute(context.Background(), it, nil, nil); err == nil {
		t.Fatal("expected error without user id")
	}
}

func TestReminderListIsUserScoped(t *testing.T) {
	h, store := newTestReminderHandler(t)
	ctx := context.Background()
	if _, err := store.CreateReminder(ctx, "u1", "mine", "", "", 0); err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}
	if _, err := store.CreateReminder(ctx, "u2", "theirs", "", "", 0); err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	resp, err := h.Execute(ctx, intent.Intent{Type: intent.TypeReminder, Action: "list"}, nil, userContext("u1"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Data["count"] != 1 {
		t.Fatalf("expected one reminder for u1: %#v", resp.Data)
	}
	if strings.Contains(resp.Message, "theirs") {
		t.Fatalf("other users' reminders leaked: %q", resp.Message)
	}
}

func TestReminderListEmpty(t *testing.T) {
	h, _ := newTestReminderHandler(t)
	resp, err := h.Execute(context.Background(), intent.Intent{Type: intent.TypeReminder, Action: "read"}, nil, userContext("u1"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !resp.Success || resp.Message != "You have no active reminders." {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestReminderDeleteMatchesByTopic(t *testing.T) {
	h, store := newTestReminderHandler(t)
	ctx := context.Background()
	if _, err := store.CreateReminder(ctx, "u1", "water the plants", "", "", 0); err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}
	if _, err := store.CreateReminder(ctx, "u1", "pay the rent", "", "", 0); err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	it := intent.Intent{Type: intent.TypeReminder, Action: "delete"}
	entities := []intent.Entity{{Kind: "topic", Value: "about the rent"}}
	resp, err := h.Execute(ctx, it, entities, userContext("u1"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !resp.Success || !strings.Contains(resp.Message, "pay the rent") {
		t.Fatalf("unexpected response: %#v", resp)
	}

	active, _ := store.ListReminders(ctx, "u1", "active", 0)
	if len(active) != 1 || active[0].Title != "water the plants" {
		t.Fatalf("wrong reminder cancelled: %#v", active)
	}
}

func TestReminderDeleteWithoutMatchIsSoftFailure(t *testing.T) {
	h, _ := newTestReminderHandler(t)
	it := intent.Intent{Type: intent.TypeReminder, Action: "delete"}
	entities := []intent.Entity{{Kind: "topic", Value: "about nothing"}}

	resp, err := h.Execute(context.Background(), it, entities, userContext("u1"))
	if err != nil {
		t.Fatalf("no-match must not be a hard error: %v", err)
	}
	if resp.Success || resp.Error != "no matching reminder found" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestReminderUpdateReschedulesNewest(t *testing.T) {
	h, store := newTestReminderHandler(t)
	ctx := context.Background()
	if _, err := store.CreateReminder(ctx, "u1", "standup", "today", "", 0); err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	it := intent.Intent{Type: intent.TypeReminder, Action: "update"}
	entities := []intent.Entity{
		{Kind: "datetime", Value: "in 2 hours"},
		{Kind: "topic", Value: "about standup"},
	}
	resp, err := h.Execute(ctx, it, entities, userContext("u1"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !resp.Success {
		t.Fatalf("unexpected response: %#v", resp)
	}

	items, _ := store.ListReminders(ctx, "u1", "active", 0)
	if len(items) != 1 || items[0].DueText != "in 2 hours" || items[0].DueAt == 0 {
		t.Fatalf("update not applied: %#v", items)
	}
}

func TestParseDueText(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		in   string
		want int64
	}{
		{"in 30 minutes", now.Add(30 * time.Minute).Unix()},
		{"in 2 hours", now.Add(2 * time.Hour).Unix()},
		{"in 1 day", now.AddDate(0, 0, 1).Unix()},
		{"in 2 weeks", now.AddDate(0, 0, 14).Unix()},
		{"tomorrow", now.AddDate(0, 0, 1).Unix()},
		{"today", now.Unix()},
		{"2026-03-05T09:00:00Z", time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC).Unix()},
		{"someday", 0},
		{"", 0},
	}
	for _, tc := range cases {
		if got := ParseDueText(tc.in, now); got != tc.want {
			t.Errorf("ParseDueText(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
