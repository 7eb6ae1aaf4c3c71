package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ReminderStatusActive    = "active"
	ReminderStatusCompleted = "completed"
	ReminderStatusCancelled = "cancelled"
	ReminderStatusNotified  = "notified"
)

type Reminder struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	DueText     string `json:"due_text"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	DueAt       int64  `json:"due_at,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

type ReminderStore struct {
	db *DB
}

func NewReminderStore(database *DB) *ReminderStore {
	return &ReminderStore{db: database}
}

// CreateReminder persists a new active reminder. dueAt is the resolved due
// time in unix seconds, or 0 when the due text could not be parsed.
func (s *ReminderStore) CreateReminder(ctx context.Context, userID, title, dueText, description string, dueAt int64) (Reminder, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Reminder{}, fmt.Errorf("user_id is required")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled Reminder"
	}
	now := time.Now().Unix()
	r := Reminder{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       title,
		DueText:     strings.TrimSpace(dueText),
		Description: strings.TrimSpace(description),
		Status:      ReminderStatusActive,
		DueAt:       dueAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	query := `INSERT INTO reminders (id, user_id, title, due_text, description, status, due_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.Conn().ExecContext(ctx, query, r.ID, r.UserID, r.Title, r.DueText, r.Description, r.Status, nullableUnix(r.DueAt), r.CreatedAt, r.UpdatedAt); err != nil {
		return Reminder{}, err
	}
	return r, nil
}

func (s *ReminderStore) GetReminder(ctx context.Context, id string) (Reminder, error) {
	query := `SELECT id, user_id, title, due_text, COALESCE(description, ''), status, COALESCE(due_at, 0), created_at, updated_at FROM reminders WHERE id = ?`
	var r Reminder
	err := s.db.Conn().QueryRowContext(ctx, query, id).Scan(
		&r.ID,
		&r.UserID,
		&r.Title,
		&r.DueText,
		&r.Description,
		&r.Status,
		&r.DueAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return Reminder{}, err
	}
	return r, nil
}

func (s *ReminderStore) ListReminders(ctx context.Context, userID string, status string, limit int) ([]Reminder, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		query string
		args  []interface{}
	)
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "all":
		query = `SELECT id, user_id, title, due_text, COALESCE(description, ''), status, COALESCE(due_at, 0), created_at, updated_at FROM reminders WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{userID, limit}
	case ReminderStatusActive, ReminderStatusCompleted, ReminderStatusCancelled, ReminderStatusNotified:
		query = `SELECT id, user_id, title, due_text, COALESCE(description, ''), status, COALESCE(due_at, 0), created_at, updated_at FROM reminders WHERE user_id = ? AND status = ? ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{userID, strings.ToLower(strings.TrimSpace(status)), limit}
	default:
		return nil, fmt.Errorf("invalid status: %s", status)
	}

	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Reminder, 0, limit)
	for rows.Next() {
		var r Reminder
		if err := rows.Scan(&r.ID, &r.UserID, &r.Title, &r.DueText, &r.Description, &r.Status, &r.DueAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

// UpdateReminder rewrites the schedulable fields of an active reminder owned
// by userID. Empty title or dueText keeps the stored value; dueAt is always
// written so a reparse of the due text takes effect.
func (s *ReminderStore) UpdateReminder(ctx context.Context, id, userID, title, dueText string, dueAt int64) (Reminder, error) {
	current, err := s.GetReminder(ctx, id)
	if err != nil {
		return Reminder{}, err
	}
	if current.UserID != userID {
		return Reminder{}, sql.ErrNoRows
	}
	if t := strings.TrimSpace(title); t != "" {
		current.Title = t
	}
	if d := strings.TrimSpace(dueText); d != "" {
		current.DueText = d
	}
	current.DueAt = dueAt
	current.UpdatedAt = time.Now().Unix()

	query := `UPDATE reminders SET title = ?, due_text = ?, due_at = ?, updated_at = ? WHERE id = ? AND user_id = ?`
	if _, err := s.db.Conn().ExecContext(ctx, query, current.Title, current.DueText, nullableUnix(current.DueAt), current.UpdatedAt, id, userID); err != nil {
		return Reminder{}, err
	}
	return current, nil
}

func (s *ReminderStore) CompleteReminder(ctx context.Context, id, userID string) error {
	return s.setStatus(ctx, id, userID, ReminderStatusCompleted)
}

func (s *ReminderStore) CancelReminder(ctx context.Context, id, userID string) error {
	return s.setStatus(ctx, id, userID, ReminderStatusCancelled)
}

func (s *ReminderStore) setStatus(ctx context.Context, id, userID, status string) error {
	query := `UPDATE reminders SET status = ?, updated_at = ? WHERE id = ? AND user_id = ? AND status = ?`
	res, err := s.db.Conn().ExecContext(ctx, query, status, time.Now().Unix(), id, userID, ReminderStatusActive)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListDueReminders returns active reminders whose resolved due time has
// passed. Reminders without a resolved due time never come due.
func (s *ReminderStore) ListDueReminders(ctx context.Context, now int64, limit int) ([]Reminder, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, user_id, title, due_text, COALESCE(description, ''), status, COALESCE(due_at, 0), created_at, updated_at FROM reminders WHERE status = ? AND due_at IS NOT NULL AND due_at > 0 AND due_at <= ? ORDER BY due_at ASC LIMIT ?`
	rows, err := s.db.Conn().QueryContext(ctx, query, ReminderStatusActive, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Reminder, 0, limit)
	for rows.Next() {
		var r Reminder
		if err := rows.Scan(&r.ID, &r.UserID, &r.Title, &r.DueText, &r.Description, &r.Status, &r.DueAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

func (s *ReminderStore) MarkReminderNotified(ctx context.Context, id string) error {
	query := `UPDATE reminders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	_, err := s.db.Conn().ExecContext(ctx, query, ReminderStatusNotified, time.Now().Unix(), id, ReminderStatusActive)
	return err
}

func nullableUnix(v int64) interface{} {
	if v <= 0 {
		return nil
	}
	return v
}
