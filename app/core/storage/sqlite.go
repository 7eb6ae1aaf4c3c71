package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// migration moves the schema from version to-1 to version to. Steps run in
// order inside one transaction; the slice defines the current version.
type migration struct {
	to    int
	apply func(*sql.Tx) error
}

var migrations = []migration{
	{to: 1, apply: createReminderTables},
	{to: 2, apply: addDueTimestamps},
}

func latestSchemaVersion() int {
	return migrations[len(migrations)-1].to
}

type DB struct {
	conn *sql.DB
	path string
}

type migrationError struct {
	backupPath string
	cause      error
}

func (e *migrationError) Error() string {
	return e.cause.Error()
}

func (e *migrationError) Unwrap() error {
	return e.cause
}

// NewSQLiteDB opens (or creates) the assistant database under dataDir and
// brings its schema up to date. A failed upgrade of an existing database is
// rolled back from the pre-migration backup.
func NewSQLiteDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "atlas.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	d := &DB{conn: conn, path: dbPath}
	if err := d.upgradeSchema(); err != nil {
		_ = conn.Close()

		var migrateErr *migrationError
		if errors.As(err, &migrateErr) && migrateErr.backupPath != "" {
			if rollbackErr := restoreFromBackup(migrateErr.backupPath, dbPath); rollbackErr != nil {
				return nil, fmt.Errorf("failed to init schema: %w; rollback from %s also failed: %v", migrateErr.cause, migrateErr.backupPath, rollbackErr)
			}
			return nil, fmt.Errorf("failed to init schema (rolled back from %s): %w", migrateErr.backupPath, migrateErr.cause)
		}
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return d, nil
}

func (d *DB) upgradeSchema() error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return err
	}

	version, err := storedSchemaVersion(tx)
	if err != nil {
		return err
	}
	target := latestSchemaVersion()
	if version > target {
		return fmt.Errorf("db schema version %d is newer than runtime version %d", version, target)
	}
	if version == target {
		return tx.Commit()
	}

	// Back up only databases that already hold data; a fresh file has
	// nothing to lose.
	var backupPath string
	if version > 0 {
		backupPath, err = d.backupBeforeMigration()
		if err != nil {
			return fmt.Errorf("create migration backup: %w", err)
		}
	}

	for _, m := range migrations {
		if m.to <= version {
			continue
		}
		if err := m.apply(tx); err != nil {
			err = fmt.Errorf("migrate schema %d -> %d: %w", m.to-1, m.to, err)
			if backupPath != "" {
				return &migrationError{backupPath: backupPath, cause: err}
			}
			return err
		}
		if err := recordSchemaVersion(tx, m.to); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func storedSchemaVersion(tx *sql.Tx) (int, error) {
	var text string
	err := tx.QueryRow(`SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&text)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	version, parseErr := strconv.Atoi(text)
	if parseErr != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", text, parseErr)
	}
	if version < 0 {
		return 0, fmt.Errorf("invalid schema version %d", version)
	}
	return version, nil
}

func recordSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec(`
INSERT INTO schema_meta (key, value) VALUES ('schema_version', ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.Itoa(version))
	return err
}

func createReminderTables(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reminders (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	due_text TEXT NOT NULL,
	description TEXT,
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_user_created ON reminders(user_id, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func addDueTimestamps(tx *sql.Tx) error {
	stmts := []string{
		`ALTER TABLE reminders ADD COLUMN due_at INTEGER`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_status_due ON reminders(status, due_at)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) backupBeforeMigration() (string, error) {
	if _, err := d.conn.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return "", fmt.Errorf("checkpoint wal: %w", err)
	}

	backupPath := fmt.Sprintf("%s.migration-%d.bak", d.path, time.Now().Unix())
	if err := copyFile(d.path, backupPath); err != nil {
		return "", err
	}
	return backupPath, nil
}

func restoreFromBackup(backupPath, dbPath string) error {
	if err := copyFile(backupPath, dbPath); err != nil {
		return err
	}
	_ = os.Remove(dbPath + "-wal")
	_ = os.Remove(dbPath + "-shm")
	return nil
}

func copyFile(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	target, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer target.Close()

	if _, err := io.Copy(target, source); err != nil {
		return err
	}
	return target.Sync()
}

func (d *DB) Conn() *sql.DB {
	return d.conn
}

func (d *DB) Close() error {
	return d.conn.Close()
}
