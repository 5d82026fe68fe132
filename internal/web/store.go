package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"echomind/internal/memory"
)

var (
	ErrUserExists   = errors.New("username already exists")
	ErrUserNotFound = errors.New("user not found")
	ErrFileNotFound = errors.New("file not found")
	ErrNoSession    = errors.New("no session")
)

type User struct {
	ID           string         `json:"id"`
	Username     string         `json:"username"`
	PasswordHash string         `json:"-"`
	Email        string         `json:"email"`
	CreatedAt    time.Time      `json:"created_at"`
	Preferences  map[string]any `json:"preferences"`
}

type File struct {
	ID           string    `json:"id"`
	UserID       string    `json:"-"`
	OriginalName string    `json:"original_filename"`
	SavedName    string    `json:"saved_filename"`
	ContentType  string    `json:"file_type"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `json:"uploaded_at"`
	Status       string    `json:"processing_status"`
	Summary      string    `json:"summary"`
	Text         string    `json:"-"`
}

// Store keeps accounts, sessions, conversations, memories and file records
// in one SQLite database.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the database at path. ":memory:"
// gives a private in-memory database.
func OpenStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: SQLite has a single writer, and :memory: is per connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		preferences TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);

	CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		user_text TEXT NOT NULL,
		assistant_text TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_user_id ON turns(user_id);

	CREATE TABLE IF NOT EXISTS memories (
		user_id TEXT PRIMARY KEY,
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		original_name TEXT NOT NULL,
		saved_name TEXT NOT NULL,
		content_type TEXT NOT NULL,
		size INTEGER NOT NULL,
		uploaded_at INTEGER NOT NULL,
		status TEXT NOT NULL,
		summary TEXT NOT NULL,
		text TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_files_user_id ON files(user_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ───── users ─────

func (s *Store) CreateUser(ctx context.Context, u *User) error {
	prefs, err := json.Marshal(orEmpty(u.Preferences))
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, email, preferences, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.Email, string(prefs), u.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, email, preferences, created_at FROM users WHERE id = ?`, id))
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, email, preferences, created_at FROM users WHERE username = ?`, username))
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var (
		u       User
		prefs   string
		created int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email, &prefs, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = time.UnixMilli(created)
	if err := json.Unmarshal([]byte(prefs), &u.Preferences); err != nil || u.Preferences == nil {
		u.Preferences = map[string]any{}
	}
	return &u, nil
}

// UpdateProfile overwrites the editable profile fields.
func (s *Store) UpdateProfile(ctx context.Context, u *User) error {
	prefs, err := json.Marshal(orEmpty(u.Preferences))
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET email = ?, preferences = ? WHERE id = ?`, u.Email, string(prefs), u.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// ───── sessions ─────

func (s *Store) CreateSession(ctx context.Context, token, userID string, expires time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)`, token, userID, expires.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SessionUser returns the user id behind a token that has not expired.
func (s *Store) SessionUser(ctx context.Context, token string, now time.Time) (string, error) {
	var (
		userID  string
		expires int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM sessions WHERE token = ?`, token).Scan(&userID, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("get session: %w", err)
	}
	if now.UnixMilli() >= expires {
		_ = s.DeleteSession(ctx, token)
		return "", ErrNoSession
	}
	return userID, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ───── conversation and memory ─────

func (s *Store) LoadTurns(ctx context.Context, userID string) ([]memory.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_text, assistant_text, created_at FROM turns WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []memory.Turn
	for rows.Next() {
		var (
			t  memory.Turn
			at int64
		)
		if err := rows.Scan(&t.User, &t.Assistant, &at); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Timestamp = time.UnixMilli(at)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// SaveTurns replaces the user's stored conversation with the newest
// memory.MaxTurns of turns.
func (s *Store) SaveTurns(ctx context.Context, userID string, turns []memory.Turn) error {
	if len(turns) > memory.MaxTurns {
		turns = turns[len(turns)-memory.MaxTurns:]
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete turns: %w", err)
	}
	for _, t := range turns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO turns (user_id, user_text, assistant_text, created_at) VALUES (?, ?, ?, ?)`,
			userID, t.User, t.Assistant, t.Timestamp.UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}
	return tx.Commit()
}

// LoadMemory returns nil, nil for a user with nothing stored yet.
func (s *Store) LoadMemory(ctx context.Context, userID string) (memory.Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM memories WHERE user_id = ?`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	var snap memory.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("decode memory: %w", err)
	}
	return snap, nil
}

func (s *Store) SaveMemory(ctx context.Context, userID string, snap memory.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode memory: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (user_id, data) VALUES (?, ?) ON CONFLICT(user_id) DO UPDATE SET data = excluded.data`,
		userID, string(data))
	if err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	return nil
}

// ───── files ─────

func (s *Store) AddFile(ctx context.Context, f *File) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (id, user_id, original_name, saved_name, content_type, size, uploaded_at, status, summary, text)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.UserID, f.OriginalName, f.SavedName, f.ContentType, f.Size, f.UploadedAt.UnixMilli(), f.Status, f.Summary, f.Text,
	)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

const fileColumns = `id, user_id, original_name, saved_name, content_type, size, uploaded_at, status, summary, text`

func (s *Store) Files(ctx context.Context, userID string) ([]File, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE user_id = ? ORDER BY uploaded_at, rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	files := []File{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

// File only finds files owned by userID.
func (s *Store) File(ctx context.Context, userID, id string) (*File, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE user_id = ? AND id = ?`, userID, id)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	return f, err
}

func (s *Store) DeleteFile(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrFileNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(sc scanner) (*File, error) {
	var (
		f  File
		at int64
	)
	err := sc.Scan(&f.ID, &f.UserID, &f.OriginalName, &f.SavedName, &f.ContentType, &f.Size, &at, &f.Status, &f.Summary, &f.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	f.UploadedAt = time.UnixMilli(at)
	return &f, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
