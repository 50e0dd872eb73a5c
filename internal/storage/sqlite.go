package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pilot/internal/chat"

	_ "modernc.org/sqlite"
)

// SQLiteStore 基于 SQLite (WAL 模式) 的会话持久化
// SQLiteStore persists sessions using SQLite with WAL mode
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore 创建并初始化 SQLite 数据库
// NewSQLiteStore creates and initializes a SQLite database
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// 启用 WAL 模式和优化 PRAGMA / Enable WAL and performance PRAGMAs
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL DEFAULT '',
		model      TEXT NOT NULL DEFAULT '',
		cwd        TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		seq        INTEGER NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL DEFAULT '',
		parts      TEXT NOT NULL DEFAULT '[]',
		reasoning  TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE(session_id, seq)
	);

	CREATE TABLE IF NOT EXISTS action_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		item_id    TEXT NOT NULL DEFAULT '',
		kind       TEXT NOT NULL,
		display    TEXT NOT NULL DEFAULT '',
		detail     TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL,
		result     TEXT NOT NULL DEFAULT '',
		error      TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
	CREATE INDEX IF NOT EXISTS idx_action_log_session ON action_log(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close 关闭数据库连接 / Close the database connection
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// --- Session Operations ---

func (s *SQLiteStore) CreateSession(meta SessionMeta) error {
	now := nowUTC()
	if strings.TrimSpace(meta.CreatedAt) == "" {
		meta.CreatedAt = now
	}
	if strings.TrimSpace(meta.UpdatedAt) == "" {
		meta.UpdatedAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, title, model, cwd, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.Title, meta.Model, meta.CWD, meta.CreatedAt, meta.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveSession(meta SessionMeta) error {
	meta.UpdatedAt = nowUTC()
	_, err := s.db.Exec(`
		UPDATE sessions SET title=?, model=?, cwd=?, updated_at=? WHERE id=?`,
		meta.Title, meta.Model, meta.CWD, meta.UpdatedAt, meta.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadSession(id string) (SessionMeta, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return SessionMeta{}, fmt.Errorf("session id is empty")
	}
	row := s.db.QueryRow(`
		SELECT id, title, model, cwd, created_at, updated_at
		FROM sessions WHERE id=?`, id)

	var meta SessionMeta
	err := row.Scan(&meta.ID, &meta.Title, &meta.Model, &meta.CWD,
		&meta.CreatedAt, &meta.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return SessionMeta{}, fmt.Errorf("session not found: %s", id)
		}
		return SessionMeta{}, fmt.Errorf("load session: %w", err)
	}
	return meta, nil
}

func (s *SQLiteStore) ListSessions() ([]SessionMeta, error) {
	rows, err := s.db.Query(`
		SELECT id, title, model, cwd, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var metas []SessionMeta
	for rows.Next() {
		var meta SessionMeta
		if err := rows.Scan(&meta.ID, &meta.Title, &meta.Model, &meta.CWD,
			&meta.CreatedAt, &meta.UpdatedAt); err != nil {
			continue
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// --- Message Operations ---

// SaveMessages 以整体覆盖的方式写入会话消息（压缩会改写历史）
// SaveMessages replaces the stored messages wholesale (compaction rewrites history)
func (s *SQLiteStore) SaveMessages(sessionID string, messages []chat.Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// 清除旧消息 / Clear old messages
	if _, err := tx.Exec("DELETE FROM messages WHERE session_id=?", sessionID); err != nil {
		return fmt.Errorf("delete old messages: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO messages (session_id, seq, role, content, parts, reasoning, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := nowUTC()
	for i, msg := range messages {
		if _, err := stmt.Exec(sessionID, i, msg.Role, msg.Content,
			partsToJSON(msg.MultiContent), msg.Reasoning, now); err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	// 更新 session 时间戳 / Update session timestamp
	if _, err := tx.Exec("UPDATE sessions SET updated_at=? WHERE id=?", now, sessionID); err != nil {
		return fmt.Errorf("update session timestamp: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadMessages(sessionID string) ([]chat.Message, error) {
	rows, err := s.db.Query(`
		SELECT role, content, parts, reasoning
		FROM messages WHERE session_id=? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var msg chat.Message
		var partsJSON string
		if err := rows.Scan(&msg.Role, &msg.Content, &partsJSON, &msg.Reasoning); err != nil {
			continue
		}
		msg.MultiContent = partsFromJSON(partsJSON)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// --- Action Log ---

// LogAction 追加一条动作执行记录 / LogAction appends one action execution record
func (s *SQLiteStore) LogAction(entry ActionEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO action_log (session_id, item_id, kind, display, detail, status, result, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID, entry.ItemID, entry.Kind, entry.Display, entry.Detail,
		entry.Status, entry.Result, entry.Error, nowUTC())
	if err != nil {
		return fmt.Errorf("log action: %w", err)
	}
	return nil
}

// --- Content Part Serialization ---

// partEnvelope 是多模态分段的存储形态
// partEnvelope is the stored form of a multi-modal content part
type partEnvelope struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	ImageURL *chat.ImageURL `json:"image_url,omitempty"`
}

func partsToJSON(parts []chat.ContentPart) string {
	if len(parts) == 0 {
		return "[]"
	}
	envs := make([]partEnvelope, 0, len(parts))
	for _, part := range parts {
		switch p := part.(type) {
		case chat.TextContent:
			envs = append(envs, partEnvelope{Type: "text", Text: p.Text})
		case chat.ImageContent:
			url := p.ImageURL
			envs = append(envs, partEnvelope{Type: "image_url", ImageURL: &url})
		}
	}
	data, err := json.Marshal(envs)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func partsFromJSON(raw string) []chat.ContentPart {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "[]" {
		return nil
	}
	var envs []partEnvelope
	if err := json.Unmarshal([]byte(raw), &envs); err != nil {
		return nil
	}
	var parts []chat.ContentPart
	for _, env := range envs {
		switch env.Type {
		case "text":
			parts = append(parts, chat.TextContent{Type: "text", Text: env.Text})
		case "image_url":
			img := chat.ImageContent{Type: "image_url"}
			if env.ImageURL != nil {
				img.ImageURL = *env.ImageURL
			}
			parts = append(parts, img)
		}
	}
	return parts
}

// --- Helpers ---

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
