package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pkg/errors"
)

// SQLiteStore maps the document operations onto single SQL statements.
// Pending lists live in their own table so append and clear never rewrite
// the conversation row.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, errors.Wrap(err, "sqliteStore.Open")
	}
	// a single writer avoids SQLITE_BUSY under concurrent sends
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqliteStore.Ping")
	}

	s := &SQLiteStore{db: db}
	if err = s.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqliteStore.initSchema")
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY,
        user_a TEXT NOT NULL,
        user_b TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        UNIQUE (user_a, user_b)
    );

    CREATE TABLE IF NOT EXISTS pending (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        conversation_id TEXT NOT NULL,
        slot TEXT NOT NULL CHECK (slot IN ('a', 'b')),
        message_id TEXT NOT NULL,
        UNIQUE (conversation_id, slot, message_id),
        FOREIGN KEY (conversation_id) REFERENCES conversations (id)
    );

    CREATE TABLE IF NOT EXISTS messages (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT UNIQUE NOT NULL,
        conversation_id TEXT NOT NULL,
        sender_id TEXT NOT NULL,
        text TEXT NOT NULL,
        client_msg_id TEXT,
        created_at DATETIME NOT NULL,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id)
    );

    CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_client_conversation
        ON messages (sender_id, conversation_id, client_msg_id) WHERE client_msg_id IS NOT NULL;
    CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, seq);

    CREATE TABLE IF NOT EXISTS conversation_index (
        user_id TEXT NOT NULL,
        conversation_id TEXT NOT NULL,
        added_at DATETIME NOT NULL,
        PRIMARY KEY (user_id, conversation_id)
    );

    CREATE TABLE IF NOT EXISTS accounts (
        user_id TEXT PRIMARY KEY,
        status TEXT NOT NULL DEFAULT 'active',
        display_name TEXT NOT NULL DEFAULT '',
        avatar_url TEXT NOT NULL DEFAULT ''
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// Conversation methods

func (s *SQLiteStore) UpsertConversation(ctx context.Context, a, b string) (*Conversation, bool, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, user_a, user_b, created_at) VALUES (?, ?, ?, ?) ON CONFLICT (user_a, user_b) DO NOTHING",
		uuid.NewString(), a, b, time.Now().UTC())
	if err != nil {
		return nil, false, errors.Wrap(err, "sqliteStore.UpsertConversation.Insert")
	}
	affected, _ := res.RowsAffected()
	conv, err := s.FindConversation(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	return conv, affected == 1, nil
}

func (s *SQLiteStore) FindConversation(ctx context.Context, a, b string) (*Conversation, error) {
	return s.scanConversation(ctx, "SELECT id, user_a, user_b, created_at FROM conversations WHERE user_a = ? AND user_b = ?", a, b)
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	return s.scanConversation(ctx, "SELECT id, user_a, user_b, created_at FROM conversations WHERE id = ?", id)
}

func (s *SQLiteStore) scanConversation(ctx context.Context, query string, args ...any) (*Conversation, error) {
	var c Conversation
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&c.ID, &c.UserA, &c.UserB, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "sqliteStore.scanConversation")
	}

	rows, err := s.db.QueryContext(ctx, "SELECT slot, message_id FROM pending WHERE conversation_id = ? ORDER BY seq ASC", c.ID)
	if err != nil {
		return nil, errors.Wrap(err, "sqliteStore.scanConversation.Pending")
	}
	defer rows.Close()

	c.PendingForA, c.PendingForB = []string{}, []string{}
	for rows.Next() {
		var slot, id string
		if err := rows.Scan(&slot, &id); err != nil {
			return nil, errors.Wrap(err, "sqliteStore.scanConversation.Scan")
		}
		if Slot(slot) == SlotA {
			c.PendingForA = append(c.PendingForA, id)
		} else {
			c.PendingForB = append(c.PendingForB, id)
		}
	}
	return &c, rows.Err()
}

func (s *SQLiteStore) AppendPending(ctx context.Context, conversationID string, slot Slot, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO pending (conversation_id, slot, message_id) SELECT id, ?, ? FROM conversations WHERE id = ?",
		string(slot), messageID, conversationID)
	if err != nil {
		return errors.Wrap(err, "sqliteStore.AppendPending")
	}
	return nil
}

func (s *SQLiteStore) RemovePending(ctx context.Context, conversationID string, slot Slot, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM pending WHERE conversation_id = ? AND slot = ? AND message_id = ?",
		conversationID, string(slot), messageID)
	if err != nil {
		return errors.Wrap(err, "sqliteStore.RemovePending")
	}
	return nil
}

func (s *SQLiteStore) ClearPending(ctx context.Context, conversationID string, slot Slot) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM pending WHERE conversation_id = ? AND slot = ?", conversationID, string(slot))
	if err != nil {
		return errors.Wrap(err, "sqliteStore.ClearPending")
	}
	return nil
}

// Message methods

const messageColumns = "id, conversation_id, sender_id, text, client_msg_id, created_at"

func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *Message) (*Message, bool, error) {
	m := *msg
	m.ID = uuid.NewString()
	m.CreatedAt = time.Now().UTC()

	clientID := sql.NullString{String: m.ClientMsgID, Valid: m.ClientMsgID != ""}
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO messages (id, conversation_id, sender_id, text, client_msg_id, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		m.ID, m.ConversationID, m.SenderID, m.Text, clientID, m.CreatedAt)
	if err != nil {
		return nil, false, errors.Wrap(err, "sqliteStore.InsertMessage")
	}
	if affected, _ := res.RowsAffected(); affected == 1 {
		return &m, false, nil
	}

	existing, err := s.queryMessages(ctx, "SELECT "+messageColumns+" FROM messages WHERE sender_id = ? AND conversation_id = ? AND client_msg_id = ?",
		m.SenderID, m.ConversationID, m.ClientMsgID)
	if err != nil {
		return nil, false, err
	}
	if len(existing) == 0 {
		return nil, false, errors.New("sqliteStore.InsertMessage: insert ignored without a matching message")
	}
	return &existing[0], true, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]Message, error) {
	return s.queryMessages(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE conversation_id = ? ORDER BY seq DESC LIMIT ? OFFSET ?",
		conversationID, limit, offset)
}

func (s *SQLiteStore) GetMessages(ctx context.Context, ids []string) ([]Message, error) {
	if len(ids) == 0 {
		return []Message{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	return s.queryMessages(ctx, "SELECT "+messageColumns+" FROM messages WHERE id IN ("+placeholders+") ORDER BY seq ASC", args...)
}

func (s *SQLiteStore) LastMessage(ctx context.Context, conversationID string) (*Message, error) {
	msgs, err := s.ListMessages(ctx, conversationID, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}
	return &msgs[0], nil
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqliteStore.queryMessages")
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		var clientID sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Text, &clientID, &m.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "sqliteStore.queryMessages.Scan")
		}
		m.ClientMsgID = clientID.String
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Index methods

func (s *SQLiteStore) AddToIndex(ctx context.Context, userID, conversationID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO conversation_index (user_id, conversation_id, added_at) VALUES (?, ?, ?)",
		userID, conversationID, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "sqliteStore.AddToIndex")
	}
	return nil
}

func (s *SQLiteStore) ListIndex(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT conversation_id FROM conversation_index WHERE user_id = ? ORDER BY added_at ASC, rowid ASC", userID)
	if err != nil {
		return nil, errors.Wrap(err, "sqliteStore.ListIndex")
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "sqliteStore.ListIndex.Scan")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Account methods

func (s *SQLiteStore) GetAccount(ctx context.Context, userID string) (*Account, error) {
	var a Account
	var status string
	err := s.db.QueryRowContext(ctx, "SELECT user_id, status, display_name, avatar_url FROM accounts WHERE user_id = ?", userID).
		Scan(&a.UserID, &status, &a.DisplayName, &a.AvatarURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "sqliteStore.GetAccount")
	}
	a.Status = AccountStatus(status)
	return &a, nil
}

func (s *SQLiteStore) UpsertAccount(ctx context.Context, acc *Account) error {
	status := acc.Status
	if status == "" {
		status = StatusActive
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO accounts (user_id, status, display_name, avatar_url) VALUES (?, ?, ?, ?)
        ON CONFLICT (user_id) DO UPDATE SET
            status = excluded.status,
            display_name = excluded.display_name,
            avatar_url = excluded.avatar_url`,
		acc.UserID, string(status), acc.DisplayName, acc.AvatarURL)
	if err != nil {
		return errors.Wrap(err, "sqliteStore.UpsertAccount")
	}
	return nil
}
