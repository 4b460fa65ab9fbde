// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides tenant/conversation/message/ban persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tenants (
			id            TEXT PRIMARY KEY,
			owner_user_id INTEGER NOT NULL,
			token         TEXT NOT NULL UNIQUE,
			bot_username  TEXT NOT NULL,
			bot_id        INTEGER NOT NULL,
			group_id      INTEGER NOT NULL DEFAULT 0,
			active        INTEGER NOT NULL DEFAULT 1,
			welcome_json  TEXT,
			info_json     TEXT,
			created_at    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			tenant_id  TEXT NOT NULL,
			user_id    INTEGER NOT NULL,
			username   TEXT,
			first_name TEXT,
			last_name  TEXT,
			thread_id  INTEGER NOT NULL DEFAULT 0,
			status     TEXT NOT NULL DEFAULT 'waiting',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			FOREIGN KEY (tenant_id) REFERENCES tenants(id),
			CHECK (status IN ('waiting', 'answered', 'hold', 'banned', 'ended'))
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_tenant_user
			ON conversations(tenant_id, user_id);

		CREATE INDEX IF NOT EXISTS idx_conversations_thread
			ON conversations(thread_id);

		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			external_id     INTEGER NOT NULL,
			from_user       INTEGER NOT NULL,
			content         TEXT,
			kind            TEXT NOT NULL DEFAULT 'text',
			created_at      TEXT NOT NULL,

			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS bans (
			tenant_id  TEXT NOT NULL,
			user_id    INTEGER NOT NULL,
			created_at TEXT NOT NULL,

			PRIMARY KEY (tenant_id, user_id),
			FOREIGN KEY (tenant_id) REFERENCES tenants(id)
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isConstraintViolation reports whether err is a SQLite uniqueness/constraint error.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString converts empty strings to nil for nullable columns.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func marshalLocaleMap(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshaling locale map: %w", err)
	}
	return string(data), nil
}

func unmarshalLocaleMap(raw sql.NullString) (map[string]string, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
		return nil, fmt.Errorf("unmarshaling locale map: %w", err)
	}
	return m, nil
}

// CreateTenant inserts a new tenant row.
// Returns ErrDuplicateTenant if the credential is already registered.
func (s *SQLiteStore) CreateTenant(ctx context.Context, tenant *Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = time.Now().UTC()
	}

	welcome, err := marshalLocaleMap(tenant.WelcomeText)
	if err != nil {
		return err
	}
	info, err := marshalLocaleMap(tenant.InfoText)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tenants (id, owner_user_id, token, bot_username, bot_id, group_id, active, welcome_json, info_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		tenant.ID,
		tenant.OwnerUserID,
		tenant.Token,
		tenant.BotUsername,
		tenant.BotID,
		tenant.GroupID,
		boolToInt(tenant.Active),
		nullString(welcome),
		nullString(info),
		tenant.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateTenant
		}
		return fmt.Errorf("inserting tenant: %w", err)
	}
	return nil
}

const tenantColumns = `id, owner_user_id, token, bot_username, bot_id, group_id, active, welcome_json, info_json, created_at`

func (s *SQLiteStore) scanTenant(row interface{ Scan(...any) error }) (*Tenant, error) {
	var t Tenant
	var active int
	var welcome, info sql.NullString
	var createdAt string

	err := row.Scan(&t.ID, &t.OwnerUserID, &t.Token, &t.BotUsername, &t.BotID,
		&t.GroupID, &active, &welcome, &info, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning tenant: %w", err)
	}

	t.Active = active != 0
	if t.WelcomeText, err = unmarshalLocaleMap(welcome); err != nil {
		return nil, err
	}
	if t.InfoText, err = unmarshalLocaleMap(info); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing tenant created_at: %w", err)
	}
	return &t, nil
}

// GetTenant retrieves a tenant by ID. Returns ErrNotFound if absent.
func (s *SQLiteStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
	return s.scanTenant(row)
}

// GetTenantByToken retrieves a tenant by its stored (at-rest) credential.
// Returns ErrNotFound if absent. Used as the duplicate-credential probe.
func (s *SQLiteStore) GetTenantByToken(ctx context.Context, token string) (*Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE token = ?`, token)
	return s.scanTenant(row)
}

// ListActiveTenants returns all tenants flagged active, ordered by creation time.
func (s *SQLiteStore) ListActiveTenants(ctx context.Context) ([]*Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE active = 1 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("querying active tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		t, err := s.scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// UpdateTenantGroup binds a tenant to its destination group.
func (s *SQLiteStore) UpdateTenantGroup(ctx context.Context, id string, groupID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tenants SET group_id = ? WHERE id = ?`, groupID, id)
	if err != nil {
		return fmt.Errorf("updating tenant group: %w", err)
	}
	return requireRow(res)
}

// SetTenantActive flips the active flag.
func (s *SQLiteStore) SetTenantActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tenants SET active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("updating tenant active flag: %w", err)
	}
	return requireRow(res)
}

// DeleteTenant removes a tenant row.
func (s *SQLiteStore) DeleteTenant(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting tenant: %w", err)
	}
	return requireRow(res)
}

// CreateConversation inserts a new conversation in its initial state.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = now
	}
	if conv.Status == "" {
		conv.Status = StatusWaiting
	}

	query := `
		INSERT INTO conversations (id, tenant_id, user_id, username, first_name, last_name, thread_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.TenantID,
		conv.UserID,
		nullString(conv.Username),
		nullString(conv.FirstName),
		nullString(conv.LastName),
		conv.ThreadID,
		conv.Status,
		conv.CreatedAt.Format(time.RFC3339),
		conv.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

const conversationColumns = `id, tenant_id, user_id, username, first_name, last_name, thread_id, status, created_at, updated_at`

func (s *SQLiteStore) scanConversation(row interface{ Scan(...any) error }) (*Conversation, error) {
	var c Conversation
	var username, firstName, lastName sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&c.ID, &c.TenantID, &c.UserID, &username, &firstName, &lastName,
		&c.ThreadID, &c.Status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	c.Username = username.String
	c.FirstName = firstName.String
	c.LastName = lastName.String
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing conversation created_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing conversation updated_at: %w", err)
	}
	return &c, nil
}

// GetConversation retrieves a conversation by ID. Returns ErrNotFound if absent.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	return s.scanConversation(row)
}

// GetConversationByUser retrieves the live conversation for one end user of one tenant.
func (s *SQLiteStore) GetConversationByUser(ctx context.Context, tenantID string, userID int64) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE tenant_id = ? AND user_id = ?`,
		tenantID, userID)
	return s.scanConversation(row)
}

// GetConversationByThread resolves a forum thread id back to its conversation.
func (s *SQLiteStore) GetConversationByThread(ctx context.Context, threadID int64) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE thread_id = ? AND thread_id != 0`,
		threadID)
	return s.scanConversation(row)
}

// SetConversationThread assigns the thread id exactly once.
// Returns ErrThreadAssigned if a thread id is already set.
func (s *SQLiteStore) SetConversationThread(ctx context.Context, id string, threadID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET thread_id = ?, updated_at = ? WHERE id = ? AND thread_id = 0`,
		threadID, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("assigning conversation thread: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		// Either the conversation is missing or the thread is already set.
		if _, err := s.GetConversation(ctx, id); err != nil {
			return err
		}
		return ErrThreadAssigned
	}
	return nil
}

// UpdateConversationStatus persists a new status value.
func (s *SQLiteStore) UpdateConversationStatus(ctx context.Context, id string, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating conversation status: %w", err)
	}
	return requireRow(res)
}

// ListConversations returns a tenant's conversations, most recently updated first.
// If limit is 0 or negative, all conversations are returned.
func (s *SQLiteStore) ListConversations(ctx context.Context, tenantID string, limit int) ([]*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE tenant_id = ? ORDER BY updated_at DESC`
	args := []any{tenantID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		c, err := s.scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// SaveMessage appends an audit row for a relayed message.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (id, conversation_id, external_id, from_user, content, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.ExternalID,
		boolToInt(msg.FromUser),
		nullString(msg.Content),
		msg.Kind,
		msg.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// GetConversationMessages retrieves a conversation's audit rows in chronological
// order. If limit is 0 or negative, all messages are returned.
func (s *SQLiteStore) GetConversationMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, external_id, from_user, content, kind, created_at
		FROM messages WHERE conversation_id = ? ORDER BY created_at
	`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var m Message
		var fromUser int
		var content sql.NullString
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.ExternalID, &fromUser, &content, &m.Kind, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.FromUser = fromUser != 0
		m.Content = content.String
		if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// Ban records a (tenant, user) ban. Idempotent.
func (s *SQLiteStore) Ban(ctx context.Context, tenantID string, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO bans (tenant_id, user_id, created_at) VALUES (?, ?, ?)`,
		tenantID, userID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting ban: %w", err)
	}
	return nil
}

// Unban removes a (tenant, user) ban. Idempotent.
func (s *SQLiteStore) Unban(ctx context.Context, tenantID string, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM bans WHERE tenant_id = ? AND user_id = ?`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("deleting ban: %w", err)
	}
	return nil
}

// IsBanned reports whether a ban record exists for the pair.
func (s *SQLiteStore) IsBanned(ctx context.Context, tenantID string, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM bans WHERE tenant_id = ? AND user_id = ?`, tenantID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying ban: %w", err)
	}
	return n > 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// requireRow converts a zero-rows-affected update into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
