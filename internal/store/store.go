// ABOUTME: Store interface and data types for relaydesk-gateway persistence
// ABOUTME: Defines Tenant, Conversation, Message, BanRecord and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateTenant is returned when registering a tenant whose credential is already stored
var ErrDuplicateTenant = errors.New("tenant already exists")

// ErrThreadAssigned is returned when a conversation's thread id is set a second time
var ErrThreadAssigned = errors.New("thread already assigned")

// Conversation status values. Waiting is the initial status; Ended is terminal.
const (
	StatusWaiting  = "waiting"
	StatusAnswered = "answered"
	StatusHold     = "hold"
	StatusBanned   = "banned"
	StatusEnded    = "ended"
)

// Tenant represents one connected bot identity relaying on behalf of one owner.
// Token holds the credential in its at-rest (encrypted) form; the vault decrypts
// it at connection time.
type Tenant struct {
	ID          string
	OwnerUserID int64
	Token       string
	BotUsername string
	BotID       int64
	GroupID     int64 // destination group; 0 until configured
	Active      bool
	WelcomeText map[string]string // locale -> text
	InfoText    map[string]string // locale -> text
	CreatedAt   time.Time
}

// Conversation links one end user of one tenant to a forum thread in the
// operator group. ThreadID is 0 until the first relay creates the topic and
// is assigned at most once.
type Conversation struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	ThreadID  int64     `json:"thread_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one append-only audit row, written after a successful relay.
type Message struct {
	ID             string
	ConversationID string
	ExternalID     int64
	FromUser       bool
	Content        string
	Kind           string
	CreatedAt      time.Time
}

// BanRecord marks one (tenant, end user) pair as banned. Its existence is the
// sole ban predicate.
type BanRecord struct {
	TenantID  string
	UserID    int64
	CreatedAt time.Time
}

// Store defines the interface for gateway persistence
type Store interface {
	// Tenants
	CreateTenant(ctx context.Context, tenant *Tenant) error
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	GetTenantByToken(ctx context.Context, token string) (*Tenant, error)
	ListActiveTenants(ctx context.Context) ([]*Tenant, error)
	UpdateTenantGroup(ctx context.Context, id string, groupID int64) error
	SetTenantActive(ctx context.Context, id string, active bool) error
	DeleteTenant(ctx context.Context, id string) error

	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	GetConversationByUser(ctx context.Context, tenantID string, userID int64) (*Conversation, error)
	GetConversationByThread(ctx context.Context, threadID int64) (*Conversation, error)
	SetConversationThread(ctx context.Context, id string, threadID int64) error
	UpdateConversationStatus(ctx context.Context, id string, status string) error
	ListConversations(ctx context.Context, tenantID string, limit int) ([]*Conversation, error)

	// Messages (audit trail)
	SaveMessage(ctx context.Context, msg *Message) error
	GetConversationMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)

	// Bans
	Ban(ctx context.Context, tenantID string, userID int64) error
	Unban(ctx context.Context, tenantID string, userID int64) error
	IsBanned(ctx context.Context, tenantID string, userID int64) (bool, error)

	// Close releases any resources held by the store
	Close() error
}
