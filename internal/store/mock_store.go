// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	tenants       map[string]*Tenant       // keyed by tenant ID
	tenantByToken map[string]string        // keyed by token -> tenant ID
	convs         map[string]*Conversation // keyed by conversation ID
	convByUser    map[string]string        // keyed by "tenantID:userID" -> conversation ID
	convByThread  map[int64]string         // keyed by thread ID -> conversation ID
	messages      map[string][]*Message    // keyed by conversation ID
	bans          map[string]bool          // keyed by "tenantID:userID"
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		tenants:       make(map[string]*Tenant),
		tenantByToken: make(map[string]string),
		convs:         make(map[string]*Conversation),
		convByUser:    make(map[string]string),
		convByThread:  make(map[int64]string),
		messages:      make(map[string][]*Message),
		bans:          make(map[string]bool),
	}
}

func userKey(tenantID string, userID int64) string {
	return fmt.Sprintf("%s:%d", tenantID, userID)
}

// CreateTenant stores a new tenant.
func (m *MockStore) CreateTenant(ctx context.Context, tenant *Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tenantByToken[tenant.Token]; ok {
		return ErrDuplicateTenant
	}
	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = time.Now().UTC()
	}

	// Make a copy to avoid external modification
	t := *tenant
	m.tenants[t.ID] = &t
	m.tenantByToken[t.Token] = t.ID
	return nil
}

// GetTenant retrieves a tenant by ID.
func (m *MockStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// GetTenantByToken retrieves a tenant by its stored credential.
func (m *MockStore) GetTenantByToken(ctx context.Context, token string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.tenantByToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.tenants[id]
	return &cp, nil
}

// ListActiveTenants returns all active tenants ordered by creation time.
func (m *MockStore) ListActiveTenants(ctx context.Context) ([]*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var tenants []*Tenant
	for _, t := range m.tenants {
		if t.Active {
			cp := *t
			tenants = append(tenants, &cp)
		}
	}
	sort.Slice(tenants, func(i, j int) bool {
		return tenants[i].CreatedAt.Before(tenants[j].CreatedAt)
	})
	return tenants, nil
}

// UpdateTenantGroup binds a tenant to its destination group.
func (m *MockStore) UpdateTenantGroup(ctx context.Context, id string, groupID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[id]
	if !ok {
		return ErrNotFound
	}
	t.GroupID = groupID
	return nil
}

// SetTenantActive flips the active flag.
func (m *MockStore) SetTenantActive(ctx context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[id]
	if !ok {
		return ErrNotFound
	}
	t.Active = active
	return nil
}

// DeleteTenant removes a tenant.
func (m *MockStore) DeleteTenant(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.tenantByToken, t.Token)
	delete(m.tenants, id)
	return nil
}

// CreateConversation stores a new conversation.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

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

	c := *conv
	m.convs[c.ID] = &c
	m.convByUser[userKey(c.TenantID, c.UserID)] = c.ID
	if c.ThreadID != 0 {
		m.convByThread[c.ThreadID] = c.ID
	}
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// GetConversationByUser retrieves the conversation for one end user of one tenant.
func (m *MockStore) GetConversationByUser(ctx context.Context, tenantID string, userID int64) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.convByUser[userKey(tenantID, userID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.convs[id]
	return &cp, nil
}

// GetConversationByThread resolves a forum thread id back to its conversation.
func (m *MockStore) GetConversationByThread(ctx context.Context, threadID int64) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.convByThread[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.convs[id]
	return &cp, nil
}

// SetConversationThread assigns the thread id exactly once.
func (m *MockStore) SetConversationThread(ctx context.Context, id string, threadID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.convs[id]
	if !ok {
		return ErrNotFound
	}
	if c.ThreadID != 0 {
		return ErrThreadAssigned
	}
	c.ThreadID = threadID
	c.UpdatedAt = time.Now().UTC()
	m.convByThread[threadID] = id
	return nil
}

// UpdateConversationStatus persists a new status value.
func (m *MockStore) UpdateConversationStatus(ctx context.Context, id string, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.convs[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// ListConversations returns a tenant's conversations, most recently updated first.
func (m *MockStore) ListConversations(ctx context.Context, tenantID string, limit int) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var convs []*Conversation
	for _, c := range m.convs {
		if c.TenantID == tenantID {
			cp := *c
			convs = append(convs, &cp)
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
	if limit > 0 && len(convs) > limit {
		convs = convs[:limit]
	}
	return convs, nil
}

// SaveMessage appends an audit row.
func (m *MockStore) SaveMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	cp := *msg
	m.messages[cp.ConversationID] = append(m.messages[cp.ConversationID], &cp)
	return nil
}

// GetConversationMessages retrieves a conversation's audit rows in order.
func (m *MockStore) GetConversationMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[conversationID]
	out := make([]*Message, 0, len(msgs))
	for _, msg := range msgs {
		cp := *msg
		out = append(out, &cp)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ban records a (tenant, user) ban.
func (m *MockStore) Ban(ctx context.Context, tenantID string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bans[userKey(tenantID, userID)] = true
	return nil
}

// Unban removes a (tenant, user) ban.
func (m *MockStore) Unban(ctx context.Context, tenantID string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.bans, userKey(tenantID, userID))
	return nil
}

// IsBanned reports whether a ban record exists.
func (m *MockStore) IsBanned(ctx context.Context, tenantID string, userID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.bans[userKey(tenantID, userID)], nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)
