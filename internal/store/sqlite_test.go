// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Exercises tenant, conversation, message, and ban persistence

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTenantLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tenant := &Tenant{
		OwnerUserID: 100,
		Token:       "enc:v1:abc",
		BotUsername: "acme_support_bot",
		BotID:       987654,
		Active:      true,
		WelcomeText: map[string]string{"en": "Hello!", "ru": "Привет!"},
	}
	require.NoError(t, s.CreateTenant(ctx, tenant))
	require.NotEmpty(t, tenant.ID)

	got, err := s.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme_support_bot", got.BotUsername)
	assert.Equal(t, int64(987654), got.BotID)
	assert.Equal(t, "Hello!", got.WelcomeText["en"])
	assert.True(t, got.Active)
	assert.Equal(t, int64(0), got.GroupID)

	byToken, err := s.GetTenantByToken(ctx, "enc:v1:abc")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, byToken.ID)

	require.NoError(t, s.UpdateTenantGroup(ctx, tenant.ID, -100200300))
	got, err = s.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-100200300), got.GroupID)

	require.NoError(t, s.SetTenantActive(ctx, tenant.ID, false))
	tenants, err := s.ListActiveTenants(ctx)
	require.NoError(t, err)
	assert.Empty(t, tenants)

	require.NoError(t, s.DeleteTenant(ctx, tenant.ID))
	_, err = s.GetTenant(ctx, tenant.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateTenantDuplicateToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &Tenant{OwnerUserID: 1, Token: "tok", BotUsername: "a_bot", BotID: 1, Active: true}
	require.NoError(t, s.CreateTenant(ctx, first))

	dup := &Tenant{OwnerUserID: 2, Token: "tok", BotUsername: "b_bot", BotID: 2, Active: true}
	err := s.CreateTenant(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicateTenant)
}

func TestGetTenantNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetTenant(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetTenantByToken(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListActiveTenantsOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	early := &Tenant{OwnerUserID: 1, Token: "t1", BotUsername: "one", BotID: 1, Active: true,
		CreatedAt: time.Now().UTC().Add(-time.Hour)}
	late := &Tenant{OwnerUserID: 2, Token: "t2", BotUsername: "two", BotID: 2, Active: true}
	inactive := &Tenant{OwnerUserID: 3, Token: "t3", BotUsername: "three", BotID: 3, Active: false}
	require.NoError(t, s.CreateTenant(ctx, late))
	require.NoError(t, s.CreateTenant(ctx, early))
	require.NoError(t, s.CreateTenant(ctx, inactive))

	tenants, err := s.ListActiveTenants(ctx)
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, "one", tenants[0].BotUsername)
	assert.Equal(t, "two", tenants[1].BotUsername)
}

func createTestTenant(t *testing.T, s Store, token string) *Tenant {
	t.Helper()
	tenant := &Tenant{OwnerUserID: 1, Token: token, BotUsername: "test_bot", BotID: 42, Active: true}
	require.NoError(t, s.CreateTenant(context.Background(), tenant))
	return tenant
}

func TestConversationLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := createTestTenant(t, s, "tok-conv")

	conv := &Conversation{
		TenantID:  tenant.ID,
		UserID:    555,
		Username:  "alice",
		FirstName: "Alice",
	}
	require.NoError(t, s.CreateConversation(ctx, conv))
	require.NotEmpty(t, conv.ID)

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, got.Status)
	assert.Equal(t, int64(0), got.ThreadID)
	assert.Equal(t, "alice", got.Username)

	byUser, err := s.GetConversationByUser(ctx, tenant.ID, 555)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, byUser.ID)

	require.NoError(t, s.SetConversationThread(ctx, conv.ID, 77))

	byThread, err := s.GetConversationByThread(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, byThread.ID)

	require.NoError(t, s.UpdateConversationStatus(ctx, conv.ID, StatusAnswered))
	got, err = s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAnswered, got.Status)
}

func TestSetConversationThreadExactlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := createTestTenant(t, s, "tok-thread")

	conv := &Conversation{TenantID: tenant.ID, UserID: 1}
	require.NoError(t, s.CreateConversation(ctx, conv))

	require.NoError(t, s.SetConversationThread(ctx, conv.ID, 10))
	err := s.SetConversationThread(ctx, conv.ID, 11)
	assert.ErrorIs(t, err, ErrThreadAssigned)

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.ThreadID)
}

func TestSetConversationThreadMissing(t *testing.T) {
	s := newTestStore(t)

	err := s.SetConversationThread(context.Background(), "missing", 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetConversationByThreadUnassigned(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := createTestTenant(t, s, "tok-unassigned")

	conv := &Conversation{TenantID: tenant.ID, UserID: 1}
	require.NoError(t, s.CreateConversation(ctx, conv))

	// Thread id 0 means unassigned and must never resolve.
	_, err := s.GetConversationByThread(ctx, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationUniquePerUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := createTestTenant(t, s, "tok-unique")

	first := &Conversation{TenantID: tenant.ID, UserID: 9}
	require.NoError(t, s.CreateConversation(ctx, first))

	second := &Conversation{TenantID: tenant.ID, UserID: 9}
	err := s.CreateConversation(ctx, second)
	assert.Error(t, err)
}

func TestListConversations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := createTestTenant(t, s, "tok-list")

	for i := int64(1); i <= 3; i++ {
		conv := &Conversation{
			TenantID:  tenant.ID,
			UserID:    i,
			UpdatedAt: time.Now().UTC().Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.CreateConversation(ctx, conv))
	}

	convs, err := s.ListConversations(ctx, tenant.ID, 0)
	require.NoError(t, err)
	require.Len(t, convs, 3)
	assert.Equal(t, int64(3), convs[0].UserID)

	limited, err := s.ListConversations(ctx, tenant.ID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMessageAudit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := createTestTenant(t, s, "tok-msgs")

	conv := &Conversation{TenantID: tenant.ID, UserID: 1}
	require.NoError(t, s.CreateConversation(ctx, conv))

	for i := int64(1); i <= 3; i++ {
		msg := &Message{
			ConversationID: conv.ID,
			ExternalID:     i,
			FromUser:       i%2 == 1,
			Content:        "hello",
			Kind:           "text",
			CreatedAt:      time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, s.SaveMessage(ctx, msg))
	}

	msgs, err := s.GetConversationMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(1), msgs[0].ExternalID)
	assert.True(t, msgs[0].FromUser)
	assert.False(t, msgs[1].FromUser)
}

func TestBans(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := createTestTenant(t, s, "tok-bans")

	banned, err := s.IsBanned(ctx, tenant.ID, 5)
	require.NoError(t, err)
	assert.False(t, banned)

	require.NoError(t, s.Ban(ctx, tenant.ID, 5))
	require.NoError(t, s.Ban(ctx, tenant.ID, 5)) // idempotent

	banned, err = s.IsBanned(ctx, tenant.ID, 5)
	require.NoError(t, err)
	assert.True(t, banned)

	require.NoError(t, s.Unban(ctx, tenant.ID, 5))
	banned, err = s.IsBanned(ctx, tenant.ID, 5)
	require.NoError(t, err)
	assert.False(t, banned)
}
