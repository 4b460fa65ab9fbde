// ABOUTME: End-to-end tests for the gateway over mock clients
// ABOUTME: Covers inbound relay, greetings, bans, operator commands, and replies

package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/internal/protocol"
	"github.com/relaydesk/relaydesk/internal/relay"
	"github.com/relaydesk/relaydesk/internal/status"
	"github.com/relaydesk/relaydesk/internal/store"
	"github.com/relaydesk/relaydesk/internal/tenant"
	"github.com/relaydesk/relaydesk/internal/topic"
	"github.com/relaydesk/relaydesk/internal/transient"
	"github.com/relaydesk/relaydesk/internal/vault"
)

const testGroupID = int64(-100500)

type harness struct {
	gw           *Gateway
	store        *store.MockStore
	operator     *protocol.MockClient
	tenants      *tenant.Manager
	tenantClient *protocol.MockClient
	tenant       *store.Tenant
	conn         *tenant.Connection
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	mockStore := store.NewMockStore()
	ts := transient.NewMemoryStore()
	t.Cleanup(func() { ts.Close() })

	operator := protocol.NewMockClient(protocol.Identity{ID: 999, Username: "desk_bot"})
	rl := relay.New(mockStore, ts, time.Hour)
	topics := topic.NewManager(operator, mockStore, 5*time.Millisecond, time.Millisecond)
	t.Cleanup(topics.Close)
	machine := status.NewMachine(mockStore, topics)

	gw := New(mockStore, rl, topics, machine, operator, testGroupID, 20*time.Millisecond, 1)
	t.Cleanup(gw.Stop)

	tenantClient := protocol.NewMockClient(protocol.Identity{ID: 11, Username: "acme_bot"})
	var key [32]byte
	key[0] = 9
	mgr := tenant.NewManager(mockStore, vault.New(key), func(token string) protocol.Client {
		return tenantClient
	}, gw, 1)
	t.Cleanup(mgr.StopAll)
	gw.SetTenantManager(mgr)

	ten, err := mgr.Register(ctx, "tok-1", 100, 0)
	require.NoError(t, err)
	require.NoError(t, mgr.Connect(ctx, ten))
	conn, ok := mgr.GetConnection(ten.ID)
	require.True(t, ok)

	return &harness{
		gw:           gw,
		store:        mockStore,
		operator:     operator,
		tenants:      mgr,
		tenantClient: tenantClient,
		tenant:       ten,
		conn:         conn,
	}
}

func userMessage(id int64, text string) *protocol.Message {
	return &protocol.Message{
		ID:     id,
		ChatID: 500,
		From:   &protocol.User{ID: 500, FirstName: "Alice", Username: "alice", LanguageCode: "en"},
		Kind:   protocol.KindText,
		Text:   text,
	}
}

func (h *harness) inbound(ctx context.Context, msg *protocol.Message) {
	h.gw.HandleUpdate(ctx, h.conn, &protocol.Update{ID: 1, Message: msg})
}

func (h *harness) conversation(t *testing.T) *store.Conversation {
	t.Helper()
	conv, err := h.store.GetConversationByUser(context.Background(), h.tenant.ID, 500)
	require.NoError(t, err)
	return conv
}

func TestInboundMessageOpensThreadAndRelays(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.inbound(ctx, userMessage(1, "my order is broken"))

	conv := h.conversation(t)
	assert.Equal(t, store.StatusWaiting, conv.Status)
	assert.NotZero(t, conv.ThreadID)

	// One thread was created, named for the waiting user.
	created := h.operator.CreatedTopics()
	require.Len(t, created, 1)
	assert.Equal(t, "⏳ Alice (@alice)", created[0])

	// The thread got a header plus the relayed message.
	sent := h.operator.Sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].Text, "New conversation")
	assert.Contains(t, sent[0].Text, "acme\\_bot")
	assert.Equal(t, "my order is broken", sent[1].Text)
	assert.Equal(t, testGroupID, sent[1].ChatID)
	assert.Equal(t, conv.ThreadID, sent[1].ThreadID)
}

func TestSecondMessageReusesThread(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.inbound(ctx, userMessage(1, "first"))
	h.inbound(ctx, userMessage(2, "second"))

	assert.Len(t, h.operator.CreatedTopics(), 1)
	// Header + two relayed messages.
	assert.Len(t, h.operator.Sent(), 3)
}

func TestStartCommandSendsWelcome(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.inbound(ctx, userMessage(1, "/start"))

	// Conversation exists but no thread yet.
	conv := h.conversation(t)
	assert.Zero(t, conv.ThreadID)
	assert.Empty(t, h.operator.CreatedTopics())

	sent := h.tenantClient.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "support operator")
	assert.Equal(t, int64(500), sent[0].ChatID)
}

func TestStartCommandUsesTenantOverride(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.conn.Tenant.WelcomeText = map[string]string{"en": "Welcome to ACME!"}
	h.inbound(ctx, userMessage(1, "/start"))

	sent := h.tenantClient.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Welcome to ACME!", sent[0].Text)
}

func TestInfoCommand(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.inbound(ctx, userMessage(1, "/info"))

	sent := h.tenantClient.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "support team")
}

func TestBannedUserIsDroppedSilently(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.Ban(ctx, h.tenant.ID, 500))
	h.inbound(ctx, userMessage(1, "let me in"))
	h.inbound(ctx, userMessage(2, "/start"))

	assert.Empty(t, h.operator.Sent())
	assert.Empty(t, h.tenantClient.Sent())
	assert.Empty(t, h.operator.CreatedTopics())
}

func TestAlbumRelaysAsGroup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.tenantClient.Files["p1"] = []byte("one")
	h.tenantClient.Files["p2"] = []byte("two")

	for i, fileID := range []string{"p1", "p2"} {
		msg := userMessage(int64(i+1), "")
		msg.Kind = protocol.KindPhoto
		msg.AlbumID = "album-1"
		msg.File = &protocol.FileRef{FileID: fileID}
		if i == 0 {
			msg.Caption = "screenshots"
		}
		h.inbound(ctx, msg)
	}

	require.Eventually(t, func() bool {
		return len(h.operator.Sent()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	sent := h.operator.Sent()
	assert.Equal(t, "sendPhoto", sent[1].Method)
	assert.Equal(t, "screenshots", sent[1].Caption)
	assert.Equal(t, "sendPhoto", sent[2].Method)
	assert.Empty(t, sent[2].Caption)
}

func operatorReply(threadID int64, userID int64, text string) *protocol.Message {
	return &protocol.Message{
		ID:       200,
		ChatID:   testGroupID,
		ThreadID: threadID,
		From:     &protocol.User{ID: userID, FirstName: "Olga"},
		Kind:     protocol.KindText,
		Text:     text,
	}
}

func TestOperatorReplyReachesUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.inbound(ctx, userMessage(1, "help"))
	conv := h.conversation(t)

	h.gw.handleOperatorMessage(ctx, operatorReply(conv.ThreadID, 7, "on it"))

	sent := h.tenantClient.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "on it", sent[0].Text)
	assert.Equal(t, int64(500), sent[0].ChatID)
	assert.Zero(t, sent[0].ThreadID)

	assert.Equal(t, store.StatusAnswered, h.conversation(t).Status)
}

func TestReplyPreservesHold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.inbound(ctx, userMessage(1, "help"))
	conv := h.conversation(t)
	require.NoError(t, h.store.UpdateConversationStatus(ctx, conv.ID, store.StatusHold))

	h.gw.handleOperatorMessage(ctx, operatorReply(conv.ThreadID, 7, "still looking"))

	// Delivered, but the hold survives.
	require.Len(t, h.tenantClient.Sent(), 1)
	assert.Equal(t, store.StatusHold, h.conversation(t).Status)
}

func TestReplyOnEndedIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.inbound(ctx, userMessage(1, "help"))
	conv := h.conversation(t)
	require.NoError(t, h.store.UpdateConversationStatus(ctx, conv.ID, store.StatusEnded))

	before := len(h.operator.Sent())
	h.gw.handleOperatorMessage(ctx, operatorReply(conv.ThreadID, 7, "too late"))

	assert.Empty(t, h.tenantClient.Sent())
	sent := h.operator.Sent()
	require.Len(t, sent, before+1)
	assert.Contains(t, sent[len(sent)-1].Text, "closed")
}

func TestInboundOnEndedStillRelays(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.inbound(ctx, userMessage(1, "help"))
	conv := h.conversation(t)
	require.NoError(t, h.store.UpdateConversationStatus(ctx, conv.ID, store.StatusEnded))

	before := len(h.operator.Sent())
	h.inbound(ctx, userMessage(2, "one more thing"))

	// The message lands in the thread but the conversation stays ended.
	assert.Len(t, h.operator.Sent(), before+1)
	assert.Equal(t, store.StatusEnded, h.conversation(t).Status)
}

func TestAdminCommandHoldsConversation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.inbound(ctx, userMessage(1, "help"))
	conv := h.conversation(t)

	h.operator.Members[7] = &protocol.ChatMember{User: protocol.User{ID: 7}, Status: "administrator"}
	h.gw.handleOperatorMessage(ctx, operatorReply(conv.ThreadID, 7, "/hold"))

	assert.Equal(t, store.StatusHold, h.conversation(t).Status)
	sent := h.operator.Sent()
	assert.Equal(t, "Conversation put on hold.", sent[len(sent)-1].Text)
}

func TestNonAdminCommandIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.inbound(ctx, userMessage(1, "help"))
	conv := h.conversation(t)

	before := len(h.operator.Sent())
	h.gw.handleOperatorMessage(ctx, operatorReply(conv.ThreadID, 7, "/ban"))

	assert.Equal(t, store.StatusWaiting, h.conversation(t).Status)
	assert.Len(t, h.operator.Sent(), before)
}

func TestBanCommandBlocksFutureMessages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.inbound(ctx, userMessage(1, "spam"))
	conv := h.conversation(t)

	h.operator.Members[7] = &protocol.ChatMember{User: protocol.User{ID: 7}, Status: "creator"}
	h.gw.handleOperatorMessage(ctx, operatorReply(conv.ThreadID, 7, "/ban"))

	assert.Equal(t, store.StatusBanned, h.conversation(t).Status)

	before := len(h.operator.Sent())
	h.inbound(ctx, userMessage(2, "more spam"))
	assert.Len(t, h.operator.Sent(), before)
}

func TestInvalidTransitionReportsStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.inbound(ctx, userMessage(1, "help"))
	conv := h.conversation(t)

	h.operator.Members[7] = &protocol.ChatMember{User: protocol.User{ID: 7}, Status: "administrator"}
	h.gw.handleOperatorMessage(ctx, operatorReply(conv.ThreadID, 7, "/unhold"))

	sent := h.operator.Sent()
	assert.Contains(t, sent[len(sent)-1].Text, "Cannot /unhold")
}

func TestCommandOutsideThread(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.operator.Members[7] = &protocol.ChatMember{User: protocol.User{ID: 7}, Status: "administrator"}
	h.gw.handleOperatorMessage(ctx, operatorReply(0, 7, "/hold"))

	sent := h.operator.Sent()
	require.NotEmpty(t, sent)
	assert.Contains(t, sent[len(sent)-1].Text, "conversation thread")
}

func TestHelpCommand(t *testing.T) {
	h := newHarness(t)

	h.gw.handleOperatorMessage(context.Background(), operatorReply(0, 7, "/help"))

	sent := h.operator.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "/hold")
	assert.Contains(t, sent[0].Text, "/end")
}

func TestTenantGroupOverride(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.conn.Tenant.GroupID = -777
	h.inbound(ctx, userMessage(1, "hi"))

	sent := h.operator.Sent()
	require.NotEmpty(t, sent)
	assert.Equal(t, int64(-777), sent[len(sent)-1].ChatID)
}
