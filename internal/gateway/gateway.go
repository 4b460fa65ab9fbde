// ABOUTME: Wires tenant bot traffic and the operator group into one relay
// ABOUTME: Inbound messages open forum threads; operator replies flow back out

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/relaydesk/relaydesk/internal/markup"
	"github.com/relaydesk/relaydesk/internal/mediagroup"
	"github.com/relaydesk/relaydesk/internal/protocol"
	"github.com/relaydesk/relaydesk/internal/relay"
	"github.com/relaydesk/relaydesk/internal/status"
	"github.com/relaydesk/relaydesk/internal/store"
	"github.com/relaydesk/relaydesk/internal/tenant"
	"github.com/relaydesk/relaydesk/internal/topic"
)

const operatorPollBackoff = 3 * time.Second

// Gateway routes messages between tenant bots and the operator group.
type Gateway struct {
	store          store.Store
	relay          *relay.Relay
	topics         *topic.Manager
	machine        *status.Machine
	coalescer      *mediagroup.Coalescer
	operator       protocol.Client
	defaultGroupID int64
	pollTimeout    int
	logger         *slog.Logger

	tenants *tenant.Manager
}

// New creates a Gateway. The tenant manager is attached afterwards with
// SetTenantManager because it needs the gateway as its update handler.
func New(st store.Store, rl *relay.Relay, topics *topic.Manager, machine *status.Machine, operator protocol.Client, defaultGroupID int64, window time.Duration, pollTimeout int) *Gateway {
	g := &Gateway{
		store:          st,
		relay:          rl,
		topics:         topics,
		machine:        machine,
		operator:       operator,
		defaultGroupID: defaultGroupID,
		pollTimeout:    pollTimeout,
		logger:         slog.Default().With("component", "gateway"),
	}
	g.coalescer = mediagroup.New(window, g.flush)
	return g
}

// SetTenantManager attaches the connection manager.
func (g *Gateway) SetTenantManager(m *tenant.Manager) {
	g.tenants = m
}

// Stop drops any albums still buffering.
func (g *Gateway) Stop() {
	g.coalescer.Stop()
}

func (g *Gateway) groupFor(t *store.Tenant) int64 {
	if t.GroupID != 0 {
		return t.GroupID
	}
	return g.defaultGroupID
}

// HandleUpdate processes one update from a tenant bot's poll loop.
func (g *Gateway) HandleUpdate(ctx context.Context, conn *tenant.Connection, update *protocol.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	// Tenant bots only serve private chats.
	if msg.ChatID != msg.From.ID {
		return
	}

	tenantID := conn.Tenant.ID
	banned, err := g.store.IsBanned(ctx, tenantID, msg.From.ID)
	if err != nil {
		g.logger.Error("checking ban", "tenant_id", tenantID, "user_id", msg.From.ID, "error", err)
		return
	}
	if banned {
		// Banned users get silence.
		return
	}

	if msg.IsCommand() {
		g.handleUserCommand(ctx, conn, msg)
		return
	}

	conv, err := g.upsertConversation(ctx, tenantID, msg.From)
	if err != nil {
		g.logger.Error("upserting conversation", "tenant_id", tenantID, "user_id", msg.From.ID, "error", err)
		return
	}

	g.coalescer.Add(ctx, msg, conv, relay.DirectionToGroup)
}

func (g *Gateway) handleUserCommand(ctx context.Context, conn *tenant.Connection, msg *protocol.Message) {
	locale := msg.From.LanguageCode

	var text string
	switch msg.Command() {
	case "start":
		// A /start also opens the conversation so operators see the
		// user before the first real message.
		if _, err := g.upsertConversation(ctx, conn.Tenant.ID, msg.From); err != nil {
			g.logger.Error("upserting conversation", "tenant_id", conn.Tenant.ID, "error", err)
		}
		text = welcomeText(conn.Tenant, locale)
	case "info":
		text = infoText(conn.Tenant, locale)
	default:
		return
	}

	if _, err := conn.Client.SendText(ctx, protocol.TextParams{ChatID: msg.ChatID, Text: text}); err != nil {
		g.logger.Warn("sending greeting", "tenant_id", conn.Tenant.ID, "error", err)
	}
}

func (g *Gateway) upsertConversation(ctx context.Context, tenantID string, from *protocol.User) (*store.Conversation, error) {
	conv, err := g.store.GetConversationByUser(ctx, tenantID, from.ID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	conv = &store.Conversation{
		TenantID:  tenantID,
		UserID:    from.ID,
		Username:  from.Username,
		FirstName: from.FirstName,
		LastName:  from.LastName,
	}
	if err := g.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	g.logger.Info("conversation opened", "tenant_id", tenantID, "user_id", from.ID, "conversation_id", conv.ID)
	return conv, nil
}

// flush receives a coalesced group from the album buffer and performs
// the actual relay in the stored direction.
func (g *Gateway) flush(ctx context.Context, parts []*protocol.Message, conv *store.Conversation, direction string) {
	// Reload: status or thread may have changed while buffering.
	fresh, err := g.store.GetConversation(ctx, conv.ID)
	if err != nil {
		g.logger.Error("reloading conversation", "conversation_id", conv.ID, "error", err)
		return
	}

	conn, ok := g.tenants.GetConnection(fresh.TenantID)
	if !ok {
		g.logger.Warn("no live connection for tenant", "tenant_id", fresh.TenantID)
		return
	}

	switch direction {
	case relay.DirectionToGroup:
		g.relayToGroup(ctx, conn, fresh, parts)
	case relay.DirectionToUser:
		g.relayToUser(ctx, conn, fresh, parts)
	}
}

func (g *Gateway) relayToGroup(ctx context.Context, conn *tenant.Connection, conv *store.Conversation, parts []*protocol.Message) {
	groupID := g.groupFor(conn.Tenant)

	threadID, created, err := g.topics.EnsureTopic(ctx, conv, groupID)
	if err != nil {
		g.logger.Error("ensuring thread", "conversation_id", conv.ID, "error", err)
		return
	}
	if created {
		_, err := g.operator.SendText(ctx, protocol.TextParams{
			ChatID:    groupID,
			ThreadID:  threadID,
			Text:      userInfoHeader(conn.Tenant, conv),
			ParseMode: markup.ParseMode,
		})
		if err != nil {
			g.logger.Warn("posting thread header", "conversation_id", conv.ID, "error", err)
		}
	}

	keys := g.capture(ctx, conn.Client, conv, parts, relay.DirectionToGroup)
	if len(keys) == 0 {
		return
	}

	if len(keys) == 1 {
		_, err = g.relay.Deliver(ctx, g.operator, keys[0], groupID, threadID)
	} else {
		_, err = g.relay.DeliverGroup(ctx, g.operator, keys, groupID, threadID)
	}
	if err != nil {
		g.logger.Error("relaying to group", "conversation_id", conv.ID, "error", err)
		return
	}

	if err := g.machine.NoteInbound(ctx, conv, groupID); err != nil {
		g.logger.Warn("noting inbound", "conversation_id", conv.ID, "error", err)
	}
}

func (g *Gateway) relayToUser(ctx context.Context, conn *tenant.Connection, conv *store.Conversation, parts []*protocol.Message) {
	groupID := g.groupFor(conn.Tenant)

	keys := g.capture(ctx, g.operator, conv, parts, relay.DirectionToUser)
	if len(keys) == 0 {
		return
	}

	var err error
	if len(keys) == 1 {
		_, err = g.relay.Deliver(ctx, conn.Client, keys[0], conv.UserID, 0)
	} else {
		_, err = g.relay.DeliverGroup(ctx, conn.Client, keys, conv.UserID, 0)
	}
	if err != nil {
		g.logger.Error("relaying to user", "conversation_id", conv.ID, "error", err)
		g.notifyThread(ctx, groupID, conv.ThreadID, noticeDeliveryFailure)
		return
	}

	if err := g.machine.NoteReply(ctx, conv, groupID); err != nil {
		g.logger.Warn("noting reply", "conversation_id", conv.ID, "error", err)
	}
}

// capture serializes parts into envelopes, skipping parts whose media
// could not be fetched.
func (g *Gateway) capture(ctx context.Context, src protocol.Client, conv *store.Conversation, parts []*protocol.Message, direction string) []string {
	keys := make([]string, 0, len(parts))
	for _, part := range parts {
		key, err := g.relay.Capture(ctx, src, conv, part, direction)
		if err != nil {
			g.logger.Error("capturing message",
				"conversation_id", conv.ID,
				"message_id", part.ID,
				"error", err)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// RunOperator polls the operator bot until ctx is canceled, handling
// commands and relaying thread replies back to end users.
func (g *Gateway) RunOperator(ctx context.Context) {
	var offset int64
	for ctx.Err() == nil {
		updates, err := g.operator.GetUpdates(ctx, offset, g.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			g.logger.Warn("polling operator updates", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(operatorPollBackoff):
			}
			continue
		}

		for _, update := range updates {
			offset = update.ID + 1
			if update.Message != nil {
				g.handleOperatorMessage(ctx, update.Message)
			}
		}
	}
}

func (g *Gateway) handleOperatorMessage(ctx context.Context, msg *protocol.Message) {
	if msg.From == nil {
		return
	}

	if msg.IsCommand() {
		g.handleOperatorCommand(ctx, msg)
		return
	}

	// Replies only make sense inside a conversation thread.
	if msg.ThreadID == 0 {
		return
	}

	conv, err := g.store.GetConversationByThread(ctx, msg.ThreadID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			g.logger.Error("resolving thread", "thread_id", msg.ThreadID, "error", err)
		}
		return
	}

	switch conv.Status {
	case store.StatusEnded:
		g.notifyThread(ctx, msg.ChatID, msg.ThreadID, noticeReplyOnEnded)
		return
	case store.StatusBanned:
		g.notifyThread(ctx, msg.ChatID, msg.ThreadID, noticeReplyOnBanned)
		return
	}

	g.coalescer.Add(ctx, msg, conv, relay.DirectionToUser)
}

func (g *Gateway) handleOperatorCommand(ctx context.Context, msg *protocol.Message) {
	cmd := msg.Command()
	if cmd == "help" {
		g.notifyThread(ctx, msg.ChatID, msg.ThreadID, operatorHelp)
		return
	}

	switch cmd {
	case status.CmdHold, status.CmdUnhold, status.CmdBan, status.CmdUnban, status.CmdEnd:
	default:
		g.notifyThread(ctx, msg.ChatID, msg.ThreadID, noticeUnknownCommand)
		return
	}

	member, err := g.operator.GetChatMember(ctx, msg.ChatID, msg.From.ID)
	if err != nil {
		g.logger.Warn("checking operator rights", "user_id", msg.From.ID, "error", err)
		return
	}
	if !member.IsAdmin() {
		// Non-admin group members cannot drive conversations.
		return
	}

	_, err = g.machine.Apply(ctx, msg.ThreadID, cmd, msg.ChatID)
	switch {
	case err == nil:
		g.notifyThread(ctx, msg.ChatID, msg.ThreadID, commandConfirmations[cmd])
	case errors.Is(err, status.ErrNotInTopic):
		g.notifyThread(ctx, msg.ChatID, msg.ThreadID, noticeNotInThread)
	case errors.Is(err, status.ErrConversationNotFound):
		g.notifyThread(ctx, msg.ChatID, msg.ThreadID, noticeNoConversation)
	case errors.Is(err, status.ErrInvalidTransition):
		current := "current"
		if c, convErr := g.store.GetConversationByThread(ctx, msg.ThreadID); convErr == nil {
			current = c.Status
		}
		g.notifyThread(ctx, msg.ChatID, msg.ThreadID, invalidTransitionNotice(cmd, current))
	default:
		g.logger.Error("applying command", "command", cmd, "thread_id", msg.ThreadID, "error", err)
	}
}

// notifyThread posts a plain service message into a thread.
func (g *Gateway) notifyThread(ctx context.Context, chatID, threadID int64, text string) {
	_, err := g.operator.SendText(ctx, protocol.TextParams{
		ChatID:   chatID,
		ThreadID: threadID,
		Text:     text,
	})
	if err != nil {
		g.logger.Warn("posting service message", "thread_id", threadID, "error", err)
	}
}
