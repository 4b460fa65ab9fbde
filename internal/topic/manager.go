// ABOUTME: Creates and renames forum threads for conversations
// ABOUTME: Renames are batched and paced to stay under platform rate limits

package topic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/relaydesk/relaydesk/internal/store"
)

// ErrThreadCreateFailed indicates the operator group rejected the forum
// thread creation, usually because forum mode is off or the bot lacks
// the manage-topics right.
var ErrThreadCreateFailed = errors.New("topic: thread creation failed")

var statusEmoji = map[string]string{
	store.StatusWaiting:  "⏳",
	store.StatusAnswered: "✅",
	store.StatusHold:     "🟡",
	store.StatusBanned:   "🔒",
	store.StatusEnded:    "❌",
}

// Name builds the forum thread title for a conversation: status emoji,
// display name, and username when known.
func Name(conv *store.Conversation) string {
	emoji, ok := statusEmoji[conv.Status]
	if !ok {
		emoji = statusEmoji[store.StatusWaiting]
	}
	display := conv.FirstName
	if display == "" {
		display = "User"
	}
	if conv.Username != "" {
		return fmt.Sprintf("%s %s (@%s)", emoji, display, conv.Username)
	}
	return fmt.Sprintf("%s %s", emoji, display)
}

// Client is the forum-thread slice of the protocol client.
type Client interface {
	CreateForumTopic(ctx context.Context, chatID int64, name string) (int64, error)
	EditForumTopic(ctx context.Context, chatID, threadID int64, name string) error
}

// Store is the conversation-thread slice of the store.
type Store interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	SetConversationThread(ctx context.Context, id string, threadID int64) error
}

type renameReq struct {
	groupID  int64
	threadID int64
	name     string
}

// Manager owns the conversation-to-thread mapping. Thread creation is
// synchronous and exactly-once; renames are debounced per conversation
// and flushed in one paced batch.
type Manager struct {
	client Client
	store  Store
	delay  time.Duration
	gap    time.Duration
	logger *slog.Logger

	mu         sync.Mutex
	lastNames  map[string]string // conversation ID -> last applied thread name
	pending    map[string]renameReq
	flushTimer *time.Timer // nil when no flush is scheduled

	stopOnce sync.Once
	stop     chan struct{}
}

// NewManager creates a Manager. delay is how long renames accumulate
// before a flush; gap paces consecutive rename calls within a flush.
func NewManager(client Client, st Store, delay, gap time.Duration) *Manager {
	return &Manager{
		client:    client,
		store:     st,
		delay:     delay,
		gap:       gap,
		logger:    slog.Default().With("component", "topic"),
		lastNames: make(map[string]string),
		pending:   make(map[string]renameReq),
		stop:      make(chan struct{}),
	}
}

// Close cancels any scheduled flush, drops pending renames, and aborts
// an in-flight flush at its next pacing wait.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flushTimer != nil {
		m.flushTimer.Stop()
		m.flushTimer = nil
	}
	m.pending = make(map[string]renameReq)
}

// EnsureTopic returns the conversation's thread id, creating the forum
// thread on first use. The created flag reports whether a new thread was
// opened by this call.
func (m *Manager) EnsureTopic(ctx context.Context, conv *store.Conversation, groupID int64) (int64, bool, error) {
	if conv.ThreadID != 0 {
		return conv.ThreadID, false, nil
	}

	name := Name(conv)
	threadID, err := m.client.CreateForumTopic(ctx, groupID, name)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrThreadCreateFailed, err)
	}

	if err := m.store.SetConversationThread(ctx, conv.ID, threadID); err != nil {
		if errors.Is(err, store.ErrThreadAssigned) {
			// Lost a race with a concurrent create; use the winner's
			// thread and abandon ours.
			current, getErr := m.store.GetConversation(ctx, conv.ID)
			if getErr != nil {
				return 0, false, getErr
			}
			m.logger.Warn("orphaned duplicate thread",
				"conversation_id", conv.ID,
				"orphan_thread_id", threadID,
				"thread_id", current.ThreadID)
			conv.ThreadID = current.ThreadID
			return current.ThreadID, false, nil
		}
		return 0, false, err
	}

	m.mu.Lock()
	m.lastNames[conv.ID] = name
	m.mu.Unlock()

	conv.ThreadID = threadID
	return threadID, true, nil
}

// ScheduleRename queues a thread rename reflecting the conversation's
// current status. Repeated calls within the flush delay collapse to the
// latest name; a rename to the already-applied name is dropped.
func (m *Manager) ScheduleRename(conv *store.Conversation, groupID int64) {
	if conv.ThreadID == 0 {
		return
	}
	name := Name(conv)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastNames[conv.ID] == name {
		delete(m.pending, conv.ID)
		return
	}
	m.pending[conv.ID] = renameReq{groupID: groupID, threadID: conv.ThreadID, name: name}
	if m.flushTimer == nil {
		m.flushTimer = time.AfterFunc(m.delay, m.flushPending)
	}
}

func (m *Manager) flushPending() {
	m.mu.Lock()
	batch := m.pending
	m.pending = make(map[string]renameReq)
	m.flushTimer = nil
	m.mu.Unlock()

	first := true
	for convID, req := range batch {
		if !first {
			select {
			case <-time.After(m.gap):
			case <-m.stop:
				return
			}
		}
		first = false

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := m.client.EditForumTopic(ctx, req.groupID, req.threadID, req.name)
		cancel()
		if err != nil {
			// Leave lastNames untouched so the next status change
			// re-queues this rename.
			m.logger.Warn("renaming thread",
				"conversation_id", convID,
				"thread_id", req.threadID,
				"error", err)
			continue
		}

		m.mu.Lock()
		m.lastNames[convID] = req.name
		m.mu.Unlock()
	}
}
