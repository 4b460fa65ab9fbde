// ABOUTME: Conversation status machine driven by operator commands and traffic
// ABOUTME: Persists transitions and schedules the matching thread rename

package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/relaydesk/relaydesk/internal/store"
)

var (
	// ErrConversationNotFound indicates no conversation is bound to the
	// forum thread the command was issued in.
	ErrConversationNotFound = errors.New("status: conversation not found")

	// ErrNotInTopic indicates the command was sent outside any forum thread.
	ErrNotInTopic = errors.New("status: command not in a thread")

	// ErrInvalidTransition indicates the command does not apply to the
	// conversation's current status.
	ErrInvalidTransition = errors.New("status: invalid transition")
)

// Operator commands accepted by Apply.
const (
	CmdHold   = "hold"
	CmdUnhold = "unhold"
	CmdBan    = "ban"
	CmdUnban  = "unban"
	CmdEnd    = "end"
)

// Store is the slice of the store the machine needs.
type Store interface {
	GetConversationByThread(ctx context.Context, threadID int64) (*store.Conversation, error)
	UpdateConversationStatus(ctx context.Context, id string, status string) error
	Ban(ctx context.Context, tenantID string, userID int64) error
	Unban(ctx context.Context, tenantID string, userID int64) error
}

// Renamer schedules a thread rename after a status change.
type Renamer interface {
	ScheduleRename(conv *store.Conversation, groupID int64)
}

// Machine applies status transitions for conversations.
type Machine struct {
	store  Store
	topics Renamer
	logger *slog.Logger
}

// NewMachine creates a Machine.
func NewMachine(st Store, topics Renamer) *Machine {
	return &Machine{
		store:  st,
		topics: topics,
		logger: slog.Default().With("component", "status"),
	}
}

// Apply resolves the thread to its conversation and applies cmd. The
// returned conversation carries the new status.
func (m *Machine) Apply(ctx context.Context, threadID int64, cmd string, groupID int64) (*store.Conversation, error) {
	if threadID == 0 {
		return nil, ErrNotInTopic
	}
	conv, err := m.store.GetConversationByThread(ctx, threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("resolving thread: %w", err)
	}

	next, err := m.transition(conv.Status, cmd)
	if err != nil {
		return nil, err
	}

	// Ban bookkeeping happens before the status write so a failure
	// leaves the conversation unchanged.
	switch cmd {
	case CmdBan:
		if err := m.store.Ban(ctx, conv.TenantID, conv.UserID); err != nil {
			return nil, fmt.Errorf("recording ban: %w", err)
		}
	case CmdUnban:
		if err := m.store.Unban(ctx, conv.TenantID, conv.UserID); err != nil {
			return nil, fmt.Errorf("removing ban: %w", err)
		}
	}

	if err := m.set(ctx, conv, next, groupID); err != nil {
		return nil, err
	}

	m.logger.Info("status changed",
		"conversation_id", conv.ID,
		"command", cmd,
		"status", next)
	return conv, nil
}

// transition returns the target status for cmd, or ErrInvalidTransition.
func (m *Machine) transition(current, cmd string) (string, error) {
	switch cmd {
	case CmdHold:
		if current == store.StatusWaiting || current == store.StatusAnswered {
			return store.StatusHold, nil
		}
	case CmdUnhold:
		if current == store.StatusHold {
			return store.StatusWaiting, nil
		}
	case CmdBan:
		if current != store.StatusBanned {
			return store.StatusBanned, nil
		}
	case CmdUnban:
		if current == store.StatusBanned {
			return store.StatusWaiting, nil
		}
	case CmdEnd:
		if current != store.StatusEnded {
			return store.StatusEnded, nil
		}
	default:
		return "", fmt.Errorf("%w: unknown command %q", ErrInvalidTransition, cmd)
	}
	return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, cmd, current)
}

// NoteInbound marks a conversation waiting when the end user writes.
// Hold, ended, and banned conversations keep their status.
func (m *Machine) NoteInbound(ctx context.Context, conv *store.Conversation, groupID int64) error {
	switch conv.Status {
	case store.StatusHold, store.StatusEnded, store.StatusBanned, store.StatusWaiting:
		return nil
	}
	return m.set(ctx, conv, store.StatusWaiting, groupID)
}

// NoteReply marks a conversation answered when an operator replies.
// Hold, ended, and banned conversations keep their status.
func (m *Machine) NoteReply(ctx context.Context, conv *store.Conversation, groupID int64) error {
	switch conv.Status {
	case store.StatusHold, store.StatusEnded, store.StatusBanned, store.StatusAnswered:
		return nil
	}
	return m.set(ctx, conv, store.StatusAnswered, groupID)
}

func (m *Machine) set(ctx context.Context, conv *store.Conversation, next string, groupID int64) error {
	if err := m.store.UpdateConversationStatus(ctx, conv.ID, next); err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	conv.Status = next
	m.topics.ScheduleRename(conv, groupID)
	return nil
}
