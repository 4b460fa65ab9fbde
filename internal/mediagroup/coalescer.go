// ABOUTME: Buffers album parts and flushes a complete group after a quiet window
// ABOUTME: Messages without an album id flush immediately as singletons

package mediagroup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/relaydesk/relaydesk/internal/protocol"
	"github.com/relaydesk/relaydesk/internal/store"
)

// FlushFunc receives a completed group: either a single message or all
// buffered parts of one album in arrival order.
type FlushFunc func(ctx context.Context, parts []*protocol.Message, conv *store.Conversation, direction string)

type group struct {
	parts     []*protocol.Message
	conv      *store.Conversation
	direction string
	timer     *time.Timer
	gen       uint64
}

// Coalescer groups album parts that arrive as separate updates. Each new
// part restarts the album's quiet-window timer; the album flushes once no
// part has arrived for a full window.
type Coalescer struct {
	mu     sync.Mutex
	window time.Duration
	flush  FlushFunc
	groups map[string]*group
	logger *slog.Logger
}

// New creates a Coalescer with the given quiet window.
func New(window time.Duration, flush FlushFunc) *Coalescer {
	return &Coalescer{
		window: window,
		flush:  flush,
		groups: make(map[string]*group),
		logger: slog.Default().With("component", "mediagroup"),
	}
}

// Add routes one message. Non-album messages flush synchronously; album
// parts are buffered under their album id.
func (c *Coalescer) Add(ctx context.Context, msg *protocol.Message, conv *store.Conversation, direction string) {
	if msg.AlbumID == "" {
		c.flush(ctx, []*protocol.Message{msg}, conv, direction)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.groups[msg.AlbumID]
	if !ok {
		g = &group{conv: conv, direction: direction}
		c.groups[msg.AlbumID] = g
	} else {
		g.timer.Stop()
	}
	g.parts = append(g.parts, msg)
	g.gen++

	// Stop does not catch a timer that already fired. The generation check
	// in fire keeps such a stale goroutine from flushing the re-armed buffer.
	albumID, gen := msg.AlbumID, g.gen
	g.timer = time.AfterFunc(c.window, func() {
		c.fire(albumID, gen)
	})
}

// fire flushes an album when its quiet window elapses. A stale timer,
// whether its album was already flushed or re-armed by a newer part,
// does nothing.
func (c *Coalescer) fire(albumID string, gen uint64) {
	c.mu.Lock()
	g, ok := c.groups[albumID]
	if ok && g.gen != gen {
		c.mu.Unlock()
		return
	}
	if ok {
		delete(c.groups, albumID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}

	c.logger.Debug("flushing album", "album_id", albumID, "parts", len(g.parts))
	c.flush(context.Background(), g.parts, g.conv, g.direction)
}

// Stop cancels all pending timers and drops buffered parts.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, g := range c.groups {
		g.timer.Stop()
		delete(c.groups, id)
	}
}
