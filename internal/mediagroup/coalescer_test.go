// ABOUTME: Tests for album coalescing
// ABOUTME: Covers immediate singles, window restarts, and post-flush re-buffering

package mediagroup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/internal/protocol"
	"github.com/relaydesk/relaydesk/internal/store"
)

type flushRecorder struct {
	mu      sync.Mutex
	batches [][]*protocol.Message
}

func (f *flushRecorder) flush(ctx context.Context, parts []*protocol.Message, conv *store.Conversation, direction string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, parts)
}

func (f *flushRecorder) get() [][]*protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]*protocol.Message, len(f.batches))
	copy(out, f.batches)
	return out
}

func (f *flushRecorder) waitFor(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(f.get()) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d flushes, got %d", n, len(f.get()))
}

func TestSingleMessageFlushesImmediately(t *testing.T) {
	rec := &flushRecorder{}
	c := New(time.Hour, rec.flush)
	defer c.Stop()

	conv := &store.Conversation{ID: "c1"}
	c.Add(context.Background(), &protocol.Message{ID: 1, Kind: protocol.KindText, Text: "hi"}, conv, "to_group")

	batches := rec.get()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 1)
}

func TestAlbumPartsCoalesce(t *testing.T) {
	rec := &flushRecorder{}
	c := New(50*time.Millisecond, rec.flush)
	defer c.Stop()

	conv := &store.Conversation{ID: "c1"}
	ctx := context.Background()

	c.Add(ctx, &protocol.Message{ID: 1, AlbumID: "a", Kind: protocol.KindPhoto}, conv, "to_group")
	time.Sleep(20 * time.Millisecond)
	c.Add(ctx, &protocol.Message{ID: 2, AlbumID: "a", Kind: protocol.KindPhoto}, conv, "to_group")

	// Second part restarted the window, so nothing has flushed yet.
	assert.Empty(t, rec.get())

	rec.waitFor(t, 1)
	batches := rec.get()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	assert.Equal(t, int64(1), batches[0][0].ID)
	assert.Equal(t, int64(2), batches[0][1].ID)
}

func TestDistinctAlbumsFlushSeparately(t *testing.T) {
	rec := &flushRecorder{}
	c := New(30*time.Millisecond, rec.flush)
	defer c.Stop()

	conv := &store.Conversation{ID: "c1"}
	ctx := context.Background()

	c.Add(ctx, &protocol.Message{ID: 1, AlbumID: "a", Kind: protocol.KindPhoto}, conv, "to_group")
	c.Add(ctx, &protocol.Message{ID: 2, AlbumID: "b", Kind: protocol.KindPhoto}, conv, "to_group")

	rec.waitFor(t, 2)
	batches := rec.get()
	assert.Len(t, batches[0], 1)
	assert.Len(t, batches[1], 1)
}

func TestLatePartStartsNewGroup(t *testing.T) {
	rec := &flushRecorder{}
	c := New(20*time.Millisecond, rec.flush)
	defer c.Stop()

	conv := &store.Conversation{ID: "c1"}
	ctx := context.Background()

	c.Add(ctx, &protocol.Message{ID: 1, AlbumID: "a", Kind: protocol.KindPhoto}, conv, "to_group")
	rec.waitFor(t, 1)

	// A part arriving after the flush buffers as a fresh group.
	c.Add(ctx, &protocol.Message{ID: 2, AlbumID: "a", Kind: protocol.KindPhoto}, conv, "to_group")
	rec.waitFor(t, 2)

	batches := rec.get()
	require.Len(t, batches, 2)
	assert.Equal(t, int64(1), batches[0][0].ID)
	assert.Equal(t, int64(2), batches[1][0].ID)
}

func TestRearmAfterTimerFiresKeepsQuietWindow(t *testing.T) {
	const window = 30 * time.Millisecond

	type flushEvent struct {
		at  time.Time
		ids []int64
	}

	for i := 0; i < 50; i++ {
		events := make(chan flushEvent, 2)
		c := New(window, func(ctx context.Context, parts []*protocol.Message, conv *store.Conversation, direction string) {
			ids := make([]int64, len(parts))
			for j, p := range parts {
				ids[j] = p.ID
			}
			events <- flushEvent{at: time.Now(), ids: ids}
		})

		ctx := context.Background()
		conv := &store.Conversation{ID: "c1"}

		c.Add(ctx, &protocol.Message{ID: 1, AlbumID: "a", Kind: protocol.KindPhoto}, conv, "to_group")
		// Land the second part right as the window elapses, racing the
		// timer goroutine that may have already fired.
		time.Sleep(window)
		second := time.Now()
		c.Add(ctx, &protocol.Message{ID: 2, AlbumID: "a", Kind: protocol.KindPhoto}, conv, "to_group")

		deadline := time.After(2 * time.Second)
		for done := false; !done; {
			select {
			case ev := <-events:
				if ev.ids[len(ev.ids)-1] != 2 {
					// Part 1 flushed alone before the second Add; part 2
					// re-buffered as a fresh group. Wait for its flush.
					continue
				}
				if gap := ev.at.Sub(second); gap < window/2 {
					t.Fatalf("iteration %d: flush landed %v after the last part (window %v)", i, gap, window)
				}
				done = true
			case <-deadline:
				t.Fatalf("iteration %d: album part never flushed", i)
			}
		}
		c.Stop()
	}
}

func TestStopDropsPending(t *testing.T) {
	rec := &flushRecorder{}
	c := New(20*time.Millisecond, rec.flush)

	conv := &store.Conversation{ID: "c1"}
	c.Add(context.Background(), &protocol.Message{ID: 1, AlbumID: "a", Kind: protocol.KindPhoto}, conv, "to_group")
	c.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, rec.get())
}
