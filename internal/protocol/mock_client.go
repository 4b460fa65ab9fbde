// ABOUTME: Mock Client implementation for testing
// ABOUTME: Records sent messages and serves scripted updates and files

package protocol

import (
	"context"
	"sync"
)

// SentRecord captures one outbound send for later inspection.
type SentRecord struct {
	Method   string
	ChatID   int64
	ThreadID int64
	Text     string
	Caption  string
	FileID   string
	Data     []byte
}

// MockClient is an in-memory Client for tests. Zero value is not usable;
// create with NewMockClient.
type MockClient struct {
	mu sync.Mutex

	Identity Identity
	GetMeErr error

	updates chan []*Update

	sent       []SentRecord
	nextMsgID  int64
	SendErr    error
	SendErrFor string // method name; empty means SendErr applies to all

	Files       map[string][]byte
	DownloadErr error

	nextThreadID   int64
	CreateTopicErr error
	createdTopics  []string
	renamedTopics  map[int64]string
	EditTopicErr   error

	Members map[int64]*ChatMember

	closed bool
}

// NewMockClient creates a MockClient with the given identity.
func NewMockClient(id Identity) *MockClient {
	return &MockClient{
		Identity:      id,
		updates:       make(chan []*Update, 16),
		nextMsgID:     1000,
		nextThreadID:  1,
		Files:         make(map[string][]byte),
		Members:       make(map[int64]*ChatMember),
		renamedTopics: make(map[int64]string),
	}
}

// QueueUpdates makes the next GetUpdates call return these updates.
func (c *MockClient) QueueUpdates(updates ...*Update) {
	c.updates <- updates
}

func (c *MockClient) GetMe(ctx context.Context) (*Identity, error) {
	if c.GetMeErr != nil {
		return nil, c.GetMeErr
	}
	id := c.Identity
	return &id, nil
}

func (c *MockClient) GetUpdates(ctx context.Context, offset int64, timeout int) ([]*Update, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case batch := <-c.updates:
		return batch, nil
	}
}

func (c *MockClient) record(method string, chatID, threadID int64, text, caption, fileID string, data []byte) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SendErr != nil && (c.SendErrFor == "" || c.SendErrFor == method) {
		return 0, c.SendErr
	}
	c.nextMsgID++
	c.sent = append(c.sent, SentRecord{
		Method:   method,
		ChatID:   chatID,
		ThreadID: threadID,
		Text:     text,
		Caption:  caption,
		FileID:   fileID,
		Data:     data,
	})
	return c.nextMsgID, nil
}

// Sent returns a copy of all recorded sends.
func (c *MockClient) Sent() []SentRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]SentRecord, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *MockClient) SendText(ctx context.Context, p TextParams) (int64, error) {
	return c.record("sendMessage", p.ChatID, p.ThreadID, p.Text, "", "", nil)
}

func (c *MockClient) SendPhoto(ctx context.Context, p FileParams) (int64, error) {
	return c.record("sendPhoto", p.ChatID, p.ThreadID, "", p.Caption, p.FileID, p.Data)
}

func (c *MockClient) SendVideo(ctx context.Context, p FileParams) (int64, error) {
	return c.record("sendVideo", p.ChatID, p.ThreadID, "", p.Caption, p.FileID, p.Data)
}

func (c *MockClient) SendVoice(ctx context.Context, p FileParams) (int64, error) {
	return c.record("sendVoice", p.ChatID, p.ThreadID, "", p.Caption, p.FileID, p.Data)
}

func (c *MockClient) SendVideoNote(ctx context.Context, p FileParams) (int64, error) {
	return c.record("sendVideoNote", p.ChatID, p.ThreadID, "", "", p.FileID, p.Data)
}

func (c *MockClient) SendDocument(ctx context.Context, p FileParams) (int64, error) {
	return c.record("sendDocument", p.ChatID, p.ThreadID, "", p.Caption, p.FileID, p.Data)
}

func (c *MockClient) SendAudio(ctx context.Context, p FileParams) (int64, error) {
	return c.record("sendAudio", p.ChatID, p.ThreadID, "", p.Caption, p.FileID, p.Data)
}

func (c *MockClient) SendAnimation(ctx context.Context, p FileParams) (int64, error) {
	return c.record("sendAnimation", p.ChatID, p.ThreadID, "", p.Caption, p.FileID, p.Data)
}

func (c *MockClient) SendLocation(ctx context.Context, p LocationParams) (int64, error) {
	return c.record("sendLocation", p.ChatID, p.ThreadID, "", "", "", nil)
}

func (c *MockClient) SendContact(ctx context.Context, p ContactParams) (int64, error) {
	return c.record("sendContact", p.ChatID, p.ThreadID, p.PhoneNumber, "", "", nil)
}

func (c *MockClient) SendVenue(ctx context.Context, p VenueParams) (int64, error) {
	return c.record("sendVenue", p.ChatID, p.ThreadID, p.Title, "", "", nil)
}

func (c *MockClient) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.DownloadErr != nil {
		return nil, c.DownloadErr
	}
	data, ok := c.Files[fileID]
	if !ok {
		return nil, ErrUnauthorized
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (c *MockClient) CreateForumTopic(ctx context.Context, chatID int64, name string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.CreateTopicErr != nil {
		return 0, c.CreateTopicErr
	}
	c.nextThreadID++
	c.createdTopics = append(c.createdTopics, name)
	return c.nextThreadID, nil
}

// CreatedTopics returns the names of all created forum threads in order.
func (c *MockClient) CreatedTopics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.createdTopics))
	copy(out, c.createdTopics)
	return out
}

func (c *MockClient) EditForumTopic(ctx context.Context, chatID, threadID int64, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.EditTopicErr != nil {
		return c.EditTopicErr
	}
	c.renamedTopics[threadID] = name
	return nil
}

// RenamedTopics returns the last rename applied per thread id.
func (c *MockClient) RenamedTopics() map[int64]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[int64]string, len(c.renamedTopics))
	for k, v := range c.renamedTopics {
		out[k] = v
	}
	return out
}

func (c *MockClient) GetChatMember(ctx context.Context, chatID, userID int64) (*ChatMember, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.Members[userID]; ok {
		cp := *m
		return &cp, nil
	}
	return &ChatMember{User: User{ID: userID}, Status: "member"}, nil
}

func (c *MockClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *MockClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

var _ Client = (*MockClient)(nil)
