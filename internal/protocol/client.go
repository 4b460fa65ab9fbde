// ABOUTME: Client interface for the chat platform bot API
// ABOUTME: Send parameter structs shared by the HTTP and mock implementations

package protocol

import (
	"context"
	"errors"
)

// ErrUnauthorized indicates the bot credential was rejected by the platform.
var ErrUnauthorized = errors.New("protocol: unauthorized")

// TextParams describes an outbound text message.
type TextParams struct {
	ChatID    int64
	ThreadID  int64
	Text      string
	ParseMode string
}

// FileParams describes an outbound media message. Exactly one of FileID
// or Data is used: FileID re-sends platform-held media, Data uploads bytes.
type FileParams struct {
	ChatID    int64
	ThreadID  int64
	FileID    string
	Data      []byte
	Filename  string
	MimeType  string
	Caption   string
	ParseMode string
	Duration  int
	Width     int
	Height    int
	Length    int
}

// LocationParams describes an outbound location message.
type LocationParams struct {
	ChatID    int64
	ThreadID  int64
	Latitude  float64
	Longitude float64
}

// ContactParams describes an outbound contact message.
type ContactParams struct {
	ChatID      int64
	ThreadID    int64
	PhoneNumber string
	FirstName   string
	LastName    string
}

// VenueParams describes an outbound venue message.
type VenueParams struct {
	ChatID    int64
	ThreadID  int64
	Latitude  float64
	Longitude float64
	Title     string
	Address   string
}

// Client is a connection to the chat platform on behalf of one bot account.
// Send methods return the platform-assigned message id.
type Client interface {
	// GetMe validates the credential and returns the bot identity.
	GetMe(ctx context.Context) (*Identity, error)

	// GetUpdates long-polls for updates after offset.
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]*Update, error)

	SendText(ctx context.Context, p TextParams) (int64, error)
	SendPhoto(ctx context.Context, p FileParams) (int64, error)
	SendVideo(ctx context.Context, p FileParams) (int64, error)
	SendVoice(ctx context.Context, p FileParams) (int64, error)
	SendVideoNote(ctx context.Context, p FileParams) (int64, error)
	SendDocument(ctx context.Context, p FileParams) (int64, error)
	SendAudio(ctx context.Context, p FileParams) (int64, error)
	SendAnimation(ctx context.Context, p FileParams) (int64, error)
	SendLocation(ctx context.Context, p LocationParams) (int64, error)
	SendContact(ctx context.Context, p ContactParams) (int64, error)
	SendVenue(ctx context.Context, p VenueParams) (int64, error)

	// DownloadFile fetches the raw bytes of platform-held media.
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)

	// CreateForumTopic opens a new forum thread and returns its id.
	CreateForumTopic(ctx context.Context, chatID int64, name string) (int64, error)

	// EditForumTopic renames an existing forum thread.
	EditForumTopic(ctx context.Context, chatID, threadID int64, name string) error

	// GetChatMember returns a user's membership record in a chat.
	GetChatMember(ctx context.Context, chatID, userID int64) (*ChatMember, error)

	// Close releases client resources.
	Close() error
}
