// ABOUTME: Wire types for the chat platform bot API
// ABOUTME: Messages, entities, file references, and chat membership records

package protocol

import "strings"

// ContentKind identifies the payload type of a message.
type ContentKind string

const (
	KindText      ContentKind = "text"
	KindPhoto     ContentKind = "photo"
	KindVideo     ContentKind = "video"
	KindVoice     ContentKind = "voice"
	KindVideoNote ContentKind = "video_note"
	KindDocument  ContentKind = "document"
	KindAudio     ContentKind = "audio"
	KindAnimation ContentKind = "animation"
	KindLocation  ContentKind = "location"
	KindContact   ContentKind = "contact"
	KindVenue     ContentKind = "venue"
	KindUnknown   ContentKind = "unknown"
)

// EntityType identifies a span of styled or semantic text.
type EntityType string

const (
	EntityBold                 EntityType = "bold"
	EntityItalic               EntityType = "italic"
	EntityUnderline            EntityType = "underline"
	EntityStrikethrough        EntityType = "strikethrough"
	EntitySpoiler              EntityType = "spoiler"
	EntityCode                 EntityType = "code"
	EntityPre                  EntityType = "pre"
	EntityBlockquote           EntityType = "blockquote"
	EntityExpandableBlockquote EntityType = "expandable_blockquote"
	EntityTextLink             EntityType = "text_link"
	EntityURL                  EntityType = "url"
	EntityEmail                EntityType = "email"
	EntityPhoneNumber          EntityType = "phone_number"
	EntityMention              EntityType = "mention"
	EntityHashtag              EntityType = "hashtag"
	EntityCashtag              EntityType = "cashtag"
	EntityBotCommand           EntityType = "bot_command"
	EntityCustomEmoji          EntityType = "custom_emoji"
)

// Entity is a styled or semantic span within message text.
// Offset and Length are measured in Unicode code points.
type Entity struct {
	Type     EntityType `json:"type"`
	Offset   int        `json:"offset"`
	Length   int        `json:"length"`
	URL      string     `json:"url,omitempty"`
	Language string     `json:"language,omitempty"`
}

// User is a chat platform account.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// FileRef points at a media payload held by the platform.
type FileRef struct {
	FileID   string `json:"file_id"`
	UniqueID string `json:"file_unique_id,omitempty"`
	Filename string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"file_size,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Duration int    `json:"duration,omitempty"`
	Length   int    `json:"length,omitempty"`
}

// Location is a geographic point.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Contact is a shared phone book entry.
type Contact struct {
	PhoneNumber string `json:"phone_number"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name,omitempty"`
	UserID      int64  `json:"user_id,omitempty"`
}

// Venue is a location with a title and address.
type Venue struct {
	Location Location `json:"location"`
	Title    string   `json:"title"`
	Address  string   `json:"address"`
}

// Message is a single inbound or outbound chat message.
type Message struct {
	ID              int64       `json:"message_id"`
	ChatID          int64       `json:"chat_id"`
	ThreadID        int64       `json:"message_thread_id,omitempty"`
	From            *User       `json:"from,omitempty"`
	Date            int64       `json:"date"`
	AlbumID         string      `json:"media_group_id,omitempty"`
	Kind            ContentKind `json:"kind"`
	Text            string      `json:"text,omitempty"`
	Entities        []Entity    `json:"entities,omitempty"`
	Caption         string      `json:"caption,omitempty"`
	CaptionEntities []Entity    `json:"caption_entities,omitempty"`
	File            *FileRef    `json:"file,omitempty"`
	Location        *Location   `json:"location,omitempty"`
	Contact         *Contact    `json:"contact,omitempty"`
	Venue           *Venue      `json:"venue,omitempty"`
}

// IsCommand reports whether the message text is a slash command.
func (m *Message) IsCommand() bool {
	return m.Kind == KindText && strings.HasPrefix(m.Text, "/")
}

// Command returns the command name without the slash or a bot suffix,
// or an empty string if the message is not a command.
func (m *Message) Command() string {
	if !m.IsCommand() {
		return ""
	}
	cmd := strings.Fields(m.Text)[0][1:]
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	return cmd
}

// CommandArgs returns everything after the command name, trimmed.
func (m *Message) CommandArgs() string {
	if !m.IsCommand() {
		return ""
	}
	fields := strings.SplitN(m.Text, " ", 2)
	if len(fields) < 2 {
		return ""
	}
	return strings.TrimSpace(fields[1])
}

// Update is one long-poll result.
type Update struct {
	ID      int64    `json:"update_id"`
	Message *Message `json:"message,omitempty"`
}

// Identity describes the authenticated bot account.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"first_name"`
}

// ChatMember is a user's membership record in a chat.
type ChatMember struct {
	User   User   `json:"user"`
	Status string `json:"status"`
}

// IsAdmin reports whether the member can issue operator commands.
func (m *ChatMember) IsAdmin() bool {
	return m.Status == "administrator" || m.Status == "creator"
}
