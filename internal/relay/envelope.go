// ABOUTME: Relay envelope: the serialized form of a message in flight
// ABOUTME: Stored in the transient store between capture and delivery

package relay

import "github.com/relaydesk/relaydesk/internal/protocol"

// Direction values for an envelope.
const (
	DirectionToGroup = "to_group" // end user toward the operator group
	DirectionToUser  = "to_user"  // operator toward the end user
)

const (
	envelopePrefix = "envelope:"
	blobPrefix     = "blob:"
)

// Envelope is everything needed to deliver one captured message. Media
// bytes live under BlobKey in the transient store rather than inline.
type Envelope struct {
	Key            string `json:"key"`
	ConversationID string `json:"conversation_id"`
	TenantID       string `json:"tenant_id"`
	Direction      string `json:"direction"`

	Kind       protocol.ContentKind `json:"kind"`
	ExternalID int64                `json:"external_id"`

	Text            string            `json:"text,omitempty"`
	Entities        []protocol.Entity `json:"entities,omitempty"`
	Caption         string            `json:"caption,omitempty"`
	CaptionEntities []protocol.Entity `json:"caption_entities,omitempty"`

	BlobKey  string `json:"blob_key,omitempty"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Duration int    `json:"duration,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Length   int    `json:"length,omitempty"`

	Location *protocol.Location `json:"location,omitempty"`
	Contact  *protocol.Contact  `json:"contact,omitempty"`
	Venue    *protocol.Venue    `json:"venue,omitempty"`

	AlbumID   string `json:"album_id,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// auditContent returns the human-readable content recorded in the message
// audit log.
func (e *Envelope) auditContent() string {
	if e.Text != "" {
		return e.Text
	}
	if e.Caption != "" {
		return e.Caption
	}
	return ""
}
