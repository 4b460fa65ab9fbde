// ABOUTME: Captures inbound messages into envelopes and delivers them onward
// ABOUTME: Media is pulled from the source bot and re-uploaded by the destination bot

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/relaydesk/relaydesk/internal/markup"
	"github.com/relaydesk/relaydesk/internal/protocol"
	"github.com/relaydesk/relaydesk/internal/store"
	"github.com/relaydesk/relaydesk/internal/transient"
)

var (
	// ErrBlobFetchFailed indicates media bytes could not be downloaded
	// from the source bot, so no envelope was written.
	ErrBlobFetchFailed = errors.New("relay: blob fetch failed")

	// ErrDeliveryFailed indicates the destination send failed. The
	// envelope stays in the transient store until its TTL expires.
	ErrDeliveryFailed = errors.New("relay: delivery failed")
)

const unsupportedNotice = "[unsupported message type]"

// MessageSaver is the audit-log slice of the store needed by the relay.
type MessageSaver interface {
	SaveMessage(ctx context.Context, msg *store.Message) error
}

// Relay moves messages between a conversation's two sides via envelopes
// in the transient store.
type Relay struct {
	saver     MessageSaver
	transient transient.Store
	ttl       time.Duration
	logger    *slog.Logger
}

// New creates a Relay. ttl bounds how long an undelivered envelope and
// its blob survive.
func New(saver MessageSaver, ts transient.Store, ttl time.Duration) *Relay {
	return &Relay{
		saver:     saver,
		transient: ts,
		ttl:       ttl,
		logger:    slog.Default().With("component", "relay"),
	}
}

// Capture serializes msg into an envelope keyed by a fresh id. Media is
// downloaded through src and stored as a separate blob entry so the
// destination bot can re-upload it.
func (r *Relay) Capture(ctx context.Context, src protocol.Client, conv *store.Conversation, msg *protocol.Message, direction string) (string, error) {
	env := &Envelope{
		Key:             envelopePrefix + uuid.New().String(),
		ConversationID:  conv.ID,
		TenantID:        conv.TenantID,
		Direction:       direction,
		Kind:            msg.Kind,
		ExternalID:      msg.ID,
		Text:            msg.Text,
		Entities:        msg.Entities,
		Caption:         msg.Caption,
		CaptionEntities: msg.CaptionEntities,
		Location:        msg.Location,
		Contact:         msg.Contact,
		Venue:           msg.Venue,
		AlbumID:         msg.AlbumID,
		CreatedAt:       time.Now().Unix(),
	}

	if msg.File != nil {
		data, err := src.DownloadFile(ctx, msg.File.FileID)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrBlobFetchFailed, err)
		}
		env.BlobKey = blobPrefix + uuid.New().String()
		env.Filename = msg.File.Filename
		env.MimeType = msg.File.MimeType
		env.Duration = msg.File.Duration
		env.Width = msg.File.Width
		env.Height = msg.File.Height
		env.Length = msg.File.Length
		if err := r.transient.Set(ctx, env.BlobKey, data, r.ttl); err != nil {
			return "", fmt.Errorf("storing blob: %w", err)
		}
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encoding envelope: %w", err)
	}
	if err := r.transient.Set(ctx, env.Key, raw, r.ttl); err != nil {
		return "", fmt.Errorf("storing envelope: %w", err)
	}
	return env.Key, nil
}

// Load retrieves a stored envelope by key.
func (r *Relay) Load(ctx context.Context, key string) (*Envelope, error) {
	raw, err := r.transient.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading envelope: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	return &env, nil
}

// Deliver sends the envelope under key through dst into the given chat
// and thread. On success the envelope and blob are deleted and an audit
// row is appended; on failure they remain for retry until TTL expiry.
func (r *Relay) Deliver(ctx context.Context, dst protocol.Client, key string, chatID, threadID int64) (int64, error) {
	env, err := r.Load(ctx, key)
	if err != nil {
		return 0, err
	}

	sentID, err := r.send(ctx, dst, env, chatID, threadID, true)
	if err != nil {
		r.logger.Warn("delivery failed",
			"conversation_id", env.ConversationID,
			"kind", env.Kind,
			"error", err)
		return 0, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	r.finish(ctx, env, sentID)
	return sentID, nil
}

// DeliverGroup sends an album's envelopes in order. The caption rides on
// the first part only. Delivery succeeds if at least one part lands;
// failed parts keep their envelopes.
func (r *Relay) DeliverGroup(ctx context.Context, dst protocol.Client, keys []string, chatID, threadID int64) ([]int64, error) {
	var sent []int64
	var lastErr error
	for i, key := range keys {
		env, err := r.Load(ctx, key)
		if err != nil {
			lastErr = err
			continue
		}
		sentID, err := r.send(ctx, dst, env, chatID, threadID, i == 0)
		if err != nil {
			r.logger.Warn("album part delivery failed",
				"conversation_id", env.ConversationID,
				"part", i,
				"error", err)
			lastErr = err
			continue
		}
		r.finish(ctx, env, sentID)
		sent = append(sent, sentID)
	}

	if len(sent) == 0 {
		if lastErr == nil {
			lastErr = transient.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, lastErr)
	}
	return sent, nil
}

// finish deletes the envelope and blob and appends the audit row.
// Cleanup failures are logged, not returned: the message was delivered.
func (r *Relay) finish(ctx context.Context, env *Envelope, sentID int64) {
	if err := r.transient.Delete(ctx, env.Key); err != nil {
		r.logger.Warn("deleting envelope", "key", env.Key, "error", err)
	}
	if env.BlobKey != "" {
		if err := r.transient.Delete(ctx, env.BlobKey); err != nil {
			r.logger.Warn("deleting blob", "key", env.BlobKey, "error", err)
		}
	}

	audit := &store.Message{
		ConversationID: env.ConversationID,
		ExternalID:     sentID,
		FromUser:       env.Direction == DirectionToGroup,
		Content:        env.auditContent(),
		Kind:           string(env.Kind),
	}
	if err := r.saver.SaveMessage(ctx, audit); err != nil {
		r.logger.Warn("saving audit message", "conversation_id", env.ConversationID, "error", err)
	}
}

func (r *Relay) send(ctx context.Context, dst protocol.Client, env *Envelope, chatID, threadID int64, withCaption bool) (int64, error) {
	switch env.Kind {
	case protocol.KindText:
		return dst.SendText(ctx, protocol.TextParams{
			ChatID:    chatID,
			ThreadID:  threadID,
			Text:      markup.Compile(env.Text, env.Entities),
			ParseMode: markup.ParseMode,
		})
	case protocol.KindPhoto, protocol.KindVideo, protocol.KindVoice,
		protocol.KindVideoNote, protocol.KindDocument, protocol.KindAudio,
		protocol.KindAnimation:
		return r.sendMedia(ctx, dst, env, chatID, threadID, withCaption)
	case protocol.KindLocation:
		if env.Location == nil {
			return 0, fmt.Errorf("location envelope without location")
		}
		return dst.SendLocation(ctx, protocol.LocationParams{
			ChatID:    chatID,
			ThreadID:  threadID,
			Latitude:  env.Location.Latitude,
			Longitude: env.Location.Longitude,
		})
	case protocol.KindContact:
		if env.Contact == nil {
			return 0, fmt.Errorf("contact envelope without contact")
		}
		return dst.SendContact(ctx, protocol.ContactParams{
			ChatID:      chatID,
			ThreadID:    threadID,
			PhoneNumber: env.Contact.PhoneNumber,
			FirstName:   env.Contact.FirstName,
			LastName:    env.Contact.LastName,
		})
	case protocol.KindVenue:
		if env.Venue == nil {
			return 0, fmt.Errorf("venue envelope without venue")
		}
		return dst.SendVenue(ctx, protocol.VenueParams{
			ChatID:    chatID,
			ThreadID:  threadID,
			Latitude:  env.Venue.Location.Latitude,
			Longitude: env.Venue.Location.Longitude,
			Title:     env.Venue.Title,
			Address:   env.Venue.Address,
		})
	default:
		// Best effort: tell the other side something arrived.
		r.logger.Warn("unsupported content kind", "kind", env.Kind, "conversation_id", env.ConversationID)
		return dst.SendText(ctx, protocol.TextParams{
			ChatID:   chatID,
			ThreadID: threadID,
			Text:     markup.Escape(unsupportedNotice),
		})
	}
}

func (r *Relay) sendMedia(ctx context.Context, dst protocol.Client, env *Envelope, chatID, threadID int64, withCaption bool) (int64, error) {
	data, err := r.transient.Get(ctx, env.BlobKey)
	if err != nil {
		return 0, fmt.Errorf("loading blob: %w", err)
	}

	params := protocol.FileParams{
		ChatID:   chatID,
		ThreadID: threadID,
		Data:     data,
		Filename: env.Filename,
		MimeType: env.MimeType,
		Duration: env.Duration,
		Width:    env.Width,
		Height:   env.Height,
		Length:   env.Length,
	}
	if withCaption && env.Caption != "" {
		params.Caption = markup.Compile(env.Caption, env.CaptionEntities)
		params.ParseMode = markup.ParseMode
	}

	switch env.Kind {
	case protocol.KindPhoto:
		return dst.SendPhoto(ctx, params)
	case protocol.KindVideo:
		return dst.SendVideo(ctx, params)
	case protocol.KindVoice:
		return dst.SendVoice(ctx, params)
	case protocol.KindVideoNote:
		return dst.SendVideoNote(ctx, params)
	case protocol.KindDocument:
		return dst.SendDocument(ctx, params)
	case protocol.KindAudio:
		return dst.SendAudio(ctx, params)
	case protocol.KindAnimation:
		return dst.SendAnimation(ctx, params)
	default:
		return 0, fmt.Errorf("not a media kind: %s", env.Kind)
	}
}
