// ABOUTME: Raw bot API update shapes and their translation to internal types
// ABOUTME: Detects the content kind and flattens media variants into FileRef

package protocol

type wireChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type wireFile struct {
	FileID   string `json:"file_id"`
	UniqueID string `json:"file_unique_id"`
	Filename string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"file_size"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Duration int    `json:"duration"`
	Length   int    `json:"length"`
}

type wireMessage struct {
	ID              int64      `json:"message_id"`
	ThreadID        int64      `json:"message_thread_id"`
	From            *User      `json:"from"`
	Chat            wireChat   `json:"chat"`
	Date            int64      `json:"date"`
	MediaGroupID    string     `json:"media_group_id"`
	Text            string     `json:"text"`
	Entities        []Entity   `json:"entities"`
	Caption         string     `json:"caption"`
	CaptionEntities []Entity   `json:"caption_entities"`
	Photo           []wireFile `json:"photo"`
	Video           *wireFile  `json:"video"`
	Voice           *wireFile  `json:"voice"`
	VideoNote       *wireFile  `json:"video_note"`
	Document        *wireFile  `json:"document"`
	Audio           *wireFile  `json:"audio"`
	Animation       *wireFile  `json:"animation"`
	Location        *Location  `json:"location"`
	Contact         *Contact   `json:"contact"`
	Venue           *Venue     `json:"venue"`
}

type wireUpdate struct {
	ID      int64        `json:"update_id"`
	Message *wireMessage `json:"message"`
}

func (f *wireFile) toRef() *FileRef {
	return &FileRef{
		FileID:   f.FileID,
		UniqueID: f.UniqueID,
		Filename: f.Filename,
		MimeType: f.MimeType,
		Size:     f.Size,
		Width:    f.Width,
		Height:   f.Height,
		Duration: f.Duration,
		Length:   f.Length,
	}
}

func (u wireUpdate) translate() *Update {
	out := &Update{ID: u.ID}
	if u.Message != nil {
		out.Message = u.Message.translate()
	}
	return out
}

func (m *wireMessage) translate() *Message {
	msg := &Message{
		ID:              m.ID,
		ChatID:          m.Chat.ID,
		ThreadID:        m.ThreadID,
		From:            m.From,
		Date:            m.Date,
		AlbumID:         m.MediaGroupID,
		Text:            m.Text,
		Entities:        m.Entities,
		Caption:         m.Caption,
		CaptionEntities: m.CaptionEntities,
		Location:        m.Location,
		Contact:         m.Contact,
		Venue:           m.Venue,
	}

	switch {
	case len(m.Photo) > 0:
		msg.Kind = KindPhoto
		// The photo array holds resized variants; take the largest.
		largest := m.Photo[0]
		for _, p := range m.Photo[1:] {
			if p.Width*p.Height > largest.Width*largest.Height {
				largest = p
			}
		}
		msg.File = largest.toRef()
	case m.Video != nil:
		msg.Kind = KindVideo
		msg.File = m.Video.toRef()
	case m.Voice != nil:
		msg.Kind = KindVoice
		msg.File = m.Voice.toRef()
	case m.VideoNote != nil:
		msg.Kind = KindVideoNote
		msg.File = m.VideoNote.toRef()
	case m.Animation != nil:
		// Animations also carry a document field; animation wins.
		msg.Kind = KindAnimation
		msg.File = m.Animation.toRef()
	case m.Document != nil:
		msg.Kind = KindDocument
		msg.File = m.Document.toRef()
	case m.Audio != nil:
		msg.Kind = KindAudio
		msg.File = m.Audio.toRef()
	case m.Location != nil && m.Venue == nil:
		msg.Kind = KindLocation
	case m.Contact != nil:
		msg.Kind = KindContact
	case m.Venue != nil:
		msg.Kind = KindVenue
	case m.Text != "":
		msg.Kind = KindText
	default:
		msg.Kind = KindUnknown
	}
	return msg
}
