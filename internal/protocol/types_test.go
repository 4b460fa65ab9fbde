// ABOUTME: Tests for message helpers and update translation rules
// ABOUTME: Covers command parsing, kind detection, and admin checks

package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandParsing(t *testing.T) {
	tests := []struct {
		name string
		text string
		kind ContentKind
		cmd  string
		args string
	}{
		{"plain command", "/start", KindText, "start", ""},
		{"command with args", "/ban spam reasons", KindText, "ban", "spam reasons"},
		{"command with bot suffix", "/info@acme_support_bot", KindText, "info", ""},
		{"not a command", "hello /start", KindText, "", ""},
		{"non-text kind", "/start", KindPhoto, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Message{Kind: tt.kind, Text: tt.text}
			assert.Equal(t, tt.cmd, m.Command())
			assert.Equal(t, tt.args, m.CommandArgs())
		})
	}
}

func TestTranslateKinds(t *testing.T) {
	tests := []struct {
		name string
		msg  wireMessage
		kind ContentKind
	}{
		{"text", wireMessage{Text: "hi"}, KindText},
		{"voice", wireMessage{Voice: &wireFile{FileID: "v"}}, KindVoice},
		{"video note", wireMessage{VideoNote: &wireFile{FileID: "vn"}}, KindVideoNote},
		{"document", wireMessage{Document: &wireFile{FileID: "d"}}, KindDocument},
		{"animation over document", wireMessage{
			Animation: &wireFile{FileID: "a"},
			Document:  &wireFile{FileID: "d"},
		}, KindAnimation},
		{"venue over location", wireMessage{
			Venue:    &Venue{Title: "HQ"},
			Location: &Location{Latitude: 1, Longitude: 2},
		}, KindVenue},
		{"bare location", wireMessage{Location: &Location{Latitude: 1}}, KindLocation},
		{"contact", wireMessage{Contact: &Contact{PhoneNumber: "+1"}}, KindContact},
		{"empty", wireMessage{}, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.msg.translate().Kind)
		})
	}
}

func TestChatMemberIsAdmin(t *testing.T) {
	assert.True(t, (&ChatMember{Status: "administrator"}).IsAdmin())
	assert.True(t, (&ChatMember{Status: "creator"}).IsAdmin())
	assert.False(t, (&ChatMember{Status: "member"}).IsAdmin())
	assert.False(t, (&ChatMember{Status: "left"}).IsAdmin())
}
