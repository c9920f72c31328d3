package sync

import (
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"

	"nestmail/models"
)

func TestParseReferencesHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   []string
	}{
		{
			name:   "multiple ids",
			header: "References: <a@x> <b@y>\r\n",
			want:   []string{"a@x", "b@y"},
		},
		{
			name:   "folded header",
			header: "References: <a@x>\r\n <b@y>\r\n",
			want:   []string{"a@x", "b@y"},
		},
		{
			name:   "missing colon",
			header: "garbage",
			want:   nil,
		},
		{
			name:   "empty value",
			header: "References:\r\n",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseReferencesHeader(tt.header))
		})
	}
}

func TestCleanMessageID(t *testing.T) {
	assert.Equal(t, "a@x", cleanMessageID(" <a@x> "))
	assert.Equal(t, "a@x", cleanMessageID("a@x"))
	assert.Equal(t, "", cleanMessageID(""))
}

func TestBuildEmailFallbacks(t *testing.T) {
	s := NewSyncer(nil, nil, time.Minute, 10, nil)
	account := &models.Account{UserID: 7}
	section := &imap.BodySectionName{}

	msg := &imap.Message{
		Envelope: &imap.Envelope{Subject: "hi"},
		Flags:    []string{imap.SeenFlag},
	}

	email := s.buildEmail(msg, section, account, "INBOX")

	assert.Equal(t, int64(7), email.UserID)
	assert.Equal(t, "INBOX", email.Folder)
	assert.True(t, email.IsRead)
	// Servers that omit Message-ID still get a stable synthetic key.
	assert.NotEmpty(t, email.MessageID)
	assert.False(t, email.Date.IsZero())
}
