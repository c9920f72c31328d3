package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestmail/models"
)

var baseTime = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func email(id int64, messageID, subject, inReplyTo string, refs []string, from string, to []string, offsetMin int) models.Email {
	e := models.Email{
		ID:             id,
		UserID:         1,
		MessageID:      messageID,
		Subject:        subject,
		InReplyTo:      inReplyTo,
		FromAddress:    from,
		Date:           baseTime.Add(time.Duration(offsetMin) * time.Minute),
		Folder:         "INBOX",
		ToList:         to,
		ReferencesList: refs,
	}
	e.EncodeJSONFields()
	return e
}

func TestGroupSimpleReply(t *testing.T) {
	emails := []models.Email{
		email(1, "a", "Hello", "", nil, "alice@example.com", []string{"bob@example.com"}, 0),
		email(2, "b", "Re: Hello", "a", []string{"a"}, "bob@example.com", []string{"alice@example.com"}, 10),
	}

	svc := NewService(nil, StrategyJWZ)
	conversations := svc.ListConversations(emails)

	require.Len(t, conversations, 1)
	conv := conversations[0]
	assert.Equal(t, "a", conv.ID)
	assert.Equal(t, "Hello", conv.Subject)
	assert.Equal(t, 2, conv.MessageCount)
	// Newest first.
	assert.Equal(t, "b", conv.Messages[0].MessageID)
	assert.Equal(t, "a", conv.Messages[1].MessageID)
}

func TestEndToEndSubjectGrouping(t *testing.T) {
	emails := []models.Email{
		email(1, "id1", "Project X", "", nil, "alice@example.com", []string{"bob@example.com"}, 0),
		email(2, "id2", "Re: Project X", "id1", []string{"id1"}, "bob@example.com", []string{"alice@example.com"}, 10),
		email(3, "id3", "Project X", "", nil, "carol@example.com", []string{"alice@example.com"}, 20),
	}

	svc := NewService(nil, StrategyJWZ)
	conversations := svc.ListConversations(emails)

	require.Len(t, conversations, 1)
	conv := conversations[0]
	assert.Equal(t, 3, conv.MessageCount)
	assert.Equal(t, baseTime.Add(20*time.Minute), conv.LastMessageDate)
	assert.ElementsMatch(t, []string{
		"alice@example.com", "bob@example.com", "carol@example.com",
	}, conv.Participants)
}

func TestDummyContributesNoMessages(t *testing.T) {
	// "c" references two ancestors nobody has. The surviving dummy root
	// lends its id to the conversation but never counts as a message.
	emails := []models.Email{
		email(1, "c", "Deep reply", "", []string{"a", "b"}, "alice@example.com", nil, 0),
	}

	svc := NewService(nil, StrategyJWZ)
	conversations := svc.ListConversations(emails)

	require.Len(t, conversations, 1)
	conv := conversations[0]
	assert.Equal(t, "b", conv.ID)
	assert.Equal(t, "(No Subject)", conv.Subject)
	assert.Equal(t, 1, conv.MessageCount)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "c", conv.Messages[0].MessageID)
	// Root has no backing message, so the folder falls back.
	assert.Equal(t, "INBOX", conv.Folder)
}

func TestUnreadStarredAttachmentAggregates(t *testing.T) {
	e1 := email(1, "a", "Reports", "", nil, "alice@example.com", nil, 0)
	e1.IsRead = true
	e2 := email(2, "b", "Re: Reports", "a", []string{"a"}, "bob@example.com", nil, 10)
	e2.IsStarred = true
	e3 := email(3, "c", "Re: Reports", "a", []string{"a"}, "carol@example.com", nil, 20)
	e3.HasAttachments = true

	svc := NewService(nil, StrategyJWZ)
	conversations := svc.ListConversations([]models.Email{e1, e2, e3})

	require.Len(t, conversations, 1)
	conv := conversations[0]
	assert.Equal(t, 2, conv.UnreadCount)
	assert.True(t, conv.IsStarred)
	assert.True(t, conv.HasAttachments)
	require.Len(t, conv.PreviewMessages, 3)
	assert.Equal(t, "c", conv.PreviewMessages[0].MessageID)
}

func TestListConversationsIdempotent(t *testing.T) {
	emails := []models.Email{
		email(1, "id1", "Project X", "", nil, "alice@example.com", []string{"bob@example.com"}, 0),
		email(2, "id2", "Re: Project X", "id1", []string{"id1"}, "bob@example.com", nil, 10),
		email(3, "id3", "Budget", "", nil, "carol@example.com", nil, 20),
	}

	svc := NewService(nil, StrategyJWZ)
	first := svc.ListConversations(emails)
	second := svc.ListConversations(emails)

	assert.Equal(t, first, second)
}

func TestGetConversationEmptySnapshot(t *testing.T) {
	svc := NewService(nil, StrategyJWZ)
	assert.Nil(t, svc.GetConversation("missing", nil))
}

func TestLegacyThreadKey(t *testing.T) {
	tests := []struct {
		name  string
		email models.Email
		want  string
	}{
		{
			"in_reply_to wins",
			email(1, "c", "", "<b>", []string{"a"}, "", nil, 0),
			"b",
		},
		{
			"first reference next",
			email(1, "c", "", "", []string{"<a>", "b"}, "", nil, 0),
			"a",
		},
		{
			"self as last resort",
			email(1, "<c>", "", "", nil, "", nil, 0),
			"c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.email.DecodeJSONFields()
			assert.Equal(t, tt.want, legacyThreadKey(tt.email))
		})
	}
}

func TestLegacyGroupingSkipsSubjectMerge(t *testing.T) {
	// Identical subjects but no headers linking them: the legacy
	// strategy keeps them apart where JWZ would merge.
	emails := []models.Email{
		email(1, "a", "Project X", "", nil, "alice@example.com", nil, 0),
		email(2, "b", "Project X", "", nil, "bob@example.com", nil, 10),
	}

	legacy := NewService(nil, StrategyLegacy).ListConversations(emails)
	jwz := NewService(nil, StrategyJWZ).ListConversations(emails)

	assert.Len(t, legacy, 2)
	assert.Len(t, jwz, 1)
}

func TestLegacyGroupingPrefersNonReplySubject(t *testing.T) {
	emails := []models.Email{
		email(1, "b", "Re: Standup", "a", []string{"a"}, "bob@example.com", nil, 10),
		email(2, "c", "Standup", "a", []string{"a"}, "alice@example.com", nil, 0),
	}

	conversations := NewService(nil, StrategyLegacy).ListConversations(emails)

	require.Len(t, conversations, 1)
	assert.Equal(t, "a", conversations[0].ID)
	assert.Equal(t, "Standup", conversations[0].Subject)
}

func TestListConversationsLeavesInputUntouched(t *testing.T) {
	raw := models.Email{
		ID:          1,
		UserID:      1,
		MessageID:   "a",
		Subject:     "Hello",
		FromAddress: "alice@example.com",
		ToAddresses: `["bob@example.com"]`,
		References:  `["x"]`,
		Date:        baseTime,
		Folder:      "INBOX",
	}
	emails := []models.Email{raw}

	conversations := NewService(nil, StrategyJWZ).ListConversations(emails)
	require.Len(t, conversations, 1)

	// The encoded columns were decoded on a copy; the caller's snapshot
	// keeps its undecoded views.
	assert.Nil(t, emails[0].ToList)
	assert.Nil(t, emails[0].ReferencesList)
	assert.Equal(t, raw, emails[0])

	// The decode still happened for grouping.
	assert.Contains(t, conversations[0].Participants, "bob@example.com")
}
