package models

import "time"

// ConversationThread is a materialized conversation aggregate. It is
// rebuilt from a fresh message snapshot on every request and never
// persisted; its ID is the message_id of the thread root.
type ConversationThread struct {
	ID              string    `json:"id"`
	Subject         string    `json:"subject"`
	Participants    []string  `json:"participants"`
	LastMessageDate time.Time `json:"last_message_date"`
	MessageCount    int       `json:"message_count"`
	UnreadCount     int       `json:"unread_count"`
	Messages        []Email   `json:"messages"`         // newest first
	PreviewMessages []Email   `json:"preview_messages"` // first 3 of Messages
	HasAttachments  bool      `json:"has_attachments"`
	IsStarred       bool      `json:"is_starred"`
	Folder          string    `json:"folder"`
}

// ConversationUpdate describes the field changes a conversation mutation
// applies to every matching row. Nil pointer fields are left untouched;
// SoftDelete moves the row to Trash and stamps deleted_at.
type ConversationUpdate struct {
	IsRead     *bool
	IsStarred  *bool
	Folder     *string
	SoftDelete bool
}

// PaginatedConversations represents one page of a conversation listing
type PaginatedConversations struct {
	Conversations []ConversationThread `json:"conversations"`
	Page          int                  `json:"page"`
	PageSize      int                  `json:"page_size"`
	TotalPages    int                  `json:"total_pages"`
	Total         int                  `json:"total"`
	HasNext       bool                 `json:"has_next"`
	HasPrev       bool                 `json:"has_prev"`
}

// NewPaginatedConversations creates a new paginated conversation response
func NewPaginatedConversations(conversations []ConversationThread, page, pageSize, total int) *PaginatedConversations {
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	return &PaginatedConversations{
		Conversations: conversations,
		Page:          page,
		PageSize:      pageSize,
		TotalPages:    totalPages,
		Total:         total,
		HasNext:       page < totalPages,
		HasPrev:       page > 1,
	}
}
