package conversation

import (
	"context"
	"fmt"

	"nestmail/models"
)

// Action names a bulk conversation operation.
type Action string

const (
	ActionMarkRead   Action = "mark_read"
	ActionMarkUnread Action = "mark_unread"
	ActionStar       Action = "star"
	ActionUnstar     Action = "unstar"
	ActionMove       Action = "move"
	ActionDelete     Action = "delete"
)

// Conversation mutations match rows heuristically: every message whose
// message_id equals the key, whose in_reply_to equals the key, or whose
// references contain the key, scoped to the user. Without a durable
// thread id this can over-match on coincidental key reuse and
// under-match when a conversation's root predates retained history; it
// is an approximation, not an exact set operation.
//
// The store applies one update per matching row with no cross-row
// transaction, so a failure can leave the conversation partially
// updated. Every action is idempotent at the row level, which makes a
// plain retry safe.

// MarkConversationRead sets the read flag on every message in the
// conversation.
func (s *Service) MarkConversationRead(ctx context.Context, userID int64, key string, read bool) error {
	_, err := s.store.UpdateConversation(ctx, userID, key, models.ConversationUpdate{IsRead: &read})
	return err
}

// StarConversation sets the starred flag on every message in the
// conversation.
func (s *Service) StarConversation(ctx context.Context, userID int64, key string, starred bool) error {
	_, err := s.store.UpdateConversation(ctx, userID, key, models.ConversationUpdate{IsStarred: &starred})
	return err
}

// MoveConversation moves every message in the conversation to a folder.
func (s *Service) MoveConversation(ctx context.Context, userID int64, key, folder string) error {
	_, err := s.store.UpdateConversation(ctx, userID, key, models.ConversationUpdate{Folder: &folder})
	return err
}

// DeleteConversation soft-deletes the conversation: every message moves
// to Trash with deleted_at stamped. Rows stay visible to the threading
// algorithm until a separate hard purge removes them.
func (s *Service) DeleteConversation(ctx context.Context, userID int64, key string) error {
	_, err := s.store.UpdateConversation(ctx, userID, key, models.ConversationUpdate{SoftDelete: true})
	return err
}

// MutateConversation dispatches a named action. The folder argument is
// only consulted for ActionMove.
func (s *Service) MutateConversation(ctx context.Context, userID int64, key string, action Action, folder string) error {
	switch action {
	case ActionMarkRead:
		return s.MarkConversationRead(ctx, userID, key, true)
	case ActionMarkUnread:
		return s.MarkConversationRead(ctx, userID, key, false)
	case ActionStar:
		return s.StarConversation(ctx, userID, key, true)
	case ActionUnstar:
		return s.StarConversation(ctx, userID, key, false)
	case ActionMove:
		if folder == "" {
			return fmt.Errorf("move action requires a target folder")
		}
		return s.MoveConversation(ctx, userID, key, folder)
	case ActionDelete:
		return s.DeleteConversation(ctx, userID, key)
	default:
		return fmt.Errorf("unknown conversation action %q", action)
	}
}
