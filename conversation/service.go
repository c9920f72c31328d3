package conversation

import (
	"context"
	"sort"
	"strings"

	"nestmail/models"
	"nestmail/threading"
)

// Strategy selects how a message snapshot is grouped into conversations.
type Strategy int

const (
	// StrategyJWZ runs the full threading pipeline: id table, reference
	// linking, pruning, subject grouping and tree building.
	StrategyJWZ Strategy = iota

	// StrategyLegacy is the older flat grouping: in_reply_to, else first
	// reference, else the message's own id becomes the thread key. No
	// subject merging and no pruning. Kept selectable because its output
	// legitimately differs from JWZ on ambiguous inputs.
	StrategyLegacy
)

// Store is the slice of the message store the conversation service needs.
// Implementations scope every call to one user.
type Store interface {
	// FetchConversationScope returns all rows heuristically belonging to
	// the conversation keyed by a message id, newest first.
	FetchConversationScope(ctx context.Context, userID int64, key string) ([]models.Email, error)

	// UpdateConversation applies a field update row by row across the
	// conversation scope and reports how many rows were written.
	UpdateConversation(ctx context.Context, userID int64, key string, update models.ConversationUpdate) (int64, error)
}

// Service materializes flat per-user message snapshots into conversation
// aggregates and applies bulk mutations across them. Grouping is a pure
// function of its input: every call rebuilds from scratch and no state
// crosses invocations.
type Service struct {
	store    Store
	strategy Strategy
}

// NewService creates a conversation service using the given store and
// grouping strategy.
func NewService(store Store, strategy Strategy) *Service {
	return &Service{store: store, strategy: strategy}
}

// ListConversations groups a message snapshot into materialized
// conversations, newest first. The input slice is never mutated; the
// JSON columns are decoded on a copy.
func (s *Service) ListConversations(emails []models.Email) []models.ConversationThread {
	snapshot := make([]models.Email, len(emails))
	copy(snapshot, emails)
	for i := range snapshot {
		snapshot[i].DecodeJSONFields()
	}

	if s.strategy == StrategyLegacy {
		return s.groupLegacy(snapshot)
	}
	return s.groupJWZ(snapshot)
}

// GetConversation groups the snapshot and returns the first resulting
// conversation, or nil when the snapshot is empty. Callers pass a
// snapshot already scoped to one conversation key.
func (s *Service) GetConversation(key string, emails []models.Email) *models.ConversationThread {
	conversations := s.ListConversations(emails)
	if len(conversations) == 0 {
		return nil
	}
	return &conversations[0]
}

// FetchConversation loads the conversation scope for a key from the store
// and materializes it. Returns nil when no rows match.
func (s *Service) FetchConversation(ctx context.Context, userID int64, key string) (*models.ConversationThread, error) {
	emails, err := s.store.FetchConversationScope(ctx, userID, key)
	if err != nil {
		return nil, err
	}
	return s.GetConversation(key, emails), nil
}

// groupJWZ threads the snapshot and flattens each tree into an aggregate.
func (s *Service) groupJWZ(emails []models.Email) []models.ConversationThread {
	threadables := make([]threading.Threadable, len(emails))
	for i, e := range emails {
		threadables[i] = threading.Threadable{
			ID:         e.ID,
			MessageID:  e.MessageID,
			Subject:    e.Subject,
			InReplyTo:  e.InReplyTo,
			References: e.ReferencesList,
			Date:       e.Date,
		}
	}

	trees := threading.NewThreader().Thread(threadables)

	byID := make(map[int64]*models.Email, len(emails))
	for i := range emails {
		byID[emails[i].ID] = &emails[i]
	}

	conversations := make([]models.ConversationThread, 0, len(trees))
	for _, tree := range trees {
		if conv := materialize(tree, byID); conv != nil {
			conversations = append(conversations, *conv)
		}
	}

	sortConversations(conversations)
	return conversations
}

// materialize flattens one thread tree pre-order, drops dummy
// placeholders and aggregates the rest. Returns nil when the tree holds
// no real messages.
func materialize(tree *threading.ThreadNode, byID map[int64]*models.Email) *models.ConversationThread {
	var flat []models.Email
	flatten(tree, byID, &flat)
	if len(flat) == 0 {
		return nil
	}

	sort.SliceStable(flat, func(i, j int) bool {
		return flat[i].Date.After(flat[j].Date)
	})

	subject := tree.Subject
	if tree.IsDummy {
		subject = "(No Subject)"
	}

	folder := "INBOX"
	if root, ok := byID[tree.EmailID]; ok && !tree.IsDummy {
		folder = root.Folder
	}

	preview := flat
	if len(preview) > 3 {
		preview = preview[:3]
	}

	return &models.ConversationThread{
		ID:              tree.MessageID,
		Subject:         subject,
		Participants:    collectParticipants(flat),
		LastMessageDate: flat[0].Date,
		MessageCount:    len(flat),
		UnreadCount:     countUnread(flat),
		Messages:        flat,
		PreviewMessages: append([]models.Email(nil), preview...),
		HasAttachments:  anyAttachments(flat),
		IsStarred:       anyStarred(flat),
		Folder:          folder,
	}
}

// flatten walks the tree pre-order, collecting backing messages and
// skipping dummies.
func flatten(node *threading.ThreadNode, byID map[int64]*models.Email, out *[]models.Email) {
	if !node.IsDummy {
		if email, ok := byID[node.EmailID]; ok {
			*out = append(*out, *email)
		}
	}
	for _, child := range node.Children {
		flatten(child, byID, out)
	}
}

// groupLegacy is the flat fallback grouping. The thread key is the
// in_reply_to header, else the first references entry, else the
// message's own id; the subject shown is the first non-"Re:" subject
// seen for the key.
func (s *Service) groupLegacy(emails []models.Email) []models.ConversationThread {
	groups := make(map[string][]models.Email)
	subjects := make(map[string]string)
	var order []string

	for _, e := range emails {
		key := legacyThreadKey(e)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		if _, ok := subjects[key]; !ok || !strings.HasPrefix(e.Subject, "Re:") {
			subjects[key] = e.Subject
		}
		groups[key] = append(groups[key], e)
	}

	conversations := make([]models.ConversationThread, 0, len(groups))
	for _, key := range order {
		messages := groups[key]
		sort.SliceStable(messages, func(i, j int) bool {
			return messages[i].Date.After(messages[j].Date)
		})

		preview := messages
		if len(preview) > 3 {
			preview = preview[:3]
		}

		conversations = append(conversations, models.ConversationThread{
			ID:              key,
			Subject:         subjects[key],
			Participants:    collectParticipants(messages),
			LastMessageDate: messages[0].Date,
			MessageCount:    len(messages),
			UnreadCount:     countUnread(messages),
			Messages:        messages,
			PreviewMessages: append([]models.Email(nil), preview...),
			HasAttachments:  anyAttachments(messages),
			IsStarred:       anyStarred(messages),
			Folder:          messages[0].Folder,
		})
	}

	sortConversations(conversations)
	return conversations
}

// legacyThreadKey picks the flat thread key for a message.
func legacyThreadKey(e models.Email) string {
	if e.InReplyTo != "" {
		return cleanMessageID(e.InReplyTo)
	}
	if len(e.ReferencesList) > 0 {
		return cleanMessageID(e.ReferencesList[0])
	}
	return cleanMessageID(e.MessageID)
}

// cleanMessageID strips angle brackets and surrounding whitespace.
func cleanMessageID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return id
}

func sortConversations(conversations []models.ConversationThread) {
	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].LastMessageDate.After(conversations[j].LastMessageDate)
	})
}

func collectParticipants(messages []models.Email) []string {
	set := make(map[string]bool)
	for _, m := range messages {
		if m.FromAddress != "" {
			set[m.FromAddress] = true
		}
		for _, to := range m.ToList {
			if to != "" {
				set[to] = true
			}
		}
	}

	participants := make([]string, 0, len(set))
	for p := range set {
		participants = append(participants, p)
	}
	sort.Strings(participants)
	return participants
}

func countUnread(messages []models.Email) int {
	count := 0
	for _, m := range messages {
		if !m.IsRead {
			count++
		}
	}
	return count
}

func anyAttachments(messages []models.Email) bool {
	for _, m := range messages {
		if m.HasAttachments {
			return true
		}
	}
	return false
}

func anyStarred(messages []models.Email) bool {
	for _, m := range messages {
		if m.IsStarred {
			return true
		}
	}
	return false
}
