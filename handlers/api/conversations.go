package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"nestmail/conversation"
	"nestmail/models"
	"nestmail/storage"
	"nestmail/utils"
)

// listFetchWindow caps how many stored messages a single listing pulls
// into the threading pass.
const listFetchWindow = 500

// ConversationSummary is the list-view shape of a thread: enough to
// render an inbox row without shipping every message body.
type ConversationSummary struct {
	ID              string    `json:"id"`
	Subject         string    `json:"subject"`
	Participants    []string  `json:"participants"`
	LastMessageDate time.Time `json:"last_message_date"`
	MessageCount    int       `json:"message_count"`
	UnreadCount     int       `json:"unread_count"`
	Preview         string    `json:"preview"`
	HasAttachments  bool      `json:"has_attachments"`
	IsStarred       bool      `json:"is_starred"`
	Folder          string    `json:"folder"`
}

// ConversationHandler serves threaded conversation views over the
// locally synced mail store.
type ConversationHandler struct {
	emails   *storage.EmailStore
	svc      *conversation.Service
	cache    *utils.MemoryCache
	cacheTTL time.Duration
	notifier *NotificationHandler
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(emails *storage.EmailStore, svc *conversation.Service, cache *utils.MemoryCache, ttl time.Duration, notifier *NotificationHandler) *ConversationHandler {
	return &ConversationHandler{
		emails:   emails,
		svc:      svc,
		cache:    cache,
		cacheTTL: ttl,
		notifier: notifier,
	}
}

// List returns paginated conversation summaries for a folder.
func (h *ConversationHandler) List(c *fiber.Ctx) error {
	userID, err := CurrentUserID(c)
	if err != nil {
		return err
	}

	folder := c.Query("folder", "INBOX")
	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", 25)
	unreadOnly := c.QueryBool("unread", false)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 25
	}

	cacheKey := fmt.Sprintf("conv:%d:%s:%d:%d:%t", userID, folder, page, pageSize, unreadOnly)
	if cached, ok := h.cache.Get(cacheKey); ok {
		if result, ok := cached.(*models.PaginatedConversations); ok {
			return c.JSON(listResponse(result, true))
		}
	}

	emails, err := h.emails.FetchByFolder(c.Context(), userID, folder, listFetchWindow, 0, unreadOnly)
	if err != nil {
		return utils.InternalServerError("Failed to load emails", err)
	}

	conversations := h.svc.ListConversations(emails)

	total := len(conversations)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	result := models.NewPaginatedConversations(conversations[start:end], page, pageSize, total)
	h.cache.Set(cacheKey, result, h.cacheTTL)

	return c.JSON(listResponse(result, false))
}

func listResponse(result *models.PaginatedConversations, cached bool) fiber.Map {
	return fiber.Map{
		"success":       true,
		"cached":        cached,
		"conversations": summarize(result.Conversations),
		"page":          result.Page,
		"page_size":     result.PageSize,
		"total":         result.Total,
		"total_pages":   result.TotalPages,
		"has_next":      result.HasNext,
		"has_prev":      result.HasPrev,
	}
}

// Get returns one full conversation including all of its messages.
func (h *ConversationHandler) Get(c *fiber.Ctx) error {
	userID, err := CurrentUserID(c)
	if err != nil {
		return err
	}

	key := c.Params("key")
	if key == "" {
		return utils.BadRequestError("Conversation key required", nil)
	}

	thread, err := h.svc.FetchConversation(c.Context(), userID, key)
	if err != nil {
		return utils.InternalServerError("Failed to load conversation", err)
	}
	if thread == nil {
		return utils.NotFoundError("Conversation not found", nil)
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"conversation": thread,
	})
}

// Mutate applies a conversation-level action: mark_read, mark_unread,
// star, unstar, move or delete.
func (h *ConversationHandler) Mutate(c *fiber.Ctx) error {
	userID, err := CurrentUserID(c)
	if err != nil {
		return err
	}

	key := c.Params("key")
	if key == "" {
		return utils.BadRequestError("Conversation key required", nil)
	}

	var req struct {
		Action string `json:"action"`
		Folder string `json:"folder"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestError("Invalid request", err)
	}

	action := conversation.Action(req.Action)
	switch action {
	case conversation.ActionMarkRead, conversation.ActionMarkUnread,
		conversation.ActionStar, conversation.ActionUnstar,
		conversation.ActionDelete:
	case conversation.ActionMove:
		if req.Folder == "" {
			return utils.BadRequestError("Move requires a target folder", nil)
		}
	default:
		return utils.BadRequestError("Unknown conversation action", nil)
	}

	if err := h.svc.MutateConversation(c.Context(), userID, key, action, req.Folder); err != nil {
		return utils.InternalServerError("Failed to update conversation", err)
	}

	// Any mutation can change every listing this user might see.
	h.cache.DeletePrefix(fmt.Sprintf("conv:%d:", userID))

	if h.notifier != nil {
		h.notifier.NotifyConversationChanged(userID, key, req.Action)
	}

	return c.JSON(fiber.Map{
		"success": true,
	})
}

// Search threads the messages matching a free-text query.
func (h *ConversationHandler) Search(c *fiber.Ctx) error {
	userID, err := CurrentUserID(c)
	if err != nil {
		return err
	}

	query := c.Query("q")
	if query == "" {
		return utils.BadRequestError("Search query required", nil)
	}
	folder := c.Query("folder")

	emails, err := h.emails.Search(c.Context(), userID, query, folder, listFetchWindow)
	if err != nil {
		return utils.InternalServerError("Search failed", err)
	}

	conversations := h.svc.ListConversations(emails)

	return c.JSON(fiber.Map{
		"success":       true,
		"query":         query,
		"conversations": summarize(conversations),
	})
}

func summarize(conversations []models.ConversationThread) []ConversationSummary {
	summaries := make([]ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		preview := ""
		if len(conv.PreviewMessages) > 0 {
			newest := conv.PreviewMessages[0]
			body := newest.BodyText
			if body == "" {
				body = newest.BodyHTML
			}
			preview = utils.PreviewText(body, 150)
		}

		summaries = append(summaries, ConversationSummary{
			ID:              conv.ID,
			Subject:         conv.Subject,
			Participants:    conv.Participants,
			LastMessageDate: conv.LastMessageDate,
			MessageCount:    conv.MessageCount,
			UnreadCount:     conv.UnreadCount,
			Preview:         preview,
			HasAttachments:  conv.HasAttachments,
			IsStarred:       conv.IsStarred,
			Folder:          conv.Folder,
		})
	}
	return summaries
}
