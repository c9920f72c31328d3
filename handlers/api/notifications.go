package api

import (
	"bufio"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"nestmail/utils"
)

// Notification represents a real-time notification
type Notification struct {
	ID      string                 `json:"id"`
	Type    string                 `json:"type"` // "new_email", "conversation_changed"
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
	Time    time.Time              `json:"time"`
}

type subscriber struct {
	userID int64
	ch     chan Notification
}

// NotificationHandler pushes per-user events over SSE and WebSocket.
type NotificationHandler struct {
	subscribers map[string]*subscriber
	mu          sync.RWMutex
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler() *NotificationHandler {
	return &NotificationHandler{
		subscribers: make(map[string]*subscriber),
	}
}

func (h *NotificationHandler) subscribe(userID int64) (string, chan Notification) {
	id := uuid.New().String()
	ch := make(chan Notification, 10)

	h.mu.Lock()
	h.subscribers[id] = &subscriber{userID: userID, ch: ch}
	h.mu.Unlock()

	return id, ch
}

func (h *NotificationHandler) unsubscribe(id string) {
	h.mu.Lock()
	if sub, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(sub.ch)
	}
	h.mu.Unlock()
}

// HandleSSE handles Server-Sent Events for real-time notifications
func (h *NotificationHandler) HandleSSE(c *fiber.Ctx) error {
	userID, err := CurrentUserID(c)
	if err != nil {
		return err
	}

	// Set headers for SSE
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")

	subscriberID, messageChan := h.subscribe(userID)
	utils.Log.Info("SSE subscriber connected: %s (user=%d)", subscriberID, userID)

	ctx := c.Context()
	ctx.SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer func() {
			h.unsubscribe(subscriberID)
			utils.Log.Info("SSE subscriber disconnected: %s", subscriberID)
		}()

		// Keep-alive ticker
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case notification, ok := <-messageChan:
				if !ok {
					return
				}
				data, _ := json.Marshal(notification)
				w.WriteString("data: " + string(data) + "\n\n")
				if err := w.Flush(); err != nil {
					return
				}

			case <-ticker.C:
				// Send keep-alive comment
				w.WriteString(": keepalive\n\n")
				if err := w.Flush(); err != nil {
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}))

	return nil
}

// HandleWebSocket handles WebSocket connections for real-time notifications
func (h *NotificationHandler) HandleWebSocket(c *websocket.Conn) {
	userID, ok := c.Locals("user_id").(int64)
	if !ok {
		c.Close()
		return
	}

	subscriberID, messageChan := h.subscribe(userID)
	defer func() {
		h.unsubscribe(subscriberID)
		c.Close()
		utils.Log.Info("WebSocket subscriber disconnected: %s", subscriberID)
	}()

	utils.Log.Info("WebSocket subscriber connected: %s (user=%d)", subscriberID, userID)

	for notification := range messageChan {
		if err := c.WriteJSON(notification); err != nil {
			utils.Log.Error("Failed to send WebSocket notification: %v", err)
			break
		}
	}
}

// Broadcast sends a notification to every subscriber of one user.
func (h *NotificationHandler) Broadcast(userID int64, notification Notification) {
	notification.ID = uuid.New().String()
	notification.Time = time.Now()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for subscriberID, sub := range h.subscribers {
		if sub.userID != userID {
			continue
		}
		select {
		case sub.ch <- notification:
			// Sent successfully
		default:
			// Channel full, skip this subscriber
			utils.Log.Warn("Notification channel full for subscriber %s", subscriberID)
		}
	}
}

// NotifyNewEmail sends a notification for a newly synced email.
func (h *NotificationHandler) NotifyNewEmail(userID int64, from, subject string) {
	h.Broadcast(userID, Notification{
		Type:    "new_email",
		Message: "New email received",
		Data: map[string]interface{}{
			"from":    from,
			"subject": subject,
		},
	})
}

// NotifyConversationChanged sends a notification after a conversation
// mutation so open clients can refresh their listing.
func (h *NotificationHandler) NotifyConversationChanged(userID int64, key, action string) {
	h.Broadcast(userID, Notification{
		Type:    "conversation_changed",
		Message: "Conversation updated",
		Data: map[string]interface{}{
			"conversation_id": key,
			"action":          action,
		},
	})
}
