package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"nestmail/models"
)

// conversationPredicate matches every row heuristically belonging to a
// conversation key: the key's own message, direct replies to it, and any
// message whose references chain mentions it. The LIKE match on the
// JSON-encoded references column can over-match when one message id is a
// substring of another; persisting a computed thread id would fix that
// but is a data-model change, so the approximation stands.
const conversationPredicate = `user_id = ? AND (message_id = ? OR in_reply_to = ? OR "references" LIKE ?)`

// EmailStore persists email rows in SQLite.
type EmailStore struct {
	db *sqlx.DB
}

// NewEmailStore creates an email store on top of an open mail database.
func NewEmailStore(db *sqlx.DB) *EmailStore {
	return &EmailStore{db: db}
}

// FetchByFolder returns one user's emails in a folder, newest first.
func (s *EmailStore) FetchByFolder(ctx context.Context, userID int64, folder string, limit, offset int, unreadOnly bool) ([]models.Email, error) {
	query := `SELECT * FROM emails WHERE user_id = ? AND folder = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY date DESC LIMIT ? OFFSET ?`

	var emails []models.Email
	err := s.db.SelectContext(ctx, &emails, query, userID, folder, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fetching emails for folder %s: %w", folder, err)
	}

	decodeAll(emails)
	return emails, nil
}

// FetchConversationScope returns every row matching the conversation
// predicate for a key, newest first.
func (s *EmailStore) FetchConversationScope(ctx context.Context, userID int64, key string) ([]models.Email, error) {
	query := `SELECT * FROM emails WHERE ` + conversationPredicate + ` ORDER BY date DESC`

	var emails []models.Email
	err := s.db.SelectContext(ctx, &emails, query, userID, key, key, likePattern(key))
	if err != nil {
		return nil, fmt.Errorf("fetching conversation %s: %w", key, err)
	}

	decodeAll(emails)
	return emails, nil
}

// UpdateConversation applies a field update to every row in the
// conversation scope, one UPDATE per row with no enclosing transaction.
// A store error stops the loop; rows already written stay written, and
// since every update is idempotent the caller may simply retry. Returns
// the number of rows updated.
func (s *EmailStore) UpdateConversation(ctx context.Context, userID int64, key string, update models.ConversationUpdate) (int64, error) {
	setClauses, args := buildUpdateClauses(update)
	if len(setClauses) == 0 {
		return 0, nil
	}

	ids, err := s.conversationRowIDs(ctx, userID, key)
	if err != nil {
		return 0, err
	}

	query := `UPDATE emails SET ` + strings.Join(setClauses, ", ") + ` WHERE id = ? AND user_id = ?`

	var updated int64
	for _, id := range ids {
		rowArgs := append(append([]interface{}{}, args...), id, userID)
		if _, err := s.db.ExecContext(ctx, query, rowArgs...); err != nil {
			return updated, fmt.Errorf("updating email %d: %w", id, err)
		}
		updated++
	}

	return updated, nil
}

func (s *EmailStore) conversationRowIDs(ctx context.Context, userID int64, key string) ([]int64, error) {
	query := `SELECT id FROM emails WHERE ` + conversationPredicate + ` ORDER BY id`

	var ids []int64
	err := s.db.SelectContext(ctx, &ids, query, userID, key, key, likePattern(key))
	if err != nil {
		return nil, fmt.Errorf("selecting conversation rows for %s: %w", key, err)
	}
	return ids, nil
}

func buildUpdateClauses(update models.ConversationUpdate) ([]string, []interface{}) {
	var clauses []string
	var args []interface{}

	if update.IsRead != nil {
		clauses = append(clauses, "is_read = ?")
		args = append(args, *update.IsRead)
	}
	if update.IsStarred != nil {
		clauses = append(clauses, "is_starred = ?")
		args = append(args, *update.IsStarred)
	}
	if update.Folder != nil {
		clauses = append(clauses, "folder = ?")
		args = append(args, *update.Folder)
	}
	if update.SoftDelete {
		clauses = append(clauses, "folder = ?", "deleted_at = ?")
		args = append(args, "Trash", time.Now().UTC())
	}
	if len(clauses) > 0 {
		clauses = append(clauses, "updated_at = ?")
		args = append(args, time.Now().UTC())
	}

	return clauses, args
}

// Upsert inserts an email row or refreshes the mutable fields of an
// existing one, keyed by (user_id, message_id). Used by the sync layer.
func (s *EmailStore) Upsert(ctx context.Context, email *models.Email) error {
	email.EncodeJSONFields()

	now := time.Now().UTC()
	if email.CreatedAt.IsZero() {
		email.CreatedAt = now
	}
	email.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emails (
			user_id, message_id, from_address, to_addresses, cc_addresses,
			subject, body_text, body_html, date, is_read, is_starred,
			has_attachments, folder, size, in_reply_to, "references",
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, message_id) DO UPDATE SET
			is_read = excluded.is_read,
			is_starred = excluded.is_starred,
			folder = excluded.folder,
			updated_at = excluded.updated_at`,
		email.UserID, email.MessageID, email.FromAddress, email.ToAddresses,
		email.CcAddresses, email.Subject, email.BodyText, email.BodyHTML,
		email.Date, email.IsRead, email.IsStarred, email.HasAttachments,
		email.Folder, email.Size, email.InReplyTo, email.References,
		email.CreatedAt, email.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting email %s: %w", email.MessageID, err)
	}
	return nil
}

// CountByFolder returns how many emails a user has in a folder.
func (s *EmailStore) CountByFolder(ctx context.Context, userID int64, folder string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM emails WHERE user_id = ? AND folder = ?`,
		userID, folder,
	)
	if err != nil {
		return 0, fmt.Errorf("counting emails in %s: %w", folder, err)
	}
	return count, nil
}

// Search finds a user's emails whose subject, body or addresses match the
// query, newest first. An empty folder searches everywhere.
func (s *EmailStore) Search(ctx context.Context, userID int64, queryText, folder string, limit int) ([]models.Email, error) {
	pattern := likePattern(queryText)
	query := `SELECT * FROM emails WHERE user_id = ?
		AND (subject LIKE ? OR body_text LIKE ? OR from_address LIKE ? OR to_addresses LIKE ?)`
	args := []interface{}{userID, pattern, pattern, pattern, pattern}

	if folder != "" {
		query += ` AND folder = ?`
		args = append(args, folder)
	}
	query += ` ORDER BY date DESC LIMIT ?`
	args = append(args, limit)

	var emails []models.Email
	if err := s.db.SelectContext(ctx, &emails, query, args...); err != nil {
		return nil, fmt.Errorf("searching emails: %w", err)
	}

	decodeAll(emails)
	return emails, nil
}

func likePattern(s string) string {
	return "%" + s + "%"
}

func decodeAll(emails []models.Email) {
	for i := range emails {
		emails[i].DecodeJSONFields()
	}
}
