package models

import (
	"encoding/json"
	"time"
)

// Email represents a stored email message. Rows are owned by exactly one
// user; message_id values are unique only within that user's scope.
type Email struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	MessageID   string    `db:"message_id" json:"message_id"`
	FromAddress string    `db:"from_address" json:"from_address"`
	ToAddresses string    `db:"to_addresses" json:"-"` // JSON-encoded list
	CcAddresses string    `db:"cc_addresses" json:"-"` // JSON-encoded list
	Subject     string    `db:"subject" json:"subject"`
	BodyText    string    `db:"body_text" json:"body_text"`
	BodyHTML    string    `db:"body_html" json:"body_html"`
	Date        time.Time `db:"date" json:"date"`
	IsRead      bool      `db:"is_read" json:"is_read"`
	IsStarred   bool      `db:"is_starred" json:"is_starred"`

	HasAttachments bool   `db:"has_attachments" json:"has_attachments"`
	Folder         string `db:"folder" json:"folder"`
	Size           int64  `db:"size" json:"size"`

	// Threading headers. InReplyTo is empty when the header was absent;
	// References holds the JSON-encoded ancestor chain.
	InReplyTo  string `db:"in_reply_to" json:"in_reply_to"`
	References string `db:"references" json:"-"`

	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`

	// Decoded views of the JSON columns, populated by DecodeJSONFields.
	ToList         []string `db:"-" json:"to_addresses"`
	CcList         []string `db:"-" json:"cc_addresses"`
	ReferencesList []string `db:"-" json:"references"`
}

// DecodeJSONFields populates ToList, CcList and ReferencesList from their
// JSON-encoded columns. Malformed JSON decodes to an empty list.
func (e *Email) DecodeJSONFields() {
	e.ToList = decodeStringList(e.ToAddresses)
	e.CcList = decodeStringList(e.CcAddresses)
	e.ReferencesList = decodeStringList(e.References)
}

// EncodeJSONFields serializes ToList, CcList and ReferencesList back into
// their JSON-encoded columns before a write.
func (e *Email) EncodeJSONFields() {
	e.ToAddresses = encodeStringList(e.ToList)
	e.CcAddresses = encodeStringList(e.CcList)
	e.References = encodeStringList(e.ReferencesList)
}

func decodeStringList(s string) []string {
	if s == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil
	}
	return list
}

func encodeStringList(list []string) string {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(data)
}
