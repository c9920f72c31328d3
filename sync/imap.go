package sync

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/google/uuid"

	"nestmail/models"
	"nestmail/storage"
	"nestmail/utils"
)

// Notifier receives events for messages the syncer has not seen before.
type Notifier interface {
	NotifyNewEmail(userID int64, from, subject string)
}

// Syncer polls each stored IMAP account and mirrors new messages into
// the local email store.
type Syncer struct {
	emails    *storage.EmailStore
	accounts  *storage.AccountStore
	interval  time.Duration
	fetchSize uint32
	notifier  Notifier
}

func NewSyncer(emails *storage.EmailStore, accounts *storage.AccountStore, interval time.Duration, fetchSize int, notifier Notifier) *Syncer {
	if fetchSize <= 0 {
		fetchSize = 200
	}
	return &Syncer{
		emails:    emails,
		accounts:  accounts,
		interval:  interval,
		fetchSize: uint32(fetchSize),
		notifier:  notifier,
	}
}

// Run polls all accounts until the context is cancelled. One failing
// account never blocks the others.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.syncAll(ctx)

	for {
		select {
		case <-ticker.C:
			s.syncAll(ctx)
		case <-ctx.Done():
			utils.Log.Info("sync: shutting down")
			return
		}
	}
}

func (s *Syncer) syncAll(ctx context.Context) {
	accounts, err := s.accounts.AllAccounts()
	if err != nil {
		utils.Log.Error("sync: listing accounts: %v", err)
		return
	}

	for _, account := range accounts {
		if ctx.Err() != nil {
			return
		}
		if err := s.SyncAccount(ctx, &account); err != nil {
			utils.Log.Error("sync: account %s: %v", account.ID, err)
			continue
		}
		if err := s.accounts.TouchLastSynced(account.ID, time.Now()); err != nil {
			utils.Log.Warn("sync: stamping account %s: %v", account.ID, err)
		}
	}
}

// SyncAccount connects to one account's IMAP server and mirrors its
// configured folders.
func (s *Syncer) SyncAccount(ctx context.Context, account *models.Account) error {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", account.IMAPServer, account.IMAPPort), nil)
	if err != nil {
		return fmt.Errorf("connection error: %v", err)
	}
	defer c.Logout()

	if err := c.Login(account.Username, account.Password); err != nil {
		return fmt.Errorf("login error: %v", err)
	}

	folders := account.Folders
	if len(folders) == 0 {
		folders = []string{"INBOX"}
	}

	for _, folder := range folders {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		added, err := s.syncFolder(ctx, c, account, folder)
		if err != nil {
			utils.Log.Warn("sync: folder %s on %s: %v", folder, account.ID, err)
			continue
		}
		if added > 0 {
			utils.Log.Info("sync: stored %d new messages from %s/%s", added, account.Email, folder)
		}
	}

	return nil
}

func (s *Syncer) syncFolder(ctx context.Context, c *client.Client, account *models.Account, folder string) (int, error) {
	mbox, err := c.Select(folder, true)
	if err != nil {
		return 0, fmt.Errorf("error selecting folder %s: %v", folder, err)
	}

	if mbox.Messages == 0 {
		return 0, nil
	}

	from := uint32(1)
	if mbox.Messages > s.fetchSize {
		from = mbox.Messages - s.fetchSize + 1
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(from, mbox.Messages)

	// The envelope carries In-Reply-To but not References, so the
	// References header is fetched as its own peeked section.
	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{
			Specifier: imap.HeaderSpecifier,
			Fields:    []string{"REFERENCES"},
		},
		Peek: true,
	}

	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, int(s.fetchSize))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, items, messages)
	}()

	added := 0
	for msg := range messages {
		email := s.buildEmail(msg, section, account, folder)
		if err := s.emails.Upsert(ctx, email); err != nil {
			utils.Log.Warn("sync: storing message %s: %v", email.MessageID, err)
			continue
		}
		added++
		if s.notifier != nil && !email.IsRead {
			s.notifier.NotifyNewEmail(account.UserID, email.FromAddress, email.Subject)
		}
	}

	if err := <-done; err != nil {
		return added, fmt.Errorf("error during fetch: %v", err)
	}

	return added, nil
}

func (s *Syncer) buildEmail(msg *imap.Message, section *imap.BodySectionName, account *models.Account, folder string) *models.Email {
	email := &models.Email{
		UserID: account.UserID,
		Folder: folder,
		Size:   int64(msg.Size),
	}

	for _, flag := range msg.Flags {
		switch flag {
		case imap.SeenFlag:
			email.IsRead = true
		case imap.FlaggedFlag:
			email.IsStarred = true
		}
	}

	if env := msg.Envelope; env != nil {
		email.Subject = env.Subject
		email.Date = env.Date
		email.MessageID = cleanMessageID(env.MessageId)
		email.InReplyTo = cleanMessageID(env.InReplyTo)

		if len(env.From) > 0 && env.From[0] != nil {
			email.FromAddress = env.From[0].Address()
		}
		for _, addr := range env.To {
			if addr != nil {
				email.ToList = append(email.ToList, addr.Address())
			}
		}
		for _, addr := range env.Cc {
			if addr != nil {
				email.CcList = append(email.CcList, addr.Address())
			}
		}
	}

	if r := msg.GetBody(section); r != nil {
		headerBytes, _ := io.ReadAll(r)
		email.ReferencesList = parseReferencesHeader(string(headerBytes))
	}

	// Threading needs a stable key even when the server omits one.
	if email.MessageID == "" {
		email.MessageID = fmt.Sprintf("missing-%s@nestmail.local", uuid.New().String())
	}
	if email.Date.IsZero() {
		email.Date = time.Now()
	}

	return email
}

// parseReferencesHeader extracts message ids from a raw
// "References: <a> <b>" header block.
func parseReferencesHeader(header string) []string {
	idx := strings.Index(header, ":")
	if idx < 0 {
		return nil
	}

	var refs []string
	for _, ref := range strings.Fields(header[idx+1:]) {
		if id := cleanMessageID(ref); id != "" {
			refs = append(refs, id)
		}
	}
	return refs
}

func cleanMessageID(id string) string {
	return strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(id), "<"), ">")
}
