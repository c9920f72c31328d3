package storage

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	bolt "go.etcd.io/bbolt"
	_ "modernc.org/sqlite"
)

// migration holds a single schema migration with its target version.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations for the mail
// database. Versions must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS emails (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	message_id TEXT NOT NULL,
	from_address TEXT NOT NULL DEFAULT '',
	to_addresses TEXT NOT NULL DEFAULT '[]',
	cc_addresses TEXT NOT NULL DEFAULT '[]',
	subject TEXT NOT NULL DEFAULT '',
	body_text TEXT NOT NULL DEFAULT '',
	body_html TEXT NOT NULL DEFAULT '',
	date TIMESTAMP NOT NULL,
	is_read BOOLEAN NOT NULL DEFAULT 0,
	is_starred BOOLEAN NOT NULL DEFAULT 0,
	has_attachments BOOLEAN NOT NULL DEFAULT 0,
	folder TEXT NOT NULL DEFAULT 'INBOX',
	size INTEGER NOT NULL DEFAULT 0,
	in_reply_to TEXT NOT NULL DEFAULT '',
	"references" TEXT NOT NULL DEFAULT '[]',
	deleted_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE(user_id, message_id)
);

CREATE INDEX IF NOT EXISTS idx_emails_user_folder_date
	ON emails(user_id, folder, date);
CREATE INDEX IF NOT EXISTS idx_emails_user_in_reply_to
	ON emails(user_id, in_reply_to);

INSERT INTO schema_version (version, applied_at) VALUES (1, CURRENT_TIMESTAMP);
`,
	},
}

// OpenMailDB opens (or creates) the SQLite mail database at dbPath,
// enables WAL mode and applies any pending schema migrations.
func OpenMailDB(dbPath string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	currentVersion := 0

	var tableCount int
	err := db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Bolt bucket names for user and account data.
var (
	usersBucket     = []byte("Users")
	usernamesBucket = []byte("Usernames")
	accountsBucket  = []byte("Accounts")
)

// OpenBoltDB opens the key-value database holding users and synced
// account credentials and creates the required buckets.
func OpenBoltDB(dataDir string) (*bolt.DB, error) {
	dbPath := filepath.Join(dataDir, "nestmail.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{usersBucket, usernamesBucket, accountsBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %s", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
