package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"nestmail/models"
)

// ErrAccountNotFound is returned when no account matches the lookup.
var ErrAccountNotFound = errors.New("account not found")

// AccountStore manages synced mail account credentials in BoltDB.
// Passwords are encrypted with AES-GCM before they touch disk.
type AccountStore struct {
	db  *bolt.DB
	key []byte // 32-byte AES key
}

// accountRecord is the persisted shape. models.Account hides the
// password from JSON responses, so the ciphertext travels in its own
// field.
type accountRecord struct {
	models.Account
	EncryptedPassword string `json:"encrypted_password"`
}

// NewAccountStore creates an account store. The key must be 32 bytes.
func NewAccountStore(db *bolt.DB, encryptionKey []byte) (*AccountStore, error) {
	if len(encryptionKey) != 32 {
		return nil, errors.New("encryption key must be 32 bytes")
	}
	return &AccountStore{db: db, key: encryptionKey}, nil
}

// CreateAccount creates a new synced account
func (s *AccountStore) CreateAccount(account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	encryptedPassword, err := encrypt(account.Password, s.key)
	if err != nil {
		return fmt.Errorf("failed to encrypt password: %v", err)
	}

	return s.saveRecord(&accountRecord{
		Account:           *account,
		EncryptedPassword: encryptedPassword,
	})
}

// GetAccount retrieves an account by ID with its password decrypted.
func (s *AccountStore) GetAccount(accountID string) (*models.Account, error) {
	var record accountRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(accountsBucket).Get([]byte(accountID))
		if data == nil {
			return ErrAccountNotFound
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}

	account, err := s.decryptRecord(&record)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// ListAccounts returns all synced accounts belonging to a user, with
// passwords decrypted.
func (s *AccountStore) ListAccounts(userID int64) ([]models.Account, error) {
	return s.collectAccounts(func(account *models.Account) bool {
		return account.UserID == userID
	})
}

// AllAccounts returns every synced account across all users, with
// passwords decrypted. Used by the background sync loop.
func (s *AccountStore) AllAccounts() ([]models.Account, error) {
	return s.collectAccounts(func(*models.Account) bool { return true })
}

func (s *AccountStore) collectAccounts(keep func(*models.Account) bool) ([]models.Account, error) {
	var accounts []models.Account

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(accountsBucket).ForEach(func(k, v []byte) error {
			var record accountRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return nil // skip corrupt entries
			}
			if !keep(&record.Account) {
				return nil
			}
			account, err := s.decryptRecord(&record)
			if err != nil {
				return fmt.Errorf("failed to decrypt password for %s: %v", record.ID, err)
			}
			accounts = append(accounts, *account)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return accounts, nil
}

// TouchLastSynced stamps an account's last successful sync time.
func (s *AccountStore) TouchLastSynced(accountID string, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(accountsBucket)
		data := bucket.Get([]byte(accountID))
		if data == nil {
			return ErrAccountNotFound
		}

		var record accountRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("failed to decode account: %v", err)
		}

		record.LastSyncedAt = &at
		record.UpdatedAt = time.Now()

		encoded, err := json.Marshal(&record)
		if err != nil {
			return fmt.Errorf("failed to encode account: %v", err)
		}
		return bucket.Put([]byte(accountID), encoded)
	})
}

// DeleteAccount deletes an account
func (s *AccountStore) DeleteAccount(accountID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(accountsBucket).Delete([]byte(accountID))
	})
}

func (s *AccountStore) saveRecord(record *accountRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		encoded, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal account: %v", err)
		}
		return tx.Bucket(accountsBucket).Put([]byte(record.ID), encoded)
	})
}

func (s *AccountStore) decryptRecord(record *accountRecord) (*models.Account, error) {
	password, err := decrypt(record.EncryptedPassword, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt password: %v", err)
	}

	account := record.Account
	account.Password = password
	return &account, nil
}

// encrypt encrypts plaintext using AES-GCM
func encrypt(plaintext string, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return fmt.Sprintf("%x", ciphertext), nil
}

// decrypt decrypts ciphertext using AES-GCM
func decrypt(ciphertextHex string, key []byte) (string, error) {
	var ciphertext []byte
	if _, err := fmt.Sscanf(ciphertextHex, "%x", &ciphertext); err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}
