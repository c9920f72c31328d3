package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"

	"nestmail/models"
)

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// ErrUsernameTaken is returned when registering a username that exists.
var ErrUsernameTaken = errors.New("username already taken")

// UserStore manages user records in BoltDB.
type UserStore struct {
	db *bolt.DB
}

// userRecord is the persisted shape. models.User hides the password
// hash from JSON responses, so the hash travels in its own stored
// field.
type userRecord struct {
	models.User
	StoredPasswordHash string `json:"password_hash"`
}

// NewUserStore creates a user store on top of an open bolt database.
func NewUserStore(db *bolt.DB) *UserStore {
	return &UserStore{db: db}
}

// CreateUser creates a new user with a bcrypt-hashed password. The
// username must be unique.
func (s *UserStore) CreateUser(user *models.User, password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %v", err)
	}
	user.PasswordHash = string(hashedPassword)

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	return s.db.Update(func(tx *bolt.Tx) error {
		users := tx.Bucket(usersBucket)
		names := tx.Bucket(usernamesBucket)

		if names.Get([]byte(user.Username)) != nil {
			return fmt.Errorf("%w: %q", ErrUsernameTaken, user.Username)
		}

		id, err := users.NextSequence()
		if err != nil {
			return err
		}
		user.ID = int64(id)

		encoded, err := encodeUser(user)
		if err != nil {
			return err
		}

		if err := users.Put(itob(user.ID), encoded); err != nil {
			return err
		}
		return names.Put([]byte(user.Username), itob(user.ID))
	})
}

// GetUser retrieves a user by ID
func (s *UserStore) GetUser(userID int64) (*models.User, error) {
	var user *models.User

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(usersBucket).Get(itob(userID))
		if data == nil {
			return ErrUserNotFound
		}
		var err error
		user, err = decodeUser(data)
		return err
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// GetUserByUsername retrieves a user by username
func (s *UserStore) GetUserByUsername(username string) (*models.User, error) {
	var user *models.User

	err := s.db.View(func(tx *bolt.Tx) error {
		idBytes := tx.Bucket(usernamesBucket).Get([]byte(username))
		if idBytes == nil {
			return ErrUserNotFound
		}
		data := tx.Bucket(usersBucket).Get(idBytes)
		if data == nil {
			return ErrUserNotFound
		}
		var err error
		user, err = decodeUser(data)
		return err
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Authenticate verifies a username/password pair and stamps the user's
// last login time on success.
func (s *UserStore) Authenticate(username, password string) (*models.User, error) {
	user, err := s.GetUserByUsername(username)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	user.LastLoginAt = time.Now()
	if err := s.saveUser(user); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *UserStore) saveUser(user *models.User) error {
	user.UpdatedAt = time.Now()

	return s.db.Update(func(tx *bolt.Tx) error {
		encoded, err := encodeUser(user)
		if err != nil {
			return err
		}
		return tx.Bucket(usersBucket).Put(itob(user.ID), encoded)
	})
}

func encodeUser(user *models.User) ([]byte, error) {
	record := userRecord{
		User:               *user,
		StoredPasswordHash: user.PasswordHash,
	}
	encoded, err := json.Marshal(&record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user: %v", err)
	}
	return encoded, nil
}

func decodeUser(data []byte) (*models.User, error) {
	var record userRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode user: %v", err)
	}

	user := record.User
	user.PasswordHash = record.StoredPasswordHash
	return &user, nil
}

// itob converts an int64 id to a big-endian bolt key.
func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}
