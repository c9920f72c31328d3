package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestmail/models"
)

func newTestBolt(t *testing.T) *UserStore {
	t.Helper()

	db, err := OpenBoltDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewUserStore(db)
}

func TestCreateAndAuthenticateUser(t *testing.T) {
	store := newTestBolt(t)

	user := &models.User{
		Username: "alice",
		Email:    "alice@example.com",
	}
	require.NoError(t, store.CreateUser(user, "correct horse battery"))
	assert.NotZero(t, user.ID)
	assert.NotEqual(t, "correct horse battery", user.PasswordHash)

	got, err := store.Authenticate("alice", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = store.Authenticate("alice", "wrong password")
	assert.Error(t, err)
}

func TestPasswordHashSurvivesPersistence(t *testing.T) {
	store := newTestBolt(t)

	user := &models.User{Username: "dave", Email: "dave@example.com"}
	require.NoError(t, store.CreateUser(user, "password123"))

	// The stored record must carry the hash even though the API model
	// hides it from JSON.
	got, err := store.GetUserByUsername("dave")
	require.NoError(t, err)
	assert.NotEmpty(t, got.PasswordHash)
	assert.Equal(t, user.PasswordHash, got.PasswordHash)

	// Authenticate rewrites the record to stamp last_login_at; a second
	// login must still find the hash intact.
	_, err = store.Authenticate("dave", "password123")
	require.NoError(t, err)
	_, err = store.Authenticate("dave", "password123")
	require.NoError(t, err)
}

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	store := newTestBolt(t)

	first := &models.User{Username: "bob", Email: "bob@example.com"}
	require.NoError(t, store.CreateUser(first, "password123"))

	second := &models.User{Username: "bob", Email: "other@example.com"}
	err := store.CreateUser(second, "password456")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestGetUserByUsername(t *testing.T) {
	store := newTestBolt(t)

	user := &models.User{Username: "carol", Email: "carol@example.com"}
	require.NoError(t, store.CreateUser(user, "password123"))

	got, err := store.GetUserByUsername("carol")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = store.GetUserByUsername("nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
