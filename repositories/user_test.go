package repositories

import (
	"testing"
	"time"

	qerrors "quantum-relay/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(openTestDB(t))

	user := User{
		ID:           uuid.New(),
		Email:        "alice@example.com",
		PasswordHash: "$argon2id$...",
		Roles:        []string{"user"},
		CreatedAt:    time.Now().UTC(),
	}

	// When the account is created
	req.NoError(repo.CreateUser(user))

	// Then it can be fetched by email
	fetched, err := repo.GetUserByEmail("alice@example.com")
	req.NoError(err)
	req.Equal(user.ID, fetched.ID)
	req.Equal(user.PasswordHash, fetched.PasswordHash)
	req.Equal([]string{"user"}, fetched.Roles)
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(openTestDB(t))

	user := User{ID: uuid.New(), Email: "bob@example.com", PasswordHash: "h"}
	req.NoError(repo.CreateUser(user))

	// A second registration for the same email is refused
	err := repo.CreateUser(User{ID: uuid.New(), Email: "bob@example.com", PasswordHash: "h2"})
	req.ErrorIs(err, qerrors.ErrUserAlreadyExists)
}

func TestUserRepository_UnknownEmail(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(openTestDB(t))

	_, err := repo.GetUserByEmail("nobody@example.com")
	req.ErrorIs(err, qerrors.ErrInvalidCredentials)
}
