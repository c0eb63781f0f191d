package services

import (
	"testing"
	"time"

	"quantum-relay/auth"
	qerrors "quantum-relay/errors"
	"quantum-relay/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

const validPassword = "Str0ng!Password#42"

var secret = []byte("service-test-secret")

func newTestService(t *testing.T) IAuthService {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").
		WithInMemory(true).
		WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewAuthService(repositories.NewUserRepository(db), secret, time.Hour)
}

func TestAuthService_RegisterIssuesToken(t *testing.T) {
	req := require.New(t)
	service := newTestService(t)

	// When a new account registers
	token, err := service.Register("alice@example.com", validPassword)

	// Then a usable token comes back
	req.NoError(err)
	claims, err := auth.ValidateToken(secret, string(token))
	req.NoError(err)
	req.Equal([]string{"user"}, claims.Roles)
}

func TestAuthService_RegisterDuplicate(t *testing.T) {
	req := require.New(t)
	service := newTestService(t)

	_, err := service.Register("alice@example.com", validPassword)
	req.NoError(err)

	_, err = service.Register("alice@example.com", validPassword)
	req.ErrorIs(err, qerrors.ErrUserAlreadyExists)
}

func TestAuthService_RegisterWeakPassword(t *testing.T) {
	req := require.New(t)
	service := newTestService(t)

	_, err := service.Register("alice@example.com", "weak")
	req.ErrorIs(err, qerrors.ErrInvalidPassword)
}

func TestAuthService_LoginRoundTrip(t *testing.T) {
	req := require.New(t)
	service := newTestService(t)

	_, err := service.Register("alice@example.com", validPassword)
	req.NoError(err)

	token, err := service.Login("alice@example.com", validPassword)
	req.NoError(err)
	req.NotEmpty(token)
}

func TestAuthService_LoginBadCredentials(t *testing.T) {
	req := require.New(t)
	service := newTestService(t)

	_, err := service.Register("alice@example.com", validPassword)
	req.NoError(err)

	// Wrong password and unknown user are indistinguishable
	_, err = service.Login("alice@example.com", "Wrong!Password#42")
	req.ErrorIs(err, qerrors.ErrInvalidCredentials)

	_, err = service.Login("nobody@example.com", validPassword)
	req.ErrorIs(err, qerrors.ErrInvalidCredentials)
}
