//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"time"

	qerrors "quantum-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"createdAt"`
}

type IUserRepository interface {
	CreateUser(user User) error
	GetUserByEmail(email string) (User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) UserRepository {
	return UserRepository{db: db}
}

func userKey(email string) []byte {
	return []byte("user:" + email)
}

// CreateUser stores a new account keyed by email. The existence check and the
// write share one transaction, so two concurrent registrations for the same
// email cannot both succeed.
func (u UserRepository) CreateUser(user User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return u.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(userKey(user.Email))
		if err == nil {
			return qerrors.ErrUserAlreadyExists
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(userKey(user.Email), data)
	})
}

func (u UserRepository) GetUserByEmail(email string) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(email))
		if err != nil {
			return qerrors.ErrInvalidCredentials
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &user)
		})
	})
	return user, err
}
