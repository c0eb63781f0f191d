//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"quantum-relay/domain"
	qerrors "quantum-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IMessageRepository interface {
	StoreMessage(message domain.Message) error
	AddDelivered(messageID uuid.UUID, identities []string) error
	AddRead(messageID uuid.UUID, readerID string) (domain.Message, error)
	GetMessages(room domain.RoomID, cursor *string) ([]domain.Message, *string, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// messageKey formats the primary key as "msg:{room}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using the UUID as a collision disconnector if two
//     messages arrive at the same nanosecond.
func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", m.Room, m.CreatedAt.UnixNano(), m.ID))
}

// indexKey maps a message id back to its primary key so delivery and read
// receipts can reach a message without knowing its timestamp.
func indexKey(id uuid.UUID) []byte {
	return []byte("msgidx:" + id.String())
}

// StoreMessage persists a message and its id index in one transaction.
// Persistence happens before any fan-out, a failure here aborts the send.
func (m MessageRepository) StoreMessage(message domain.Message) error {
	key := messageKey(message)
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(indexKey(message.ID), key)
	})
}

// AddDelivered appends identities to the message's delivered set.
// The set only ever grows and never holds duplicates, so concurrent receipt
// arrivals from different members are safe to replay.
func (m MessageRepository) AddDelivered(messageID uuid.UUID, identities []string) error {
	_, err := m.mutate(messageID, func(msg *domain.Message) {
		for _, id := range identities {
			msg.DeliveredTo = appendUnique(msg.DeliveredTo, id)
		}
	})
	return err
}

// AddRead appends the reader to the message's read set, idempotently, and
// returns the updated message.
func (m MessageRepository) AddRead(messageID uuid.UUID, readerID string) (domain.Message, error) {
	return m.mutate(messageID, func(msg *domain.Message) {
		msg.ReadBy = appendUnique(msg.ReadBy, readerID)
		msg.DeliveredTo = appendUnique(msg.DeliveredTo, readerID)
	})
}

// mutate runs a read-modify-write cycle on one message inside a single
// Badger transaction, which gives the atomic set-add semantics the receipt
// paths rely on.
func (m MessageRepository) mutate(messageID uuid.UUID, apply func(*domain.Message)) (domain.Message, error) {
	var updated domain.Message
	err := m.db.Update(func(txn *badger.Txn) error {
		idxItem, err := txn.Get(indexKey(messageID))
		if err != nil {
			return qerrors.ErrMessageNotFound
		}
		var key []byte
		if err := idxItem.Value(func(val []byte) error {
			key = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}

		item, err := txn.Get(key)
		if err != nil {
			return qerrors.ErrMessageNotFound
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &updated)
		}); err != nil {
			return err
		}

		apply(&updated)

		data, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	return updated, err
}

// GetMessages retrieves messages for a specific room using a reverse prefix
// scan. Thanks to the padded timestamp in the key, messages come out newest
// first. It stops collecting once the configured limitMessages is reached and
// returns an opaque cursor for the next page.
func (m MessageRepository) GetMessages(room domain.RoomID, cursor *string) ([]domain.Message, *string, error) {
	var raw [][]byte
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", room)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible timestamp, then walk backwards
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(raw) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}
			item := it.Item()
			// Memorize the cursor part of the actual key
			lastKey = string(item.Key()[prefixLen:])
			if err := item.Value(func(value []byte) error {
				raw = append(raw, append([]byte(nil), value...))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages := make([]domain.Message, 0, len(raw))
	for _, b := range raw {
		var msg domain.Message
		if err = json.Unmarshal(b, &msg); err != nil {
			return nil, nil, err
		}
		messages = append(messages, msg)
	}

	// No keys scanned means no further pages, callers rely on a nil cursor
	// to stop walking.
	if lastKey == "" {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

func appendUnique(set []string, value string) []string {
	for _, existing := range set {
		if existing == value {
			return set
		}
	}
	return append(set, value)
}
