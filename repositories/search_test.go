package repositories

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"quantum-relay/domain"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *bluge.Writer {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	return writer
}

func TestSearchRepository_IndexAndSearch(t *testing.T) {
	req := require.New(t)
	repo := NewSearchRepository(openTestIndex(t), slog.Default())
	now := time.Now().UTC()

	wanted := domain.Message{
		ID:        uuid.New(),
		Room:      "room-1",
		SenderID:  "alice",
		Type:      domain.MessageText,
		Content:   domain.Content{Text: "deploy the new relay tonight"},
		CreatedAt: now,
	}
	req.NoError(repo.IndexMessage(wanted))
	req.NoError(repo.IndexMessage(domain.Message{
		ID:        uuid.New(),
		Room:      "room-1",
		SenderID:  "bob",
		Type:      domain.MessageText,
		Content:   domain.Content{Text: "lunch at noon"},
		CreatedAt: now,
	}))

	// When searching the room for "relay"
	hits, err := repo.Search(context.Background(), "room-1", "relay", 10)

	// Then only the matching message comes back
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(wanted.ID, hits[0].MessageID)
	req.Equal("alice", hits[0].SenderID)
	req.Equal("deploy the new relay tonight", hits[0].Text)
}

func TestSearchRepository_ScopedToRoom(t *testing.T) {
	req := require.New(t)
	repo := NewSearchRepository(openTestIndex(t), slog.Default())
	now := time.Now().UTC()

	req.NoError(repo.IndexMessage(domain.Message{
		ID: uuid.New(), Room: "room-a", SenderID: "alice",
		Content: domain.Content{Text: "secret plans"}, CreatedAt: now,
	}))
	req.NoError(repo.IndexMessage(domain.Message{
		ID: uuid.New(), Room: "room-b", SenderID: "bob",
		Content: domain.Content{Text: "secret recipes"}, CreatedAt: now,
	}))

	// Searching room-a never leaks room-b content
	hits, err := repo.Search(context.Background(), "room-a", "secret", 10)
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(domain.RoomID("room-a"), hits[0].Room)
}

func TestSearchRepository_SkipsNonText(t *testing.T) {
	req := require.New(t)
	repo := NewSearchRepository(openTestIndex(t), slog.Default())

	// An attachment with no text never reaches the index
	req.NoError(repo.IndexMessage(domain.Message{
		ID: uuid.New(), Room: "room-a", SenderID: "alice",
		Type:      domain.MessageImage,
		Content:   domain.Content{Data: "aGVsbG8=", MimeType: "image/png"},
		CreatedAt: time.Now().UTC(),
	}))

	hits, err := repo.Search(context.Background(), "room-a", "hello", 10)
	req.NoError(err)
	req.Empty(hits)
}
