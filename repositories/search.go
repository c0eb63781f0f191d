//go:generate go run go.uber.org/mock/mockgen -source=search.go -destination=../mocks/mock_search_repository.go -package=mocks
package repositories

import (
	"context"
	"log/slog"
	"time"

	"quantum-relay/domain"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

type SearchHit struct {
	MessageID uuid.UUID     `json:"messageId"`
	Room      domain.RoomID `json:"room"`
	SenderID  string        `json:"senderId"`
	Text      string        `json:"text"`
	Timestamp time.Time     `json:"timestamp"`
	Score     float64       `json:"score"`
}

type ISearchRepository interface {
	IndexMessage(message domain.Message) error
	Search(ctx context.Context, room domain.RoomID, query string, limit int) ([]SearchHit, error)
}

// SearchRepository maintains a full-text index over message bodies, one
// document per message. Only textual content is indexed, attachments go
// straight to the primary store.
type SearchRepository struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchRepository(writer *bluge.Writer, log *slog.Logger) SearchRepository {
	return SearchRepository{writer: writer, log: log}
}

func (s SearchRepository) IndexMessage(message domain.Message) error {
	if message.Content.Text == "" {
		return nil
	}
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField("room", string(message.Room)).StoreValue()).
		AddField(bluge.NewKeywordField("sender", message.SenderID).StoreValue()).
		AddField(bluge.NewTextField("text", message.Content.Text).StoreValue()).
		AddField(bluge.NewDateTimeField("timestamp", message.CreatedAt).StoreValue())
	return s.writer.Update(doc.ID(), doc)
}

// Search matches the query against message text, scoped to one room.
// Results come back by descending relevance score.
func (s SearchRepository) Search(ctx context.Context, room domain.RoomID, query string, limit int) ([]SearchHit, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(query).SetField("text")).
		AddMust(bluge.NewTermQuery(string(room)).SetField("room"))

	request := bluge.NewTopNSearch(limit, q)
	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	var hits []SearchHit
	match, err := iterator.Next()
	for err == nil && match != nil {
		hit := SearchHit{Score: match.Score}
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				if id, parseErr := uuid.Parse(string(value)); parseErr == nil {
					hit.MessageID = id
				}
			case "room":
				hit.Room = domain.RoomID(value)
			case "sender":
				hit.SenderID = string(value)
			case "text":
				hit.Text = string(value)
			case "timestamp":
				if ts, parseErr := bluge.DecodeDateTime(value); parseErr == nil {
					hit.Timestamp = ts
				}
			}
			return true
		})
		if visitErr != nil {
			s.log.Warn("Failed to visit stored fields", "error", visitErr)
		}
		hits = append(hits, hit)
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, err
	}
	return hits, nil
}
