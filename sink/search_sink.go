// Package sink contains event consumers that run off the hot delivery path.
package sink

import (
	"context"
	"log/slog"

	"quantum-relay/domain/event"
	"quantum-relay/repositories"
)

// SearchSink feeds persisted messages into the full-text index.
// Indexing failures are logged and swallowed: search lags behind rather than
// blocking delivery.
type SearchSink struct {
	repository repositories.ISearchRepository
	log        *slog.Logger
}

func NewSearchSink(repository repositories.ISearchRepository, log *slog.Logger) *SearchSink {
	return &SearchSink{repository: repository, log: log}
}

func (s *SearchSink) Consume(_ context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.NewMessage)
	if !ok {
		return nil
	}
	if err := s.repository.IndexMessage(evt.Message); err != nil {
		s.log.Warn("Failed to index message", "messageId", evt.Message.ID, "error", err)
	}
	return nil
}
