package ingest

import (
	"context"
	"errors"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/kafka"
)

// HandleMessage returns the handler for the document ingest topic.
// Undecodable and invalid events are logged and skipped; store failures are
// returned so the message is not committed.
func (ix *Indexer) HandleMessage() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[IngestEvent](value)
		if err != nil {
			ix.logger.Error("failed to decode ingest event", "error", err, "key", string(key))
			return nil
		}
		rows, err := ix.Index(ctx, &event)
		var invalid *ValidationError
		if errors.As(err, &invalid) {
			ix.logger.Warn("invalid ingest event skipped", "url", event.URL, "fields", invalid.Fields)
			return nil
		}
		if err != nil {
			return err
		}
		ix.logger.Info("document indexed", "url", event.URL, "rows", rows)
		return nil
	}
}
