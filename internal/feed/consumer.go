package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/catalog"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/docstore"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/config"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/kafka"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/logger"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/metrics"
)

// Index receives documents decoded from the feed.
type Index interface {
	Insert(doc document.Indexed)
}

// Consumer reads the feed topic on a search node and lands each document in
// the local index and document store.
type Consumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// NewConsumer creates a Consumer for the configured feed topic. docs and cat
// may be nil on nodes that index without serving snippets or the document
// listing.
func NewConsumer(cfg config.FeedConfig, idx Index, docs docstore.Store, cat catalog.Catalog, m *metrics.Metrics) *Consumer {
	return &Consumer{
		consumer: kafka.NewConsumer(cfg, HandleMessage(idx, docs, cat, m)),
		logger:   logger.WithComponent("feed"),
	}
}

// Start consumes the feed until ctx ends.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("feed consumer starting")
	return c.consumer.Start(ctx)
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.consumer.Close()
}

// HandleMessage returns a handler that decodes a document event and feeds it
// to the index, the store, and the catalog. Undecodable events are dropped;
// a store failure is returned so the offset stays uncommitted and the event
// is retried. Catalog failures only log: the document is already searchable.
func HandleMessage(idx Index, docs docstore.Store, cat catalog.Catalog, m *metrics.Metrics) kafka.MessageHandler {
	log := logger.WithComponent("feed")
	return func(ctx context.Context, key []byte, value []byte) error {
		doc, err := kafka.DecodeJSON[document.Indexed](value)
		if err != nil {
			log.Error("dropping undecodable feed event", "key", string(key), "error", err)
			return nil
		}
		if doc.ID == "" {
			log.Error("dropping feed event without document id", "key", string(key))
			return nil
		}

		idx.Insert(doc)
		if docs != nil {
			if err := docs.Put(ctx, doc); err != nil {
				return fmt.Errorf("storing %s from feed: %w", doc.ID, err)
			}
		}
		if cat != nil {
			if err := cat.Upsert(ctx, catalogRecord(doc)); err != nil {
				log.Warn("catalog update failed", "doc_id", doc.ID, "error", err)
			}
		}
		if m != nil {
			m.FeedConsumedTotal.Inc()
		}
		log.Info("document indexed from feed", "doc_id", doc.ID, "pages", len(doc.Pages))
		return nil
	}
}

// catalogRecord summarizes a feed document for the consumer-side catalog.
// The source path and engine stay with the station that scanned it.
func catalogRecord(doc document.Indexed) catalog.Record {
	rec := catalog.Record{DocID: doc.ID, State: document.StateReady}
	for _, span := range doc.Pages {
		if span.Failed {
			rec.PagesFailed++
		} else {
			rec.PagesOK++
		}
	}
	return rec
}
