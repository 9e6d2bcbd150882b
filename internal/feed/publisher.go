// Package feed streams ready documents over Kafka for the distributed
// topology: scan stations publish assembled documents, a central search node
// consumes them into its own index. Single-machine installs leave the feed
// disabled and never touch this package.
package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/config"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/kafka"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/logger"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/metrics"
)

// Publisher emits one event per ready document, keyed by DocID so repeated
// versions of a document land on the same partition in order.
type Publisher struct {
	producer *kafka.Producer
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewPublisher creates a Publisher for the configured feed topic.
func NewPublisher(cfg config.FeedConfig, m *metrics.Metrics) *Publisher {
	return &Publisher{
		producer: kafka.NewProducer(cfg),
		metrics:  m,
		logger:   logger.WithComponent("feed"),
	}
}

// Publish writes a ready document to the feed.
func (p *Publisher) Publish(ctx context.Context, doc document.Indexed) error {
	if err := p.producer.Publish(ctx, kafka.Event{Key: doc.ID, Value: doc}); err != nil {
		return fmt.Errorf("publishing %s to feed: %w", doc.ID, err)
	}
	if p.metrics != nil {
		p.metrics.FeedPublishedTotal.Inc()
	}
	p.logger.Debug("document published", "doc_id", doc.ID, "pages", len(doc.Pages))
	return nil
}

// Close flushes and closes the underlying producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
