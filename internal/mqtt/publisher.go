package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/logger"
	"github.com/tphakala/fieldlog/internal/observability/metrics"
	"github.com/tphakala/fieldlog/internal/observation"
)

// Publisher announces map-visible log entries on {topic}/{category}. It
// implements committer.Notifier.
type Publisher struct {
	client  Client
	topic   string
	log     logger.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a publisher on top of a connected client.
func NewPublisher(client Client, topic string, log logger.Logger, rec metrics.Recorder) *Publisher {
	if log == nil {
		log = logger.Global().Module("mqtt")
	}
	return &Publisher{
		client:  client,
		topic:   strings.TrimRight(topic, "/"),
		log:     log,
		metrics: metrics.OrNop(rec),
	}
}

// Topic returns the topic entries of category are published on.
func (p *Publisher) Topic(category observation.Category) string {
	return p.topic + "/" + strings.ToLower(string(category))
}

// NotifyEntry publishes entry as JSON. Only map-visible entries are sent.
func (p *Publisher) NotifyEntry(ctx context.Context, entry observation.LogEntry) error {
	if entry.Status != observation.StatusMapVisible {
		return nil
	}
	start := time.Now()

	payload, err := json.Marshal(entry)
	if err != nil {
		return p.fail(err, entry, errors.CategoryFileParsing)
	}

	if err := p.client.Publish(ctx, p.Topic(entry.Category), payload); err != nil {
		return p.fail(err, entry, errors.CategoryMQTTPublish)
	}

	p.log.Debug("sighting published",
		logger.String("entry_id", entry.ID),
		logger.String("category", string(entry.Category)))
	p.metrics.RecordOperation(metrics.OpPublish, metrics.StatusSuccess)
	p.metrics.RecordDuration(metrics.OpPublish, time.Since(start).Seconds())
	return nil
}

func (p *Publisher) fail(err error, entry observation.LogEntry, category errors.ErrorCategory) error {
	p.metrics.RecordOperation(metrics.OpPublish, metrics.StatusError)
	p.metrics.RecordError(metrics.OpPublish, metrics.ErrorTypeBroker)
	return errors.New(err).
		Component("mqtt").
		Category(category).
		Context("operation", "publish_entry").
		Context("entry_id", entry.ID).
		Priority(errors.PriorityLow).
		Build()
}
