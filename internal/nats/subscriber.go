package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sgerhart/aegisflux/analyzer/internal/analyzer"
	"github.com/sgerhart/aegisflux/analyzer/internal/metrics"
	"github.com/sgerhart/aegisflux/analyzer/internal/model"
	"github.com/sgerhart/aegisflux/analyzer/internal/store"
)

const (
	// SubjectDetected carries change records, one per message or a JSON array
	SubjectDetected = "changes.detected"
	// SubjectClassified receives one classification per analyzed record
	SubjectClassified = "changes.classified"
)

// Publisher is the subset of *nats.Conn used to emit classifications
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Subscriber consumes detected changes, classifies them and publishes the results
type Subscriber struct {
	nc        *nats.Conn
	publisher Publisher
	analyzer  *analyzer.Analyzer
	store     *store.MemoryStore
	metrics   *metrics.Metrics
	logger    *slog.Logger
	queue     string

	sub *nats.Subscription
}

// NewSubscriber creates a new NATS subscriber
func NewSubscriber(nc *nats.Conn, queue string, a *analyzer.Analyzer, store *store.MemoryStore, metrics *metrics.Metrics, logger *slog.Logger) *Subscriber {
	s := &Subscriber{
		nc:       nc,
		analyzer: a,
		store:    store,
		metrics:  metrics,
		logger:   logger,
		queue:    queue,
	}
	if nc != nil {
		s.publisher = nc
	}
	return s
}

// Subscribe listens for change records until ctx is cancelled, then drains
func (s *Subscriber) Subscribe(ctx context.Context) error {
	s.logger.Info("Subscribing to change records", "subject", SubjectDetected, "queue", s.queue)

	sub, err := s.nc.QueueSubscribe(SubjectDetected, s.queue, s.handleMessage)
	if err != nil {
		s.logger.Error("Failed to subscribe to change records", "error", err)
		return fmt.Errorf("failed to subscribe to %s: %w", SubjectDetected, err)
	}
	s.sub = sub
	s.metrics.SetNatsConnected(s.nc.IsConnected())

	<-ctx.Done()

	s.logger.Info("Starting graceful shutdown with drain")
	if err := s.sub.Drain(); err != nil {
		s.logger.Error("Failed to drain subscription", "error", err)
		return err
	}
	s.metrics.SetNatsConnected(false)
	s.logger.Info("Graceful shutdown completed")
	return nil
}

// handleMessage classifies every record in a message. Request messages get
// the classifications back as the reply.
func (s *Subscriber) handleMessage(msg *nats.Msg) {
	s.logger.Debug("Received change records", "subject", msg.Subject, "data_length", len(msg.Data))

	records, err := model.DecodeChangeRecords(msg.Data)
	if err != nil {
		s.logger.Error("Failed to parse change records", "error", err)
		s.metrics.IncrementRecordsInvalid()
		s.respond(msg, map[string]string{"error": err.Error()})
		return
	}

	results := s.process(records)
	s.respond(msg, results)
}

// process classifies records, stores the results and publishes each one
func (s *Subscriber) process(records []*model.ChangeRecord) []model.Classification {
	start := time.Now()
	results := s.analyzer.ClassifyAll(records)

	for i := range results {
		result := &results[i]
		if s.store != nil {
			s.store.Add(result)
		}
		s.publish(result)
	}

	s.logger.Debug("Classified change records",
		"count", len(results),
		"duration", time.Since(start))
	return results
}

func (s *Subscriber) publish(result *model.Classification) {
	if s.publisher == nil {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("Failed to marshal classification", "error", err, "id", result.ID)
		return
	}

	if err := s.publisher.Publish(SubjectClassified, data); err != nil {
		s.logger.Error("Failed to publish classification",
			"error", err,
			"subject", SubjectClassified,
			"id", result.ID)
		s.metrics.IncrementNatsPublishErrors()
	}
}

func (s *Subscriber) respond(msg *nats.Msg, body interface{}) {
	if msg.Reply == "" {
		return
	}

	data, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("Failed to marshal reply", "error", err)
		return
	}

	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(msg.Reply, data); err != nil {
		s.logger.Error("Failed to send reply", "error", err, "reply", msg.Reply)
	}
}
