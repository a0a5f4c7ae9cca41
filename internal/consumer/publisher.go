package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/maliev/geometry-service/internal/analysis"
	"github.com/maliev/geometry-service/internal/logging"
)

// PublisherConfig configures the outbound event writer.
type PublisherConfig struct {
	Brokers         []string
	CompletedTopic  string
	FailedTopic     string
	DeadLetterTopic string // empty disables dead-lettering
}

// KafkaPublisher serializes outcomes into MassTransit envelopes and writes
// them to the broker. It implements analysis.Publisher.
type KafkaPublisher struct {
	writer *kafka.Writer
	cfg    PublisherConfig
	log    *slog.Logger
}

// NewPublisher creates the outbound event publisher.
func NewPublisher(cfg PublisherConfig) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
		cfg: cfg,
		log: logging.Component("publisher"),
	}
}

// Publish implements analysis.Publisher. The outbound correlationId is the
// inbound one, verbatim; it is never regenerated here.
func (p *KafkaPublisher) Publish(ctx context.Context, res analysis.Result) error {
	var (
		topic       string
		messageType string
		payload     any
	)
	if res.Succeeded() {
		topic = p.cfg.CompletedTopic
		messageType = typeFileAnalyzed
		payload = fileAnalyzed{
			FileID:      res.Job.FileID,
			Metrics:     *res.Metrics,
			ProcessedAt: res.ProcessedAt,
		}
	} else {
		topic = p.cfg.FailedTopic
		messageType = typeFileAnalysisFailed
		payload = fileAnalysisFailed{
			FileID:    res.Job.FileID,
			ErrorCode: string(res.Code),
			Details:   res.Details,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outcome payload: %w", err)
	}

	env := Envelope{
		MessageID:     uuid.New().String(),
		CorrelationID: res.Job.CorrelationID,
		MessageType:   []string{messageType},
		Message:       body,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(res.Job.FileID),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("write to %s: %w", topic, err)
	}

	p.log.Debug("published outcome", "topic", topic,
		"file_id", res.Job.FileID, "correlation_id", res.Job.CorrelationID)
	return nil
}

// DeadLetter routes a malformed envelope to the dead-letter topic. No-op
// when dead-lettering is not configured; failures are logged, not
// propagated, because a malformed message is acknowledged either way.
func (p *KafkaPublisher) DeadLetter(ctx context.Context, key, value []byte, reason string) {
	if p.cfg.DeadLetterTopic == "" {
		return
	}
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.cfg.DeadLetterTopic,
		Key:   key,
		Value: value,
		Headers: []kafka.Header{
			{Key: "x-dead-letter-reason", Value: []byte(reason)},
		},
		Time: time.Now(),
	})
	if err != nil {
		p.log.Warn("dead-letter publish failed", "error", err)
	}
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
