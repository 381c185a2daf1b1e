// Package kafka delivers governance events to a Kafka topic for
// downstream compliance consumers. The local store remains the source of
// truth; the sink is an at-least-once fan-out guarded by a circuit
// breaker so a broker outage degrades to store-only persistence instead
// of failing ledger writes.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/circuit"
)

// DefaultTopic is the governance event topic.
const DefaultTopic = "governance.events"

// Sink implements audit.Sink over a franz-go client.
type Sink struct {
	client  *kgo.Client
	topic   string
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// Config for the Kafka sink.
type Config struct {
	Brokers []string
	Topic   string
	// Partitions used when the topic has to be created. Zero means 1.
	Partitions int32
}

// NewSink connects to the brokers and makes sure the topic exists.
func NewSink(ctx context.Context, cfg Config, logger *slog.Logger) (*Sink, error) {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchMaxBytes(1<<20),
		kgo.ProduceRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopic(ctx, client, cfg.Topic, cfg.Partitions); err != nil {
		client.Close()
		return nil, err
	}

	return &Sink{
		client:  client,
		topic:   cfg.Topic,
		breaker: circuit.New("audit-kafka", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2)),
		logger:  logger,
	}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32) error {
	adm := kadm.NewClient(client)
	details, err := adm.ListTopics(ctx, topic)
	if err != nil {
		return fmt.Errorf("list kafka topics: %w", err)
	}
	if details.Has(topic) {
		return nil
	}
	if _, err := adm.CreateTopic(ctx, partitions, 1, nil, topic); err != nil {
		return fmt.Errorf("create kafka topic %s: %w", topic, err)
	}
	return nil
}

// wireEvent is the JSON shape produced to the topic.
type wireEvent struct {
	ID         string            `json:"id"`
	RecordID   string            `json:"record_id"`
	RevisionID string            `json:"revision_id,omitempty"`
	EventType  string            `json:"event_type"`
	ActorID    string            `json:"actor_id"`
	At         string            `json:"at"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// Publish produces one event, keyed by record id so per-record ordering is
// preserved within a partition. While the breaker is open the event is
// logged and skipped; the durable trail lives in the store.
func (s *Sink) Publish(ctx context.Context, event audit.Event) error {
	if s.breaker.IsOpen() {
		// Probe with this event; a success starts closing the circuit.
		if err := s.produce(ctx, event); err != nil {
			s.breaker.RecordFailure()
			s.logger.WarnContext(ctx, "audit kafka sink open, event not fanned out",
				"event_type", string(event.Type), "record_id", event.RecordID.String())
			return nil
		}
		if closed, change := s.breaker.RecordSuccess(); closed && change.Closed {
			s.logger.InfoContext(ctx, "audit kafka sink recovered")
		}
		return nil
	}

	if err := s.produce(ctx, event); err != nil {
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.ErrorContext(ctx, "audit kafka sink opening after repeated failures", "error", err)
		}
		return fmt.Errorf("publish audit event: %w", err)
	}
	s.breaker.RecordSuccess()
	return nil
}

func (s *Sink) produce(ctx context.Context, event audit.Event) error {
	wire := wireEvent{
		ID:        event.ID.String(),
		RecordID:  event.RecordID.String(),
		EventType: string(event.Type),
		ActorID:   event.ActorID.String(),
		At:        event.At.Format(time.RFC3339Nano),
		Meta:      event.Meta,
	}
	if event.RevisionID != nil {
		wire.RevisionID = event.RevisionID.String()
	}
	value, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(wire.RecordID),
		Value: value,
	}
	return s.client.ProduceSync(ctx, record).FirstErr()
}

// Close flushes pending produces and releases the client.
func (s *Sink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Flush(ctx); err != nil {
		s.logger.Warn("audit kafka flush on close failed", "error", err)
	}
	s.client.Close()
	return nil
}
