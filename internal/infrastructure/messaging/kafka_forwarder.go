package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/alem-hub/learning-progress/internal/domain/shared"
	"github.com/alem-hub/learning-progress/pkg/logger"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaForwarder.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the forwarder.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// NewKafkaWriter creates a synchronous writer for cfg.Topic. A zero
// WriteTimeout keeps the kafka-go default.
func NewKafkaWriter(cfg KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		Async:        false,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// KafkaForwarder writes every event it receives to Kafka as a JSON
// EventEnvelope keyed by aggregate id, so one user's events stay ordered
// within a partition.
type KafkaForwarder struct {
	writer  MessageWriter
	timeout time.Duration
	log     *logger.Logger
}

// NewKafkaForwarder creates a forwarder.
func NewKafkaForwarder(writer MessageWriter, timeout time.Duration, log *logger.Logger) *KafkaForwarder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &KafkaForwarder{
		writer:  writer,
		timeout: timeout,
		log:     log.With(logger.Component("kafka_forwarder")),
	}
}

// Attach subscribes the forwarder to all events on bus.
func (f *KafkaForwarder) Attach(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(f.Handle)
}

// Handle implements shared.EventHandler.
func (f *KafkaForwarder) Handle(event shared.Event) error {
	env, err := shared.NewEnvelope(uuid.NewString(), event)
	if err != nil {
		return fmt.Errorf("kafka_forwarder: build envelope: %w", err)
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("kafka_forwarder: marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(env.AggregateID),
		Value: value,
		Time:  env.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.Type)},
			{Key: "event_id", Value: []byte(env.ID)},
		},
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka_forwarder: write %s: %w", env.Type, err)
	}

	f.log.Debug("event forwarded", logger.String("event_type", string(env.Type)), logger.String("event_id", env.ID))
	return nil
}

// Close releases the writer.
func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}
