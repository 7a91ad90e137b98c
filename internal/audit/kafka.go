package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaConfig configures the Kafka audit sink.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	BatchTimeout time.Duration
}

// KafkaSink publishes events as JSON messages keyed by user id.
type KafkaSink struct {
	writer  MessageWriter
	timeout time.Duration
	onError func(error)
}

// NewKafkaWriter builds a kafka-go writer for cfg.
func NewKafkaWriter(cfg KafkaConfig) (*kafkago.Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("audit: kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("audit: kafka topic is required")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}, nil
}

// NewKafkaSink wraps w. onError, when set, receives publish failures.
func NewKafkaSink(w MessageWriter, timeout time.Duration, onError func(error)) *KafkaSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaSink{writer: w, timeout: timeout, onError: onError}
}

func (s *KafkaSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.fail(err)
		return
	}

	// The dispatcher goroutine passes a background context.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	msg := kafkago.Message{
		Key:   []byte(event.UserID),
		Value: data,
		Time:  event.Timestamp,
		Headers: []kafkago.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "category", Value: []byte(event.Category)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.fail(err)
	}
}

func (s *KafkaSink) fail(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

// Close closes the underlying writer.
func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
