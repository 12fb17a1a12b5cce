package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"solana-leader-lab/internal/domain"
)

// KafkaConfig holds Kafka connection configuration.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// ErrNoBrokers is returned when a Kafka sink is configured without brokers.
var ErrNoBrokers = errors.New("kafka: no brokers configured")

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes alerts as JSON, keyed by wallet so every alert for one
// wallet lands on the same partition.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

var _ Sink = (*KafkaSink)(nil)

// NewKafkaSink creates a sink backed by a synchronous kafka.Writer.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: empty topic")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
	}
	return &KafkaSink{writer: writer, topic: cfg.Topic}, nil
}

// Name implements Sink.
func (s *KafkaSink) Name() string { return "kafka" }

// alertMessage is the wire form of an alert.
type alertMessage struct {
	ID         string          `json:"id"`
	Strategy   string          `json:"strategy"`
	Wallet     string          `json:"wallet"`
	Votes      int             `json:"votes"`
	TotalVotes int             `json:"total_votes"`
	Confidence float64         `json:"confidence"`
	Evidence   domain.Evidence `json:"evidence"`
	Timestamp  time.Time       `json:"timestamp"`
}

func encodeAlert(a *domain.Alert) ([]byte, error) {
	return json.Marshal(alertMessage{
		ID:         a.ID,
		Strategy:   a.Strategy,
		Wallet:     a.Wallet,
		Votes:      a.Votes,
		TotalVotes: a.TotalVotes,
		Confidence: a.Confidence,
		Evidence:   a.Evidence,
		Timestamp:  a.Timestamp.UTC(),
	})
}

// Send implements Sink.
func (s *KafkaSink) Send(ctx context.Context, a *domain.Alert) error {
	value, err := encodeAlert(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(a.Wallet),
		Value: value,
		Time:  a.Timestamp,
		Headers: []kafka.Header{
			{Key: "strategy", Value: []byte(a.Strategy)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
