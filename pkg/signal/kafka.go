package signal

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/ajitpratap0/edsync/pkg/config"
	"github.com/ajitpratap0/edsync/pkg/errors"
	jsonpool "github.com/ajitpratap0/edsync/pkg/json"
	"go.uber.org/zap"
)

// KafkaSignaler publishes completions to a topic, keyed by source key so
// the completions of one source stay ordered.
type KafkaSignaler struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewKafkaSignaler connects a synchronous producer to cfg.Brokers.
func NewKafkaSignaler(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaSignaler, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "kafka brokers and topic are required")
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, buildSaramaConfig(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create Kafka producer")
	}
	return NewKafkaSignalerWithProducer(producer, cfg.Topic, logger), nil
}

// NewKafkaSignalerWithProducer uses an existing producer.
func NewKafkaSignalerWithProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaSignaler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSignaler{
		producer: producer,
		topic:    topic,
		logger:   logger.With(zap.String("component", "signal")),
	}
}

func buildSaramaConfig(cfg config.KafkaConfig) *sarama.Config {
	sc := sarama.NewConfig()
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	sc.Producer.Retry.Backoff = 250 * time.Millisecond
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	return sc
}

func (s *KafkaSignaler) Signal(ctx context.Context, c Completion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := jsonpool.Marshal(c)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode completion")
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(c.SourceKey),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("run_id"), Value: []byte(c.RunID)},
			{Key: []byte("content-type"), Value: []byte("application/json")},
		},
	}
	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to publish completion")
	}

	s.logger.Info("completion published",
		zap.String("run_id", c.RunID),
		zap.String("topic", s.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (s *KafkaSignaler) Close() error {
	return s.producer.Close()
}
