package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/frostdev-ops/meterdash/internal/config"
	"github.com/frostdev-ops/meterdash/internal/core/alarms"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaAlarmSink publishes alarm events to a Kafka topic, one message per
// event keyed by the reading field.
type KafkaAlarmSink struct {
	writer       kafkaMessageWriter
	topic        string
	writeTimeout time.Duration
	logger       *logrus.Logger
}

// NewKafkaAlarmSink builds a sink writing to cfg.Topic on cfg.Brokers.
func NewKafkaAlarmSink(cfg config.KafkaConfig, logger *logrus.Logger) (*KafkaAlarmSink, error) {
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka topic must not be empty")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newKafkaAlarmSink(writer, cfg, logger), nil
}

func newKafkaAlarmSink(writer kafkaMessageWriter, cfg config.KafkaConfig, logger *logrus.Logger) *KafkaAlarmSink {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaAlarmSink{
		writer:       writer,
		topic:        cfg.Topic,
		writeTimeout: timeout,
		logger:       logger,
	}
}

// Name identifies the sink in logs and metrics.
func (s *KafkaAlarmSink) Name() string { return "kafka" }

// PublishAlarms writes every event in a single batch.
func (s *KafkaAlarmSink) PublishAlarms(ctx context.Context, events []alarms.Event) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to encode alarm event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.Field),
			Value: value,
			Time:  ev.Timestamp,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write alarms to %s: %w", s.topic, err)
	}

	s.logger.WithFields(logrus.Fields{
		"topic":  s.topic,
		"alarms": len(msgs),
	}).Debug("Published alarm events")
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaAlarmSink) Close() error {
	return s.writer.Close()
}
