package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/logger"
	"courier/pkg/errors"
	"courier/pkg/logging"
	"courier/pkg/metrics"
	"courier/pkg/models"
	"courier/pkg/retry"
	"courier/pkg/tracing"
)

type KafkaProducer struct {
	writer      *kafka.Writer
	logger      logger.Logger
	serviceName string
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		Async:        false,
	}
	return &KafkaProducer{writer: w, logger: log.Component("kafka-producer"), serviceName: constants.ServiceName}
}

// Publish writes value as JSON. Messages with the same key land on the same
// partition.
func (p *KafkaProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	start := time.Now()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   body,
		Headers: tracing.InjectTraceContext(ctx, nil),
		Time:    time.Now(),
	})
	metrics.ObserveKafkaWriteDuration(p.serviceName, topic, time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.IncKafkaMessagesWritten(p.serviceName, topic)
	metrics.ObserveKafkaMessageSize(p.serviceName, topic, "out", len(body))
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// DeadLetter is what the consumer writes to the DLQ topic. Record holds
// the original message bytes unchanged.
type DeadLetter struct {
	Record      json.RawMessage `json:"record"`
	Reason      string          `json:"reason"`
	Code        string          `json:"code,omitempty"`
	SourceTopic string          `json:"source_topic"`
	Partition   int             `json:"partition"`
	Offset      int64           `json:"offset"`
	FailedAt    time.Time       `json:"failed_at"`
}

type KafkaConsumer struct {
	cfg         config.KafkaConfig
	wg          sync.WaitGroup
	reader      *kafka.Reader
	logger      logger.Logger
	dlqProducer Producer
	serviceName string
}

func NewKafkaConsumer(cfg config.KafkaConfig, log logger.Logger) *KafkaConsumer {
	consumer := &KafkaConsumer{
		cfg:         cfg,
		logger:      log.Component("kafka-consumer"),
		serviceName: constants.ServiceName,
	}

	if cfg.DLQTopic != "" {
		consumer.dlqProducer = NewKafkaProducer(cfg, log)
	}

	return consumer
}

func (c *KafkaConsumer) SetServiceName(name string) {
	c.serviceName = name
}

// Consume blocks until ctx is done. Records that still fail after the
// retry policy go to the DLQ topic when one is configured; either way the
// offset is committed so one bad record never stalls the partition.
func (c *KafkaConsumer) Consume(ctx context.Context, topic string, handler HandlerFunc) error {
	c.logger.Infow("Creating Kafka reader",
		"topic", topic,
		"brokers", c.cfg.Brokers,
		"group_id", c.cfg.GroupID,
	)

	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.cfg.Brokers,
		GroupID:  c.cfg.GroupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  250 * time.Millisecond,
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		consumeCtx := logging.WithServiceName(ctx, c.serviceName)
		c.logger.InfowCtx(consumeCtx, "Started consuming", "topic", topic)

		for {
			start := time.Now()
			m, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					c.logger.InfowCtx(consumeCtx, "Stopped consuming", "topic", topic, "reason", "context canceled")
					return
				}
				c.logger.ErrorwCtx(consumeCtx, "Error fetching kafka message", "error", err, "topic", topic)
				time.Sleep(time.Second)
				continue
			}
			metrics.ObserveKafkaReadDuration(c.serviceName, topic, time.Since(start))
			metrics.IncKafkaMessagesRead(c.serviceName, topic)
			metrics.ObserveKafkaMessageSize(c.serviceName, topic, "in", len(m.Value))
			metrics.SetKafkaConsumerLag(c.serviceName, topic, m.Partition, c.reader.Lag())

			c.handle(ctx, m, handler)
		}
	}()

	<-ctx.Done()
	return ctx.Err()
}

func (c *KafkaConsumer) handle(ctx context.Context, m kafka.Message, handler HandlerFunc) {
	msgCtx, span := tracing.StartSpanFromKafkaMessage(ctx, "kafka.consume", m.Headers)
	defer span.End()
	msgCtx = logging.WithServiceName(msgCtx, c.serviceName)

	var rec models.ChangeRecord
	if err := json.Unmarshal(m.Value, &rec); err != nil {
		c.logger.ErrorwCtx(msgCtx, "Failed to unmarshal change record", "error", err, "topic", m.Topic)
		c.deadLetter(msgCtx, m, errors.ErrValidation.WithCause(err))
		c.commit(msgCtx, m)
		return
	}

	traceID := rec.Metadata.TraceID
	if traceID == "" {
		traceID = tracing.TraceID(msgCtx)
		rec.Metadata.TraceID = traceID
	}
	if traceID != "" {
		msgCtx = logging.WithTraceID(msgCtx, traceID)
	}
	if rec.ConversationID != "" {
		msgCtx = logging.WithConversationID(msgCtx, rec.ConversationID)
	}

	if err := c.processWithRetry(msgCtx, rec, handler, m.Topic); err != nil {
		c.logger.ErrorwCtx(msgCtx, "Failed to process change record after retries",
			"error", err,
			"record_id", rec.ID,
			"topic", m.Topic,
		)
		c.deadLetter(msgCtx, m, err)
	}
	c.commit(msgCtx, m)
}

func (c *KafkaConsumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.logger.ErrorwCtx(ctx, "Failed to commit message", "error", err, "topic", m.Topic)
	}
}

func (c *KafkaConsumer) Close() error {
	var err error
	if c.reader != nil {
		err = c.reader.Close()
	}
	if c.dlqProducer != nil {
		if closeErr := c.dlqProducer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	c.wg.Wait()
	return err
}

func (c *KafkaConsumer) processWithRetry(ctx context.Context, rec models.ChangeRecord, handler HandlerFunc, topic string) error {
	policy := retry.FromConfig(c.cfg.Retry)

	return retry.RetryWithCallback(ctx, policy, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.RecoverPanic(r)
				c.logger.ErrorwCtx(ctx, "Panic recovered during record processing", "error", err, "topic", topic)
			}
		}()
		return handler(ctx, rec)
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(c.serviceName, topic).Inc()
		c.logger.WarnwCtx(ctx, "Retrying record processing",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"next_delay", nextDelay,
			"error", err,
			"topic", topic,
		)
	})
}

func (c *KafkaConsumer) deadLetter(ctx context.Context, m kafka.Message, cause error) {
	if c.dlqProducer == nil {
		c.logger.WarnwCtx(ctx, "No DLQ configured, dropping record", "topic", m.Topic, "offset", m.Offset)
		return
	}

	reason := "max_retries_exceeded"
	if retry.IsFatal(cause) {
		reason = "fatal"
	}

	letter := NewDeadLetter(m, cause)
	if err := c.dlqProducer.Publish(ctx, c.cfg.DLQTopic, string(m.Key), letter); err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to send record to DLQ", "error", err, "topic", m.Topic)
		return
	}

	metrics.DLQMessagesTotal.WithLabelValues(c.serviceName, m.Topic, reason).Inc()
	c.logger.InfowCtx(ctx, "Record sent to DLQ",
		"source_topic", m.Topic,
		"dlq_topic", c.cfg.DLQTopic,
		"reason", cause.Error(),
	)
}

func NewDeadLetter(m kafka.Message, cause error) DeadLetter {
	record := json.RawMessage(m.Value)
	if !json.Valid(m.Value) {
		quoted, _ := json.Marshal(string(m.Value))
		record = quoted
	}
	return DeadLetter{
		Record:      record,
		Reason:      cause.Error(),
		Code:        errors.Code(cause),
		SourceTopic: m.Topic,
		Partition:   m.Partition,
		Offset:      m.Offset,
		FailedAt:    time.Now().UTC(),
	}
}
