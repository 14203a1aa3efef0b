package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/config"
	"courier/internal/logger"
	"courier/pkg/errors"
	"courier/pkg/models"
)

func testConsumer() *KafkaConsumer {
	return NewKafkaConsumer(config.KafkaConfig{
		Brokers: []string{"localhost:9092"},
		GroupID: "test",
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			Multiplier:      2,
		},
	}, logger.NopLogger())
}

func TestProcessWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	c := testConsumer()
	calls := 0
	handler := func(context.Context, models.ChangeRecord) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient %d", calls)
		}
		return nil
	}

	err := c.processWithRetry(context.Background(), models.ChangeRecord{ID: "r1"}, handler, "changes")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestProcessWithRetry_FatalErrorStopsImmediately(t *testing.T) {
	c := testConsumer()
	calls := 0
	handler := func(context.Context, models.ChangeRecord) error {
		calls++
		return errors.ErrMalformedObject.WithCause(fmt.Errorf("missing guid"))
	}

	err := c.processWithRetry(context.Background(), models.ChangeRecord{ID: "r1"}, handler, "changes")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.IsMalformed(err))
}

func TestProcessWithRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	c := testConsumer()
	calls := 0
	handler := func(context.Context, models.ChangeRecord) error {
		calls++
		return fmt.Errorf("still down")
	}

	err := c.processWithRetry(context.Background(), models.ChangeRecord{ID: "r1"}, handler, "changes")
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestProcessWithRetry_RecoversPanic(t *testing.T) {
	c := testConsumer()
	handler := func(context.Context, models.ChangeRecord) error {
		panic("boom")
	}

	assert.NotPanics(t, func() {
		err := c.processWithRetry(context.Background(), models.ChangeRecord{ID: "r1"}, handler, "changes")
		assert.Error(t, err)
	})
}

func TestNewDeadLetter(t *testing.T) {
	t.Run("keeps valid json verbatim", func(t *testing.T) {
		m := kafka.Message{Topic: "changes", Partition: 2, Offset: 41, Value: []byte(`{"id":"r1"}`)}
		letter := NewDeadLetter(m, errors.ErrValidation.WithCause(fmt.Errorf("bad category")))

		assert.JSONEq(t, `{"id":"r1"}`, string(letter.Record))
		assert.Equal(t, "changes", letter.SourceTopic)
		assert.Equal(t, 2, letter.Partition)
		assert.Equal(t, int64(41), letter.Offset)
		assert.Equal(t, "VALIDATION_ERROR", letter.Code)
		assert.Contains(t, letter.Reason, "bad category")
		assert.False(t, letter.FailedAt.IsZero())
	})

	t.Run("quotes invalid json", func(t *testing.T) {
		m := kafka.Message{Topic: "changes", Value: []byte("not json")}
		letter := NewDeadLetter(m, fmt.Errorf("decode"))

		body, err := json.Marshal(letter)
		require.NoError(t, err)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &decoded))
		assert.Equal(t, "not json", decoded["record"])
		assert.Empty(t, letter.Code)
	})
}

func TestFactory(t *testing.T) {
	assert.False(t, Enabled(config.BrokerConfig{}))
	assert.True(t, Enabled(config.BrokerConfig{Type: "kafka"}))

	_, err := NewProducer(config.BrokerConfig{Type: "nats"}, logger.NopLogger())
	assert.Error(t, err)
	_, err = NewConsumer(config.BrokerConfig{Type: "nats"}, logger.NopLogger())
	assert.Error(t, err)

	p, err := NewProducer(config.BrokerConfig{Type: "kafka", Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}}}, logger.NopLogger())
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestConsumer_DLQProducerOnlyWhenTopicSet(t *testing.T) {
	assert.Nil(t, testConsumer().dlqProducer)

	c := NewKafkaConsumer(config.KafkaConfig{Brokers: []string{"localhost:9092"}, DLQTopic: "changes.dlq"}, logger.NopLogger())
	assert.NotNil(t, c.dlqProducer)
	assert.NoError(t, c.Close())
}
