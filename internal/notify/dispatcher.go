// Package notify dispatches limit and resolution notifications. Delivery is
// fire-and-forget: failures are logged, never retried by the engine.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/riskd/risk-engine/pkg/utils/logger"
)

// Dispatcher delivers a payload to a notification channel.
type Dispatcher interface {
	Notify(ctx context.Context, channel string, payload interface{})
}

// KafkaDispatcher publishes notifications to kafka, one topic per channel
// under a common prefix.
type KafkaDispatcher struct {
	writer *kafka.Writer
	prefix string
	log    *logger.Logger
}

// NewKafkaDispatcher creates a dispatcher publishing to the given brokers.
func NewKafkaDispatcher(brokers []string, topicPrefix string, writeTimeout time.Duration) *KafkaDispatcher {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &KafkaDispatcher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			WriteTimeout: writeTimeout,
			// Notification topics are created out of band; auto-creation
			// would hide misconfiguration.
			AllowAutoTopicCreation: false,
		},
		prefix: topicPrefix,
		log:    logger.GetLogger("notify.kafka"),
	}
}

// Notify implements Dispatcher.
func (d *KafkaDispatcher) Notify(ctx context.Context, channel string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		d.log.Errorf("failed to marshal notification for channel %s: %v", channel, err)
		return
	}

	err = d.writer.WriteMessages(ctx, kafka.Message{
		Topic: d.prefix + "." + channel,
		Value: data,
	})
	if err != nil {
		d.log.Errorf("failed to publish notification to channel %s: %v", channel, err)
	}
}

// Close flushes and closes the underlying writer.
func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}

// LogDispatcher writes notifications to the log only, used when kafka is not
// configured and in tests.
type LogDispatcher struct {
	log *logger.Logger
}

// NewLogDispatcher creates a log-only dispatcher.
func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{log: logger.GetLogger("notify.log")}
}

// Notify implements Dispatcher.
func (d *LogDispatcher) Notify(_ context.Context, channel string, payload interface{}) {
	data, _ := json.Marshal(payload)
	d.log.Infof("notification channel=%s payload=%s", channel, data)
}
