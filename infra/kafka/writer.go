// Package kafka publishes outbox events to Kafka topics. Two clients are
// offered: a kafka-go Writer and a sarama SyncProducer.
package kafka

import (
	"context"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"scalex/infra/outbox"
)

// Writer publishes with segmentio/kafka-go. Messages are keyed by the
// event key so a pool's events stay on one partition.
type Writer struct {
	writer *kafka.Writer
}

func NewWriter(brokers []string, topic string) *Writer {
	return &Writer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (w *Writer) Name() string { return "kafka-go" }

func (w *Writer) Deliver(ctx context.Context, e outbox.Entry) error {
	return w.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(e.Key),
		Value:   e.Payload,
		Headers: headers(e),
	})
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func headers(e outbox.Entry) []kafka.Header {
	return []kafka.Header{
		{Key: "seq", Value: []byte(strconv.FormatUint(e.Seq, 10))},
		{Key: "index", Value: []byte(strconv.FormatUint(uint64(e.Index), 10))},
	}
}
