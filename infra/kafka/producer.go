package kafka

import (
	"context"
	"strconv"

	"github.com/IBM/sarama"

	"scalex/infra/outbox"
)

// Producer publishes with a sarama SyncProducer waiting for all replicas.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewProducer(brokers []string, topic string) (*Producer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewProducerFrom(p, topic), nil
}

// NewProducerFrom wraps an existing producer, such as a sarama mock.
func NewProducerFrom(p sarama.SyncProducer, topic string) *Producer {
	return &Producer{producer: p, topic: topic}
}

func (p *Producer) Name() string { return "sarama" }

func (p *Producer) Deliver(ctx context.Context, e outbox.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := p.producer.SendMessage(message(p.topic, e))
	return err
}

func (p *Producer) Close() error {
	return p.producer.Close()
}

func message(topic string, e outbox.Entry) *sarama.ProducerMessage {
	return &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(e.Key),
		Value: sarama.ByteEncoder(e.Payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("seq"), Value: []byte(strconv.FormatUint(e.Seq, 10))},
			{Key: []byte("index"), Value: []byte(strconv.FormatUint(uint64(e.Index), 10))},
		},
	}
}
