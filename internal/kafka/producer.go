package kafka

import (
	"context"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

type Producer interface {
	SendMessage(ctx context.Context, topic string, key []byte, value []byte) error
	Close() error
}

type KafkaProducer struct {
	writer *kafkago.Writer
}

func NewKafkaProducer(brokers []string) Producer {
	return &KafkaProducer{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *KafkaProducer) SendMessage(ctx context.Context, topic string, key []byte, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafkago.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to write message to %s: %w", topic, err)
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// ConsoleProducer stands in when no broker is configured, for local runs.
type ConsoleProducer struct{}

func NewConsoleProducer() Producer {
	return &ConsoleProducer{}
}

func (p *ConsoleProducer) SendMessage(ctx context.Context, topic string, key []byte, value []byte) error {
	select {
	case <-time.After(50 * time.Millisecond):
		fmt.Printf("\n--- NOTIFICATION (CONSOLE) ---\n")
		fmt.Printf("Topic: %s\n", topic)
		fmt.Printf("Key: %s\n", string(key))
		fmt.Printf("Value: %s\n", string(value))
		fmt.Printf("--- END NOTIFICATION ---\n")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *ConsoleProducer) Close() error {
	return nil
}
