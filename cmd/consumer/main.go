package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
)

const groupID = "laundry-events-consumer-group"

// Small ops tool: tails the lifecycle-event topic and prints what the
// engine announces after each committed mutation.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		brokers = "localhost:9092"
	}
	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "laundry.order-events"
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{brokers},
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        3 * time.Second,
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Printf("error closing reader: %v", err)
		}
	}()

	log.Printf("consumer connected to topic %q on %s", topic, brokers)

	for {
		select {
		case <-ctx.Done():
			log.Println("shutdown signal received, stopping consumer")
			return
		default:
			m, err := r.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("error reading message: %v", err)
				time.Sleep(5 * time.Second)
				continue
			}

			fmt.Printf("[%s] partition=%d offset=%d key=%s\n%s\n",
				m.Time.Format(time.RFC3339), m.Partition, m.Offset, string(m.Key), string(m.Value))
		}
	}
}
