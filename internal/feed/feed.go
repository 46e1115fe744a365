package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"taskquest/internal/realtime"
)

const publishTimeout = 3 * time.Second

// Feed mirrors broadcast events to the rest of the application (the
// achievements/XP pipeline consumes them). Best-effort: a broker
// failure is logged and live broadcast is unaffected.
type Feed interface {
	Publish(msg *realtime.Message)
	Close() error
}

// Kafka writes events to a single topic keyed by room so per-room
// order survives partitioning.
type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			ErrorLogger: kafka.LoggerFunc(func(format string, args ...any) {
				slog.Error("Kafka feed write failed", "detail", fmt.Sprintf(format, args...))
			}),
		},
	}
}

func (k *Kafka) Publish(msg *realtime.Message) {
	value, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal feed event", "type", msg.Type, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.RoomID()),
		Value: value,
	})
	if err != nil {
		slog.Error("Failed to publish feed event", "type", msg.Type, "error", err)
	}
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Nop discards every event; used when no broker is configured and in
// tests.
type Nop struct{}

func (Nop) Publish(*realtime.Message) {}
func (Nop) Close() error              { return nil }
