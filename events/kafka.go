package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes JSON events to Kafka.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher checks that at least one broker answers before returning
// a writer, so an unreachable cluster is reported at startup rather than on
// the first event.
func NewKafkaPublisher(ctx context.Context, brokers []string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var lastErr error
	reachable := false
	for _, broker := range brokers {
		conn, err := kafka.DialContext(dialCtx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		conn.Close()
		reachable = true
		break
	}
	if !reachable {
		return nil, fmt.Errorf("error initializing kafka producer: %w", lastErr)
	}

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	}, nil
}

// SendEvent writes payload synchronously, the equivalent of send then flush.
func (p *KafkaPublisher) SendEvent(ctx context.Context, topic string, payload map[string]interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Value: value})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
