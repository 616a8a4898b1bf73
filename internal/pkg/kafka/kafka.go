// Package kafka forwards measurement points to a Kafka topic, keyed by
// device tag so every device keeps its ordering within a partition.
package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/anicoll/irrigation-controller/internal/pkg/model"
)

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type service struct {
	w writer
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
}

func New(w writer) *service {
	return &service{w: w}
}

func (s *service) Write(ctx context.Context, points []model.Point) error {
	msgs := make([]kafka.Message, 0, len(points))
	for _, p := range points {
		b, err := json.Marshal(p)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{Key: []byte(p.Tags.ID), Value: b, Time: p.Time})
	}
	return s.w.WriteMessages(ctx, msgs...)
}

// RegisterDevice is a no-op: consumers learn devices from the points.
func (s *service) RegisterDevice(context.Context, model.Tags, string) error {
	return nil
}

func (s *service) Close() error {
	return s.w.Close()
}
