// Package events announces completed purchases to other services.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gamestore/internal/models"

	"github.com/segmentio/kafka-go"
)

type Publisher interface {
	PublishPurchases(ctx context.Context, purchases []models.Purchase) error
	Close() error
}

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type PurchaseEvent struct {
	Type         string    `json:"type"`
	PurchaseID   int64     `json:"purchase_id"`
	UserID       int64     `json:"user_id"`
	GameID       int64     `json:"game_id"`
	PurchaseDate time.Time `json:"purchase_date"`
}

const PurchaseCreated = "purchase.created"

type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// PublishPurchases writes one message per purchase in a single batch. The
// message key is derived from the purchase id.
func (p *KafkaPublisher) PublishPurchases(ctx context.Context, purchases []models.Purchase) error {
	if len(purchases) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(purchases))
	for _, purchase := range purchases {
		value, err := json.Marshal(PurchaseEvent{
			Type:         PurchaseCreated,
			PurchaseID:   purchase.ID,
			UserID:       purchase.UserID,
			GameID:       purchase.GameID,
			PurchaseDate: purchase.PurchaseDate,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal purchase event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(fmt.Sprintf("purchase-created-%d", purchase.ID)),
			Value: value,
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write purchase events: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishPurchases(context.Context, []models.Purchase) error { return nil }

func (NopPublisher) Close() error { return nil }
