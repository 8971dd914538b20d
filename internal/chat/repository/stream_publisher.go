package repository

import (
	"context"
	"encoding/json"
	"time"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NotificationEvent is handed to the marketplace notification pipeline when a
// recipient has no live connection.
type NotificationEvent struct {
	Event       string          `json:"event"`
	RecipientID string          `json:"recipient_id"`
	Message     *domain.Message `json:"message,omitempty"`
	At          time.Time       `json:"at"`
}

// StreamPublisher definition best-effort publication of chat events
type StreamPublisher interface {
	Publish(ctx context.Context, ev NotificationEvent) error
}

type kafkaStreamPublisher struct {
	writer *kafka.Writer
}

// NewStreamPublisher create a StreamPublisher on top of a kafka writer
func NewStreamPublisher(writer *kafka.Writer) StreamPublisher {
	return &kafkaStreamPublisher{writer: writer}
}

func (p *kafkaStreamPublisher) Publish(ctx context.Context, ev NotificationEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.RecipientID),
		Value: payload,
	})
	if err != nil {
		logger.Log.Warn("kafka publish failed",
			zap.String("event", ev.Event),
			zap.String("recipient", ev.RecipientID),
			zap.Error(err))
	}
	return err
}
