package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/warp/voice-bridge/billing"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends ledger events to one topic, keyed by user id so that a
// user's entries stay ordered within a partition.
type Publisher struct {
	writer messageWriter
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 5 * time.Second,
		},
	}
}

// EntryEvent is the wire form of billing.EntryAppended.
type EntryEvent struct {
	UserID     string `json:"userId"`
	EntryID    string `json:"entryId"`
	Type       string `json:"type"`
	Amount     string `json:"amount"`
	Date       string `json:"date"`
	PaymentID  string `json:"paymentId,omitempty"`
	MessageSID string `json:"sid,omitempty"`
	Balance    string `json:"balance"`
}

func newEntryEvent(e billing.EntryAppended) EntryEvent {
	return EntryEvent{
		UserID:     e.UserID,
		EntryID:    e.Entry.ID,
		Type:       string(e.Entry.Type),
		Amount:     e.Entry.Amount.String(),
		Date:       e.Entry.DateString(),
		PaymentID:  e.Entry.PaymentID,
		MessageSID: e.Entry.MessageSID,
		Balance:    e.Balance.String(),
	}
}

// Publish implements billing.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, event billing.EntryAppended) error {
	data, err := json.Marshal(newEntryEvent(event))
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.UserID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Entry.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish entry %s: %w", event.Entry.ID, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
