package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// SentMessage is one message accepted by MockMessenger.
type SentMessage struct {
	SID  string
	To   string
	Body string
}

// MockMessenger accepts every message without sending it. Used when SMS
// credentials are absent and in tests.
type MockMessenger struct {
	mu     sync.Mutex
	sent   []SentMessage
	logger *slog.Logger

	// Err, when set, is returned by Send instead of accepting the message.
	Err error
}

func NewMockMessenger(logger *slog.Logger) *MockMessenger {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockMessenger{logger: logger.With("provider", "mock")}
}

func (m *MockMessenger) Send(ctx context.Context, to, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return "", m.Err
	}
	sid := fmt.Sprintf("SM%s", uuid.New().String()[:8])
	m.sent = append(m.sent, SentMessage{SID: sid, To: to, Body: body})
	m.logger.InfoContext(ctx, "mock sms accepted", "sid", sid, "to", to)
	return sid, nil
}

func (m *MockMessenger) Name() string {
	return "mock"
}

// Sent returns a copy of the accepted messages.
func (m *MockMessenger) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}
