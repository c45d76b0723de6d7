/*
service.go - SMS-spend and top-up flows

SMS-SPEND FLOW:
  1. Guard.CheckAndReserve(user, SMSCost)
  2. Denied                      -> InsufficientBalanceError, nothing else happens
  3. Messenger.Send(to, body)
  4. Provider failure            -> ProviderError, NO debit (effect before charge)
  5. Ledger.Debit(-SMSCost, SMS entry with the provider sid)
  6. Return the provider sid

  If step 5 fails after step 3 succeeded the message is sent but not billed.
  This is logged as "charge without debit" and returned as ErrWriteFailed;
  there is no compensation.

TOP-UP FLOW:
  Ledger.ApplyDelta(+amount, TOPUP entry). No guard, no lock. The amount is
  trusted as given: there is no payment confirmation behind it. A missing
  account is a failed write (ErrWriteFailed wrapping ErrNotFound).
*/
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultSMSCost is the tariff charged per message.
var DefaultSMSCost = decimal.RequireFromString("0.05")

// Messenger sends one SMS and returns the provider's message id.
type Messenger interface {
	Send(ctx context.Context, to, body string) (string, error)
	Name() string
}

// Service composes the guard, the ledger and the messenger.
type Service struct {
	Ledger    *Ledger
	Guard     *Guard
	Messenger Messenger
	SMSCost   decimal.Decimal

	logger *slog.Logger
}

// NewService wires the flows. A zero smsCost falls back to DefaultSMSCost.
func NewService(ledger *Ledger, guard *Guard, messenger Messenger, smsCost decimal.Decimal, logger *slog.Logger) *Service {
	if smsCost.IsZero() {
		smsCost = DefaultSMSCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Ledger:    ledger,
		Guard:     guard,
		Messenger: messenger,
		SMSCost:   smsCost,
		logger:    logger.With("component", "billing"),
	}
}

// SMSRequest is one message to send on behalf of a user.
type SMSRequest struct {
	UserID string
	To     string
	Body   string
}

// SMSResult is returned for a sent and billed message.
type SMSResult struct {
	SID     string
	Cost    decimal.Decimal
	Balance decimal.Decimal
}

// SendSMS runs the SMS-spend flow.
func (s *Service) SendSMS(ctx context.Context, req SMSRequest) (*SMSResult, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, invalidInput("userUid is required")
	}
	if strings.TrimSpace(req.To) == "" {
		return nil, invalidInput("to is required")
	}

	reservation, err := s.Guard.CheckAndReserve(ctx, req.UserID, s.SMSCost)
	if err != nil {
		smsOutcomes.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}
	defer reservation.Release()

	if !reservation.Allowed {
		smsOutcomes.WithLabelValues("insufficient_balance").Inc()
		s.logger.InfoContext(ctx, "sms denied by guard",
			"user_id", req.UserID, "balance", reservation.CurrentBalance.String(), "cost", s.SMSCost.String())
		return nil, &InsufficientBalanceError{
			UserID:    req.UserID,
			Available: reservation.CurrentBalance,
			Requested: s.SMSCost,
		}
	}

	sid, err := s.Messenger.Send(ctx, req.To, req.Body)
	if err != nil {
		smsOutcomes.WithLabelValues("provider_error").Inc()
		s.logger.WarnContext(ctx, "sms provider failed", "user_id", req.UserID, "provider", s.Messenger.Name(), "error", err)
		return nil, &ProviderError{Provider: s.Messenger.Name(), Err: err}
	}

	balance, err := s.Ledger.Debit(ctx, reservation, NewSMSEntry(s.SMSCost, sid))
	if err != nil {
		smsOutcomes.WithLabelValues("charge_without_debit").Inc()
		s.logger.ErrorContext(ctx, "charge without debit: message sent but not billed",
			"user_id", req.UserID, "sid", sid, "cost", s.SMSCost.String(), "error", err)
		if errors.Is(err, ErrWriteFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	smsOutcomes.WithLabelValues("sent").Inc()
	return &SMSResult{SID: sid, Cost: s.SMSCost, Balance: balance}, nil
}

// TopUpRequest credits a user. PaymentID may be empty.
type TopUpRequest struct {
	UserID    string
	Amount    decimal.Decimal
	PaymentID string
}

// TopUp runs the top-up flow and returns the new balance.
func (s *Service) TopUp(ctx context.Context, req TopUpRequest) (decimal.Decimal, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return decimal.Zero, invalidInput("userUid is required")
	}
	entry := NewTopUpEntry(req.Amount, req.PaymentID)
	balance, err := s.Ledger.ApplyDelta(ctx, req.UserID, req.Amount, entry)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// the record is missing at write time
			return decimal.Zero, fmt.Errorf("%w: %w", ErrWriteFailed, err)
		}
		return decimal.Zero, err
	}
	s.logger.InfoContext(ctx, "balance topped up",
		"user_id", req.UserID, "amount", req.Amount.String(), "payment_id", entry.PaymentID)
	return balance, nil
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
