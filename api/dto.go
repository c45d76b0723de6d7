/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Field names follow what
  the calling client already sends (userUid, paymentId), so they are not
  snake_case like the rest of the service's JSON.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

AMOUNTS:
  Requests decode amounts into decimal.Decimal (JSON number or string).
  Responses render them as JSON numbers.

VALIDATION:
  Validation is done in handlers and in the billing package, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/shopspring/decimal"
	"github.com/warp/voice-bridge/billing"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// TokenResponse is returned by GET /token.
type TokenResponse struct {
	Token    string `json:"token"`
	Identity string `json:"identity"`
}

// SendSMSRequest is the body of POST /send-sms.
type SendSMSRequest struct {
	To      string `json:"to"`
	Body    string `json:"body"`
	UserUID string `json:"userUid"`
}

// SendSMSResponse is returned for a sent and billed message.
type SendSMSResponse struct {
	Success bool    `json:"success"`
	SID     string  `json:"sid"`
	Balance float64 `json:"balance"`
}

// UpdateBalanceRequest is the body of POST /update-balance.
type UpdateBalanceRequest struct {
	UserUID   string           `json:"userUid"`
	Amount    *decimal.Decimal `json:"amount"`
	PaymentID string           `json:"paymentId,omitempty"`
}

// UpdateBalanceResponse is returned after a top-up.
type UpdateBalanceResponse struct {
	Success bool    `json:"success"`
	Balance float64 `json:"balance"`
}

// AccountDTO represents an account with its transaction list.
type AccountDTO struct {
	ID           string     `json:"id"`
	Balance      float64    `json:"balance"`
	Transactions []EntryDTO `json:"transactions"`
}

// EntryDTO represents one transaction entry.
type EntryDTO struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Amount    float64 `json:"amount"`
	Date      string  `json:"date"`
	PaymentID string  `json:"paymentId,omitempty"`
	SID       string  `json:"sid,omitempty"`
}

// DriftReportDTO is returned by POST /admin/reconcile.
type DriftReportDTO struct {
	CheckedAt string         `json:"checked_at"`
	Accounts  int            `json:"accounts"`
	Drifted   []AccountDrift `json:"drifted"`
}

// AccountDrift is one inconsistent account.
type AccountDrift struct {
	UserID    string  `json:"user_id"`
	Balance   float64 `json:"balance"`
	LedgerSum float64 `json:"ledger_sum"`
	Drift     float64 `json:"drift"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func toAccountDTO(acc *billing.Account) AccountDTO {
	dto := AccountDTO{
		ID:           acc.ID,
		Balance:      toFloat(acc.Balance),
		Transactions: make([]EntryDTO, len(acc.Transactions)),
	}
	for i, e := range acc.Transactions {
		dto.Transactions[i] = EntryDTO{
			ID:        e.ID,
			Type:      string(e.Type),
			Amount:    toFloat(e.Amount),
			Date:      e.DateString(),
			PaymentID: e.PaymentID,
			SID:       e.MessageSID,
		}
	}
	return dto
}

func toDriftReportDTO(r *billing.DriftReport) DriftReportDTO {
	dto := DriftReportDTO{
		CheckedAt: r.CheckedAt.Format(billing.DateLayout),
		Accounts:  r.Accounts,
		Drifted:   make([]AccountDrift, len(r.Drifted)),
	}
	for i, d := range r.Drifted {
		dto.Drifted[i] = AccountDrift{
			UserID:    d.UserID,
			Balance:   toFloat(d.Balance),
			LedgerSum: toFloat(d.LedgerSum),
			Drift:     toFloat(d.Drift),
		}
	}
	return dto
}
