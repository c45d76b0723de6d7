/*
errors.go - Error taxonomy for the billing flows

ERROR CATEGORIES:
  ErrConfigurationMissing  credentials absent at start-up or request time   -> 500
  ErrNotFound              referenced user does not exist                   -> 404
  ErrInsufficientBalance   guard (or conditional write) denied the spend    -> 400
  ErrProviderError         the signalling provider call failed              -> 500
  ErrWriteFailed           the ledger store write failed                    -> 500
  ErrInvalidInput          malformed request                                -> 400

USAGE:
  Flows wrap these with context; callers test with errors.Is / errors.As.

SEE ALSO:
  - api/handlers.go: maps these onto HTTP statuses in one place
*/
package billing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrConfigurationMissing is returned when required credentials are not configured.
	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrNotFound is returned when no account matches the user id.
	ErrNotFound = errors.New("user not found")

	// ErrInsufficientBalance is returned when the balance does not cover a spend.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrProviderError is returned when the external provider rejects or fails a call.
	ErrProviderError = errors.New("provider error")

	// ErrWriteFailed is returned when the ledger store write fails.
	ErrWriteFailed = errors.New("ledger write failed")

	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAccountExists is returned by CreateAccount for a duplicate id.
	ErrAccountExists = errors.New("account already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a denied spend.
type InsufficientBalanceError struct {
	UserID    string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: user %s has %s, needs %s",
		e.UserID, e.Available.String(), e.Requested.String())
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// ProviderError wraps a failure of the signalling provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{ErrProviderError, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's input or balance.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidInput)
}

// IsNotFound returns true if the error indicates a missing account.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
