/*
errors.go - Centralized error types for the engine

PURPOSE:
  All domain error types in one place for consistency and discoverability.
  Callers match with errors.Is(); structured errors carry context and
  unwrap to their sentinel.

ERROR CATEGORIES:
  1. Amount/currency errors - Data-integrity violations, surfaced loudly
  2. Sequencing errors - Occurrence processing out of order; expected
     control flow for the scan loop (skip and retry next pass)
  3. Lookup errors - Referential misses surfaced as not-found

USAGE:
    if errors.Is(err, engine.ErrNotDue) {
        // expected: obligation simply isn't due yet
    }

SEE ALSO:
  - history.go: Finalization guards
  - reconciler.go: Currency and balance errors
  - lifecycle.go: NotDue / InvalidStatus control flow
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned for non-positive or malformed money values.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrNotDue is returned when processing is attempted before the next
	// occurrence date. Recoverable; the caller skips and retries next scan.
	ErrNotDue = errors.New("obligation not due")

	// ErrInvalidStatus is returned when an operation is attempted against an
	// obligation whose status does not permit it.
	ErrInvalidStatus = errors.New("invalid status for operation")

	// ErrDuplicateOccurrence guards against re-processing the same due date.
	ErrDuplicateOccurrence = errors.New("occurrence already recorded for date")

	// ErrAlreadyFinalized is returned when finalizing a non-Pending history
	// entry. Finalization is one-way; entries never revert to Pending.
	ErrAlreadyFinalized = errors.New("history entry already finalized")

	// ErrInvalidPartialAmount is returned when a partial payment is not
	// strictly between zero and the planned amount.
	ErrInvalidPartialAmount = errors.New("partial amount out of range")

	// ErrCurrencyMismatch is returned for cross-currency transfers or
	// payments in a currency other than the account's.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrInvalidTransfer is returned when a transfer is missing a destination
	// or targets its own origin account.
	ErrInvalidTransfer = errors.New("invalid transfer")

	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrObligationNotFound is returned when a referenced obligation doesn't exist.
	ErrObligationNotFound = errors.New("obligation not found")

	// ErrEntryNotFound is returned when a referenced history entry doesn't exist.
	ErrEntryNotFound = errors.New("history entry not found")

	// ErrTransactionNotFound is returned when a referenced transaction doesn't exist.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidAmountError reports a rejected money value with its source.
type InvalidAmountError struct {
	Amount Money
	Op     string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount for %s: %v", e.Op, e.Amount.Value)
}

func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }

// CurrencyMismatchError reports the two currencies that failed to match.
type CurrencyMismatchError struct {
	Have Currency
	Want Currency
	Op   string
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency mismatch in %s: have %s, want %s", e.Op, e.Have, e.Want)
}

func (e *CurrencyMismatchError) Unwrap() error { return ErrCurrencyMismatch }

// PartialAmountError reports an out-of-range partial payment.
type PartialAmountError struct {
	Actual  Money
	Planned Money
}

func (e *PartialAmountError) Error() string {
	return fmt.Sprintf("partial amount %v not in (0, %v)", e.Actual.Value, e.Planned.Value)
}

func (e *PartialAmountError) Unwrap() error { return ErrInvalidPartialAmount }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsSkippable returns true for errors the scan loop treats as expected
// control flow: log at debug, move on, retry on the next pass.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrNotDue) || errors.Is(err, ErrInvalidStatus)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidPartialAmount) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrInvalidTransfer) ||
		errors.Is(err, ErrDuplicateOccurrence) ||
		errors.Is(err, ErrAlreadyFinalized)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrObligationNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}
