/*
Package engine provides the core scheduled-payment engine.

PURPOSE:
  This package contains the domain types and algorithms for scheduled
  obligations: recurrence date arithmetic, debt amortization state, the
  append-once occurrence history, and the ledger balance reconciler. The
  surrounding CRUD layer (HTTP handlers, persistence wiring) calls into
  this package and renders its results; it contains no business rules of
  its own.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: An exact decimal amount with a currency
  - ScheduledObligation: A recurring, debt, or one-time payment intent
  - RecurrencePlan: How and how often an obligation recurs
  - LedgerAccount / Transaction: The balance side of the system

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Explicit time: Every operation takes asOf/now as a parameter;
     the engine never reads a system clock
  3. Closed vocabularies: statuses, kinds and frequencies are typed
     constants with exhaustive switches, never open-ended strings
  4. Typed errors: domain-rule violations are sentinel errors (errors.go)

SEE ALSO:
  - recurrence.go: Next-occurrence date arithmetic
  - debt.go: Amortization state machine
  - history.go: Occurrence history ledger
  - lifecycle.go: Obligation status transitions and ProcessDue
  - reconciler.go: Account balance apply/revert
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Exact decimal amount with a currency
// =============================================================================

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyBRL Currency = "BRL"
)

type Money struct {
	Value    decimal.Decimal
	Currency Currency
}

func NewMoney(value float64, currency Currency) Money {
	return Money{Value: decimal.NewFromFloat(value), Currency: currency}
}

func NewMoneyFromInt(value int, currency Currency) Money {
	return Money{Value: decimal.NewFromInt(int64(value)), Currency: currency}
}

// MustParseDecimal parses a decimal literal, panicking on malformed
// input. For fixtures and constants; stored values go through
// error-returning parses.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("malformed decimal literal: " + s)
	}
	return d
}

func (m Money) Zero() Money                 { return Money{Value: decimal.Zero, Currency: m.Currency} }
func (m Money) Add(b Money) Money           { return Money{Value: m.Value.Add(b.Value), Currency: m.Currency} }
func (m Money) Sub(b Money) Money           { return Money{Value: m.Value.Sub(b.Value), Currency: m.Currency} }
func (m Money) Mul(s decimal.Decimal) Money { return Money{Value: m.Value.Mul(s), Currency: m.Currency} }
func (m Money) Neg() Money                  { return Money{Value: m.Value.Neg(), Currency: m.Currency} }
func (m Money) IsNegative() bool            { return m.Value.IsNegative() }
func (m Money) IsZero() bool                { return m.Value.IsZero() }
func (m Money) IsPositive() bool            { return m.Value.IsPositive() }
func (m Money) GreaterThan(b Money) bool    { return m.Value.GreaterThan(b.Value) }
func (m Money) GreaterThanOrEqual(b Money) bool { return m.Value.GreaterThanOrEqual(b.Value) }
func (m Money) LessThan(b Money) bool       { return m.Value.LessThan(b.Value) }
func (m Money) Equal(b Money) bool          { return m.Currency == b.Currency && m.Value.Equal(b.Value) }
func (m Money) SameCurrency(b Money) bool   { return m.Currency == b.Currency }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ObligationID string
type AccountID string
type CategoryID string

// EntryID and TransactionID are assigned by the store on insert.
type EntryID int64
type TransactionID int64

// =============================================================================
// SCHEDULED OBLIGATION - A recurring, debt, or one-time payment intent
// =============================================================================

type ObligationKind string

const (
	KindRecurring ObligationKind = "recurring" // Open-ended subscription-style payment
	KindDebt      ObligationKind = "debt"      // Installment plan against a DebtState
	KindOneTime   ObligationKind = "one_time"  // Single future payment
)

type ObligationStatus string

const (
	StatusActive    ObligationStatus = "active"
	StatusPaused    ObligationStatus = "paused"
	StatusCompleted ObligationStatus = "completed"
	StatusCancelled ObligationStatus = "cancelled"
	StatusOverdue   ObligationStatus = "overdue" // Detected, never persisted as a trigger
)

type ScheduledObligation struct {
	ID          ObligationID
	Kind        ObligationKind
	Status      ObligationStatus
	Description string
	Amount      Money
	StartDate   Date

	// NextOccurrence is nil once the obligation is Completed.
	NextOccurrence *Date

	// EndDate must be nil for Recurring obligations (open-ended).
	EndDate *Date

	AccountID    AccountID
	CategoryID   *CategoryID
	Metadata     map[string]string
	DisplayOrder int
}

// Validate enforces the structural invariants of an obligation.
func (o ScheduledObligation) Validate() error {
	if !o.Amount.IsPositive() {
		return &InvalidAmountError{Amount: o.Amount, Op: "obligation amount"}
	}
	if o.Kind == KindRecurring && o.EndDate != nil {
		return ErrInvalidStatus
	}
	if o.Status == StatusCompleted && o.NextOccurrence != nil {
		return ErrInvalidStatus
	}
	return nil
}

// IsTerminal reports whether no further automatic transition can occur.
func (s ObligationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// =============================================================================
// RECURRENCE PLAN - 1:1 with a Recurring or Debt obligation
// =============================================================================

type Frequency string

const (
	// FrequencyNone marks a plan with no recurrence (one-time obligations).
	FrequencyNone      Frequency = ""
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiweekly  Frequency = "biweekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

type RecurrencePlan struct {
	ObligationID ObligationID
	Frequency    Frequency
	Interval     int

	// DayOfMonth anchors monthly/quarterly/yearly occurrences. The safe
	// range is 1-28; higher anchors are clamped to the resulting month.
	DayOfMonth *int

	// DayOfWeek anchors weekly occurrences (0=Sunday .. 6=Saturday).
	DayOfWeek *int

	// MaxOccurrences caps recurrence; nil means unbounded.
	MaxOccurrences   *int
	OccurrencesCount int

	AutoProcess       bool
	CreateTransaction bool
	NotifyDaysBefore  int
}

// CapReached reports whether the max-occurrence limit stops further recurrence.
func (p RecurrencePlan) CapReached() bool {
	return p.MaxOccurrences != nil && p.OccurrencesCount >= *p.MaxOccurrences
}

// =============================================================================
// LEDGER ACCOUNT - A money container with a single currency
// =============================================================================

// LedgerAccount holds a balance in exactly one currency. Balance may go
// negative (credit-type accounts); it is mutated only by the Reconciler.
type LedgerAccount struct {
	ID      AccountID
	Name    string
	Balance Money
}

func (a LedgerAccount) Currency() Currency { return a.Balance.Currency }

// =============================================================================
// TRANSACTION - A single posted financial movement
// =============================================================================

type TransactionKind string

const (
	TxIncome   TransactionKind = "income"
	TxExpense  TransactionKind = "expense"
	TxTransfer TransactionKind = "transfer"
)

type Transaction struct {
	ID     TransactionID
	Kind   TransactionKind
	Amount Money

	AccountID AccountID

	// DestinationID is required iff Kind is Transfer, must differ from
	// AccountID and share its currency.
	DestinationID *AccountID

	Date        Date
	Description string
}

func (t Transaction) Validate() error {
	if !t.Amount.IsPositive() {
		return &InvalidAmountError{Amount: t.Amount, Op: "transaction amount"}
	}
	switch t.Kind {
	case TxIncome, TxExpense:
		if t.DestinationID != nil {
			return ErrInvalidTransfer
		}
	case TxTransfer:
		if t.DestinationID == nil || *t.DestinationID == t.AccountID {
			return ErrInvalidTransfer
		}
	default:
		return ErrInvalidTransfer
	}
	return nil
}
