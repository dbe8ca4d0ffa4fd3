/*
store.go - Persistence interfaces for the engine

PURPOSE:
  Defines the boundary between domain logic and the backing store. The
  engine never touches a database directly; it works against these
  interfaces so SQLite, PostgreSQL, or in-memory storage are
  interchangeable.

KEY INTERFACES:
  ObligationStore: Obligations with their recurrence plan and debt state
  HistoryStore:    Append-once occurrence history entries
  LedgerStore:     Accounts and posted transactions, with WithTx for the
                   reconciler's atomic apply/revert boundary

ATOMICITY:
  The reconciler mutates balances and transaction records inside a single
  WithTx call: a failure after balance mutation but before persistence
  cannot occur, because both happen in the same store transaction.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite store
  - engine/store: In-memory store for tests and dev
*/
package engine

import "context"

// =============================================================================
// OBLIGATION STORE
// =============================================================================

// ObligationStore persists obligations with their 1:1 plan and debt state.
// DeleteObligation cascades to the plan, debt state, and history entries.
type ObligationStore interface {
	SaveObligation(ctx context.Context, o ScheduledObligation) error
	GetObligation(ctx context.Context, id ObligationID) (*ScheduledObligation, error)
	ListObligations(ctx context.Context) ([]ScheduledObligation, error)
	DeleteObligation(ctx context.Context, id ObligationID) error

	SavePlan(ctx context.Context, p RecurrencePlan) error
	GetPlan(ctx context.Context, id ObligationID) (*RecurrencePlan, error)

	SaveDebt(ctx context.Context, d DebtState) error
	GetDebt(ctx context.Context, id ObligationID) (*DebtState, error)

	// DueObligations returns obligations in a processable status whose
	// next occurrence is on or before asOf, ordered by next occurrence.
	DueObligations(ctx context.Context, asOf Date) ([]ScheduledObligation, error)
}

// =============================================================================
// HISTORY STORE
// =============================================================================

// HistoryStore persists occurrence history entries. Entries are inserted
// once as Pending and updated exactly once to a terminal status; the
// HistoryLedger enforces that sequencing.
type HistoryStore interface {
	// InsertEntry persists a new entry and returns its assigned ID.
	InsertEntry(ctx context.Context, e OccurrenceHistoryEntry) (EntryID, error)
	GetEntry(ctx context.Context, id EntryID) (*OccurrenceHistoryEntry, error)
	UpdateEntry(ctx context.Context, e OccurrenceHistoryEntry) error

	// FindEntry returns the entry for obligation+scheduled date, nil if none.
	FindEntry(ctx context.Context, obligationID ObligationID, scheduled Date) (*OccurrenceHistoryEntry, error)

	// EntriesByObligation returns entries ordered by scheduled date.
	EntriesByObligation(ctx context.Context, obligationID ObligationID) ([]OccurrenceHistoryEntry, error)

	// PendingBefore returns Pending entries scheduled strictly before asOf.
	PendingBefore(ctx context.Context, asOf Date) ([]OccurrenceHistoryEntry, error)

	// EntriesInRange returns entries with scheduled date in [from, to],
	// ordered by scheduled date.
	EntriesInRange(ctx context.Context, from, to Date) ([]OccurrenceHistoryEntry, error)
}

// =============================================================================
// LEDGER STORE
// =============================================================================

// LedgerStore persists accounts and posted transactions.
type LedgerStore interface {
	SaveAccount(ctx context.Context, a LedgerAccount) error
	GetAccount(ctx context.Context, id AccountID) (*LedgerAccount, error)
	ListAccounts(ctx context.Context) ([]LedgerAccount, error)

	InsertTransaction(ctx context.Context, t Transaction) (TransactionID, error)
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)
	ListTransactions(ctx context.Context, accountID AccountID) ([]Transaction, error)

	// UpdateTransaction replaces the record under its existing ID.
	UpdateTransaction(ctx context.Context, t Transaction) error
	DeleteTransaction(ctx context.Context, id TransactionID) error
}

// TxLedgerStore extends LedgerStore with an atomic boundary.
type TxLedgerStore interface {
	LedgerStore

	// WithTx executes fn within one store transaction. If fn returns an
	// error the transaction is rolled back, leaving balances untouched.
	WithTx(ctx context.Context, fn func(LedgerStore) error) error
}

// Store aggregates everything a full deployment persists.
type Store interface {
	ObligationStore
	HistoryStore
	TxLedgerStore
}
