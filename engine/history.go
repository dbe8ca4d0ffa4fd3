/*
history.go - Occurrence history ledger

PURPOSE:
  The append-once record of each scheduled occurrence's outcome. An entry
  is created Pending when an occurrence becomes due and transitions
  exactly once to a terminal status (Paid, Failed, Skipped, Partial). It
  never reverts to Pending and is never finalized twice.

INVARIANTS:
  1. status == Pending  <=>  processed date is nil
  2. status in {Failed, Skipped}  =>  actual amount == 0
  3. status == Partial  =>  0 < actual < planned
  4. One entry per obligation+scheduled date (DuplicateOccurrence guard)

CORRECTIONS:
  There is no edit path. A wrongly finalized occurrence is corrected by
  skipping the next one or by an explicit adjustment at the account level,
  keeping the history an honest audit trail.

SEE ALSO:
  - store.go: HistoryStore interface
  - lifecycle.go: Records and finalizes entries during ProcessDue
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// OCCURRENCE HISTORY ENTRY
// =============================================================================

type OccurrenceStatus string

const (
	OccurrencePending OccurrenceStatus = "pending"
	OccurrencePaid    OccurrenceStatus = "paid"
	OccurrenceFailed  OccurrenceStatus = "failed"
	OccurrenceSkipped OccurrenceStatus = "skipped"
	OccurrencePartial OccurrenceStatus = "partial"
)

// IsTerminal reports whether the status permits no further transition.
func (s OccurrenceStatus) IsTerminal() bool { return s != OccurrencePending }

// MovesMoney reports whether the status represents an actual payment,
// which is what makes a transaction link valid.
func (s OccurrenceStatus) MovesMoney() bool {
	return s == OccurrencePaid || s == OccurrencePartial
}

type OccurrenceHistoryEntry struct {
	ID           EntryID
	ObligationID ObligationID

	PlannedAmount Money
	ActualAmount  Money
	Status        OccurrenceStatus

	ScheduledDate Date
	ProcessedDate *Date

	TransactionID *TransactionID
	FailureReason string
	PaymentMethod string
	Notes         string
}

// =============================================================================
// HISTORY LEDGER - Sequencing rules over a HistoryStore
// =============================================================================

type HistoryLedger struct {
	Store HistoryStore
}

func NewHistoryLedger(store HistoryStore) *HistoryLedger {
	return &HistoryLedger{Store: store}
}

// RecordOccurrence creates the Pending entry for a due occurrence.
// Fails with ErrDuplicateOccurrence if any entry, pending or terminal,
// already exists for the same obligation and scheduled date.
func (l *HistoryLedger) RecordOccurrence(ctx context.Context, obligationID ObligationID, planned Money, scheduled Date) (*OccurrenceHistoryEntry, error) {
	if !planned.IsPositive() {
		return nil, &InvalidAmountError{Amount: planned, Op: "planned occurrence"}
	}

	existing, err := l.Store.FindEntry(ctx, obligationID, scheduled)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateOccurrence
	}

	entry := OccurrenceHistoryEntry{
		ObligationID:  obligationID,
		PlannedAmount: planned,
		ActualAmount:  planned.Zero(),
		Status:        OccurrencePending,
		ScheduledDate: scheduled,
	}
	id, err := l.Store.InsertEntry(ctx, entry)
	if err != nil {
		return nil, err
	}
	entry.ID = id
	return &entry, nil
}

// MarkPaid finalizes an entry as fully paid. A nil actual amount defaults
// to the planned amount.
func (l *HistoryLedger) MarkPaid(ctx context.Context, id EntryID, actual *Money, method string, asOf Date) (*OccurrenceHistoryEntry, error) {
	entry, err := l.pending(ctx, id)
	if err != nil {
		return nil, err
	}

	amount := entry.PlannedAmount
	if actual != nil {
		if !actual.IsPositive() {
			return nil, &InvalidAmountError{Amount: *actual, Op: "paid occurrence"}
		}
		amount = *actual
	}

	entry.Status = OccurrencePaid
	entry.ActualAmount = amount
	entry.PaymentMethod = method
	entry.ProcessedDate = &asOf
	return entry, l.Store.UpdateEntry(ctx, *entry)
}

// MarkFailed finalizes an entry as failed; no money moved.
func (l *HistoryLedger) MarkFailed(ctx context.Context, id EntryID, reason string, asOf Date) (*OccurrenceHistoryEntry, error) {
	return l.closeWithoutPayment(ctx, id, OccurrenceFailed, reason, asOf)
}

// MarkSkipped finalizes an entry as deliberately skipped; no money moved.
func (l *HistoryLedger) MarkSkipped(ctx context.Context, id EntryID, reason string, asOf Date) (*OccurrenceHistoryEntry, error) {
	return l.closeWithoutPayment(ctx, id, OccurrenceSkipped, reason, asOf)
}

func (l *HistoryLedger) closeWithoutPayment(ctx context.Context, id EntryID, status OccurrenceStatus, reason string, asOf Date) (*OccurrenceHistoryEntry, error) {
	entry, err := l.pending(ctx, id)
	if err != nil {
		return nil, err
	}

	entry.Status = status
	entry.ActualAmount = entry.PlannedAmount.Zero()
	entry.FailureReason = reason
	entry.ProcessedDate = &asOf
	return entry, l.Store.UpdateEntry(ctx, *entry)
}

// MarkPartial finalizes an entry with a payment strictly between zero and
// the planned amount.
func (l *HistoryLedger) MarkPartial(ctx context.Context, id EntryID, actual Money, reason string, asOf Date) (*OccurrenceHistoryEntry, error) {
	entry, err := l.pending(ctx, id)
	if err != nil {
		return nil, err
	}

	if !actual.IsPositive() || !actual.LessThan(entry.PlannedAmount) {
		return nil, &PartialAmountError{Actual: actual, Planned: entry.PlannedAmount}
	}

	entry.Status = OccurrencePartial
	entry.ActualAmount = actual
	entry.FailureReason = reason
	entry.ProcessedDate = &asOf
	return entry, l.Store.UpdateEntry(ctx, *entry)
}

// LinkTransaction attaches a posted transaction to a money-moving entry.
func (l *HistoryLedger) LinkTransaction(ctx context.Context, id EntryID, txID TransactionID) error {
	entry, err := l.Store.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return ErrEntryNotFound
	}
	if !entry.Status.MovesMoney() {
		return ErrInvalidStatus
	}
	entry.TransactionID = &txID
	return l.Store.UpdateEntry(ctx, *entry)
}

func (l *HistoryLedger) pending(ctx context.Context, id EntryID) (*OccurrenceHistoryEntry, error) {
	entry, err := l.Store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}
	if entry.Status.IsTerminal() {
		return nil, ErrAlreadyFinalized
	}
	return entry, nil
}

// =============================================================================
// AGGREGATE QUERIES - Read-only, no engine state mutation
// =============================================================================

// Overdue returns Pending entries whose scheduled date has passed.
func (l *HistoryLedger) Overdue(ctx context.Context, asOf Date) ([]OccurrenceHistoryEntry, error) {
	return l.Store.PendingBefore(ctx, asOf)
}

// MonthEntries returns entries scheduled in the given calendar month.
func (l *HistoryLedger) MonthEntries(ctx context.Context, year int, month time.Month) ([]OccurrenceHistoryEntry, error) {
	from := NewDate(year, month, 1)
	to := NewDate(year, month, DaysInMonth(year, month))
	return l.Store.EntriesInRange(ctx, from, to)
}

// HistoryStats aggregates a set of entries for display.
type HistoryStats struct {
	Count        int
	PaidCount    int
	FailedCount  int
	SkippedCount int
	PartialCount int
	PendingCount int
	PlannedTotal map[Currency]Money
	ActualTotal  map[Currency]Money
}

// Summarize derives aggregate stats from a slice of entries.
func Summarize(entries []OccurrenceHistoryEntry) HistoryStats {
	stats := HistoryStats{
		PlannedTotal: make(map[Currency]Money),
		ActualTotal:  make(map[Currency]Money),
	}
	for _, e := range entries {
		stats.Count++
		switch e.Status {
		case OccurrencePaid:
			stats.PaidCount++
		case OccurrenceFailed:
			stats.FailedCount++
		case OccurrenceSkipped:
			stats.SkippedCount++
		case OccurrencePartial:
			stats.PartialCount++
		case OccurrencePending:
			stats.PendingCount++
		}
		addTotal(stats.PlannedTotal, e.PlannedAmount)
		addTotal(stats.ActualTotal, e.ActualAmount)
	}
	return stats
}

func addTotal(totals map[Currency]Money, m Money) {
	if existing, ok := totals[m.Currency]; ok {
		totals[m.Currency] = existing.Add(m)
		return
	}
	totals[m.Currency] = m
}
