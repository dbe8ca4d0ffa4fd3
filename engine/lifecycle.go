/*
lifecycle.go - Obligation lifecycle controller

PURPOSE:
  Orchestrates an obligation's overall status and drives occurrence
  processing. ProcessDue settles the current due occurrence as paid;
  AcknowledgeDue records it as Pending for manual handling; FinalizeEntry
  settles a pending entry with an explicit outcome (paid, failed,
  skipped, partial). All three converge on the same settlement sequence:
  post the ledger transaction, apply amortization for debts, finalize
  the history entry, advance the recurrence, and decide completion.

STATE MACHINE:
  Active <-> Paused       explicit, reversible
  Active  -> Overdue      detected (next occurrence in the past), never stored
  Active/Overdue -> Completed   debt fully paid, one-time processed,
                                or max-occurrence cap reached
  *       -> Cancelled    explicit, terminal

FAILURE SEMANTICS:
  Processing an obligation that isn't due, or isn't in a processable
  status, returns ErrNotDue / ErrInvalidStatus. These are expected control
  flow for the external scan loop: skip, retry next pass, never alarm.
  A failed transaction posting leaves the occurrence entry Pending and
  the schedule unadvanced, so the next pass picks it back up; nothing in
  a failed pass claims money moved.

SEE ALSO:
  - recurrence.go: Next occurrence computation
  - history.go: Occurrence records
  - reconciler.go: Materialized transactions
*/
package engine

import (
	"context"
)

// =============================================================================
// LIFECYCLE CONTROLLER
// =============================================================================

type Lifecycle struct {
	Obligations ObligationStore
	History     *HistoryLedger
	Reconciler  *Reconciler
}

func NewLifecycle(obligations ObligationStore, history *HistoryLedger, reconciler *Reconciler) *Lifecycle {
	return &Lifecycle{Obligations: obligations, History: history, Reconciler: reconciler}
}

// ProcessResult reports what one settlement pass did.
type ProcessResult struct {
	Entry       *OccurrenceHistoryEntry
	Transaction *Transaction
	Completed   bool
	Next        *Date
}

// Settlement describes how one occurrence is finalized. Actual overrides
// the planned amount for Paid and is required for Partial; Failed and
// Skipped move no money.
type Settlement struct {
	Outcome OccurrenceStatus
	Actual  *Money
	Method  string
	Reason  string
}

// validate rejects malformed settlements before anything is written.
func (st Settlement) validate(entry OccurrenceHistoryEntry) error {
	switch st.Outcome {
	case OccurrencePaid:
		if st.Actual != nil && !st.Actual.IsPositive() {
			return &InvalidAmountError{Amount: *st.Actual, Op: "paid occurrence"}
		}
	case OccurrencePartial:
		if st.Actual == nil {
			return ErrInvalidPartialAmount
		}
		if !st.Actual.IsPositive() || !st.Actual.LessThan(entry.PlannedAmount) {
			return &PartialAmountError{Actual: *st.Actual, Planned: entry.PlannedAmount}
		}
	case OccurrenceFailed, OccurrenceSkipped:
	default:
		return ErrInvalidStatus
	}
	return nil
}

// EffectiveStatus derives the display status for an obligation at asOf.
// Overdue is a detected condition, re-evaluated on every pass, not a
// stored transition: an Active obligation whose next occurrence has
// passed without being processed reads as Overdue.
func EffectiveStatus(o ScheduledObligation, asOf Date) ObligationStatus {
	if o.Status == StatusActive && o.NextOccurrence != nil && o.NextOccurrence.Before(asOf) {
		return StatusOverdue
	}
	return o.Status
}

// ProcessDue settles the obligation's next occurrence as paid, as of the
// given date. An entry a previous scan left Pending for the same date is
// adopted rather than re-recorded.
func (lc *Lifecycle) ProcessDue(ctx context.Context, id ObligationID, asOf Date) (*ProcessResult, error) {
	obligation, err := lc.dueObligation(ctx, id, asOf)
	if err != nil {
		return nil, err
	}
	scheduled := *obligation.NextOccurrence

	plan, err := lc.plan(ctx, id)
	if err != nil {
		return nil, err
	}

	// Resolve the target account before the first write. A bad account
	// reference must fail the whole pass cleanly, not strand a finalized
	// entry with no transaction behind it.
	if plan.CreateTransaction && lc.Reconciler != nil {
		if err := lc.Reconciler.ResolveAccount(ctx, obligation.AccountID, obligation.Amount); err != nil {
			return nil, err
		}
	}

	entry, err := lc.History.Store.FindEntry(ctx, id, scheduled)
	if err != nil {
		return nil, err
	}
	switch {
	case entry == nil:
		entry, err = lc.History.RecordOccurrence(ctx, id, obligation.Amount, scheduled)
		if err != nil {
			return nil, err
		}
	case entry.Status.IsTerminal():
		return nil, ErrDuplicateOccurrence
	}

	return lc.settle(ctx, obligation, plan, entry, Settlement{Outcome: OccurrencePaid}, asOf)
}

// AcknowledgeDue records the Pending entry for the obligation's due
// occurrence without settling it, so it can be finalized manually through
// FinalizeEntry. Idempotent while the entry stays Pending.
func (lc *Lifecycle) AcknowledgeDue(ctx context.Context, id ObligationID, asOf Date) (*OccurrenceHistoryEntry, error) {
	obligation, err := lc.dueObligation(ctx, id, asOf)
	if err != nil {
		return nil, err
	}
	scheduled := *obligation.NextOccurrence

	entry, err := lc.History.Store.FindEntry(ctx, id, scheduled)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		if entry.Status.IsTerminal() {
			return nil, ErrDuplicateOccurrence
		}
		return entry, nil
	}
	return lc.History.RecordOccurrence(ctx, id, obligation.Amount, scheduled)
}

// FinalizeEntry settles a Pending history entry with an explicit outcome.
// When the entry is the obligation's current due occurrence, the schedule
// advances exactly as ProcessDue would; an older backlog entry is
// finalized in place without touching the schedule.
func (lc *Lifecycle) FinalizeEntry(ctx context.Context, id EntryID, st Settlement, asOf Date) (*ProcessResult, error) {
	entry, err := lc.History.Store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}
	if entry.Status.IsTerminal() {
		return nil, ErrAlreadyFinalized
	}
	if err := st.validate(*entry); err != nil {
		return nil, err
	}

	obligation, err := lc.Obligations.GetObligation(ctx, entry.ObligationID)
	if err != nil {
		return nil, err
	}
	if obligation == nil {
		return nil, ErrObligationNotFound
	}

	processable := obligation.Status == StatusActive || obligation.Status == StatusOverdue
	current := obligation.NextOccurrence != nil && obligation.NextOccurrence.Equal(entry.ScheduledDate)
	if !processable || !current {
		entry, err = lc.finalize(ctx, entry.ID, st, asOf)
		if err != nil {
			return nil, err
		}
		return &ProcessResult{Entry: entry}, nil
	}

	plan, err := lc.plan(ctx, obligation.ID)
	if err != nil {
		return nil, err
	}
	return lc.settle(ctx, obligation, plan, entry, st, asOf)
}

// settle runs the full settlement sequence for the obligation's current
// occurrence. The transaction is posted before the entry is finalized:
// a posting failure leaves the entry Pending and the schedule
// unadvanced, so a retry picks the occurrence back up.
func (lc *Lifecycle) settle(ctx context.Context, obligation *ScheduledObligation, plan *RecurrencePlan, entry *OccurrenceHistoryEntry, st Settlement, asOf Date) (*ProcessResult, error) {
	if err := st.validate(*entry); err != nil {
		return nil, err
	}
	scheduled := entry.ScheduledDate
	result := &ProcessResult{}

	amount := obligation.Amount
	if st.Actual != nil {
		amount = *st.Actual
	}

	var tx *Transaction
	if st.Outcome.MovesMoney() && plan.CreateTransaction && lc.Reconciler != nil {
		var err error
		tx, err = lc.Reconciler.Create(ctx, Transaction{
			Kind:        TxExpense,
			Amount:      amount,
			AccountID:   obligation.AccountID,
			Date:        asOf,
			Description: obligation.Description,
		})
		if err != nil {
			return nil, err
		}
		result.Transaction = tx
	}

	var debt *DebtState
	if st.Outcome.MovesMoney() && obligation.Kind == KindDebt {
		var err error
		debt, err = lc.Obligations.GetDebt(ctx, obligation.ID)
		if err != nil {
			return nil, err
		}
		if debt != nil {
			if err := debt.ApplyPayment(amount); err != nil {
				return nil, err
			}
			debt.RecomputeOverdueDays(asOf)
			if err := lc.Obligations.SaveDebt(ctx, *debt); err != nil {
				return nil, err
			}
		}
	}

	entry, err := lc.finalize(ctx, entry.ID, st, asOf)
	if err != nil {
		return nil, err
	}
	if tx != nil {
		if err := lc.History.LinkTransaction(ctx, entry.ID, tx.ID); err != nil {
			return nil, err
		}
		entry.TransactionID = &tx.ID
	}
	result.Entry = entry

	plan.OccurrencesCount++
	if err := lc.Obligations.SavePlan(ctx, *plan); err != nil {
		return nil, err
	}

	// Completion: debt fully paid, one-time processed, or cap reached.
	completed := obligation.Kind == KindOneTime ||
		(debt != nil && debt.IsFullyPaid()) ||
		plan.CapReached()

	if completed {
		obligation.Status = StatusCompleted
		obligation.NextOccurrence = nil
		result.Completed = true
	} else {
		next, ok := NextOccurrence(scheduled, *plan)
		if !ok {
			// No recurrence to advance; processed once means done.
			obligation.Status = StatusCompleted
			obligation.NextOccurrence = nil
			result.Completed = true
		} else {
			obligation.NextOccurrence = &next
			result.Next = &next
		}
	}

	if err := lc.Obligations.SaveObligation(ctx, *obligation); err != nil {
		return nil, err
	}
	return result, nil
}

func (lc *Lifecycle) finalize(ctx context.Context, id EntryID, st Settlement, asOf Date) (*OccurrenceHistoryEntry, error) {
	switch st.Outcome {
	case OccurrencePaid:
		return lc.History.MarkPaid(ctx, id, st.Actual, st.Method, asOf)
	case OccurrenceFailed:
		return lc.History.MarkFailed(ctx, id, st.Reason, asOf)
	case OccurrenceSkipped:
		return lc.History.MarkSkipped(ctx, id, st.Reason, asOf)
	case OccurrencePartial:
		return lc.History.MarkPartial(ctx, id, *st.Actual, st.Reason, asOf)
	default:
		return nil, ErrInvalidStatus
	}
}

// dueObligation loads an obligation and applies the processing guards.
func (lc *Lifecycle) dueObligation(ctx context.Context, id ObligationID, asOf Date) (*ScheduledObligation, error) {
	obligation, err := lc.Obligations.GetObligation(ctx, id)
	if err != nil {
		return nil, err
	}
	if obligation == nil {
		return nil, ErrObligationNotFound
	}

	switch obligation.Status {
	case StatusActive, StatusOverdue:
		// processable
	default:
		return nil, ErrInvalidStatus
	}
	if obligation.NextOccurrence == nil || obligation.NextOccurrence.After(asOf) {
		return nil, ErrNotDue
	}
	return obligation, nil
}

func (lc *Lifecycle) plan(ctx context.Context, id ObligationID) (*RecurrencePlan, error) {
	plan, err := lc.Obligations.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		// One-time obligations may have no stored plan.
		plan = &RecurrencePlan{ObligationID: id}
	}
	return plan, nil
}

// =============================================================================
// EXPLICIT TRANSITIONS
// =============================================================================

// Pause suspends an Active obligation; the due scan skips it.
func (lc *Lifecycle) Pause(ctx context.Context, id ObligationID) error {
	return lc.transition(ctx, id, StatusActive, StatusPaused)
}

// Resume reactivates a Paused obligation.
func (lc *Lifecycle) Resume(ctx context.Context, id ObligationID) error {
	return lc.transition(ctx, id, StatusPaused, StatusActive)
}

// Cancel moves any non-terminal obligation to Cancelled. Irreversible.
func (lc *Lifecycle) Cancel(ctx context.Context, id ObligationID) error {
	obligation, err := lc.Obligations.GetObligation(ctx, id)
	if err != nil {
		return err
	}
	if obligation == nil {
		return ErrObligationNotFound
	}
	if obligation.Status.IsTerminal() {
		return ErrInvalidStatus
	}
	obligation.Status = StatusCancelled
	return lc.Obligations.SaveObligation(ctx, *obligation)
}

func (lc *Lifecycle) transition(ctx context.Context, id ObligationID, from, to ObligationStatus) error {
	obligation, err := lc.Obligations.GetObligation(ctx, id)
	if err != nil {
		return err
	}
	if obligation == nil {
		return ErrObligationNotFound
	}
	if obligation.Status != from {
		return ErrInvalidStatus
	}
	obligation.Status = to
	return lc.Obligations.SaveObligation(ctx, *obligation)
}
