/*
reconciler.go - Ledger balance reconciler

PURPOSE:
  The only code path that mutates LedgerAccount balances. Every posted
  Transaction has a balance effect; Create applies it, Delete reverts it,
  Update reverts the old effect and applies the new one. Apply and revert
  are exact inverses under decimal arithmetic: for any transaction t,
  revert(apply(balance, t)) == balance, with no floating-point drift.

ATOMICITY:
  Each operation runs inside one WithTx boundary covering both the balance
  mutation and the transaction record. A failure anywhere rolls back
  everything; no partial balance mutation survives.

TRANSFER RULES:
  Transfers move money between two accounts of the same currency.
  Cross-currency transfers fail with CurrencyMismatch before either
  balance is touched.
*/
package engine

import (
	"context"
)

// =============================================================================
// RECONCILER
// =============================================================================

type Reconciler struct {
	Store TxLedgerStore
}

func NewReconciler(store TxLedgerStore) *Reconciler {
	return &Reconciler{Store: store}
}

// ResolveAccount checks that an account exists and matches the amount's
// currency without mutating anything. Callers that stage work before
// posting use it to fail fast on a bad account reference.
func (r *Reconciler) ResolveAccount(ctx context.Context, id AccountID, amount Money) error {
	account, err := r.Store.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrAccountNotFound
	}
	if !amount.SameCurrency(account.Balance) {
		return &CurrencyMismatchError{Have: amount.Currency, Want: account.Currency(), Op: "transaction"}
	}
	return nil
}

// Create validates the transaction, applies its balance effect, and
// persists the record, all in one atomic unit. Returns the stored
// transaction with its assigned ID.
func (r *Reconciler) Create(ctx context.Context, tx Transaction) (*Transaction, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	var created Transaction
	err := r.Store.WithTx(ctx, func(s LedgerStore) error {
		if err := applyEffect(ctx, s, tx, 1); err != nil {
			return err
		}
		id, err := s.InsertTransaction(ctx, tx)
		if err != nil {
			return err
		}
		created = tx
		created.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Delete reverts the transaction's balance effect and removes the record.
func (r *Reconciler) Delete(ctx context.Context, id TransactionID) error {
	return r.Store.WithTx(ctx, func(s LedgerStore) error {
		tx, err := s.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if tx == nil {
			return ErrTransactionNotFound
		}
		if err := applyEffect(ctx, s, *tx, -1); err != nil {
			return err
		}
		return s.DeleteTransaction(ctx, id)
	})
}

// Update reverts the old transaction and re-applies the new data under
// the same ID, within a single atomic boundary. The ID is stable so
// history entries linking the transaction never dangle.
func (r *Reconciler) Update(ctx context.Context, id TransactionID, next Transaction) (*Transaction, error) {
	if err := next.Validate(); err != nil {
		return nil, err
	}

	var updated Transaction
	err := r.Store.WithTx(ctx, func(s LedgerStore) error {
		old, err := s.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if old == nil {
			return ErrTransactionNotFound
		}
		if err := applyEffect(ctx, s, *old, -1); err != nil {
			return err
		}
		if err := applyEffect(ctx, s, next, 1); err != nil {
			return err
		}
		next.ID = id
		if err := s.UpdateTransaction(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// =============================================================================
// BALANCE EFFECT - Shared by apply (sign=1) and revert (sign=-1)
// =============================================================================

// applyEffect mutates account balances for a transaction. All currency and
// referential checks run before the first write, so a rejected transfer
// mutates neither balance.
func applyEffect(ctx context.Context, s LedgerStore, tx Transaction, sign int) error {
	origin, err := s.GetAccount(ctx, tx.AccountID)
	if err != nil {
		return err
	}
	if origin == nil {
		return ErrAccountNotFound
	}
	if !tx.Amount.SameCurrency(origin.Balance) {
		return &CurrencyMismatchError{Have: tx.Amount.Currency, Want: origin.Currency(), Op: "transaction"}
	}

	delta := tx.Amount
	if sign < 0 {
		delta = delta.Neg()
	}

	switch tx.Kind {
	case TxIncome:
		origin.Balance = origin.Balance.Add(delta)
		return s.SaveAccount(ctx, *origin)

	case TxExpense:
		origin.Balance = origin.Balance.Sub(delta)
		return s.SaveAccount(ctx, *origin)

	case TxTransfer:
		dest, err := s.GetAccount(ctx, *tx.DestinationID)
		if err != nil {
			return err
		}
		if dest == nil {
			return ErrAccountNotFound
		}
		if origin.Currency() != dest.Currency() {
			return &CurrencyMismatchError{Have: dest.Currency(), Want: origin.Currency(), Op: "transfer"}
		}
		origin.Balance = origin.Balance.Sub(delta)
		dest.Balance = dest.Balance.Add(delta)
		if err := s.SaveAccount(ctx, *origin); err != nil {
			return err
		}
		return s.SaveAccount(ctx, *dest)

	default:
		return ErrInvalidTransfer
	}
}
