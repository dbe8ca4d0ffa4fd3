package engine_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/payflow/obligation-engine/engine"
	"github.com/payflow/obligation-engine/engine/store"
)

func newTestReconciler(t *testing.T) (*engine.Reconciler, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()

	accounts := []engine.LedgerAccount{
		{ID: "checking", Name: "Checking", Balance: usd(1000)},
		{ID: "savings", Name: "Savings", Balance: usd(5000)},
		{ID: "euro", Name: "Euro account", Balance: engine.NewMoney(300, engine.CurrencyEUR)},
	}
	for _, a := range accounts {
		if err := mem.SaveAccount(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	return engine.NewReconciler(mem), mem
}

func accountBalance(t *testing.T, mem *store.Memory, id engine.AccountID) engine.Money {
	t.Helper()
	a, err := mem.GetAccount(context.Background(), id)
	if err != nil || a == nil {
		t.Fatalf("account %s not found", id)
	}
	return a.Balance
}

func expense(account string, amount float64) engine.Transaction {
	return engine.Transaction{
		Kind:      engine.TxExpense,
		Amount:    usd(amount),
		AccountID: engine.AccountID(account),
		Date:      date(2024, time.March, 10),
	}
}

// =============================================================================
// BALANCE EFFECTS
// =============================================================================

func TestReconciler_Create_AppliesKindEffect(t *testing.T) {
	ctx := context.Background()
	r, mem := newTestReconciler(t)

	if _, err := r.Create(ctx, engine.Transaction{
		Kind: engine.TxIncome, Amount: usd(250), AccountID: "checking",
		Date: date(2024, time.March, 1),
	}); err != nil {
		t.Fatal(err)
	}
	if got := accountBalance(t, mem, "checking"); !got.Equal(usd(1250)) {
		t.Errorf("income: expected 1250, got %v", got.Value)
	}

	if _, err := r.Create(ctx, expense("checking", 100)); err != nil {
		t.Fatal(err)
	}
	if got := accountBalance(t, mem, "checking"); !got.Equal(usd(1150)) {
		t.Errorf("expense: expected 1150, got %v", got.Value)
	}
}

func TestReconciler_Transfer_MovesBetweenAccounts(t *testing.T) {
	ctx := context.Background()
	r, mem := newTestReconciler(t)

	dest := engine.AccountID("savings")
	if _, err := r.Create(ctx, engine.Transaction{
		Kind: engine.TxTransfer, Amount: usd(400), AccountID: "checking",
		DestinationID: &dest, Date: date(2024, time.March, 1),
	}); err != nil {
		t.Fatal(err)
	}

	if got := accountBalance(t, mem, "checking"); !got.Equal(usd(600)) {
		t.Errorf("origin: expected 600, got %v", got.Value)
	}
	if got := accountBalance(t, mem, "savings"); !got.Equal(usd(5400)) {
		t.Errorf("destination: expected 5400, got %v", got.Value)
	}
}

func TestReconciler_Delete_RevertsExactly(t *testing.T) {
	// GIVEN: A posted expense
	// WHEN: Deleting it
	// THEN: The balance returns to its pre-transaction value

	ctx := context.Background()
	r, mem := newTestReconciler(t)

	tx, err := r.Create(ctx, expense("checking", 123.45))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Delete(ctx, tx.ID); err != nil {
		t.Fatal(err)
	}

	if got := accountBalance(t, mem, "checking"); !got.Equal(usd(1000)) {
		t.Errorf("delete must invert create, got %v", got.Value)
	}
	if stored, _ := mem.GetTransaction(ctx, tx.ID); stored != nil {
		t.Error("record should be gone after delete")
	}
}

func TestReconciler_CreateDelete_InverseOverSequence(t *testing.T) {
	ctx := context.Background()
	r, mem := newTestReconciler(t)

	var ids []engine.TransactionID
	amounts := []float64{12.34, 250, 0.01, 999.99}
	for _, a := range amounts {
		tx, err := r.Create(ctx, expense("checking", a))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, tx.ID)
	}
	for _, id := range ids {
		if err := r.Delete(ctx, id); err != nil {
			t.Fatal(err)
		}
	}

	if got := accountBalance(t, mem, "checking"); !got.Equal(usd(1000)) {
		t.Errorf("after deleting everything, expected 1000, got %v", got.Value)
	}
}

func TestReconciler_ApplyRevert_InverseLaw(t *testing.T) {
	// For any transaction, deleting it restores every balance exactly.

	ctx := context.Background()
	r, mem := newTestReconciler(t)
	rng := rand.New(rand.NewSource(42))

	dest := engine.AccountID("savings")
	for i := 0; i < 200; i++ {
		cents := int64(rng.Intn(1_000_000) + 1)
		amount := engine.Money{Value: decimal.New(cents, -2), Currency: engine.CurrencyUSD}

		tx := engine.Transaction{
			Amount:    amount,
			AccountID: "checking",
			Date:      date(2024, time.March, 10),
		}
		switch rng.Intn(3) {
		case 0:
			tx.Kind = engine.TxIncome
		case 1:
			tx.Kind = engine.TxExpense
		default:
			tx.Kind = engine.TxTransfer
			tx.DestinationID = &dest
		}

		created, err := r.Create(ctx, tx)
		if err != nil {
			t.Fatalf("iteration %d: create: %v", i, err)
		}
		if err := r.Delete(ctx, created.ID); err != nil {
			t.Fatalf("iteration %d: delete: %v", i, err)
		}

		if got := accountBalance(t, mem, "checking"); !got.Equal(usd(1000)) {
			t.Fatalf("iteration %d (%s %v): checking drifted to %v", i, tx.Kind, amount.Value, got.Value)
		}
		if got := accountBalance(t, mem, "savings"); !got.Equal(usd(5000)) {
			t.Fatalf("iteration %d (%s %v): savings drifted to %v", i, tx.Kind, amount.Value, got.Value)
		}
	}
}

func TestReconciler_Update_RevertsOldAppliesNew(t *testing.T) {
	ctx := context.Background()
	r, mem := newTestReconciler(t)

	tx, err := r.Create(ctx, expense("checking", 100))
	if err != nil {
		t.Fatal(err)
	}

	updated, err := r.Update(ctx, tx.ID, expense("checking", 60))
	if err != nil {
		t.Fatal(err)
	}

	if got := accountBalance(t, mem, "checking"); !got.Equal(usd(940)) {
		t.Errorf("expected 940 after amending 100 to 60, got %v", got.Value)
	}
	if updated.ID != tx.ID {
		t.Errorf("amending must keep the transaction ID, got %d for %d", updated.ID, tx.ID)
	}
	stored, _ := mem.GetTransaction(ctx, tx.ID)
	if stored == nil {
		t.Fatal("record must still exist under its original ID")
	}
	if !stored.Amount.Equal(usd(60)) {
		t.Errorf("expected stored amount 60, got %v", stored.Amount.Value)
	}
}

// =============================================================================
// REJECTION WITHOUT MUTATION
// =============================================================================

func TestReconciler_CurrencyMismatch_NoMutation(t *testing.T) {
	ctx := context.Background()
	r, mem := newTestReconciler(t)

	_, err := r.Create(ctx, engine.Transaction{
		Kind: engine.TxExpense, Amount: engine.NewMoney(50, engine.CurrencyEUR),
		AccountID: "checking", Date: date(2024, time.March, 1),
	})
	if !errors.Is(err, engine.ErrCurrencyMismatch) {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}
	if got := accountBalance(t, mem, "checking"); !got.Equal(usd(1000)) {
		t.Errorf("rejected transaction must not touch balances, got %v", got.Value)
	}
}

func TestReconciler_CrossCurrencyTransfer_NoMutation(t *testing.T) {
	ctx := context.Background()
	r, mem := newTestReconciler(t)

	dest := engine.AccountID("euro")
	_, err := r.Create(ctx, engine.Transaction{
		Kind: engine.TxTransfer, Amount: usd(50), AccountID: "checking",
		DestinationID: &dest, Date: date(2024, time.March, 1),
	})
	if !errors.Is(err, engine.ErrCurrencyMismatch) {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}
	if got := accountBalance(t, mem, "checking"); !got.Equal(usd(1000)) {
		t.Error("origin balance must be untouched")
	}
	if got := accountBalance(t, mem, "euro"); !got.Equal(engine.NewMoney(300, engine.CurrencyEUR)) {
		t.Error("destination balance must be untouched")
	}
}

func TestReconciler_Transfer_RequiresDistinctDestination(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestReconciler(t)

	_, err := r.Create(ctx, engine.Transaction{
		Kind: engine.TxTransfer, Amount: usd(50), AccountID: "checking",
		Date: date(2024, time.March, 1),
	})
	if !errors.Is(err, engine.ErrInvalidTransfer) {
		t.Errorf("missing destination: expected ErrInvalidTransfer, got %v", err)
	}

	same := engine.AccountID("checking")
	_, err = r.Create(ctx, engine.Transaction{
		Kind: engine.TxTransfer, Amount: usd(50), AccountID: "checking",
		DestinationID: &same, Date: date(2024, time.March, 1),
	})
	if !errors.Is(err, engine.ErrInvalidTransfer) {
		t.Errorf("self transfer: expected ErrInvalidTransfer, got %v", err)
	}
}

func TestReconciler_NonPositiveAmount_Rejected(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestReconciler(t)

	_, err := r.Create(ctx, expense("checking", 0))
	if !errors.Is(err, engine.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestReconciler_UnknownAccount_Rejected(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestReconciler(t)

	_, err := r.Create(ctx, expense("nope", 10))
	if !errors.Is(err, engine.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestReconciler_DeleteUnknownTransaction(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestReconciler(t)

	if err := r.Delete(ctx, 404); !errors.Is(err, engine.ErrTransactionNotFound) {
		t.Errorf("expected ErrTransactionNotFound, got %v", err)
	}
}
