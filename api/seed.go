/*
seed.go - Demo data for development and manual testing

PURPOSE:
  Loads a small, self-consistent dataset: two ledger accounts, a
  monthly rent obligation, a weekly subscription, and an installment
  debt. Gives the UI and manual API exploration something to chew on
  without hand-crafting requests.

SEE ALSO:
  - handlers.go: Router wiring for /api/seed and /api/reset
*/
package api

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/payflow/obligation-engine/engine"
)

// ResetDatabase clears all data. Dev only.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	resetter, ok := h.Store.(Resetter)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Store does not support reset", nil)
		return
	}
	if err := resetter.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset", err)
		return
	}
	h.Log.Warn("database reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// LoadSeed resets the database and loads the demo dataset.
func (h *Handler) LoadSeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if resetter, ok := h.Store.(Resetter); ok {
		if err := resetter.Reset(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to reset before seeding", err)
			return
		}
	}

	if err := h.seed(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to seed", err)
		return
	}

	h.Log.Info("demo data loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "seeded"})
}

func (h *Handler) seed(ctx context.Context) error {
	accounts := []engine.LedgerAccount{
		{ID: "checking", Name: "Checking", Balance: engine.NewMoney(4200.00, engine.CurrencyUSD)},
		{ID: "savings", Name: "Savings", Balance: engine.NewMoney(12800.00, engine.CurrencyUSD)},
	}
	for _, a := range accounts {
		if err := h.Store.SaveAccount(ctx, a); err != nil {
			return err
		}
	}

	start := engine.NewDate(2024, 1, 15)
	rentNext := start
	dayOfMonth := 15
	rent := engine.ScheduledObligation{
		ID:             "rent",
		Kind:           engine.KindRecurring,
		Status:         engine.StatusActive,
		Description:    "Apartment rent",
		Amount:         engine.NewMoney(1450.00, engine.CurrencyUSD),
		StartDate:      start,
		NextOccurrence: &rentNext,
		AccountID:      "checking",
	}
	if err := h.Store.SaveObligation(ctx, rent); err != nil {
		return err
	}
	if err := h.Store.SavePlan(ctx, engine.RecurrencePlan{
		ObligationID:      rent.ID,
		Frequency:         engine.FrequencyMonthly,
		Interval:          1,
		DayOfMonth:        &dayOfMonth,
		AutoProcess:       true,
		CreateTransaction: true,
		NotifyDaysBefore:  3,
	}); err != nil {
		return err
	}

	subStart := engine.NewDate(2024, 1, 8)
	subNext := subStart
	monday := 1
	sub := engine.ScheduledObligation{
		ID:             "music-sub",
		Kind:           engine.KindRecurring,
		Status:         engine.StatusActive,
		Description:    "Music streaming subscription",
		Amount:         engine.NewMoney(9.99, engine.CurrencyUSD),
		StartDate:      subStart,
		NextOccurrence: &subNext,
		AccountID:      "checking",
	}
	if err := h.Store.SaveObligation(ctx, sub); err != nil {
		return err
	}
	if err := h.Store.SavePlan(ctx, engine.RecurrencePlan{
		ObligationID: sub.ID,
		Frequency:    engine.FrequencyWeekly,
		Interval:     1,
		DayOfWeek:    &monday,
		AutoProcess:  true,
	}); err != nil {
		return err
	}

	loanStart := engine.NewDate(2024, 2, 1)
	loanNext := loanStart
	loanAmount := engine.NewMoney(6000.00, engine.CurrencyUSD)
	loan := engine.ScheduledObligation{
		ID:             "car-loan",
		Kind:           engine.KindDebt,
		Status:         engine.StatusActive,
		Description:    "Used car loan",
		Amount:         engine.NewMoney(500.00, engine.CurrencyUSD),
		StartDate:      loanStart,
		NextOccurrence: &loanNext,
		AccountID:      "checking",
	}
	if err := h.Store.SaveObligation(ctx, loan); err != nil {
		return err
	}

	maxPayments := 12
	firstOfMonth := 1
	if err := h.Store.SavePlan(ctx, engine.RecurrencePlan{
		ObligationID:      loan.ID,
		Frequency:         engine.FrequencyMonthly,
		Interval:          1,
		DayOfMonth:        &firstOfMonth,
		MaxOccurrences:    &maxPayments,
		CreateTransaction: true,
	}); err != nil {
		return err
	}

	debt := engine.NewDebtState(loan.ID, loanAmount, 12)
	rate := decimal.NewFromFloat(5.9)
	debt.InterestRate = &rate
	debt.Creditor = "Coastal Credit Union"
	debt.Reference = "LN-20931"
	return h.Store.SaveDebt(ctx, debt)
}
