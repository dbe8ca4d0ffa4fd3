/*
debt.go - Amortization tracker

PURPOSE:
  DebtState owns a debt's principal/paid/remaining/installment state.
  It is mutated only through ApplyPayment, ApplyLateFee and
  RecomputeOverdueDays; nothing else writes these fields.

CONSERVATION:
  paid + remaining == original + late_fee at all times. Late fees inflate
  the outstanding balance and are tracked separately in LateFee; they are
  not principal, so OriginalAmount is never touched by a fee.

INSTALLMENT CREDITING:
  A payment covering several installment amounts credits
  floor(amount / installment) installments at once, capped at the total.
  This can over-credit when a lump payment spans installments; that is a
  deliberate policy carried from the payment-plan semantics, not a bug.

SEE ALSO:
  - lifecycle.go: Applies payments during ProcessDue for Debt obligations
*/
package engine

import (
	"math"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DEBT STATE - 1:1 with a Debt obligation
// =============================================================================

type DebtState struct {
	ObligationID ObligationID

	OriginalAmount  Money
	RemainingAmount Money
	PaidAmount      Money

	TotalInstallments int
	PaidInstallments  int

	// InstallmentAmount is nil when the plan has no fixed installment.
	InstallmentAmount *Money

	// InterestRate is an annual percentage; nil for interest-free debts.
	InterestRate *decimal.Decimal

	LateFee     Money
	DaysOverdue int
	DueDate     *Date

	Creditor  string
	Reference string
}

// NewDebtState initializes an unpaid debt. The installment amount is
// derived from the total when not given explicitly.
func NewDebtState(obligationID ObligationID, original Money, totalInstallments int) DebtState {
	d := DebtState{
		ObligationID:      obligationID,
		OriginalAmount:    original,
		RemainingAmount:   original,
		PaidAmount:        original.Zero(),
		LateFee:           original.Zero(),
		TotalInstallments: totalInstallments,
	}
	if totalInstallments > 0 {
		installment := Money{
			Value:    original.Value.Div(decimal.NewFromInt(int64(totalInstallments))).Round(2),
			Currency: original.Currency,
		}
		d.InstallmentAmount = &installment
	}
	return d
}

// ApplyPayment records a payment against the debt. Non-positive amounts
// are rejected with ErrInvalidAmount; remaining is clamped at zero.
func (d *DebtState) ApplyPayment(amount Money) error {
	if !amount.IsPositive() {
		return &InvalidAmountError{Amount: amount, Op: "debt payment"}
	}
	if !amount.SameCurrency(d.OriginalAmount) {
		return &CurrencyMismatchError{Have: amount.Currency, Want: d.OriginalAmount.Currency, Op: "debt payment"}
	}

	d.PaidAmount = d.PaidAmount.Add(amount)
	d.RemainingAmount = d.RemainingAmount.Sub(amount)
	if d.RemainingAmount.IsNegative() {
		d.RemainingAmount = d.RemainingAmount.Zero()
	}

	if d.InstallmentAmount != nil && d.InstallmentAmount.IsPositive() &&
		amount.GreaterThanOrEqual(*d.InstallmentAmount) {
		credited := int(amount.Value.Div(d.InstallmentAmount.Value).IntPart())
		d.PaidInstallments += credited
		if d.PaidInstallments > d.TotalInstallments {
			d.PaidInstallments = d.TotalInstallments
		}
	}
	return nil
}

// ApplyLateFee inflates the outstanding balance. OriginalAmount is left
// untouched; the fee is tracked in LateFee.
func (d *DebtState) ApplyLateFee(fee Money) error {
	if fee.IsNegative() {
		return &InvalidAmountError{Amount: fee, Op: "late fee"}
	}
	if !fee.SameCurrency(d.OriginalAmount) {
		return &CurrencyMismatchError{Have: fee.Currency, Want: d.OriginalAmount.Currency, Op: "late fee"}
	}
	d.LateFee = d.LateFee.Add(fee)
	d.RemainingAmount = d.RemainingAmount.Add(fee)
	return nil
}

// RecomputeOverdueDays refreshes the denormalized DaysOverdue field.
// The stored value is a cache; this is the only writer.
func (d *DebtState) RecomputeOverdueDays(asOf Date) {
	if d.DueDate != nil && d.DueDate.Before(asOf) {
		d.DaysOverdue = DaysBetween(*d.DueDate, asOf)
		return
	}
	d.DaysOverdue = 0
}

func (d *DebtState) IsFullyPaid() bool {
	return !d.RemainingAmount.IsPositive()
}

func (d *DebtState) RemainingInstallments() int {
	if n := d.TotalInstallments - d.PaidInstallments; n > 0 {
		return n
	}
	return 0
}

// =============================================================================
// AMORTIZATION SCHEDULE - Fixed-payment annuity projection
// =============================================================================

// AmortizationEntry is one period of a projected payment schedule.
type AmortizationEntry struct {
	Period           int
	DueDate          Date
	Principal        Money
	Interest         Money
	Total            Money
	RemainingBalance Money
}

// AmortizationSchedule computes a standard fixed-payment schedule:
//
//	monthlyRate = annualRate / 100 / 12
//	payment     = P * r * (1+r)^n / ((1+r)^n - 1)
//
// Zero-rate debts split the principal evenly. The last period absorbs
// rounding so the balance closes at exactly zero.
func AmortizationSchedule(principal Money, annualRate decimal.Decimal, termMonths int, start Date) []AmortizationEntry {
	if termMonths <= 0 || !principal.IsPositive() {
		return nil
	}

	monthlyRate := annualRate.InexactFloat64() / 100.0 / 12.0

	var payment decimal.Decimal
	if monthlyRate == 0 {
		payment = principal.Value.Div(decimal.NewFromInt(int64(termMonths))).Round(2)
	} else {
		factor := math.Pow(1+monthlyRate, float64(termMonths))
		payment = decimal.NewFromFloat(
			principal.Value.InexactFloat64() * monthlyRate * factor / (factor - 1),
		).Round(2)
	}

	monthlyRateDec := decimal.NewFromFloat(monthlyRate)
	remaining := principal.Value
	schedule := make([]AmortizationEntry, 0, termMonths)

	for period := 1; period <= termMonths; period++ {
		interest := remaining.Mul(monthlyRateDec).Round(2)
		principalPart := payment.Sub(interest)
		total := payment

		if period == termMonths {
			// Close out exactly.
			principalPart = remaining
			total = principalPart.Add(interest)
		}

		remaining = remaining.Sub(principalPart)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}

		currency := principal.Currency
		schedule = append(schedule, AmortizationEntry{
			Period:           period,
			DueDate:          addMonthsClamped(start, period, nil),
			Principal:        Money{Value: principalPart, Currency: currency},
			Interest:         Money{Value: interest, Currency: currency},
			Total:            Money{Value: total, Currency: currency},
			RemainingBalance: Money{Value: remaining, Currency: currency},
		})
	}
	return schedule
}
