package engine_test

import (
	"testing"
	"time"

	"github.com/payflow/obligation-engine/engine"
)

// =============================================================================
// NOTIFICATION SUMMARY
// =============================================================================

func eur(amount float64) engine.Money {
	return engine.NewMoney(amount, engine.CurrencyEUR)
}

func TestSummary_ClassifiesByNextOccurrence(t *testing.T) {
	// GIVEN: Obligations overdue, due today, and due within the week
	// WHEN: Building the summary as of 2024-03-10
	// THEN: Each lands in its bucket; the week window is day-ordered

	asOf := date(2024, time.March, 10)
	obligations := []engine.ScheduledObligation{
		activeObligation("late-rent", usd(1450), date(2024, time.March, 5)),
		activeObligation("late-gym", usd(40), date(2024, time.March, 9)),
		activeObligation("water", usd(60), asOf),
		activeObligation("internet", usd(79.99), date(2024, time.March, 14)),
		activeObligation("insurance", usd(120), date(2024, time.March, 14)),
		activeObligation("phone", usd(25), date(2024, time.March, 17)),
		activeObligation("far-away", usd(500), date(2024, time.March, 18)),
	}

	s := engine.BuildNotificationSummary(obligations, asOf)

	if s.Overdue.Count != 2 {
		t.Errorf("expected 2 overdue, got %d", s.Overdue.Count)
	}
	if !s.Overdue.Totals["USD"].Equal(usd(1490)) {
		t.Errorf("expected overdue total 1490, got %v", s.Overdue.Totals["USD"].Value)
	}
	if s.DueToday.Count != 1 || !s.DueToday.Totals["USD"].Equal(usd(60)) {
		t.Error("expected exactly the water bill due today")
	}

	// Upcoming: March 14 (two items) then March 17. March 18 is outside
	// the seven-day window.
	if len(s.Upcoming) != 2 {
		t.Fatalf("expected 2 upcoming days, got %d", len(s.Upcoming))
	}
	if !s.Upcoming[0].Date.Equal(date(2024, time.March, 14)) || s.Upcoming[0].Bucket.Count != 2 {
		t.Errorf("expected 2 items on March 14, got %d on %s", s.Upcoming[0].Bucket.Count, s.Upcoming[0].Date)
	}
	if !s.Upcoming[0].Bucket.Totals["USD"].Equal(usd(199.99)) {
		t.Errorf("expected March 14 total 199.99, got %v", s.Upcoming[0].Bucket.Totals["USD"].Value)
	}
	if !s.Upcoming[1].Date.Equal(date(2024, time.March, 17)) || s.Upcoming[1].Bucket.Count != 1 {
		t.Error("expected the phone bill alone on March 17")
	}
}

func TestSummary_WindowBoundaryIsInclusive(t *testing.T) {
	asOf := date(2024, time.March, 10)
	obligations := []engine.ScheduledObligation{
		activeObligation("edge", usd(10), date(2024, time.March, 17)),
	}

	s := engine.BuildNotificationSummary(obligations, asOf)
	if len(s.Upcoming) != 1 {
		t.Fatal("asOf+7 is the last day of the window")
	}
}

func TestSummary_ExcludesInactiveAndUnscheduled(t *testing.T) {
	asOf := date(2024, time.March, 10)

	paused := activeObligation("paused", usd(100), date(2024, time.March, 5))
	paused.Status = engine.StatusPaused
	completed := activeObligation("done", usd(100), asOf)
	completed.Status = engine.StatusCompleted
	cancelled := activeObligation("gone", usd(100), date(2024, time.March, 12))
	cancelled.Status = engine.StatusCancelled
	unscheduled := activeObligation("floating", usd(100), asOf)
	unscheduled.NextOccurrence = nil

	s := engine.BuildNotificationSummary(
		[]engine.ScheduledObligation{paused, completed, cancelled, unscheduled}, asOf)

	if s.Overdue.Count != 0 || s.DueToday.Count != 0 || len(s.Upcoming) != 0 {
		t.Error("non-active and unscheduled obligations must not be reported")
	}
}

func TestSummary_TotalsPerCurrency(t *testing.T) {
	// Mixed-currency obligations never sum into one figure.

	asOf := date(2024, time.March, 10)
	obligations := []engine.ScheduledObligation{
		activeObligation("us-rent", usd(1000), date(2024, time.March, 5)),
		activeObligation("eu-rent", eur(800), date(2024, time.March, 5)),
		activeObligation("eu-gym", eur(45), date(2024, time.March, 5)),
	}

	s := engine.BuildNotificationSummary(obligations, asOf)

	if s.Overdue.Count != 3 {
		t.Fatalf("expected 3 overdue, got %d", s.Overdue.Count)
	}
	if !s.Overdue.Totals["USD"].Equal(usd(1000)) {
		t.Errorf("USD total wrong: %v", s.Overdue.Totals["USD"].Value)
	}
	if !s.Overdue.Totals["EUR"].Equal(eur(845)) {
		t.Errorf("EUR total wrong: %v", s.Overdue.Totals["EUR"].Value)
	}
}

func TestSummary_EmptyInput(t *testing.T) {
	s := engine.BuildNotificationSummary(nil, date(2024, time.March, 10))
	if s.Overdue.Count != 0 || s.DueToday.Count != 0 || s.Upcoming != nil {
		t.Error("empty input yields an empty summary")
	}
}
