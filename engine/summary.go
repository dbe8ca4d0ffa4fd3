package engine

// =============================================================================
// NOTIFICATION SUMMARY - Data for an external notification dispatcher
// =============================================================================

// SummaryBucket aggregates a group of obligations: a count plus totals
// keyed by currency (accounts may hold different currencies).
type SummaryBucket struct {
	Count  int
	Totals map[Currency]Money
}

func newBucket() SummaryBucket {
	return SummaryBucket{Totals: make(map[Currency]Money)}
}

func (b *SummaryBucket) add(m Money) {
	b.Count++
	addTotal(b.Totals, m)
}

// DaySummary is one upcoming day's worth of due obligations.
type DaySummary struct {
	Date   Date
	Bucket SummaryBucket
}

// NotificationSummary is what the external dispatcher consumes: overdue,
// due-today, and the upcoming week grouped by day.
type NotificationSummary struct {
	AsOf     Date
	Overdue  SummaryBucket
	DueToday SummaryBucket
	Upcoming []DaySummary
}

// BuildNotificationSummary classifies obligations by their next occurrence
// relative to asOf. Paused and terminal obligations are excluded; the
// upcoming window covers the seven days after asOf.
func BuildNotificationSummary(obligations []ScheduledObligation, asOf Date) NotificationSummary {
	summary := NotificationSummary{
		AsOf:     asOf,
		Overdue:  newBucket(),
		DueToday: newBucket(),
	}

	upcoming := make(map[Date]*SummaryBucket)
	weekEnd := asOf.AddDays(7)

	for _, o := range obligations {
		if o.Status != StatusActive || o.NextOccurrence == nil {
			continue
		}
		next := *o.NextOccurrence

		switch {
		case next.Before(asOf):
			summary.Overdue.add(o.Amount)
		case next.Equal(asOf):
			summary.DueToday.add(o.Amount)
		case next.BeforeOrEqual(weekEnd):
			bucket, ok := upcoming[next]
			if !ok {
				b := newBucket()
				bucket = &b
				upcoming[next] = bucket
			}
			bucket.add(o.Amount)
		}
	}

	// Emit upcoming days in order, skipping empty ones.
	for day := asOf.AddDays(1); day.BeforeOrEqual(weekEnd); day = day.AddDays(1) {
		if bucket, ok := upcoming[day]; ok {
			summary.Upcoming = append(summary.Upcoming, DaySummary{Date: day, Bucket: *bucket})
		}
	}
	return summary
}
