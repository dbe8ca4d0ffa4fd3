package engine

import "time"

// =============================================================================
// RECURRENCE CALCULATOR - Pure next-occurrence date arithmetic
// =============================================================================

// NextOccurrence computes the occurrence that follows from for the given
// plan. Pure function of its inputs: same inputs always produce the same
// output. Returns ok=false only when the plan has no frequency (one-time
// obligations).
//
// Month-based frequencies clamp the day-of-month anchor to the length of
// the resulting month: Jan 31 + 1 month with anchor 31 lands on Feb 28
// (29 in a leap year), never Mar 3.
func NextOccurrence(from Date, plan RecurrencePlan) (Date, bool) {
	if plan.Frequency == FrequencyNone {
		return Date{}, false
	}

	interval := plan.Interval
	if interval < 1 {
		interval = 1
	}

	switch plan.Frequency {
	case FrequencyDaily:
		return from.AddDays(interval), true

	case FrequencyWeekly:
		next := from.AddDays(7 * interval)
		if plan.DayOfWeek != nil {
			next = rollForwardToWeekday(next, time.Weekday(*plan.DayOfWeek))
		}
		return next, true

	case FrequencyBiweekly:
		// No day-of-week anchoring for biweekly.
		return from.AddDays(14 * interval), true

	case FrequencyMonthly:
		return addMonthsClamped(from, interval, plan.DayOfMonth), true

	case FrequencyQuarterly:
		return addMonthsClamped(from, 3*interval, plan.DayOfMonth), true

	case FrequencyYearly:
		return addMonthsClamped(from, 12*interval, plan.DayOfMonth), true

	default:
		return Date{}, false
	}
}

// rollForwardToWeekday advances to the next occurrence of the target
// weekday. Never rolls backward: a date already past the target within its
// week moves into the following week.
func rollForwardToWeekday(d Date, target time.Weekday) Date {
	diff := (int(target) - int(d.Weekday()) + 7) % 7
	return d.AddDays(diff)
}

// addMonthsClamped adds months without the stdlib's end-of-month overflow.
// The day is taken from the anchor when set, otherwise from the source
// date, then clamped to the resulting month's length.
func addMonthsClamped(d Date, months int, anchor *int) Date {
	monthIndex := int(d.Month()) - 1 + months
	year := d.Year() + monthIndex/12
	month := time.Month(monthIndex%12 + 1)

	day := d.Day()
	if anchor != nil {
		day = *anchor
	}
	if max := DaysInMonth(year, month); day > max {
		day = max
	}
	return NewDate(year, month, day)
}
