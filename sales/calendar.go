package sales

import "time"

// =============================================================================
// CALENDAR - Month arithmetic and the overdue rule
// =============================================================================

// AddMonths moves t by n calendar months, clamping the day to the end of
// the target month (Jan 31 + 1 month = Feb 28/29, not Mar 3).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// StartOfDay clamps t to midnight of its calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// IsOverdue is the one overdue rule: a pending payment with a due date
// whose calendar day (in loc) is strictly before today's. A payment due
// today is not overdue. Overdue is never stored.
func IsOverdue(p Payment, now time.Time, loc *time.Location) bool {
	if p.Status != PaymentPending || p.DueDate == nil {
		return false
	}
	return StartOfDay(*p.DueDate, loc).Before(StartOfDay(now, loc))
}

// OverdueInstallments returns the installment numbers of s that are overdue
// at now. Cancelled sales have none.
func (s *Sale) OverdueInstallments(now time.Time, loc *time.Location) []int {
	if s.Cancelled() {
		return nil
	}
	var out []int
	for _, p := range s.Payments {
		if IsOverdue(p, now, loc) {
			out = append(out, p.InstallmentNumber)
		}
	}
	return out
}
