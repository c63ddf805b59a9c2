package reconciliation

import (
	"errors"
	"strings"
	"time"

	"kiosco/backend/internal/domain"
)

var ErrInvalidPeriod = errors.New("invalid period")

// PeriodWindow resolves a named period into a half-open [from, to) window in
// loc. A zero bound means unbounded on that side. Weeks start on Monday and
// custom windows include the whole of the end day.
func PeriodWindow(period string, now time.Time, loc *time.Location, from time.Time, to time.Time) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	today := startOfDay(local)

	switch strings.ToLower(strings.TrimSpace(period)) {
	case "", domain.PeriodAll:
		return time.Time{}, time.Time{}, nil
	case domain.PeriodToday:
		return today, time.Time{}, nil
	case domain.PeriodWeek:
		offset := (int(today.Weekday()) + 6) % 7
		return today.AddDate(0, 0, -offset), time.Time{}, nil
	case domain.PeriodMonth:
		return time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc), time.Time{}, nil
	case domain.PeriodCustom:
		if from.IsZero() || to.IsZero() {
			return time.Time{}, time.Time{}, ErrInvalidPeriod
		}
		start := startOfDay(from.In(loc))
		end := startOfDay(to.In(loc)).AddDate(0, 0, 1)
		if !end.After(start) {
			return time.Time{}, time.Time{}, ErrInvalidPeriod
		}
		return start, end, nil
	default:
		return time.Time{}, time.Time{}, ErrInvalidPeriod
	}
}

// InWindow reports whether at falls inside [from, to), honouring open bounds.
func InWindow(at time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && !at.Before(to) {
		return false
	}
	return true
}

// Matches applies every non-time field of the filter to one ledger row.
func Matches(filter domain.TransactionFilter, tx domain.CashTransaction) bool {
	if filter.ShiftID != "" && tx.ShiftID != filter.ShiftID {
		return false
	}
	if filter.Type != "" && tx.Type != filter.Type {
		return false
	}
	if filter.PaymentMethod != "" && tx.PaymentMethod != filter.PaymentMethod {
		return false
	}
	if filter.Category != "" && !strings.Contains(strings.ToLower(tx.Category), strings.ToLower(filter.Category)) {
		return false
	}
	return true
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
