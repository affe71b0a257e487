package grading

import (
	"time"

	"github.com/noah-isme/school-results-api/internal/models"
)

// NextTermStatus applies the term transitions for now. Pending becomes Active once now reaches
// the start date, Active becomes Inactive once now passes the end date; both may apply in one call.
// Inactive terms never reactivate here.
func NextTermStatus(current models.PeriodStatus, start, end, now time.Time) models.PeriodStatus {
	status := current
	if status == models.PeriodStatusPending && !now.Before(start) {
		status = models.PeriodStatusActive
	}
	if status == models.PeriodStatusActive && now.After(end) {
		status = models.PeriodStatusInactive
	}
	return status
}

// NextYearStatus deactivates a year once now reaches its end date.
func NextYearStatus(current models.PeriodStatus, end, now time.Time) models.PeriodStatus {
	if current == models.PeriodStatusActive && !now.Before(end) {
		return models.PeriodStatusInactive
	}
	return current
}

// InitialTermStatus is the status a term gets when its dates are written explicitly.
func InitialTermStatus(start, end, now time.Time) models.PeriodStatus {
	switch {
	case now.After(end):
		return models.PeriodStatusInactive
	case now.Before(start):
		return models.PeriodStatusPending
	default:
		return models.PeriodStatusActive
	}
}

// InitialYearStatus is the status a year gets when its dates are written explicitly.
func InitialYearStatus(end, now time.Time) models.PeriodStatus {
	if !now.Before(end) {
		return models.PeriodStatusInactive
	}
	return models.PeriodStatusActive
}

// ValidRange reports whether start precedes end.
func ValidRange(start, end time.Time) bool {
	return start.Before(end)
}

// Within reports whether [start, end] lies inside [outerStart, outerEnd].
func Within(start, end, outerStart, outerEnd time.Time) bool {
	return !start.Before(outerStart) && !end.After(outerEnd)
}

// RangesOverlap reports whether two closed date ranges intersect.
func RangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !bStart.After(aEnd)
}
