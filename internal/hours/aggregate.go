// Package hours rolls time records up into day totals, monthly metrics and
// inactivity signals, and maintains the audit fields of the records.
package hours

import (
	"math"
	"sort"
	"strings"
	"time"

	"trackly/internal/domain"
	"trackly/internal/errs"
)

// MonthlyTarget is the hour count that maps to 100% progress.
const MonthlyTarget = 160.0

const dateLayout = "2006-01-02"

type Metrics struct {
	Total           float64 `json:"total"`
	Average         float64 `json:"average"`
	DaysWorked      int     `json:"daysWorked"`
	MaxDayHours     float64 `json:"maxDayHours"`
	ProgressPercent int     `json:"progressPercent"`
}

type Summary struct {
	DayTotals  map[string]float64 `json:"dayTotals"`
	MarkedDays []string           `json:"markedDays"`
	Metrics    Metrics            `json:"metrics"`
}

func counts(r domain.TimeRecord) bool {
	return r.Date != "" && !r.Deleted && r.Hours > 0
}

// Aggregate sums the countable records. Records without a date, deleted
// records and records with hours <= 0 are skipped. The result does not
// depend on input order.
func Aggregate(records []domain.TimeRecord) Summary {
	kept := make([]domain.TimeRecord, 0, len(records))
	for _, r := range records {
		if counts(r) {
			kept = append(kept, r)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Date != kept[j].Date {
			return kept[i].Date < kept[j].Date
		}
		if kept[i].ID != kept[j].ID {
			return kept[i].ID < kept[j].ID
		}
		return kept[i].Hours < kept[j].Hours
	})

	sum := Summary{DayTotals: map[string]float64{}, MarkedDays: []string{}}
	for _, r := range kept {
		sum.DayTotals[r.Date] += r.Hours
		sum.Metrics.Total += r.Hours
		if d := sum.DayTotals[r.Date]; d > sum.Metrics.MaxDayHours {
			sum.Metrics.MaxDayHours = d
		}
	}
	for date := range sum.DayTotals {
		sum.MarkedDays = append(sum.MarkedDays, date)
	}
	sort.Strings(sum.MarkedDays)

	sum.Metrics.DaysWorked = len(sum.DayTotals)
	if sum.Metrics.DaysWorked > 0 {
		sum.Metrics.Average = round1(sum.Metrics.Total / float64(sum.Metrics.DaysWorked))
	}
	sum.Metrics.ProgressPercent = Progress(sum.Metrics.Total)
	return sum
}

// Progress maps total hours onto 0..100 against MonthlyTarget.
func Progress(total float64) int {
	p := math.Round(total / MonthlyTarget * 100)
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return int(p)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// ValidMonth checks a YYYY-MM month key.
func ValidMonth(month string) error {
	if _, err := time.Parse("2006-01", month); err != nil {
		return errs.Invalid("month", "must be YYYY-MM")
	}
	return nil
}

// FilterMonth keeps the records dated within month (YYYY-MM).
func FilterMonth(records []domain.TimeRecord, month string) []domain.TimeRecord {
	prefix := month + "-"
	var out []domain.TimeRecord
	for _, r := range records {
		if strings.HasPrefix(r.Date, prefix) {
			out = append(out, r)
		}
	}
	return out
}

type Inactivity struct {
	Days        int  `json:"days"`
	Inactive    bool `json:"inactive"`
	NeverActive bool `json:"neverActive"`
}

// CheckInactivity counts whole days since last. A user with no activity
// at all reports one day.
func CheckInactivity(last *time.Time, now time.Time, alertsEnabled bool) Inactivity {
	if last == nil {
		return Inactivity{Days: 1, Inactive: alertsEnabled, NeverActive: true}
	}
	days := int(math.Floor(now.Sub(*last).Hours() / 24))
	if days < 0 {
		days = 0
	}
	return Inactivity{Days: days, Inactive: alertsEnabled && days >= 1}
}

// BusinessDaysInactive counts weekdays that are not holidays after
// lastDate, stepping one day at a time while the cursor is before now.
func BusinessDaysInactive(lastDate string, now time.Time, holidays map[string]bool) (int, error) {
	start, err := time.ParseInLocation(dateLayout, lastDate, now.Location())
	if err != nil {
		return 0, errs.Invalid("date", "must be YYYY-MM-DD, got %q", lastDate)
	}
	if !start.Before(now) {
		return 0, nil
	}
	n := 0
	for cur := start.AddDate(0, 0, 1); cur.Before(now); cur = cur.AddDate(0, 0, 1) {
		switch cur.Weekday() {
		case time.Saturday, time.Sunday:
			continue
		}
		if holidays[cur.Format(dateLayout)] {
			continue
		}
		n++
	}
	return n, nil
}
