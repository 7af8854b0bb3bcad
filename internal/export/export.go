// Package export writes monthly statistics to spreadsheets and reads
// holiday calendars from them.
package export

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"trackly/internal/stats"
)

const (
	SummarySheet = "Summary"
	DaysSheet    = "Days"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var summaryHeader = []any{"User", "Email", "Total hours", "Days worked", "Average", "Max day", "Progress %", "Last activity", "Business days inactive", "Report"}

// MonthlyWorkbook builds a workbook with one Summary row per user and a
// Days sheet of per-day totals.
func MonthlyWorkbook(month string, rows []stats.UserMonth) (*excelize.File, error) {
	start, err := time.Parse("2006-01", month)
	if err != nil {
		return nil, fmt.Errorf("invalid month %q", month)
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(DaysSheet); err != nil {
		f.Close()
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}

	if err := writeSummary(f, rows, bold); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeDays(f, start, rows, bold); err != nil {
		f.Close()
		return nil, err
	}
	f.SetActiveSheet(0)
	return f, nil
}

func writeSummary(f *excelize.File, rows []stats.UserMonth, bold int) error {
	header := append([]any(nil), summaryHeader...)
	if err := f.SetSheetRow(SummarySheet, "A1", &header); err != nil {
		return err
	}
	if err := f.SetRowStyle(SummarySheet, 1, 1, bold); err != nil {
		return err
	}
	for i, r := range rows {
		m := r.Summary.Metrics
		values := []any{r.UserName, r.Email, m.Total, m.DaysWorked, m.Average, m.MaxDayHours, m.ProgressPercent, r.LastActivity, r.BusinessDaysInactive, r.ReportStatus}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &values); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(SummarySheet, "A", "B", 24); err != nil {
		return err
	}
	return f.SetPanes(SummarySheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func writeDays(f *excelize.File, start time.Time, rows []stats.UserMonth, bold int) error {
	days := daysIn(start)
	header := []any{"User"}
	for d := 1; d <= days; d++ {
		header = append(header, start.AddDate(0, 0, d-1).Format("2006-01-02"))
	}
	if err := f.SetSheetRow(DaysSheet, "A1", &header); err != nil {
		return err
	}
	if err := f.SetRowStyle(DaysSheet, 1, 1, bold); err != nil {
		return err
	}
	for i, r := range rows {
		values := []any{r.UserName}
		for d := 1; d <= days; d++ {
			date := start.AddDate(0, 0, d-1).Format("2006-01-02")
			if v, ok := r.Summary.DayTotals[date]; ok {
				values = append(values, v)
			} else {
				values = append(values, nil)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(DaysSheet, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

func daysIn(monthStart time.Time) int {
	return monthStart.AddDate(0, 1, -1).Day()
}

// WriteMonthly streams the monthly workbook to w.
func WriteMonthly(w io.Writer, month string, rows []stats.UserMonth) error {
	f, err := MonthlyWorkbook(month, rows)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// ReadHolidays collects every YYYY-MM-DD cell from every sheet of an
// .xlsx calendar. Other cells, headers included, are ignored.
func ReadHolidays(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open calendar: %w", err)
	}
	defer f.Close()
	set := map[string]bool{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		for _, row := range rows {
			for _, cell := range row {
				cell = strings.TrimSpace(cell)
				if _, err := time.Parse("2006-01-02", cell); err == nil {
					set[cell] = true
				}
			}
		}
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}
