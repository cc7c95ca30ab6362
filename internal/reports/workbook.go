package reports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	"github.com/xuri/excelize/v2"
)

// Sheet names of the exported workbook.
const (
	SheetSummary = "Summary"
	SheetDoors   = "Doors"
	SheetLocks   = "Locks"
)

var (
	doorHeader = []string{"Name", "Location", "State", "Active", "Lock Engaged", "Updated At"}
	lockHeader = []string{"Door", "Engaged", "Changed By", "Changed At", "Notes"}
)

func buildWorkbook(summary *Summary, doors []doorLine, locks []lockLine) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	// The default sheet is renamed rather than deleted so index 0 stays valid.
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeRows(f, SheetSummary, headerStyle, []string{"Metric", "Value"}, summaryRows(summary)); err != nil {
		return nil, err
	}

	doorRows := make([][]any, 0, len(doors))
	for _, d := range doors {
		doorRows = append(doorRows, []any{
			d.Name, d.Location, string(d.State), yesNo(d.IsActive),
			yesNo(d.LockEngaged != nil && *d.LockEngaged), formatTime(d.UpdatedAt),
		})
	}
	if _, err := f.NewSheet(SheetDoors); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := writeRows(f, SheetDoors, headerStyle, doorHeader, doorRows); err != nil {
		return nil, err
	}

	lockRows := make([][]any, 0, len(locks))
	for _, l := range locks {
		lockRows = append(lockRows, []any{
			l.DoorName, yesNo(l.Engaged), deref(l.ChangedBy), formatTime(l.ChangedAt), deref(l.Notes),
		})
	}
	if _, err := f.NewSheet(SheetLocks); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := writeRows(f, SheetLocks, headerStyle, lockHeader, lockRows); err != nil {
		return nil, err
	}

	f.SetActiveSheet(0)
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func summaryRows(s *Summary) [][]any {
	rows := [][]any{
		{"Generated At", formatTime(s.GeneratedAt)},
		{"Identities", s.Identities.Total},
		{"Active Identities", s.Identities.Active},
		{"Superusers", s.Identities.Superusers},
		{"Profiles", s.Profiles.Total},
		{"Active Profiles", s.Profiles.Active},
		{"Inactive Profiles", s.Profiles.Inactive},
		{"Unprovisioned Profiles", s.Profiles.Unprovisioned},
	}
	for _, role := range enums.Roles() {
		rows = append(rows, []any{"Profiles: " + role.String(), s.Profiles.ByRole[role]})
	}
	return append(rows,
		[]any{"Doors", s.Doors.Total},
		[]any{"Open Doors", s.Doors.Open},
		[]any{"Closed Doors", s.Doors.Closed},
		[]any{"Inactive Doors", s.Doors.Inactive},
		[]any{"Locks", s.Locks.Total},
		[]any{"Engaged Locks", s.Locks.Engaged},
		[]any{"Disengaged Locks", s.Locks.Disengaged},
	)
}

func writeRows(f *excelize.File, sheet string, headerStyle int, header []string, rows [][]any) error {
	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerRow); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", lastCol, 22)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
