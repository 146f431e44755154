package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const routesSheet = "Routes"

// XLSX writes one row per visited stop plus a total row to a new workbook.
func XLSX(path string, s Summary) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if _, err := f.NewSheet(routesSheet); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(routesSheet)
	if err != nil {
		return err
	}
	if err := sw.SetRow("A1", []any{"Vehicle", "Sequence", "Node", "Route Distance"}); err != nil {
		return err
	}
	row := 2
	for _, r := range s.Routes {
		for seq, n := range r.Stops {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			if err := sw.SetRow(cell, []any{r.VehicleID, seq, n, r.Distance}); err != nil {
				return err
			}
			row++
		}
	}
	cell, _ := excelize.CoordinatesToCellName(1, row)
	if err := sw.SetRow(cell, []any{"Total", "", "", s.TotalDistance}); err != nil {
		return err
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("xlsx: drop default sheet: %w", err)
	}
	index, err := f.GetSheetIndex(routesSheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	return f.SaveAs(path)
}
