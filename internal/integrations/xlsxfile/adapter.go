package xlsxfile

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"fleetvrp/internal/integrations"
)

// Adapter reads the customer table from an Excel workbook. Sheet selects the
// worksheet; empty means the first one.
type Adapter struct {
	Sheet string
}

func (a Adapter) Name() string { return "xlsx" }

func (a Adapter) Load(ctx context.Context, path string) (integrations.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return integrations.Table{}, fmt.Errorf("xlsx: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	sheet := a.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return integrations.Table{}, fmt.Errorf("xlsx: %s has no sheets", path)
		}
		sheet = sheets[0]
	}
	if err := ctx.Err(); err != nil {
		return integrations.Table{}, err
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return integrations.Table{}, fmt.Errorf("xlsx: read sheet %s: %w", sheet, err)
	}
	return integrations.ParseRecords(rows)
}
