package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"fleetvrp/internal/integrations"
)

// Adapter reads a comma-separated customer table.
type Adapter struct{}

func (a Adapter) Name() string { return "csv" }

func (a Adapter) Load(ctx context.Context, path string) (integrations.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return integrations.Table{}, fmt.Errorf("csv: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return a.Read(ctx, f)
}

// Read parses a table from r.
func (a Adapter) Read(ctx context.Context, r io.Reader) (integrations.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	var records [][]string
	for {
		if err := ctx.Err(); err != nil {
			return integrations.Table{}, err
		}
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return integrations.Table{}, fmt.Errorf("csv: read: %w", err)
		}
		records = append(records, rec)
	}
	return integrations.ParseRecords(records)
}
