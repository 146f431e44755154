// Package integrations loads customer tables from files into solver input.
package integrations

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"fleetvrp/internal/model"
)

// Column headers of an input table. Row 1 after the header is the depot.
const (
	ColX        = "X_coord"
	ColY        = "Y_coord"
	ColDelivery = "Delivery_Demand"
	ColPickup   = "Pickup_Demand"
)

// Loader reads one table file.
type Loader interface {
	Name() string
	Load(ctx context.Context, path string) (Table, error)
}

// Table is the collaborator boundary between file formats and the solver:
// three parallel lists indexed by node, depot first.
type Table struct {
	Locations  []model.Location
	Deliveries []int
	Pickups    []int
}

// Nodes converts the table into solver nodes.
func (t Table) Nodes() ([]model.Node, error) {
	return model.BuildNodes(t.Locations, t.Deliveries, t.Pickups)
}

// ParseRecords turns a header row plus data rows into a Table. Columns are
// matched by name, case-insensitively; extra columns are ignored and blank
// rows skipped. A missing pickup column means no pickups.
func ParseRecords(records [][]string) (Table, error) {
	if len(records) == 0 {
		return Table{}, &model.InvalidInputError{Field: "table", Reason: "empty file"}
	}
	idx := map[string]int{}
	for i, h := range records[0] {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	col := func(name string, required bool) (int, error) {
		i, ok := idx[strings.ToLower(name)]
		if !ok {
			if required {
				return -1, &model.InvalidInputError{Field: name, Reason: "column missing from header"}
			}
			return -1, nil
		}
		return i, nil
	}
	xi, err := col(ColX, true)
	if err != nil {
		return Table{}, err
	}
	yi, err := col(ColY, true)
	if err != nil {
		return Table{}, err
	}
	di, err := col(ColDelivery, true)
	if err != nil {
		return Table{}, err
	}
	pi, _ := col(ColPickup, false)

	var t Table
	for r, row := range records[1:] {
		if blank(row) {
			continue
		}
		line := r + 2
		x, err := floatCell(row, xi, ColX, line)
		if err != nil {
			return Table{}, err
		}
		y, err := floatCell(row, yi, ColY, line)
		if err != nil {
			return Table{}, err
		}
		d, err := intCell(row, di, ColDelivery, line)
		if err != nil {
			return Table{}, err
		}
		p := 0
		if pi >= 0 {
			if p, err = intCell(row, pi, ColPickup, line); err != nil {
				return Table{}, err
			}
		}
		t.Locations = append(t.Locations, model.Location{X: x, Y: y})
		t.Deliveries = append(t.Deliveries, d)
		t.Pickups = append(t.Pickups, p)
	}
	if len(t.Locations) == 0 {
		return Table{}, &model.InvalidInputError{Field: "table", Reason: "no data rows"}
	}
	return t, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func floatCell(row []string, i int, name string, line int) (float64, error) {
	v, err := strconv.ParseFloat(cell(row, i), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &model.InvalidInputError{Field: fmt.Sprintf("row %d %s", line, name), Reason: fmt.Sprintf("not a number: %q", cell(row, i))}
	}
	return v, nil
}

// intCell accepts integral floats such as "3.0", which spreadsheets emit.
func intCell(row []string, i int, name string, line int) (int, error) {
	s := cell(row, i)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, &model.InvalidInputError{Field: fmt.Sprintf("row %d %s", line, name), Reason: fmt.Sprintf("not an integer: %q", s)}
	}
	return int(f), nil
}
