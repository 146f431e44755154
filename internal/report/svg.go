package report

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"fleetvrp/internal/model"
)

// Palette cycles per vehicle.
var Palette = []string{"red", "blue", "green", "orange", "purple", "brown", "pink", "gray", "olive", "cyan"}

var paletteRGB = map[string]color.RGBA{
	"red":    {R: 0xff, A: 0xff},
	"blue":   {B: 0xff, A: 0xff},
	"green":  {G: 0x80, A: 0xff},
	"orange": {R: 0xff, G: 0xa5, A: 0xff},
	"purple": {R: 0x80, B: 0x80, A: 0xff},
	"brown":  {R: 0xa5, G: 0x2a, B: 0x2a, A: 0xff},
	"pink":   {R: 0xff, G: 0xc0, B: 0xcb, A: 0xff},
	"gray":   {R: 0x80, G: 0x80, B: 0x80, A: 0xff},
	"olive":  {R: 0x80, G: 0x80, A: 0xff},
	"cyan":   {G: 0xff, B: 0xff, A: 0xff},
}

const (
	plotTitle  = "Vehicle Routing Problem Solution"
	plotWidth  = 10 * vg.Inch
	plotHeight = 6 * vg.Inch
)

// RouteColor is the palette colour for a vehicle.
func RouteColor(vehicleID int) color.Color {
	return paletteRGB[Palette[vehicleID%len(Palette)]]
}

// SVG plots the depot and every used route with axis labels, grid and
// legend. Routes that never leave the depot are omitted from both plot and
// legend.
func SVG(w io.Writer, locs []model.Location, s Summary) error {
	p, err := routePlot(locs, s)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(plotWidth, plotHeight, "svg")
	if err != nil {
		return fmt.Errorf("render svg: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

func routePlot(locs []model.Location, s Summary) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = plotTitle
	p.X.Label.Text = "X Coordinate"
	p.Y.Label.Text = "Y Coordinate"
	p.Add(plotter.NewGrid())

	if len(locs) > model.Depot {
		depot, err := plotter.NewScatter(plotter.XYs{{X: locs[model.Depot].X, Y: locs[model.Depot].Y}})
		if err != nil {
			return nil, fmt.Errorf("plot depot: %w", err)
		}
		depot.GlyphStyle.Shape = draw.BoxGlyph{}
		depot.GlyphStyle.Color = color.Black
		depot.GlyphStyle.Radius = vg.Points(5)
		p.Add(depot)
		p.Legend.Add("Depot", depot)
	}

	for _, r := range s.Routes {
		if len(r.Stops) <= 2 {
			continue
		}
		pts := make(plotter.XYs, 0, len(r.Stops))
		for _, n := range r.Stops {
			if n < 0 || n >= len(locs) {
				continue
			}
			pts = append(pts, plotter.XY{X: locs[n].X, Y: locs[n].Y})
		}
		if len(pts) < 2 {
			continue
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return nil, fmt.Errorf("plot vehicle %d: %w", r.VehicleID, err)
		}
		c := RouteColor(r.VehicleID)
		line.LineStyle.Color = c
		line.LineStyle.Width = vg.Points(1.5)
		points.GlyphStyle.Shape = draw.CircleGlyph{}
		points.GlyphStyle.Color = c
		p.Add(line, points)
		p.Legend.Add(fmt.Sprintf("Vehicle %d", r.VehicleID), line, points)
	}
	return p, nil
}
