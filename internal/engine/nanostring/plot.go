package nanostring

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgsvg"
)

const (
	plotHeight    = 4 * vg.Inch
	plotLaneWidth = 0.5 * vg.Inch
	plotMargin    = 1.5 * vg.Inch
	plotBoxWidth  = 0.3 * vg.Inch
)

// rlePlotSVG draws one box per lane around a dashed zero line.
func rlePlotSVG(title string, lanes []string, rle [][]float64) (string, error) {
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "RLE"
	p.Add(plotter.NewGrid())

	for i, lane := range lanes {
		box, err := plotter.NewBoxPlot(plotBoxWidth, float64(i), plotter.Values(rle[i]))
		if err != nil {
			return "", fmt.Errorf("rle box for %s: %w", lane, err)
		}
		box.FillColor = color.RGBA{R: 0x9e, G: 0xca, B: 0xe1, A: 0xff}
		p.Add(box)
	}
	zero, err := plotter.NewLine(plotter.XYs{{X: -0.5, Y: 0}, {X: float64(len(lanes)) - 0.5, Y: 0}})
	if err != nil {
		return "", err
	}
	zero.LineStyle.Color = color.Gray{Y: 0x99}
	zero.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	p.Add(zero)
	p.NominalX(lanes...)

	width := plotMargin + vg.Length(len(lanes))*plotLaneWidth
	canvas := vgsvg.New(width, plotHeight)
	p.Draw(draw.New(canvas))
	var buf bytes.Buffer
	if _, err := canvas.WriteTo(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
