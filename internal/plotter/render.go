// Package plotter renders a window's accelerometer and gyro traces to a PNG
// image, one image per window.
package plotter

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/banshee-data/motion.report/internal/telemetry"
	"github.com/banshee-data/motion.report/internal/window"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Image dimensions.
const (
	Width  = 16 * vg.Inch
	Height = 8 * vg.Inch
)

// TitleLayout formats the window start time in the figure title.
const TitleLayout = "2006-01-02 15:04:05"

var (
	accelColors = [3]color.Color{
		color.RGBA{R: 255, A: 255},
		color.RGBA{G: 128, A: 255},
		color.RGBA{B: 255, A: 255},
	}
	gyroColors = [3]color.Color{
		color.RGBA{G: 191, B: 191, A: 255},
		color.RGBA{R: 191, B: 191, A: 255},
		color.RGBA{R: 191, G: 191, A: 255},
	}
	rowNames = [3]string{"X", "Y", "Z"}
)

// Title returns the figure title of w.
func Title(w *window.Window) string {
	return fmt.Sprintf("Motion (start time: %s)", w.Start.Format(TitleLayout))
}

// Plots builds the 3x2 grid of subplots for w: acceleration axes in the left
// column and scaled gyro axes in the right. All subplots share their x and y
// ranges.
func Plots(w *window.Window) ([][]*plot.Plot, error) {
	plots := make([][]*plot.Plot, 3)
	for row := range plots {
		plots[row] = make([]*plot.Plot, 2)
		for col := range plots[row] {
			axis := telemetry.Axes[col*3+row]
			p := plot.New()
			p.Y.Label.Text = rowNames[row]
			if axis.IsGyro() {
				p.Y.Label.Text = rowNames[row] + " (0.4K)"
			}
			if row == 0 {
				p.Title.Text = "Acceleration"
				if col == 1 {
					p.Title.Text = "Gyro"
				}
			}
			if row == len(plots)-1 {
				p.X.Label.Text = "time"
			}
			if w.Count > 0 {
				line, err := trace(w, axis)
				if err != nil {
					return nil, err
				}
				p.Add(line)
			}
			plots[row][col] = p
		}
	}
	shareRanges(plots)
	return plots, nil
}

// trace returns the coloured line of one axis of w.
func trace(w *window.Window, axis telemetry.Axis) (*plotter.Line, error) {
	line, err := plotter.NewLine(points(w.X, w.Axis(axis)))
	if err != nil {
		return nil, fmt.Errorf("%s trace: %w", axis, err)
	}
	row := int(axis) % 3
	line.Color = accelColors[row]
	if axis.IsGyro() {
		line.Color = gyroColors[row]
	}
	line.Width = vg.Points(1)
	return line, nil
}

func points(xs, ys []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(xs))
	for i := range xs {
		x, y := xs[i], ys[i]
		if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: x, Y: y})
	}
	return pts
}

func shareRanges(plots [][]*plot.Plot) {
	xmin, xmax := math.Inf(1), math.Inf(-1)
	ymin, ymax := math.Inf(1), math.Inf(-1)
	for _, row := range plots {
		for _, p := range row {
			xmin, xmax = math.Min(xmin, p.X.Min), math.Max(xmax, p.X.Max)
			ymin, ymax = math.Min(ymin, p.Y.Min), math.Max(ymax, p.Y.Max)
		}
	}
	if xmin > xmax || ymin > ymax {
		return
	}
	for _, row := range plots {
		for _, p := range row {
			p.X.Min, p.X.Max = xmin, xmax
			p.Y.Min, p.Y.Max = ymin, ymax
		}
	}
}

// Render draws w as a titled 3x2 PNG and writes it to out.
func Render(w *window.Window, out io.Writer) error {
	plots, err := Plots(w)
	if err != nil {
		return err
	}

	img := vgimg.New(Width, Height)
	dc := draw.New(img)

	titleStyle := text.Style{
		Color:   color.Black,
		Font:    font.From(plot.DefaultFont, 16),
		Handler: plot.DefaultTextHandler,
		XAlign:  draw.XCenter,
		YAlign:  draw.YTop,
	}
	titleHeight := titleStyle.Height(Title(w)) + vg.Points(10)
	dc.FillText(titleStyle, vg.Point{X: (dc.Min.X + dc.Max.X) / 2, Y: dc.Max.Y - vg.Points(5)}, Title(w))

	tiles := draw.Tiles{
		Rows:      3,
		Cols:      2,
		PadX:      vg.Millimeter * 4,
		PadY:      vg.Millimeter * 3,
		PadTop:    titleHeight,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 2,
		PadRight:  vg.Millimeter * 4,
	}
	canvases := plot.Align(plots, tiles, dc)
	for row := range plots {
		for col := range plots[row] {
			plots[row][col].Draw(canvases[row][col])
		}
	}

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(out); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}
