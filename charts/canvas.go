package charts

import (
	"image/color"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const dpi = 150

var (
	targetColor = color.RGBA{R: 128, G: 128, B: 128, A: 160}
	reachColor  = color.RGBA{G: 128, A: 200}
	dashed      = []vg.Length{vg.Points(6), vg.Points(3)}
)

func seriesColor(i int) color.Color {
	return plotutil.Color(i)
}

func newPanel(title, xLabel, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	return p
}

// addLine draws xys onto p and returns the line, or nil when xys is empty.
// Markers are drawn when marked is set. An empty label keeps the series out
// of the legend.
func addLine(p *plot.Plot, xys plotter.XYs, label string, c color.Color, marked bool, dashes []vg.Length) (*plotter.Line, error) {
	if len(xys) == 0 {
		return nil, nil
	}
	if marked {
		line, points, err := plotter.NewLinePoints(xys)
		if err != nil {
			return nil, errors.Wrapf(err, "series %s", label)
		}
		line.Color = c
		line.Width = vg.Points(1.5)
		line.Dashes = dashes
		points.Color = c
		points.Radius = vg.Points(2)
		p.Add(line, points)
		if label != "" {
			p.Legend.Add(label, line, points)
		}
		return line, nil
	}

	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, errors.Wrapf(err, "series %s", label)
	}
	line.Color = c
	line.Width = vg.Points(1.5)
	line.Dashes = dashes
	p.Add(line)
	if label != "" {
		p.Legend.Add(label, line)
	}
	return line, nil
}

// addHLine draws a dashed horizontal reference line at y.
func addHLine(p *plot.Plot, y float64, label string, c color.Color) {
	f := plotter.NewFunction(func(float64) float64 { return y })
	f.Color = c
	f.Width = vg.Points(1)
	f.Dashes = dashed
	p.Add(f)
	p.Legend.Add(label, f)
}

// saveStacked renders panels top to bottom into a single PNG at path.
func saveStacked(panels []*plot.Plot, width, panelHeight vg.Length, path string) error {
	img := vgimg.NewWith(
		vgimg.UseWH(width, panelHeight*vg.Length(len(panels))),
		vgimg.UseDPI(dpi),
	)
	dc := draw.New(img)

	tiles := draw.Tiles{
		Rows:      len(panels),
		Cols:      1,
		PadTop:    vg.Points(6),
		PadBottom: vg.Points(6),
		PadLeft:   vg.Points(6),
		PadRight:  vg.Points(12),
		PadY:      vg.Points(18),
	}
	grid := make([][]*plot.Plot, len(panels))
	for i, p := range panels {
		grid[i] = []*plot.Plot{p}
	}
	canvases := plot.Align(grid, tiles, dc)
	for i := range grid {
		grid[i][0].Draw(canvases[i][0])
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create output directory")
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return f.Close()
}
