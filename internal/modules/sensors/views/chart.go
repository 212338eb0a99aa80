package views

import (
	"bytes"
	"fmt"
	"html/template"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Series is one line of a chart. Values are plotted at x = Offset+i.
type Series struct {
	Label  string
	Color  string
	Values []float64
	Offset int
	Dashed bool
	// Dots marks every point with a circle.
	Dots bool
}

// Chart describes a line chart rendered to inline SVG by gonum/plot.
type Chart struct {
	YLabel string
	Series []Series
	// Threshold draws a dotted horizontal line when HasThreshold is set.
	Threshold    float64
	HasThreshold bool
	// XStart and XEnd label the ends of the x axis.
	XStart, XEnd string
}

const (
	chartWidth  vg.Length = 720
	chartHeight vg.Length = 300
)

var palette = map[string]color.RGBA{
	"red":    {R: 0xdc, G: 0x35, B: 0x45, A: 0xff},
	"orange": {R: 0xfd, G: 0x7e, B: 0x14, A: 0xff},
	"blue":   {R: 0x0d, G: 0x6e, B: 0xfd, A: 0xff},
	"green":  {R: 0x19, G: 0x87, B: 0x54, A: 0xff},
	"gray":   {R: 0x55, G: 0x55, B: 0x55, A: 0xff},
}

func colorFor(name string) color.Color {
	if c, ok := palette[name]; ok {
		return c
	}
	return color.Black
}

func (c Chart) empty() bool {
	for _, s := range c.Series {
		if len(s.Values) > 0 {
			return false
		}
	}
	return true
}

// SVG renders the chart as an inline svg element wrapped in a div. A chart
// without values renders nothing.
func (c Chart) SVG() (template.HTML, error) {
	if c.empty() {
		return "", nil
	}

	p := plot.New()
	p.Y.Label.Text = c.YLabel
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	xMax := 0
	for _, s := range c.Series {
		if len(s.Values) == 0 {
			continue
		}
		xys := make(plotter.XYs, len(s.Values))
		for i, v := range s.Values {
			x := s.Offset + i
			xys[i] = plotter.XY{X: float64(x), Y: v}
			xMax = max(xMax, x)
		}

		line, err := plotter.NewLine(xys)
		if err != nil {
			return "", fmt.Errorf("series %q: %w", s.Label, err)
		}
		col := colorFor(s.Color)
		line.Color = col
		line.Width = vg.Points(2)
		if s.Dashed {
			line.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
		}
		p.Add(line)
		thumbs := []plot.Thumbnailer{line}

		if s.Dots {
			dots, err := plotter.NewScatter(xys)
			if err != nil {
				return "", fmt.Errorf("series %q: %w", s.Label, err)
			}
			dots.Color = col
			dots.Radius = vg.Points(2.5)
			dots.Shape = draw.CircleGlyph{}
			p.Add(dots)
			thumbs = append(thumbs, dots)
		}
		p.Legend.Add(s.Label, thumbs...)
	}

	if c.HasThreshold {
		th := c.Threshold
		fn := plotter.NewFunction(func(float64) float64 { return th })
		fn.Color = palette["red"]
		fn.Width = vg.Points(1)
		fn.Dashes = []vg.Length{vg.Points(2), vg.Points(4)}
		p.Add(fn)
		p.Legend.Add("Threshold", fn)
		// Functions carry no data range; keep the line in view.
		p.Y.Min = math.Min(p.Y.Min, th)
		p.Y.Max = math.Max(p.Y.Max, th)
	}

	p.X.Min, p.X.Max = 0, float64(xMax)
	p.X.Tick.Marker = c.xTicks(xMax)

	wt, err := p.WriterTo(chartWidth, chartHeight, "svg")
	if err != nil {
		return "", fmt.Errorf("render chart: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return "", fmt.Errorf("write chart: %w", err)
	}
	// Drop the XML prolog; the element is inlined into HTML.
	out := buf.Bytes()
	if i := bytes.Index(out, []byte("<svg")); i > 0 {
		out = out[i:]
	}
	return template.HTML(`<div class="chart">` + string(bytes.TrimSpace(out)) + `</div>`), nil
}

// xTicks labels only the two ends of the axis with timestamps.
func (c Chart) xTicks(xMax int) plot.Ticker {
	var ticks []plot.Tick
	if c.XStart != "" {
		ticks = append(ticks, plot.Tick{Value: 0, Label: c.XStart})
	}
	if c.XEnd != "" && xMax > 0 {
		ticks = append(ticks, plot.Tick{Value: float64(xMax), Label: c.XEnd})
	}
	if len(ticks) == 0 {
		return plot.DefaultTicks{}
	}
	return plot.ConstantTicks(ticks)
}
