package render

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/i474232898/teleconnection-forecast/internal/teleconnection"
)

const (
	DefaultWidth  = 1200
	DefaultHeight = 800

	// Index values are conventionally bounded by +/-4 standard deviations.
	yMin = -4.0
	yMax = 4.0

	// x range used when the dataset has no hours to span.
	defaultMaxHour = 384.0
)

var (
	zeroLineColor = drawing.ColorFromHex("008000")
	gridColor     = drawing.ColorFromHex("cccccc")
)

// ChartRenderer draws a dataset as a PNG line chart.
type ChartRenderer struct {
	Width  int
	Height int
}

// NewChartRenderer returns a renderer of the given size; non-positive
// dimensions fall back to the defaults.
func NewChartRenderer(width, height int) *ChartRenderer {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &ChartRenderer{Width: width, Height: height}
}

// Render draws one line per model plus the zero reference line and encodes
// the chart as PNG.
func (r *ChartRenderer) Render(ds *teleconnection.ModelDataset, labels teleconnection.ChartLabels) ([]byte, error) {
	ch, err := r.build(ds, labels)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("encoding chart: %w", err)
	}
	return buf.Bytes(), nil
}

// build assembles the chart definition without rendering it.
func (r *ChartRenderer) build(ds *teleconnection.ModelDataset, labels teleconnection.ChartLabels) (chart.Chart, error) {
	var (
		series   []chart.Series
		buildErr error
		minX     = 0.0
		maxX     = defaultMaxHour
		haveX    bool
	)

	i := 0
	ds.Each(func(model string, s teleconnection.ForecastSeries) {
		if buildErr != nil {
			return
		}
		if err := s.Validate(); err != nil {
			buildErr = fmt.Errorf("model %s: %w", model, err)
			return
		}

		xs := make([]float64, len(s.Hours))
		for j, h := range s.Hours {
			x := float64(h)
			xs[j] = x
			if !haveX || x < minX {
				minX = x
			}
			if !haveX || x > maxX {
				maxX = x
			}
			haveX = true
		}
		ys := make([]float64, len(s.Values))
		copy(ys, s.Values)

		col := chart.GetDefaultColor(i)
		series = append(series, chart.ContinuousSeries{
			Name:    model,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: col,
				StrokeWidth: 2,
				DotColor:    col,
				DotWidth:    4,
			},
		})
		i++
	})
	if buildErr != nil {
		return chart.Chart{}, buildErr
	}
	if maxX <= minX {
		maxX = minX + 1
	}

	modelSeries := len(series)
	series = append(series, chart.ContinuousSeries{
		XValues: []float64{minX, maxX},
		YValues: []float64{0, 0},
		Style: chart.Style{
			StrokeColor:     zeroLineColor,
			StrokeWidth:     2,
			StrokeDashArray: []float64{6, 4},
		},
	})

	index := cases.Upper(language.Und).String(string(labels.Index))
	grid := chart.Style{StrokeColor: gridColor, StrokeWidth: 1}

	ch := chart.Chart{
		Title:      fmt.Sprintf("%s Forecast Plot: %sZ %s", index, labels.Run, labels.Date.Format("20060102")),
		Width:      r.Width,
		Height:     r.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:           "Hour",
			ValueFormatter: chart.IntValueFormatter,
			Range:          &chart.ContinuousRange{Min: minX, Max: maxX},
			GridMajorStyle: grid,
		},
		YAxis: chart.YAxis{
			Name:           "Daily " + index,
			Range:          &chart.ContinuousRange{Min: yMin, Max: yMax},
			GridMajorStyle: grid,
		},
		Series: series,
	}

	if modelSeries > 0 {
		// The legend reads from its own chart so the reference line stays unlabeled.
		legendSource := ch
		legendSource.Series = series[:modelSeries]
		ch.Elements = []chart.Renderable{chart.Legend(&legendSource)}
	}
	return ch, nil
}
