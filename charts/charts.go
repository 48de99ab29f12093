// Package charts renders analytics as PNG bar charts.
package charts

import (
	"errors"
	"io"
	"sort"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"resolution-dashboard/analytics"
)

// Kind names a chart.
type Kind string

const (
	KindRecommendations Kind = "recommendations"
	KindResolutions     Kind = "resolutions"
	KindTagAccuracy     Kind = "tags"
)

// MaxTags caps the number of bars in the tag accuracy chart.
const MaxTags = 12

var ErrUnknownKind = errors.New("unknown chart kind")

var outcomeOrder = []string{"p1", "p2", "p3", "p4"}

var (
	colorCorrect = drawing.ColorFromHex("2e7d32")
	colorNeutral = drawing.ColorFromHex("1565c0")
	colorMuted   = drawing.ColorFromHex("9e9e9e")
)

// Kinds lists every chart that can be rendered.
func Kinds() []Kind {
	return []Kind{KindRecommendations, KindResolutions, KindTagAccuracy}
}

// Render writes the chart of the given kind as PNG to w.
func Render(w io.Writer, kind Kind, a analytics.Analytics) error {
	var bc chart.BarChart
	switch kind {
	case KindRecommendations:
		bc = distribution("Recommendations", a.RecommendationDist)
	case KindResolutions:
		bc = distribution("Resolutions", a.ResolutionDist)
	case KindTagAccuracy:
		bc = tagAccuracy(a.Tags)
	default:
		return ErrUnknownKind
	}
	return bc.Render(chart.PNG, w)
}

func distribution(title string, dist map[string]int) chart.BarChart {
	var bars []chart.Value
	for _, key := range distributionKeys(dist) {
		color := colorNeutral
		if !isOutcome(key) {
			color = colorMuted
		}
		bars = append(bars, chart.Value{
			Label: key,
			Value: float64(dist[key]),
			Style: chart.Style{FillColor: color, StrokeColor: color},
		})
	}
	return barChart(title, bars, 0)
}

func tagAccuracy(tags []analytics.TagStats) chart.BarChart {
	var bars []chart.Value
	for _, t := range tags {
		if t.Total == 0 {
			continue
		}
		bars = append(bars, chart.Value{
			Label: t.Tag,
			Value: t.Accuracy,
			Style: chart.Style{FillColor: colorCorrect, StrokeColor: colorCorrect},
		})
		if len(bars) == MaxTags {
			break
		}
	}
	return barChart("Accuracy by tag (%)", bars, 100)
}

// barChart builds a chart with a y axis from zero to max(values, floor).
func barChart(title string, bars []chart.Value, floor float64) chart.BarChart {
	if len(bars) == 0 {
		bars = []chart.Value{{Label: "no data", Value: 0}}
	}
	top := floor
	for _, b := range bars {
		if b.Value > top {
			top = b.Value
		}
	}
	if top == 0 {
		top = 1
	}

	return chart.BarChart{
		Title:      title,
		Width:      720,
		Height:     360,
		BarWidth:   48,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: top},
		},
		Bars: bars,
	}
}

// distributionKeys orders outcome buckets first, then the rest by name.
func distributionKeys(dist map[string]int) []string {
	var keys []string
	for _, o := range outcomeOrder {
		if _, ok := dist[o]; ok {
			keys = append(keys, o)
		}
	}
	var rest []string
	for k := range dist {
		if !isOutcome(k) {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func isOutcome(k string) bool {
	for _, o := range outcomeOrder {
		if k == o {
			return true
		}
	}
	return false
}
