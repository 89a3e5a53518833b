package scoreboardservice

import (
	"bytes"
	"context"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	scoreboardtypes "github.com/Black-And-White-Club/quiscore/pkg/types/scoreboard"
)

// ChartPalette colours rendered charts.
type ChartPalette struct {
	Background drawing.Color
	Bar        drawing.Color
	Leader     drawing.Color
	TextColor  drawing.Color
}

// DefaultChartPalette is a dark board with amber bars.
var DefaultChartPalette = ChartPalette{
	Background: drawing.ColorFromHex("101418"),
	Bar:        drawing.ColorFromHex("3d7ea6"),
	Leader:     drawing.ColorFromHex("f2a541"),
	TextColor:  drawing.ColorFromHex("e8e8e8"),
}

// ScoreboardChart renders the event's team totals.
func (s *ScoreboardService) ScoreboardChart(ctx context.Context, eventID string) ([]byte, error) {
	snap, err := s.GetScoreboard(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return GenerateScoreboardChart(snap, s.palette)
}

// GenerateScoreboardChart produces a PNG bar chart with one bar per team in
// scoreboard order. The leading team is highlighted.
func GenerateScoreboardChart(snap *scoreboardtypes.Snapshot, palette ChartPalette) ([]byte, error) {
	if snap == nil || len(snap.Teams) == 0 {
		return renderNoDataPlaceholder(palette)
	}

	leader := 0
	lo, hi := 0.0, 0.0
	for i, team := range snap.Teams {
		if team.TotalScore > snap.Teams[leader].TotalScore {
			leader = i
		}
		lo = min(lo, float64(team.TotalScore))
		hi = max(hi, float64(team.TotalScore))
	}
	// go-chart refuses an empty value range.
	if hi == lo {
		hi = lo + 1
	}

	bars := make([]chart.Value, len(snap.Teams))
	for i, team := range snap.Teams {
		fill := palette.Bar
		if i == leader {
			fill = palette.Leader
		}
		bars[i] = chart.Value{
			Label: team.Name,
			Value: float64(team.TotalScore),
			Style: chart.Style{
				FillColor:   fill,
				StrokeColor: fill,
			},
		}
	}

	graph := chart.BarChart{
		Title:  snap.EventID,
		Width:  max(400, 90*len(bars)),
		Height: 400,
		Background: chart.Style{
			FillColor: palette.Background,
			Padding:   chart.Box{Top: 40},
		},
		Canvas: chart.Style{
			FillColor: palette.Background,
		},
		TitleStyle: chart.Style{
			FontColor: palette.TextColor,
		},
		XAxis: chart.Style{
			FontColor: palette.TextColor,
		},
		YAxis: chart.YAxis{
			Style: chart.Style{
				FontColor: palette.TextColor,
			},
			Range: &chart.ContinuousRange{Min: lo, Max: hi},
		},
		UseBaseValue: true,
		BaseValue:    0,
		BarWidth:     50,
		Bars:         bars,
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// renderNoDataPlaceholder draws the message straight onto a PNG canvas.
// chart.Chart refuses to render without a series.
func renderNoDataPlaceholder(palette ChartPalette) ([]byte, error) {
	const (
		width  = 400
		height = 200
		msg    = "No teams registered yet"
	)

	r, err := chart.PNG(width, height)
	if err != nil {
		return nil, err
	}
	font, err := chart.GetDefaultFont()
	if err != nil {
		return nil, err
	}

	r.SetFillColor(palette.Background)
	r.SetStrokeColor(palette.Background)
	r.MoveTo(0, 0)
	r.LineTo(width, 0)
	r.LineTo(width, height)
	r.LineTo(0, height)
	r.Close()
	r.FillStroke()

	r.SetFont(font)
	r.SetFontColor(palette.TextColor)
	r.SetFontSize(12.0)
	tb := r.MeasureText(msg)
	r.Text(msg, (width-tb.Width())/2, (height+tb.Height())/2)

	buffer := bytes.NewBuffer([]byte{})
	if err := r.Save(buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
