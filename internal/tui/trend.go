package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/pfrederiksen/bimmerctl/internal/store"
)

// TimeRange selects how far back the trend chart reaches.
type TimeRange int

const (
	Range24Hours TimeRange = iota
	Range7Days
	Range30Days
)

func (r TimeRange) String() string {
	switch r {
	case Range24Hours:
		return "Last 24 Hours"
	case Range7Days:
		return "Last 7 Days"
	case Range30Days:
		return "Last 30 Days"
	default:
		return "Unknown"
	}
}

func (r TimeRange) duration() time.Duration {
	switch r {
	case Range7Days:
		return 7 * 24 * time.Hour
	case Range30Days:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// TrendView charts the recorded battery level of one vehicle from the
// local snapshot store.
type TrendView struct {
	store     *store.Store
	timeRange TimeRange

	levels   []float64
	loadedAt time.Time
	loaded   string
}

// NewTrendView creates a new trend view over the snapshot store. A nil
// store disables the view.
func NewTrendView(st *store.Store) *TrendView {
	return &TrendView{store: st, timeRange: Range24Hours}
}

// CycleRange advances to the next time range and forces a reload.
func (v *TrendView) CycleRange() {
	v.timeRange = (v.timeRange + 1) % 3
	v.loadedAt = time.Time{}
}

// Render renders the battery trend chart for a VIN.
func (v *TrendView) Render(vin string, width, height int) string {
	titleStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#00ffff")).
		Bold(true).
		MarginTop(1).
		MarginBottom(1)

	title := titleStyle.Render(fmt.Sprintf("📈 Battery Trend (%s)", v.timeRange))

	if v.store == nil {
		return title + "\n\n" + v.renderNotice("Snapshot store is disabled")
	}

	if v.loaded != vin || time.Since(v.loadedAt) > 30*time.Second {
		v.load(vin)
	}

	if len(v.levels) == 0 {
		return title + "\n\n" + v.renderNotice("No snapshots recorded yet\n\nThe chart fills in as the watch keeps polling")
	}

	if len(v.levels) == 1 {
		return title + "\n\n" + v.renderNotice(fmt.Sprintf("Battery: %.1f%%\n\nNeed at least 2 snapshots to draw a chart", v.levels[0]))
	}

	chartWidth := width - 12
	if chartWidth < 20 {
		chartWidth = 20
	}
	chartHeight := height - 8
	if chartHeight < 5 {
		chartHeight = 5
	}

	graph := asciigraph.Plot(
		v.levels,
		asciigraph.Height(chartHeight),
		asciigraph.Width(chartWidth),
		asciigraph.Caption("battery %"),
	)

	graphStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#5f5fff")).
		Padding(1)

	return title + "\n" + graphStyle.Render(graph) + "\n" + v.renderStats()
}

func (v *TrendView) load(vin string) {
	since := time.Now().Add(-v.timeRange.duration())
	levels, err := v.store.BatteryTrend(context.Background(), vin, since)
	if err != nil {
		return
	}
	v.levels = levels
	v.loaded = vin
	v.loadedAt = time.Now()
}

func (v *TrendView) renderNotice(msg string) string {
	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		Padding(1)
	return style.Render(msg)
}

func (v *TrendView) renderStats() string {
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff")).Bold(true)

	min, max := v.levels[0], v.levels[0]
	for _, l := range v.levels {
		if l < min {
			min = l
		}
		if l > max {
			max = l
		}
	}
	change := v.levels[len(v.levels)-1] - v.levels[0]

	changeStr := fmt.Sprintf("%+.1f%%", change)
	switch {
	case change > 0:
		changeStr = valueStyle.Foreground(lipgloss.Color("#00ff00")).Render(changeStr)
	case change < 0:
		changeStr = valueStyle.Foreground(lipgloss.Color("#ff0000")).Render(changeStr)
	default:
		changeStr = valueStyle.Render(changeStr)
	}

	stats := fmt.Sprintf("%s %s  │  %s %.1f%%  │  %s %.1f%%  │  %s %s",
		labelStyle.Render("Current:"),
		valueStyle.Render(fmt.Sprintf("%.1f%%", v.levels[len(v.levels)-1])),
		labelStyle.Render("Min:"),
		min,
		labelStyle.Render("Max:"),
		max,
		labelStyle.Render("Change:"),
		changeStr,
	)

	statStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#5f5fff")).
		Padding(0, 1)

	return statStyle.Render(stats)
}
