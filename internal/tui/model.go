package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pfrederiksen/bimmerctl/internal/fleet"
	"github.com/pfrederiksen/bimmerctl/internal/store"
)

// StatusProvider is the slice of the fleet orchestrator the watch
// needs. Declared here so tests can substitute a stub.
type StatusProvider interface {
	Details(ctx context.Context, filter string) ([]*fleet.Vehicle, error)
}

// ViewType represents the current active view.
type ViewType int

const (
	ViewDashboard ViewType = iota
	ViewTrend
)

// Model is the Bubble Tea model for the live watch screen. It polls
// the vendor API on an interval, records each observation in the
// snapshot store, and flips between a status dashboard and a battery
// trend chart.
type Model struct {
	provider StatusProvider
	store    *store.Store
	filter   string
	interval time.Duration

	currentView ViewType
	vehicles    []*fleet.Vehicle
	selected    int
	err         error
	loading     bool

	dashboard *DashboardView
	trend     *TrendView

	width      int
	height     int
	lastUpdate time.Time
}

// NewModel creates a watch model. The store may be nil, which disables
// snapshot recording and the trend view.
func NewModel(provider StatusProvider, st *store.Store, filter string, interval time.Duration) *Model {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Model{
		provider:  provider,
		store:     st,
		filter:    filter,
		interval:  interval,
		loading:   true,
		dashboard: NewDashboardView(),
		trend:     NewTrendView(st),
	}
}

// Init starts the first fetch (Bubble Tea lifecycle method).
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), tea.EnterAltScreen)
}

// Update handles messages (Bubble Tea lifecycle method).
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case vehiclesMsg:
		m.loading = false
		if msg.err != nil {
			// Keep showing the last good data, if any.
			m.err = msg.err
			return m, m.tick()
		}
		m.err = nil
		m.vehicles = msg.vehicles
		m.lastUpdate = time.Now()
		if m.selected >= len(m.vehicles) {
			m.selected = 0
		}
		m.record(msg.vehicles)
		return m, m.tick()

	case tickMsg:
		return m, m.refresh()

	default:
		return m, nil
	}
}

// View renders the current view (Bubble Tea lifecycle method).
func (m *Model) View() string {
	if m.loading {
		return m.renderCentered("Loading vehicle data...", "#00ffff")
	}

	if len(m.vehicles) == 0 {
		if m.err != nil {
			return m.renderCentered(fmt.Sprintf("Error: %v\n\nPress 'r' to retry or 'q' to quit", m.err), "#ff0000")
		}
		return m.renderCentered("No vehicles found", "#888888")
	}

	header := m.renderHeader()

	vehicle := m.vehicles[m.selected]
	contentHeight := m.height - lipgloss.Height(header) - 3

	var content string
	switch m.currentView {
	case ViewDashboard:
		content = m.dashboard.Render(vehicle, m.width, contentHeight)
	case ViewTrend:
		content = m.trend.Render(vehicle.VIN, m.width, contentHeight)
	}

	footer := m.renderFooter()

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		content,
		footer,
	)
}

func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "1", "d":
		m.currentView = ViewDashboard
		return m, nil

	case "2", "b":
		m.currentView = ViewTrend
		return m, nil

	case "t":
		m.trend.CycleRange()
		return m, nil

	case "tab", "right":
		if len(m.vehicles) > 0 {
			m.selected = (m.selected + 1) % len(m.vehicles)
		}
		return m, nil

	case "left":
		if len(m.vehicles) > 0 {
			m.selected = (m.selected + len(m.vehicles) - 1) % len(m.vehicles)
		}
		return m, nil

	case "r":
		return m, m.refresh()

	default:
		return m, nil
	}
}

// Messages

type vehiclesMsg struct {
	vehicles []*fleet.Vehicle
	err      error
}

type tickMsg time.Time

// Commands

func (m *Model) refresh() tea.Cmd {
	return func() tea.Msg {
		vehicles, err := m.provider.Details(context.Background(), m.filter)
		return vehiclesMsg{vehicles: vehicles, err: err}
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// record saves one snapshot per vehicle. Failures are swallowed so a
// broken store never takes down the watch.
func (m *Model) record(vehicles []*fleet.Vehicle) {
	if m.store == nil {
		return
	}
	now := time.Now()
	for _, v := range vehicles {
		_ = m.store.Save(context.Background(), v, now)
	}
}

// Rendering helpers

func (m *Model) renderHeader() string {
	vehicle := m.vehicles[m.selected]
	name := strings.TrimSpace(fmt.Sprintf("%s %d", vehicle.Attributes.Model, vehicle.Attributes.Year))
	if name == "0" || name == "" {
		name = vehicle.VIN
	}

	position := ""
	if len(m.vehicles) > 1 {
		position = fmt.Sprintf(" [%d/%d]", m.selected+1, len(m.vehicles))
	}

	updateTime := "never"
	if !m.lastUpdate.IsZero() {
		updateTime = m.lastUpdate.Format("15:04:05")
	}
	status := "Updated: " + updateTime
	if m.err != nil {
		status = "Refresh failed, showing stale data"
	}

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#ffffff")).
		Background(lipgloss.Color("#5f5fff")).
		Padding(0, 1)

	leftSection := headerStyle.Render(fmt.Sprintf("🚗 %s%s", name, position))
	rightSection := headerStyle.Render(status)

	spacingWidth := m.width - lipgloss.Width(leftSection) - lipgloss.Width(rightSection)
	if spacingWidth < 0 {
		spacingWidth = 0
	}
	spacing := headerStyle.Render(fmt.Sprintf("%*s", spacingWidth, ""))

	return leftSection + spacing + rightSection
}

func (m *Model) renderFooter() string {
	tabs := []string{
		"[1] Dashboard",
		"[2] Trend",
	}

	activeTabStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#00ffff")).
		Bold(true)

	inactiveTabStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888"))

	var renderedTabs []string
	for i, tab := range tabs {
		if ViewType(i) == m.currentView {
			renderedTabs = append(renderedTabs, activeTabStyle.Render(tab))
		} else {
			renderedTabs = append(renderedTabs, inactiveTabStyle.Render(tab))
		}
	}

	tabBar := lipgloss.JoinHorizontal(lipgloss.Left, renderedTabs...)

	helpStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#666666"))

	help := helpStyle.Render("[tab] vehicle | [t] range | [r] refresh | [q] quit")

	spacingWidth := m.width - 2 - lipgloss.Width(tabBar) - lipgloss.Width(help)
	if spacingWidth < 0 {
		spacingWidth = 0
	}
	spacing := strings.Repeat(" ", spacingWidth)

	footerStyle := lipgloss.NewStyle().
		Background(lipgloss.Color("#1a1a1a")).
		Padding(0, 1)

	return footerStyle.Render(tabBar + spacing + help)
}

func (m *Model) renderCentered(msg, color string) string {
	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color(color)).
		Bold(true).
		Align(lipgloss.Center, lipgloss.Center).
		Width(m.width).
		Height(m.height)

	return style.Render(msg)
}
