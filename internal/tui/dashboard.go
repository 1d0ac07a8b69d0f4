package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pfrederiksen/bimmerctl/internal/fleet"
)

// DashboardView renders the live status panel for one vehicle.
type DashboardView struct{}

// NewDashboardView creates a new dashboard view.
func NewDashboardView() *DashboardView {
	return &DashboardView{}
}

// Render renders the dashboard for a vehicle that has been enriched
// with its state.
func (v *DashboardView) Render(vehicle *fleet.Vehicle, width, height int) string {
	titleStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#00ffff")).
		Bold(true).
		MarginTop(1).
		MarginBottom(1)

	if vehicle == nil || vehicle.Status == nil {
		return titleStyle.Render("📊 Dashboard") + "\n\nNo vehicle state available"
	}

	sectionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#5f5fff")).
		Padding(1).
		MarginBottom(1)

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#ffffff")).
		Bold(true)

	batterySection := v.renderBatterySection(vehicle, sectionStyle, labelStyle, valueStyle)
	chargingSection := v.renderChargingSection(vehicle, sectionStyle, labelStyle, valueStyle)
	securitySection := v.renderSecuritySection(vehicle, sectionStyle, labelStyle, valueStyle)
	travelSection := v.renderTravelSection(vehicle, sectionStyle, labelStyle, valueStyle)

	leftColumn := lipgloss.JoinVertical(
		lipgloss.Left,
		batterySection,
		chargingSection,
	)

	rightColumn := lipgloss.JoinVertical(
		lipgloss.Left,
		securitySection,
		travelSection,
	)

	body := lipgloss.JoinHorizontal(
		lipgloss.Top,
		leftColumn,
		"  ",
		rightColumn,
	)

	return titleStyle.Render("📊 Dashboard") + "\n" + body
}

func (v *DashboardView) renderBatterySection(vehicle *fleet.Vehicle, sectionStyle, labelStyle, valueStyle lipgloss.Style) string {
	state := vehicle.Status.State
	charging := state.ElectricChargingState

	content := fmt.Sprintf("%s %s\n\n",
		labelStyle.Render("Battery:"),
		valueStyle.Render(fmt.Sprintf("%.0f%%", charging.ChargingLevelPercent)),
	)
	content += v.renderBatteryBar(charging.ChargingLevelPercent, 20) + "\n\n"

	rangeColor := lipgloss.Color("#00ff00")
	if state.Range < 100 {
		rangeColor = lipgloss.Color("#ffff00")
	}
	if state.Range < 40 {
		rangeColor = lipgloss.Color("#ff0000")
	}
	content += fmt.Sprintf("%s %s",
		labelStyle.Render("Range:"),
		valueStyle.Foreground(rangeColor).Render(fmt.Sprintf("%.0f km", state.Range)),
	)

	if vehicle.ChargeSettings != nil {
		content += fmt.Sprintf("\n%s %d%%",
			labelStyle.Render("Charge Limit:"),
			vehicle.ChargeSettings.TargetSoc,
		)
	}

	return sectionStyle.Width(35).Render("🔋 Battery & Range\n\n" + content)
}

func (v *DashboardView) renderChargingSection(vehicle *fleet.Vehicle, sectionStyle, labelStyle, valueStyle lipgloss.Style) string {
	charging := vehicle.Status.State.ElectricChargingState

	stateEmoji := "○"
	stateText := titleCase(strings.ReplaceAll(charging.ChargingStatus, "_", " "))
	stateColor := lipgloss.Color("#888888")

	switch charging.ChargingStatus {
	case "CHARGING":
		stateEmoji = "⚡"
		stateText = "Charging"
		stateColor = lipgloss.Color("#00ff00")
	case "COMPLETE", "FULLY_CHARGED":
		stateEmoji = "✓"
		stateText = "Complete"
		stateColor = lipgloss.Color("#00ff00")
	case "WAITING_FOR_CHARGING":
		stateEmoji = "⏱"
		stateText = "Scheduled"
		stateColor = lipgloss.Color("#ffff00")
	case "":
		stateEmoji = "❓"
		stateText = "Unknown"
	}

	content := fmt.Sprintf("%s %s %s\n\n",
		labelStyle.Render("Status:"),
		stateEmoji,
		valueStyle.Foreground(stateColor).Render(stateText),
	)

	plugged := "No"
	if charging.IsChargerConnected {
		plugged = "Yes"
	}
	content += fmt.Sprintf("%s %s\n",
		labelStyle.Render("Plugged In:"),
		valueStyle.Render(plugged),
	)

	if charging.ChargingStatus == "CHARGING" {
		content += fmt.Sprintf("%s %s\n",
			labelStyle.Render("Target:"),
			valueStyle.Render(fmt.Sprintf("%.0f%%", charging.ChargingTarget)),
		)
		if charging.RemainingChargingMinutes > 0 {
			hours := int(charging.RemainingChargingMinutes) / 60
			minutes := int(charging.RemainingChargingMinutes) % 60
			content += fmt.Sprintf("%s %s",
				labelStyle.Render("Time Left:"),
				valueStyle.Render(fmt.Sprintf("%dh %dm", hours, minutes)),
			)
		}
	}

	return sectionStyle.Width(35).Render("⚡ Charging\n\n" + content)
}

func (v *DashboardView) renderSecuritySection(vehicle *fleet.Vehicle, sectionStyle, labelStyle, valueStyle lipgloss.Style) string {
	state := vehicle.Status.State

	lockEmoji := "🔓"
	lockStatus := "Unlocked"
	lockColor := lipgloss.Color("#ffff00")
	switch state.DoorsState.CombinedSecurityState {
	case "LOCKED", "SECURED":
		lockEmoji = "🔒"
		lockStatus = "Locked"
		lockColor = lipgloss.Color("#00ff00")
	}

	content := fmt.Sprintf("%s %s %s\n\n",
		labelStyle.Render("Lock:"),
		lockEmoji,
		valueStyle.Foreground(lockColor).Render(lockStatus),
	)

	doors := "All closed"
	if state.DoorsState.CombinedState == "OPEN" {
		doors = "Open"
	}
	content += fmt.Sprintf("%s %s\n",
		labelStyle.Render("Doors:"),
		valueStyle.Render(doors),
	)

	windows := "All closed"
	if state.WindowsState.CombinedState == "OPEN" {
		windows = "Open"
	}
	content += fmt.Sprintf("%s %s",
		labelStyle.Render("Windows:"),
		valueStyle.Render(windows),
	)

	if state.IsDeepSleepModeActive {
		content += "\n\n" + valueStyle.Foreground(lipgloss.Color("#888888")).Render("💤 Deep Sleep")
	}

	return sectionStyle.Width(35).Render("🔐 Security\n\n" + content)
}

func (v *DashboardView) renderTravelSection(vehicle *fleet.Vehicle, sectionStyle, labelStyle, valueStyle lipgloss.Style) string {
	state := vehicle.Status.State

	content := fmt.Sprintf("%s %s\n\n",
		labelStyle.Render("Odometer:"),
		valueStyle.Render(fmt.Sprintf("%.0f km", state.CurrentMileage)),
	)

	climate := "Off"
	if state.ClimateControlState.Activity != "" && state.ClimateControlState.Activity != "INACTIVE" {
		climate = titleCase(state.ClimateControlState.Activity)
	}
	content += fmt.Sprintf("%s %s\n",
		labelStyle.Render("Climate:"),
		valueStyle.Render(climate),
	)

	if state.Location != nil {
		place := state.Location.Address.Formatted
		if place == "" {
			place = fmt.Sprintf("%.4f, %.4f",
				state.Location.Coordinates.Latitude,
				state.Location.Coordinates.Longitude)
		}
		content += fmt.Sprintf("\n%s\n%s",
			labelStyle.Render("Location:"),
			valueStyle.Render(place),
		)
	}

	return sectionStyle.Width(35).Render("🌎 Travel\n\n" + content)
}

// titleCase renders a shouty vendor enum as a readable phrase.
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// renderBatteryBar creates a visual battery bar.
func (v *DashboardView) renderBatteryBar(level float64, width int) string {
	filled := int(level * float64(width) / 100)
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	empty := width - filled

	barColor := lipgloss.Color("#00ff00")
	if level < 50 {
		barColor = lipgloss.Color("#ffff00")
	}
	if level < 20 {
		barColor = lipgloss.Color("#ff0000")
	}

	filledStyle := lipgloss.NewStyle().Foreground(barColor)
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#333333"))

	bar := filledStyle.Render(strings.Repeat("█", filled)) +
		emptyStyle.Render(strings.Repeat("░", empty))

	return fmt.Sprintf("[%s]", bar)
}
