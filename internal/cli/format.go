package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pfrederiksen/bimmerctl/internal/bmw"
	"github.com/pfrederiksen/bimmerctl/internal/fleet"
)

// StatusSummary is the machine-readable status shape emitted by
// `status --json`, one object per vehicle.
type StatusSummary struct {
	VIN             string  `json:"vin"`
	UpdatedAt       string  `json:"updatedAt,omitempty"`
	Km              float64 `json:"km"`
	Battery         float64 `json:"battery"`
	Latitude        float64 `json:"latitude,omitempty"`
	Longitude       float64 `json:"longitude,omitempty"`
	Heading         float64 `json:"heading,omitempty"`
	Address         string  `json:"address,omitempty"`
	PluggedIn       bool    `json:"pluggedIn"`
	Charging        bool    `json:"charging"`
	ChargingMinutes float64 `json:"chargingMinutes,omitempty"`
	DeepSleep       bool    `json:"deepSleep"`
	Climate         bool    `json:"climate"`
}

// Summarize flattens an enriched vehicle into a StatusSummary.
func Summarize(v *fleet.Vehicle) StatusSummary {
	summary := StatusSummary{VIN: v.VIN}
	if v.Status == nil {
		return summary
	}

	state := v.Status.State
	charge := state.ElectricChargingState

	summary.UpdatedAt = state.LastUpdatedAt
	summary.Km = state.CurrentMileage
	summary.Battery = charge.ChargingLevelPercent
	summary.PluggedIn = charge.IsChargerConnected
	summary.Charging = charge.ChargingStatus == "CHARGING"
	summary.ChargingMinutes = charge.RemainingChargingMinutes
	summary.DeepSleep = state.IsDeepSleepModeActive
	summary.Climate = state.ClimateControlState.Activity == "ACTIVE"

	if state.Location != nil {
		summary.Latitude = state.Location.Coordinates.Latitude
		summary.Longitude = state.Location.Coordinates.Longitude
		summary.Heading = state.Location.Heading
		summary.Address = state.Location.Address.Formatted
	}

	return summary
}

// WriteJSON pretty-prints any value as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// WriteVehicleList prints one line per vehicle.
func WriteVehicleList(w io.Writer, vehicles []*fleet.Vehicle) {
	for _, v := range vehicles {
		fmt.Fprintf(w, "%s %d (%s)\n", v.Attributes.Model, v.Attributes.Year, v.VIN)
	}
}

// WriteStatus prints the human-readable status block for one vehicle.
func WriteStatus(w io.Writer, v *fleet.Vehicle) {
	fmt.Fprintf(w, "%s %d (%s):\n", v.Attributes.Model, v.Attributes.Year, v.VIN)
	if v.Status == nil {
		fmt.Fprintln(w, "(no state available)")
		return
	}

	state := v.Status.State
	charge := state.ElectricChargingState

	fmt.Fprintf(w, "🏁 Odometer: %s km\n", formatNumber(state.CurrentMileage))

	if state.Location != nil {
		fmt.Fprintf(w, "📍 Location: %s (%.3f,%.3f)\n",
			state.Location.Address.Formatted,
			state.Location.Coordinates.Latitude,
			state.Location.Coordinates.Longitude)
	}

	locked := state.DoorsState.CombinedSecurityState == "LOCKED" ||
		state.DoorsState.CombinedSecurityState == "SECURED"
	doors := "Unlocked"
	if locked {
		doors = "🔒 Locked"
	}
	if state.DoorsState.CombinedState != "CLOSED" {
		doors += " & Open"
	}
	fmt.Fprintf(w, "🚪 Doors: %s\n", doors)

	windows := "Open"
	if state.WindowsState.CombinedState == "CLOSED" {
		windows = "Closed"
	}
	fmt.Fprintf(w, "🪟  Windows: %s\n", windows)

	if state.ClimateControlState.Activity == "ACTIVE" {
		fmt.Fprintf(w, "☀️ Climate: %s\n", state.ClimateControlState.Activity)
	}
	if state.IsDeepSleepModeActive {
		fmt.Fprintln(w, "💤 Deep Sleep: Enabled")
	}

	fmt.Fprintf(w, "🔋 Battery: %s%% (%s km)\n",
		formatNumber(charge.ChargingLevelPercent), formatNumber(state.Range))

	if charge.IsChargerConnected {
		fmt.Fprintln(w, "🔌 Plugged In")
	}
	if charge.ChargingStatus == "CHARGING" {
		fmt.Fprintf(w, "⚡️ Charging: %s%% in %s\n",
			formatNumber(charge.ChargingTarget), formatMinutes(charge.RemainingChargingMinutes))
	}
}

// WriteCommandResult prints the outcome of a remote command batch:
// the first failure, or "Success." when every issued command executed.
func WriteCommandResult(w io.Writer, vehicles []*fleet.Vehicle) {
	for _, v := range vehicles {
		if v.Event == nil {
			continue
		}
		if v.EventStatus == nil {
			fmt.Fprintf(w, "Error: no status for %s\n", v.VIN)
			return
		}
		if v.EventStatus.EventStatus == bmw.EventError {
			if details := v.EventStatus.ErrorDetails; details != nil {
				fmt.Fprintf(w, "Error: %s\n", details.Title)
				fmt.Fprintln(w, details.Description)
				return
			}
			fmt.Fprintf(w, "Error: %s\n", bmw.EventError)
			return
		}
		if v.EventStatus.EventStatus != bmw.EventExecuted {
			fmt.Fprintf(w, "Error: %s\n", v.EventStatus.EventStatus)
			return
		}
	}
	fmt.Fprintln(w, "Success.")
}

// WriteTrips prints trip history. In short form each day becomes one
// line; otherwise every trip is expanded.
func WriteTrips(w io.Writer, v *fleet.Vehicle, short bool) {
	fmt.Fprintf(w, "%s %d (%s):\n", v.Attributes.Model, v.Attributes.Year, v.VIN)
	if v.Trips == nil || len(v.Trips.Days) == 0 {
		fmt.Fprintln(w, "(no trips)")
		return
	}

	for _, day := range v.Trips.Days {
		if short {
			fmt.Fprintf(w, "%s: %s %s (%s) %s KWh %.1f KWh/100%s\n",
				day.Date, formatNumber(day.Distance), day.DistanceUnit,
				formatMinutes(day.Minutes), formatNumber(day.EnergyKwh),
				day.AverageConsumption, day.DistanceUnit)
			continue
		}

		for _, trip := range day.Trips {
			if trip.Distance <= 0 {
				continue
			}
			fmt.Fprintf(w, "%s @ %s\n", day.Date, trip.Start.Format("15:04"))
			fmt.Fprintf(w, " 🏁 Travel: %s %s (%s)\n",
				formatNumber(trip.Distance), trip.DistanceUnit, formatMinutes(trip.Minutes))
			if trip.StartLocation != nil {
				fmt.Fprintf(w, " 📍 Start: %s (%.3f,%.3f)\n",
					trip.StartLocation.AddressName, trip.StartLocation.Latitude, trip.StartLocation.Longitude)
			}
			if trip.EndLocation != nil {
				fmt.Fprintf(w, " 📍 End: %s (%.3f,%.3f)\n",
					trip.EndLocation.AddressName, trip.EndLocation.Latitude, trip.EndLocation.Longitude)
			}
			fmt.Fprintf(w, " ⚡️ Energy: %s KWh (-%s%% 🪫 )\n",
				formatNumber(trip.EnergyKwh), formatNumber(trip.BatteryUsed))
			fmt.Fprintf(w, " 🌎 Efficiency: %.1f KWh/100%s\n",
				trip.AverageConsumption, trip.DistanceUnit)
		}
	}

	trips := v.Trips
	fmt.Fprintf(w, "Total: %s, %s %s, %s KWh, %.1f KWh/100%s (Est. Battery: ~%.1f KWh)\n",
		formatMinutes(trips.Minutes), formatNumber(trips.Distance), trips.DistanceUnit,
		formatNumber(trips.EnergyKwh), trips.AverageConsumption, trips.DistanceUnit,
		trips.EstimatedBatteryKwh)
}

// WriteCharging prints charging history, one line per session and a
// totals line.
func WriteCharging(w io.Writer, v *fleet.Vehicle) {
	fmt.Fprintf(w, "%s %d (%s):\n", v.Attributes.Model, v.Attributes.Year, v.VIN)
	if v.Charging == nil || len(v.Charging.Sessions) == 0 {
		fmt.Fprintln(w, "(no charging sessions)")
		return
	}

	for _, s := range v.Charging.Sessions {
		location := s.LocationName
		if location == "" {
			location = fmt.Sprintf("%.3f,%.3f", s.Latitude, s.Longitude)
		}
		fmt.Fprintf(w, "%s @ %s: 🔋 %s%% → %s%% (+%s%%) ⚡️ %s kwh in %s (%.1f kw)\n",
			s.Time.Format("2006-01-02 15:04"), location,
			formatNumber(s.BatteryStart), formatNumber(s.BatteryEnd), formatNumber(s.BatteryCharged),
			formatNumber(s.EnergyKwh), formatMinutes(s.Minutes), s.AveragePowerKw)
	}

	charging := v.Charging
	fmt.Fprintf(w, "Total: %s, %.1f kwh, %s km, %.1f kwh/100km (Est. Battery: ~%.1f kwh)\n",
		formatMinutes(charging.Minutes), charging.EnergyKwh,
		formatNumber(charging.Distance), charging.AverageConsumption,
		charging.EstimatedBatteryKwh)
}

// WriteTripsCSV writes the per-trip records of one vehicle as CSV.
func WriteTripsCSV(w io.Writer, v *fleet.Vehicle) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{"vin", "date", "start", "end", "distance", "unit", "minutes", "kwh", "batteryUsed", "avgSpeed", "kwhPer100"}
	if err := writer.Write(header); err != nil {
		return err
	}

	if v.Trips == nil {
		return nil
	}
	for _, day := range v.Trips.Days {
		for _, trip := range day.Trips {
			row := []string{
				v.VIN,
				day.Date,
				trip.Start.Format(time.RFC3339),
				trip.End.Format(time.RFC3339),
				formatFloat(trip.Distance, 1),
				trip.DistanceUnit,
				formatFloat(trip.Minutes, 1),
				formatFloat(trip.EnergyKwh, 2),
				formatFloat(trip.BatteryUsed, 1),
				formatFloat(trip.AverageSpeed, 1),
				formatFloat(trip.AverageConsumption, 2),
			}
			if err := writer.Write(row); err != nil {
				return err
			}
		}
	}

	return nil
}

// WriteChargingCSV writes the charging sessions of one vehicle as CSV.
func WriteChargingCSV(w io.Writer, v *fleet.Vehicle) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{"vin", "time", "location", "odometer", "batteryStart", "batteryEnd", "batteryCharged", "kwh", "minutes", "distance", "batteryUsedSinceLastCharge", "estimatedBatteryKwh", "kwhPer100km"}
	if err := writer.Write(header); err != nil {
		return err
	}

	if v.Charging == nil {
		return nil
	}
	for _, s := range v.Charging.Sessions {
		row := []string{
			v.VIN,
			s.Time.Format(time.RFC3339),
			s.LocationName,
			formatFloat(s.Odometer, 0),
			formatFloat(s.BatteryStart, 1),
			formatFloat(s.BatteryEnd, 1),
			formatFloat(s.BatteryCharged, 1),
			formatFloat(s.EnergyKwh, 2),
			formatFloat(s.Minutes, 0),
			formatFloat(s.Distance, 1),
			formatFloat(s.BatteryUsedSinceLastCharge, 1),
			formatFloat(s.EstimatedBatteryKwh, 1),
			formatFloat(s.AverageConsumption, 2),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return nil
}

func formatFloat(f float64, prec int) string {
	return strconv.FormatFloat(f, 'f', prec, 64)
}

// formatNumber trims trailing zeros so whole values print without a
// decimal point.
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', 1, 64)
}

func formatMinutes(minutes float64) string {
	total := int(minutes)
	hours := total / 60
	mins := total % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
