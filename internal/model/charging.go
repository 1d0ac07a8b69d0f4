package model

import (
	"sort"
	"time"

	"github.com/pfrederiksen/bimmerctl/internal/bmw"
)

// minChainableGain is the battery gain (percent) below which a session
// is treated as a top-up: it still appears in the output, but it does
// not become the reference point for the next session's
// distance-since-last-charge arithmetic.
const minChainableGain = 3.0

// ChargingSession is a plug-in-to-unplug charging event enriched with
// fields derived by chaining to the previous session.
type ChargingSession struct {
	ID   string    `json:"id"`
	Time time.Time `json:"time"`
	Day  string    `json:"day"` // 2006-01-02

	LocationName string  `json:"locationName,omitempty"`
	Latitude     float64 `json:"latitude,omitempty"`
	Longitude    float64 `json:"longitude,omitempty"`

	Odometer       float64 `json:"odometer"` // km
	BatteryStart   float64 `json:"batteryStart"`
	BatteryEnd     float64 `json:"batteryEnd"`
	BatteryCharged float64 `json:"batteryCharged"`
	EnergyKwh      float64 `json:"kwh"`
	Minutes        float64 `json:"minutes"`
	AveragePowerKw float64 `json:"kwhAvg"`

	// Derived by chaining to the preceding session.
	Distance                   float64 `json:"distance"`
	BatteryUsedSinceLastCharge float64 `json:"batteryUsedSinceLastCharge"`
	EstimatedBatteryKwh        float64 `json:"estimatedBatteryKwh"`
	AverageConsumption         float64 `json:"averageElectricConsumption"` // kWh per 100 km
}

// ChargingFromDetails builds a session from the raw vendor detail and
// the reconciled session timestamp.
func ChargingFromDetails(d *bmw.ChargingSessionDetails, at time.Time) ChargingSession {
	session := ChargingSession{
		ID:             d.ID,
		Time:           at,
		Day:            at.UTC().Format("2006-01-02"),
		Odometer:       d.OdometerKm,
		BatteryStart:   d.StartBatteryPercent,
		BatteryEnd:     d.EndBatteryPercent,
		BatteryCharged: d.EndBatteryPercent - d.StartBatteryPercent,
		EnergyKwh:      d.EnergyChargedKwh,
		Minutes:        d.ChargingMinutes,
	}

	if d.Location != nil {
		session.LocationName = d.Location.AddressName
		session.Latitude = d.Location.Latitude
		session.Longitude = d.Location.Longitude
	}

	if session.Minutes > 0 {
		session.AveragePowerKw = session.EnergyKwh / (session.Minutes / 60)
	}
	if session.BatteryCharged > 0 {
		session.EstimatedBatteryKwh = session.EnergyKwh / session.BatteryCharged * 100
	}

	return session
}

// ChainSessions sorts sessions chronologically and fills the fields
// that depend on the immediately preceding session: distance driven
// since the last charge, battery consumed in between, and the implied
// driving efficiency. The first session in the list gets no chained
// fields, which is why callers fetch one month of history before the
// requested range.
func ChainSessions(sessions []ChargingSession) []ChargingSession {
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Time.Before(sessions[j].Time) })

	var prev *ChargingSession
	for i := range sessions {
		s := &sessions[i]

		if prev != nil {
			s.Distance = s.Odometer - prev.Odometer
			s.BatteryUsedSinceLastCharge = prev.BatteryEnd - s.BatteryStart

			if s.Distance > 0 && s.EstimatedBatteryKwh > 0 && s.BatteryUsedSinceLastCharge > 0 {
				energyUsed := s.BatteryUsedSinceLastCharge / 100 * s.EstimatedBatteryKwh
				s.AverageConsumption = energyUsed / s.Distance * 100
			}
		}

		if s.BatteryCharged >= minChainableGain {
			prev = s
		}
	}

	return sessions
}

// ChargingSummary is the vehicle-level rollup over the sessions in the
// requested range.
type ChargingSummary struct {
	Sessions []ChargingSession `json:"sessions"`

	Minutes        float64 `json:"minutes"`
	EnergyKwh      float64 `json:"kwh"`
	Distance       float64 `json:"distance"` // km
	BatteryCharged float64 `json:"batteryCharged"`

	AverageConsumption  float64 `json:"averageElectricConsumption"`
	EstimatedBatteryKwh float64 `json:"estimatedBatteryKwh"`
}

// SummarizeCharging rolls up chained sessions by summation. The summary
// pack estimate is the energy-weighted mean of the per-session
// estimates, which damps the noise of small top-up sessions.
func SummarizeCharging(sessions []ChargingSession) *ChargingSummary {
	summary := &ChargingSummary{Sessions: sessions}

	var energyUsed, weightedEstimate, estimateWeight float64
	for _, s := range sessions {
		summary.Minutes += s.Minutes
		summary.EnergyKwh += s.EnergyKwh
		summary.Distance += s.Distance
		summary.BatteryCharged += s.BatteryCharged

		energyUsed += s.AverageConsumption * s.Distance / 100
		if s.EstimatedBatteryKwh > 0 {
			weightedEstimate += s.EstimatedBatteryKwh * s.EnergyKwh
			estimateWeight += s.EnergyKwh
		}
	}

	if summary.Distance > 0 {
		summary.AverageConsumption = energyUsed / summary.Distance * 100
	}
	if estimateWeight > 0 {
		summary.EstimatedBatteryKwh = weightedEstimate / estimateWeight
	}

	return summary
}
