package model

import (
	"fmt"
	"sort"
	"time"

	"github.com/pfrederiksen/bimmerctl/internal/bmw"
)

// TripRecord is a single ignition-on-to-off driving segment with
// derived duration, speed and consumption fields.
type TripRecord struct {
	ID            string        `json:"id"`
	Start         time.Time     `json:"start"`
	End           time.Time     `json:"end"`
	StartLocation *bmw.GeoPoint `json:"startLocation,omitempty"`
	EndLocation   *bmw.GeoPoint `json:"endLocation,omitempty"`

	Distance     float64 `json:"distance"`
	DistanceUnit string  `json:"distanceUnit"`
	Minutes      float64 `json:"minutes"`
	EnergyKwh    float64 `json:"kwh"`
	BatteryUsed  float64 `json:"batteryUsed"` // percent

	AverageSpeed       float64 `json:"averageSpeed"`               // distance units per hour
	AverageConsumption float64 `json:"averageElectricConsumption"` // kWh per 100 distance units
}

// TripFromDetails derives a TripRecord from the raw vendor trip detail.
func TripFromDetails(d *bmw.TripDetails) (TripRecord, error) {
	start, err := time.Parse(time.RFC3339, d.Start.Time)
	if err != nil {
		return TripRecord{}, fmt.Errorf("parse trip %s start time: %w", d.ID, err)
	}
	end, err := time.Parse(time.RFC3339, d.End.Time)
	if err != nil {
		return TripRecord{}, fmt.Errorf("parse trip %s end time: %w", d.ID, err)
	}

	trip := TripRecord{
		ID:            d.ID,
		Start:         start,
		End:           end,
		StartLocation: d.Start.Location,
		EndLocation:   d.End.Location,
		Distance:      d.Distance.Distance,
		DistanceUnit:  d.Distance.Unit,
		Minutes:       end.Sub(start).Minutes(),
		EnergyKwh:     d.ElectricConsumptionKwh,
		BatteryUsed:   d.BatteryUsedPercent,
	}

	if trip.Minutes > 0 {
		trip.AverageSpeed = trip.Distance / (trip.Minutes / 60)
	}
	if trip.Distance > 0 {
		trip.AverageConsumption = trip.EnergyKwh / trip.Distance * 100
	}

	return trip, nil
}

// TripDay groups the trips of one local calendar day. Its totals are
// always recomputed from the trips, never taken from the vendor's own
// rollups, which have proven inaccurate.
type TripDay struct {
	Date         string  `json:"date"` // 2006-01-02
	Distance     float64 `json:"distance"`
	DistanceUnit string  `json:"distanceUnit"`
	Minutes      float64 `json:"minutes"`
	EnergyKwh    float64 `json:"kwh"`
	BatteryUsed  float64 `json:"batteryUsed"`

	AverageConsumption float64 `json:"averageElectricConsumption"`

	Trips []TripRecord `json:"trips"`
}

// GroupTripsByDay buckets trips by their local calendar day in loc and
// computes per-day totals. Days and the trips within them are sorted
// chronologically.
func GroupTripsByDay(trips []TripRecord, loc *time.Location) []TripDay {
	if loc == nil {
		loc = time.Local
	}

	byDay := make(map[string][]TripRecord)
	for _, trip := range trips {
		key := trip.Start.In(loc).Format("2006-01-02")
		byDay[key] = append(byDay[key], trip)
	}

	days := make([]TripDay, 0, len(byDay))
	for date, dayTrips := range byDay {
		sort.Slice(dayTrips, func(i, j int) bool { return dayTrips[i].Start.Before(dayTrips[j].Start) })

		day := TripDay{Date: date, Trips: dayTrips}
		for _, trip := range dayTrips {
			day.Distance += trip.Distance
			day.Minutes += trip.Minutes
			day.EnergyKwh += trip.EnergyKwh
			day.BatteryUsed += trip.BatteryUsed
			if day.DistanceUnit == "" {
				day.DistanceUnit = trip.DistanceUnit
			}
		}
		if day.Distance > 0 {
			day.AverageConsumption = day.EnergyKwh / day.Distance * 100
		}

		days = append(days, day)
	}

	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days
}

// TripSummary is the month-or-range level rollup over days.
type TripSummary struct {
	Days []TripDay `json:"days"`

	Distance     float64 `json:"distance"`
	DistanceUnit string  `json:"distanceUnit"`
	Minutes      float64 `json:"minutes"`
	EnergyKwh    float64 `json:"kwh"`
	BatteryUsed  float64 `json:"batteryUsed"`

	AverageConsumption  float64 `json:"averageElectricConsumption"`
	EstimatedBatteryKwh float64 `json:"estimatedBatteryKwh"`
}

// SummarizeTrips rolls up day records by summation. The estimated
// usable pack size follows from energy used versus battery percentage
// consumed.
func SummarizeTrips(days []TripDay) *TripSummary {
	summary := &TripSummary{Days: days}

	for _, day := range days {
		summary.Distance += day.Distance
		summary.Minutes += day.Minutes
		summary.EnergyKwh += day.EnergyKwh
		summary.BatteryUsed += day.BatteryUsed
		if summary.DistanceUnit == "" {
			summary.DistanceUnit = day.DistanceUnit
		}
	}

	if summary.Distance > 0 {
		summary.AverageConsumption = summary.EnergyKwh / summary.Distance * 100
	}
	if summary.BatteryUsed > 0 {
		summary.EstimatedBatteryKwh = summary.EnergyKwh / summary.BatteryUsed * 100
	}

	return summary
}
