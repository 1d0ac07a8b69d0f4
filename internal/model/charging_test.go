package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfrederiksen/bimmerctl/internal/bmw"
)

func chargingDetail(id string, odo, start, end, kwh, minutes float64) *bmw.ChargingSessionDetails {
	return &bmw.ChargingSessionDetails{
		ID:                  id,
		OdometerKm:          odo,
		StartBatteryPercent: start,
		EndBatteryPercent:   end,
		EnergyChargedKwh:    kwh,
		ChargingMinutes:     minutes,
	}
}

func TestChargingFromDetails(t *testing.T) {
	d := chargingDetail("s1", 1000, 40, 80, 24, 120)
	d.Location = &bmw.GeoPoint{Latitude: 43.6, Longitude: -79.3, AddressName: "Home"}

	at := time.Date(2022, 12, 20, 5, 0, 0, 0, time.UTC)
	s := ChargingFromDetails(d, at)

	assert.Equal(t, "2022-12-20", s.Day)
	assert.Equal(t, 40.0, s.BatteryCharged)
	assert.Equal(t, 12.0, s.AveragePowerKw)
	assert.InDelta(t, 60.0, s.EstimatedBatteryKwh, 0.001)
	assert.Equal(t, "Home", s.LocationName)
}

func TestChainSessionsDerivesDistanceAndBatteryUse(t *testing.T) {
	first := ChargingFromDetails(chargingDetail("s1", 1000, 40, 80, 24, 60),
		time.Date(2022, 12, 18, 20, 0, 0, 0, time.UTC))
	second := ChargingFromDetails(chargingDetail("s2", 1050, 40, 80, 24, 60),
		time.Date(2022, 12, 20, 5, 0, 0, 0, time.UTC))

	chained := ChainSessions([]ChargingSession{second, first})
	require.Len(t, chained, 2)

	// Sorted chronologically regardless of input order.
	assert.Equal(t, "s1", chained[0].ID)

	s := chained[1]
	assert.Equal(t, 50.0, s.Distance)
	assert.Equal(t, 40.0, s.BatteryCharged)
	assert.Equal(t, 40.0, s.BatteryUsedSinceLastCharge)
	assert.InDelta(t, 24/0.40, s.EstimatedBatteryKwh, 0.001)
}

func TestChainSessionsSkipsTopUpsAsAnchors(t *testing.T) {
	a := ChargingFromDetails(chargingDetail("a", 1000, 40, 80, 24, 60),
		time.Date(2022, 12, 18, 20, 0, 0, 0, time.UTC))
	// 2% gain: appears in output but must not become the baseline.
	topUp := ChargingFromDetails(chargingDetail("topup", 1020, 78, 80, 1.2, 10),
		time.Date(2022, 12, 19, 12, 0, 0, 0, time.UTC))
	b := ChargingFromDetails(chargingDetail("b", 1050, 40, 80, 24, 60),
		time.Date(2022, 12, 20, 5, 0, 0, 0, time.UTC))

	chained := ChainSessions([]ChargingSession{a, topUp, b})
	require.Len(t, chained, 3)

	// b chains to a, not to the top-up.
	assert.Equal(t, 50.0, chained[2].Distance)
	assert.Equal(t, 40.0, chained[2].BatteryUsedSinceLastCharge)
}

func TestSummarizeChargingTotalsAreSums(t *testing.T) {
	a := ChargingFromDetails(chargingDetail("a", 1000, 40, 80, 24, 60),
		time.Date(2022, 12, 18, 20, 0, 0, 0, time.UTC))
	b := ChargingFromDetails(chargingDetail("b", 1050, 40, 80, 24, 90),
		time.Date(2022, 12, 20, 5, 0, 0, 0, time.UTC))

	sessions := ChainSessions([]ChargingSession{a, b})
	summary := SummarizeCharging(sessions)

	assert.Equal(t, 150.0, summary.Minutes)
	assert.Equal(t, 48.0, summary.EnergyKwh)
	assert.Equal(t, 50.0, summary.Distance)
	assert.Equal(t, 80.0, summary.BatteryCharged)

	// Both sessions imply the same pack size, so the weighted mean
	// equals it.
	assert.InDelta(t, 60.0, summary.EstimatedBatteryKwh, 0.001)
}

func TestSummarizeChargingEmpty(t *testing.T) {
	summary := SummarizeCharging(nil)
	assert.Zero(t, summary.EnergyKwh)
	assert.Zero(t, summary.EstimatedBatteryKwh)
}
