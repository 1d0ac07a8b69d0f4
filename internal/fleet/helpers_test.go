package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pfrederiksen/bimmerctl/internal/bmw"
)

// mockAPI is an in-memory API implementation. Remote commands are
// recorded as "command:vin" strings; event statuses are served from a
// per-event sequence, then PENDING forever.
type mockAPI struct {
	vehicles []bmw.Vehicle
	states   map[string]*bmw.VehicleStatus

	commands      []string
	eventStatuses map[string][]string
	pollCalls     int

	tripPages     map[string]map[int]*bmw.TripPage
	tripDetails   map[string]*bmw.TripDetails
	chargePages   map[string]*bmw.ChargingPage
	chargeDetails map[string]*bmw.ChargingSessionDetails
}

func monthKey(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

func (m *mockAPI) Vehicles(context.Context) ([]bmw.Vehicle, error) {
	return m.vehicles, nil
}

func (m *mockAPI) VehicleState(_ context.Context, vin string) (*bmw.VehicleStatus, error) {
	if s, ok := m.states[vin]; ok {
		return s, nil
	}
	return &bmw.VehicleStatus{}, nil
}

func (m *mockAPI) VehicleRecalls(context.Context, string) ([]bmw.Recall, error) {
	return nil, nil
}

func (m *mockAPI) VehicleChargeSettings(context.Context, string) (*bmw.ChargeSettings, error) {
	return nil, errors.New("not supported")
}

func (m *mockAPI) VehicleChargeState(context.Context, string) (*bmw.ChargePlan, error) {
	return nil, errors.New("not supported")
}

func (m *mockAPI) command(name, vin string) (*bmw.RemoteCommandEvent, error) {
	m.commands = append(m.commands, name+":"+vin)
	return &bmw.RemoteCommandEvent{EventID: "evt-" + vin}, nil
}

func (m *mockAPI) Lock(_ context.Context, vin string) (*bmw.RemoteCommandEvent, error) {
	return m.command("lock", vin)
}

func (m *mockAPI) Unlock(_ context.Context, vin string) (*bmw.RemoteCommandEvent, error) {
	return m.command("unlock", vin)
}

func (m *mockAPI) FlashLights(_ context.Context, vin string) (*bmw.RemoteCommandEvent, error) {
	return m.command("lights", vin)
}

func (m *mockAPI) HonkHorn(_ context.Context, vin string) (*bmw.RemoteCommandEvent, error) {
	return m.command("horn", vin)
}

func (m *mockAPI) StartClimate(_ context.Context, vin string) (*bmw.RemoteCommandEvent, error) {
	return m.command("climate-start", vin)
}

func (m *mockAPI) StopClimate(_ context.Context, vin string) (*bmw.RemoteCommandEvent, error) {
	return m.command("climate-stop", vin)
}

func (m *mockAPI) StartCharging(_ context.Context, vin string) (*bmw.RemoteCommandEvent, error) {
	return m.command("charge-start", vin)
}

func (m *mockAPI) StopCharging(_ context.Context, vin string) (*bmw.RemoteCommandEvent, error) {
	return m.command("charge-stop", vin)
}

func (m *mockAPI) CommandStatus(_ context.Context, eventID string) (*bmw.EventStatus, error) {
	m.pollCalls++
	if seq := m.eventStatuses[eventID]; len(seq) > 0 {
		next := seq[0]
		m.eventStatuses[eventID] = seq[1:]
		return &bmw.EventStatus{EventStatus: next}, nil
	}
	return &bmw.EventStatus{EventStatus: bmw.EventPending}, nil
}

func (m *mockAPI) TripHistory(_ context.Context, _ string, year int, month time.Month, offset int) (*bmw.TripPage, error) {
	if pages, ok := m.tripPages[monthKey(year, month)]; ok {
		if page, ok := pages[offset]; ok {
			return page, nil
		}
	}
	return &bmw.TripPage{}, nil
}

func (m *mockAPI) TripDetails(_ context.Context, _ string, tripID string) (*bmw.TripDetails, error) {
	if d, ok := m.tripDetails[tripID]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("unknown trip %s", tripID)
}

func (m *mockAPI) ChargingSessions(_ context.Context, _ string, year int, month time.Month) (*bmw.ChargingPage, error) {
	if page, ok := m.chargePages[monthKey(year, month)]; ok {
		return page, nil
	}
	return &bmw.ChargingPage{}, nil
}

func (m *mockAPI) ChargingSessionDetails(_ context.Context, _ string, sessionID string) (*bmw.ChargingSessionDetails, error) {
	if d, ok := m.chargeDetails[sessionID]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("unknown session %s", sessionID)
}

func electricVehicle(vin, model string) bmw.Vehicle {
	return bmw.Vehicle{
		VIN:        vin,
		Attributes: bmw.VehicleAttributes{Model: model, Year: 2022, DriveTrain: "ELECTRIC"},
	}
}

func electricState(activity, chargingStatus string, connected bool) *bmw.VehicleStatus {
	return &bmw.VehicleStatus{
		State: bmw.VehicleState{
			ClimateControlState: bmw.ClimateControlState{Activity: activity},
			ElectricChargingState: bmw.ElectricChargingState{
				ChargingStatus:     chargingStatus,
				IsChargerConnected: connected,
			},
		},
	}
}

func fastFleet(api API, opts ...Option) *Fleet {
	opts = append([]Option{
		WithPollInterval(time.Millisecond),
		WithPollTimeout(50 * time.Millisecond),
		WithLocation(time.UTC),
	}, opts...)
	return New(api, opts...)
}
