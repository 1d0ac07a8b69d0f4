package fleet

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pfrederiksen/bimmerctl/internal/bmw"
)

const climateInactive = "INACTIVE"

// Lock locks every matched vehicle and polls the resulting events.
func (f *Fleet) Lock(ctx context.Context, filter string) ([]*Vehicle, error) {
	return f.eachVehicle(ctx, filter, f.api.Lock)
}

// Unlock unlocks every matched vehicle and polls the resulting events.
func (f *Fleet) Unlock(ctx context.Context, filter string) ([]*Vehicle, error) {
	return f.eachVehicle(ctx, filter, f.api.Unlock)
}

// FlashLights flashes the lights of every matched vehicle.
func (f *Fleet) FlashLights(ctx context.Context, filter string) ([]*Vehicle, error) {
	return f.eachVehicle(ctx, filter, f.api.FlashLights)
}

// HonkHorn honks the horn of every matched vehicle.
func (f *Fleet) HonkHorn(ctx context.Context, filter string) ([]*Vehicle, error) {
	return f.eachVehicle(ctx, filter, f.api.HonkHorn)
}

func (f *Fleet) eachVehicle(ctx context.Context, filter string, command func(context.Context, string) (*bmw.RemoteCommandEvent, error)) ([]*Vehicle, error) {
	vehicles, err := f.Vehicles(ctx, filter)
	if err != nil {
		return nil, err
	}

	for _, v := range vehicles {
		event, err := command(ctx, v.VIN)
		if err != nil {
			return nil, err
		}
		v.Event = event
	}

	f.pollEvents(ctx, vehicles)
	return vehicles, nil
}

// StartClimate starts preconditioning on matched vehicles whose climate
// control is currently inactive. Vehicles already running are skipped.
func (f *Fleet) StartClimate(ctx context.Context, filter string) ([]*Vehicle, error) {
	vehicles, err := f.Details(ctx, filter)
	if err != nil {
		return nil, err
	}

	for _, v := range vehicles {
		if v.Status.State.ClimateControlState.Activity != climateInactive {
			f.log.Info("climate already running", zap.String("vin", v.VIN),
				zap.String("activity", v.Status.State.ClimateControlState.Activity))
			continue
		}
		event, err := f.api.StartClimate(ctx, v.VIN)
		if err != nil {
			return nil, err
		}
		v.Event = event
	}

	f.pollEvents(ctx, vehicles)
	return vehicles, nil
}

// StopClimate stops preconditioning on matched vehicles where it is
// currently running.
func (f *Fleet) StopClimate(ctx context.Context, filter string) ([]*Vehicle, error) {
	vehicles, err := f.Details(ctx, filter)
	if err != nil {
		return nil, err
	}

	for _, v := range vehicles {
		if v.Status.State.ClimateControlState.Activity == climateInactive {
			f.log.Info("climate already off", zap.String("vin", v.VIN))
			continue
		}
		event, err := f.api.StopClimate(ctx, v.VIN)
		if err != nil {
			return nil, err
		}
		v.Event = event
	}

	f.pollEvents(ctx, vehicles)
	return vehicles, nil
}

// StartCharging starts charging on matched electric vehicles that are
// plugged in. Everything else is skipped with a log line.
func (f *Fleet) StartCharging(ctx context.Context, filter string) ([]*Vehicle, error) {
	vehicles, err := f.Details(ctx, filter)
	if err != nil {
		return nil, err
	}

	for _, v := range vehicles {
		if v.Attributes.DriveTrain != "ELECTRIC" {
			f.log.Info("not an electric vehicle", zap.String("vin", v.VIN))
			continue
		}
		if !v.Status.State.ElectricChargingState.IsChargerConnected {
			f.log.Info("charger not connected", zap.String("vin", v.VIN))
			continue
		}
		event, err := f.api.StartCharging(ctx, v.VIN)
		if err != nil {
			return nil, err
		}
		v.Event = event
	}

	f.pollEvents(ctx, vehicles)
	return vehicles, nil
}

// StopCharging stops charging on matched electric vehicles that are
// plugged in and not already stopped.
func (f *Fleet) StopCharging(ctx context.Context, filter string) ([]*Vehicle, error) {
	vehicles, err := f.Details(ctx, filter)
	if err != nil {
		return nil, err
	}

	for _, v := range vehicles {
		charging := v.Status.State.ElectricChargingState
		if v.Attributes.DriveTrain != "ELECTRIC" || !charging.IsChargerConnected {
			f.log.Info("not charging", zap.String("vin", v.VIN))
			continue
		}
		if charging.ChargingStatus == "STOPPED" {
			f.log.Info("charging already stopped", zap.String("vin", v.VIN))
			continue
		}
		event, err := f.api.StopCharging(ctx, v.VIN)
		if err != nil {
			return nil, err
		}
		v.Event = event
	}

	f.pollEvents(ctx, vehicles)
	return vehicles, nil
}

// pollEvents polls every issued command against one shared wall-clock
// deadline until each leaves PENDING. Hitting the deadline leaves the
// last observed status in place; the caller decides what a missing
// terminal status means.
func (f *Fleet) pollEvents(ctx context.Context, vehicles []*Vehicle) {
	var pending []*Vehicle
	for _, v := range vehicles {
		if v.Event != nil && v.Event.EventID != "" {
			pending = append(pending, v)
		}
	}

	deadline := f.now().Add(f.pollTimeout)
	for len(pending) > 0 && f.now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(f.pollInterval):
		}

		still := pending[:0]
		for _, v := range pending {
			status, err := f.api.CommandStatus(ctx, v.Event.EventID)
			if err != nil {
				f.log.Warn("event status", zap.String("vin", v.VIN), zap.Error(err))
				still = append(still, v)
				continue
			}
			v.EventStatus = status
			if !status.Terminal() {
				still = append(still, v)
				continue
			}
			f.log.Info("command finished", zap.String("vin", v.VIN),
				zap.String("status", status.EventStatus))
		}
		pending = still
	}

	for _, v := range pending {
		f.log.Warn("command still pending at deadline", zap.String("vin", v.VIN))
	}
}
