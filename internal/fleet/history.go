package fleet

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pfrederiksen/bimmerctl/internal/bmw"
	"github.com/pfrederiksen/bimmerctl/internal/model"
)

type yearMonth struct {
	year  int
	month time.Month
}

// monthsSpanning lists the calendar months touched by [start, end].
func monthsSpanning(start, end time.Time) []yearMonth {
	var months []yearMonth
	cursor := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cursor.After(last) {
		months = append(months, yearMonth{cursor.Year(), cursor.Month()})
		cursor = cursor.AddDate(0, 1, 0)
	}
	return months
}

func within(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

// TripHistory fetches and aggregates every trip in [start, end] for the
// matched vehicles. The vendor's own rollups are ignored; all totals
// are recomputed from per-trip details.
func (f *Fleet) TripHistory(ctx context.Context, filter string, start, end time.Time) ([]*Vehicle, error) {
	vehicles, err := f.Vehicles(ctx, filter)
	if err != nil {
		return nil, err
	}

	for _, v := range vehicles {
		refs, err := f.tripRefs(ctx, v.VIN, start, end)
		if err != nil {
			return nil, err
		}

		details := make([]*bmw.TripDetails, len(refs))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(f.detailWorkers)
		for i, ref := range refs {
			g.Go(func() error {
				d, err := f.api.TripDetails(gctx, v.VIN, ref.ID)
				if err != nil {
					return err
				}
				details[i] = d
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var trips []model.TripRecord
		for _, d := range details {
			trip, err := model.TripFromDetails(d)
			if err != nil {
				f.log.Warn("skipping trip", zap.String("vin", v.VIN), zap.Error(err))
				continue
			}
			if !within(trip.Start, start, end) {
				continue
			}
			trips = append(trips, trip)
		}

		days := model.GroupTripsByDay(trips, f.loc)
		v.Trips = model.SummarizeTrips(days)
	}

	return vehicles, nil
}

// tripRefs pages through each month's history until the reported
// month total has been collected.
func (f *Fleet) tripRefs(ctx context.Context, vin string, start, end time.Time) ([]bmw.TripRef, error) {
	var refs []bmw.TripRef
	seen := make(map[string]bool)

	for _, m := range monthsSpanning(start, end) {
		offset := 0
		for {
			page, err := f.api.TripHistory(ctx, vin, m.year, m.month, offset)
			if err != nil {
				return nil, err
			}
			for _, ref := range page.Items {
				if !seen[ref.ID] {
					seen[ref.ID] = true
					refs = append(refs, ref)
				}
			}
			offset += len(page.Items)
			if len(page.Items) == 0 || offset >= page.Quantity {
				break
			}
		}
	}

	return refs, nil
}

// ChargingHistory fetches and aggregates charging sessions in
// [start, end] for the matched vehicles. One extra month before start
// is fetched so the first in-range session has a predecessor for the
// odometer and battery differencing; that baseline session itself is
// not returned.
func (f *Fleet) ChargingHistory(ctx context.Context, filter string, start, end time.Time) ([]*Vehicle, error) {
	vehicles, err := f.Vehicles(ctx, filter)
	if err != nil {
		return nil, err
	}

	for _, v := range vehicles {
		details, err := f.chargingDetails(ctx, v.VIN, start.AddDate(0, -1, 0), end)
		if err != nil {
			return nil, err
		}

		sessions := f.resolveSessions(v.VIN, details)
		sessions = model.ChainSessions(sessions)

		inRange := make([]model.ChargingSession, 0, len(sessions))
		for _, s := range sessions {
			if within(s.Time, start, end) {
				inRange = append(inRange, s)
			}
		}

		v.Charging = model.SummarizeCharging(inRange)
	}

	return vehicles, nil
}

func (f *Fleet) chargingDetails(ctx context.Context, vin string, start, end time.Time) ([]*bmw.ChargingSessionDetails, error) {
	var ids []string
	seen := make(map[string]bool)

	for _, m := range monthsSpanning(start, end) {
		page, err := f.api.ChargingSessions(ctx, vin, m.year, m.month)
		if err != nil {
			return nil, err
		}
		for _, ref := range page.Sessions {
			if !seen[ref.ID] {
				seen[ref.ID] = true
				ids = append(ids, ref.ID)
			}
		}
	}

	details := make([]*bmw.ChargingSessionDetails, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.detailWorkers)
	for i, id := range ids {
		g.Go(func() error {
			d, err := f.api.ChargingSessionDetails(gctx, vin, id)
			if err != nil {
				return err
			}
			details[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return details, nil
}

// resolveSessions turns raw details into sessions with reconciled
// timestamps. Session ids that embed an RFC3339 prefix are the ground
// truth; the offset between one such id and its rendered date string
// corrects the rendered dates of sessions whose ids embed nothing.
func (f *Fleet) resolveSessions(vin string, details []*bmw.ChargingSessionDetails) []model.ChargingSession {
	now := f.now()

	tzOffset := 0
	for _, d := range details {
		idTime, ok := model.SessionTimeFromID(d.ID)
		if !ok {
			continue
		}
		displayTime, err := model.ParseSessionTime(d.Date, now, 0)
		if err != nil {
			continue
		}
		tzOffset = model.TimezoneOffsetHours(idTime, displayTime)
		break
	}

	sessions := make([]model.ChargingSession, 0, len(details))
	for _, d := range details {
		at, ok := model.SessionTimeFromID(d.ID)
		if !ok {
			var err error
			at, err = model.ParseSessionTime(d.Date, now, tzOffset)
			if err != nil {
				f.log.Warn("skipping charging session",
					zap.String("vin", vin), zap.String("id", d.ID), zap.Error(err))
				continue
			}
		}
		sessions = append(sessions, model.ChargingFromDetails(d, at))
	}

	return sessions
}
