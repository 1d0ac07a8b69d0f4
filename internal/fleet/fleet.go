package fleet

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/pfrederiksen/bimmerctl/internal/bmw"
	"github.com/pfrederiksen/bimmerctl/internal/model"
)

// API is the slice of the vendor client the orchestrator needs.
// Declared here so tests can substitute a mock.
type API interface {
	Vehicles(ctx context.Context) ([]bmw.Vehicle, error)
	VehicleState(ctx context.Context, vin string) (*bmw.VehicleStatus, error)
	VehicleRecalls(ctx context.Context, vin string) ([]bmw.Recall, error)
	VehicleChargeSettings(ctx context.Context, vin string) (*bmw.ChargeSettings, error)
	VehicleChargeState(ctx context.Context, vin string) (*bmw.ChargePlan, error)

	Lock(ctx context.Context, vin string) (*bmw.RemoteCommandEvent, error)
	Unlock(ctx context.Context, vin string) (*bmw.RemoteCommandEvent, error)
	FlashLights(ctx context.Context, vin string) (*bmw.RemoteCommandEvent, error)
	HonkHorn(ctx context.Context, vin string) (*bmw.RemoteCommandEvent, error)
	StartClimate(ctx context.Context, vin string) (*bmw.RemoteCommandEvent, error)
	StopClimate(ctx context.Context, vin string) (*bmw.RemoteCommandEvent, error)
	StartCharging(ctx context.Context, vin string) (*bmw.RemoteCommandEvent, error)
	StopCharging(ctx context.Context, vin string) (*bmw.RemoteCommandEvent, error)
	CommandStatus(ctx context.Context, eventID string) (*bmw.EventStatus, error)

	TripHistory(ctx context.Context, vin string, year int, month time.Month, offset int) (*bmw.TripPage, error)
	TripDetails(ctx context.Context, vin, tripID string) (*bmw.TripDetails, error)
	ChargingSessions(ctx context.Context, vin string, year int, month time.Month) (*bmw.ChargingPage, error)
	ChargingSessionDetails(ctx context.Context, vin, sessionID string) (*bmw.ChargingSessionDetails, error)
}

// Vehicle is a vendor vehicle progressively enriched by the
// orchestrator: list attributes first, then state, charge views and
// history as the requested operation demands.
type Vehicle struct {
	bmw.Vehicle

	Status         *bmw.VehicleStatus      `json:"status,omitempty"`
	ChargeSettings *bmw.ChargeSettings     `json:"chargeSettings,omitempty"`
	ChargePlan     *bmw.ChargePlan         `json:"chargePlan,omitempty"`
	Recalls        []bmw.Recall            `json:"recalls,omitempty"`
	Event          *bmw.RemoteCommandEvent `json:"event,omitempty"`
	EventStatus    *bmw.EventStatus        `json:"eventStatus,omitempty"`

	Trips    *model.TripSummary     `json:"trips,omitempty"`
	Charging *model.ChargingSummary `json:"charging,omitempty"`
}

// Fleet executes account-level operations across one or more vehicles.
type Fleet struct {
	api API
	log *zap.Logger

	pollInterval  time.Duration
	pollTimeout   time.Duration
	detailWorkers int
	loc           *time.Location
	now           func() time.Time
}

// Option configures a Fleet.
type Option func(*Fleet)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(f *Fleet) { f.log = log }
}

// WithPollInterval sets the delay between remote command status polls.
func WithPollInterval(d time.Duration) Option {
	return func(f *Fleet) { f.pollInterval = d }
}

// WithPollTimeout sets the shared wall-clock deadline for remote
// command polling.
func WithPollTimeout(d time.Duration) Option {
	return func(f *Fleet) { f.pollTimeout = d }
}

// WithDetailWorkers caps how many history detail fetches run at once.
func WithDetailWorkers(n int) Option {
	return func(f *Fleet) { f.detailWorkers = n }
}

// WithLocation sets the timezone used for calendar-day grouping.
// Defaults to the process-local zone.
func WithLocation(loc *time.Location) Option {
	return func(f *Fleet) { f.loc = loc }
}

// WithClock overrides the time source (testing).
func WithClock(now func() time.Time) Option {
	return func(f *Fleet) { f.now = now }
}

// New creates a Fleet over the given API.
func New(api API, opts ...Option) *Fleet {
	f := &Fleet{
		api:           api,
		log:           zap.NewNop(),
		pollInterval:  time.Second,
		pollTimeout:   30 * time.Second,
		detailWorkers: 8,
		loc:           time.Local,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Vehicles lists the account's vehicles, optionally narrowed by
// filter: an exact VIN match or a case-insensitive model name pattern.
// An empty filter returns every vehicle.
func (f *Fleet) Vehicles(ctx context.Context, filter string) ([]*Vehicle, error) {
	raw, err := f.api.Vehicles(ctx)
	if err != nil {
		return nil, err
	}

	var pattern *regexp.Regexp
	if filter != "" {
		pattern, err = regexp.Compile("(?i)" + filter)
		if err != nil {
			return nil, fmt.Errorf("invalid vehicle filter %q: %w", filter, err)
		}
	}

	var vehicles []*Vehicle
	for _, v := range raw {
		if filter != "" && v.VIN != filter && !pattern.MatchString(v.Attributes.Model) {
			continue
		}
		vehicles = append(vehicles, &Vehicle{Vehicle: v})
	}

	return vehicles, nil
}

// Details lists vehicles and enriches each with its live state and
// charging views. The state fetch is required; the charge views are
// best-effort since not every drivetrain serves them.
func (f *Fleet) Details(ctx context.Context, filter string) ([]*Vehicle, error) {
	vehicles, err := f.Vehicles(ctx, filter)
	if err != nil {
		return nil, err
	}

	for _, v := range vehicles {
		status, err := f.api.VehicleState(ctx, v.VIN)
		if err != nil {
			return nil, fmt.Errorf("state for %s: %w", v.VIN, err)
		}
		v.Status = status

		if settings, err := f.api.VehicleChargeSettings(ctx, v.VIN); err == nil {
			v.ChargeSettings = settings
		} else {
			f.log.Debug("no charge settings", zap.String("vin", v.VIN), zap.Error(err))
		}
		if plan, err := f.api.VehicleChargeState(ctx, v.VIN); err == nil {
			v.ChargePlan = plan
		} else {
			f.log.Debug("no charge plan", zap.String("vin", v.VIN), zap.Error(err))
		}
	}

	return vehicles, nil
}

// Info enriches Details with open recalls.
func (f *Fleet) Info(ctx context.Context, filter string) ([]*Vehicle, error) {
	vehicles, err := f.Details(ctx, filter)
	if err != nil {
		return nil, err
	}

	for _, v := range vehicles {
		recalls, err := f.api.VehicleRecalls(ctx, v.VIN)
		if err != nil {
			f.log.Debug("no recall data", zap.String("vin", v.VIN), zap.Error(err))
			continue
		}
		v.Recalls = recalls
	}

	return vehicles, nil
}
