package bmw

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Rendered vehicle views accepted by the image endpoint.
const (
	ViewFront     = "FrontView"
	ViewRear      = "RearView"
	ViewSideLeft  = "SideViewLeft"
	ViewSideRight = "SideViewRight"
)

// tripTimezone is the fixed timezone query the mobile app sends to the
// sustainability endpoints. Timestamps are reconciled against session
// ids later, so the offset sent here only shifts the display strings.
const tripTimezone = "-05:00"

// GeoPoint is a vendor coordinate with an optional reverse-geocoded
// address.
type GeoPoint struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	AddressName string  `json:"addressName,omitempty"`
}

// VehicleAttributes is the static description of a vehicle from the
// vehicle list endpoint.
type VehicleAttributes struct {
	Model           string `json:"model"`
	Year            int    `json:"year"`
	Brand           string `json:"brand"`
	DriveTrain      string `json:"driveTrain"`
	BodyType        string `json:"bodyType"`
	Color           string `json:"color,omitempty"`
	HeadUnitType    string `json:"headUnitType,omitempty"`
	SoftwareVersion string `json:"softwareVersion,omitempty"`
}

// Vehicle is one entry of the vehicle list.
type Vehicle struct {
	VIN        string            `json:"vin"`
	Attributes VehicleAttributes `json:"attributes"`
}

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type VehicleLocation struct {
	Coordinates Coordinates `json:"coordinates"`
	Address     struct {
		Formatted string `json:"formatted"`
	} `json:"address"`
	Heading float64 `json:"heading"`
}

type DoorsState struct {
	CombinedSecurityState string `json:"combinedSecurityState"`
	CombinedState         string `json:"combinedState"`
	Hood                  string `json:"hood"`
	Trunk                 string `json:"trunk"`
}

type WindowsState struct {
	CombinedState string `json:"combinedState"`
}

type ClimateControlState struct {
	Activity string `json:"activity"`
}

type ElectricChargingState struct {
	ChargingLevelPercent     float64 `json:"chargingLevelPercent"`
	Range                    float64 `json:"range"`
	IsChargerConnected       bool    `json:"isChargerConnected"`
	ChargingStatus           string  `json:"chargingStatus"`
	ChargingTarget           float64 `json:"chargingTarget"`
	RemainingChargingMinutes float64 `json:"remainingChargingMinutes"`
}

// VehicleState is the live telemetry snapshot for one VIN.
type VehicleState struct {
	LastUpdatedAt         string                `json:"lastUpdatedAt"`
	CurrentMileage        float64               `json:"currentMileage"`
	Range                 float64               `json:"range"`
	Location              *VehicleLocation      `json:"location,omitempty"`
	DoorsState            DoorsState            `json:"doorsState"`
	WindowsState          WindowsState          `json:"windowsState"`
	ClimateControlState   ClimateControlState   `json:"climateControlState"`
	ElectricChargingState ElectricChargingState `json:"electricChargingState"`
	IsDeepSleepModeActive bool                  `json:"isDeepSleepModeActive"`
}

// VehicleStatus wraps the state endpoint response: capabilities plus
// the telemetry snapshot.
type VehicleStatus struct {
	Capabilities map[string]any `json:"capabilities"`
	State        VehicleState   `json:"state"`
}

// ChargeSettings is the charging-profile view of a vehicle.
type ChargeSettings struct {
	ChargingMode                     string `json:"chargingMode"`
	ChargingPreference               string `json:"chargingPreference"`
	TargetSoc                        int    `json:"targetSoc"`
	AcCurrentLimit                   int    `json:"acCurrentLimit"`
	IsPreconditionForDepartureActive bool   `json:"isPreconditionForDepartureActive"`
}

// ChargePlan is the charging-plan view of a vehicle.
type ChargePlan struct {
	ChargingStatus       string  `json:"chargingStatus"`
	ChargingLevelPercent float64 `json:"chargingLevelPercent"`
	IsChargingPlanActive bool    `json:"isChargingPlanActive"`
}

type Recall struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Status      string `json:"status"`
}

type UserFlag struct {
	FlagID   string `json:"flagId"`
	IsActive bool   `json:"isActive"`
}

type UserFlags struct {
	Flags []UserFlag `json:"flags"`
}

// TripRef is a trip reference from a history page; details are fetched
// separately per trip.
type TripRef struct {
	ID string `json:"id"`
}

// TripPage is one page of the monthly trip history. Quantity is the
// month total, so callers page until they hold that many items.
type TripPage struct {
	Items    []TripRef `json:"items"`
	Quantity int       `json:"quantity"`
}

type TripWaypoint struct {
	Time     string    `json:"time"`
	Location *GeoPoint `json:"location,omitempty"`
}

type TripDistance struct {
	Distance float64 `json:"distance"`
	Unit     string  `json:"distanceUnit"`
}

// TripDetails is the full record of a single driving segment.
type TripDetails struct {
	ID                     string       `json:"id"`
	Start                  TripWaypoint `json:"start"`
	End                    TripWaypoint `json:"end"`
	Distance               TripDistance `json:"distance"`
	ElectricConsumptionKwh float64      `json:"electricConsumption"`
	BatteryUsedPercent     float64      `json:"batteryUsed"`
}

// ChargingSessionRef is a session reference from a history page.
type ChargingSessionRef struct {
	ID string `json:"id"`
}

// ChargingPage is one page of monthly charging sessions.
type ChargingPage struct {
	Sessions  []ChargingSessionRef `json:"sessions"`
	NextToken string               `json:"nextToken"`
}

// ChargingSessionDetails is the full record of one charging session.
// Date is a display string in one of several vendor formats; callers
// resolve it against the session id when possible.
type ChargingSessionDetails struct {
	ID                  string    `json:"id"`
	Date                string    `json:"date"`
	EnergyChargedKwh    float64   `json:"energyCharged"`
	StartBatteryPercent float64   `json:"startBatteryPercentage"`
	EndBatteryPercent   float64   `json:"endBatteryPercentage"`
	OdometerKm          float64   `json:"mileage"`
	ChargingMinutes     float64   `json:"chargingMinutes"`
	Location            *GeoPoint `json:"location,omitempty"`
}

func vinHeader(vin string) map[string]string {
	return map[string]string{"bmw-vin": vin}
}

// Vehicles lists the vehicles on the account.
func (c *Client) Vehicles(ctx context.Context) ([]Vehicle, error) {
	var vehicles []Vehicle
	if err := c.getJSON(ctx, "/eadrax-vcs/v4/vehicles", nil, 30*time.Second, &vehicles); err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	return vehicles, nil
}

// VehicleState fetches the live state snapshot for a VIN.
func (c *Client) VehicleState(ctx context.Context, vin string) (*VehicleStatus, error) {
	var status VehicleStatus
	if err := c.getJSON(ctx, "/eadrax-vcs/v4/vehicles/state", vinHeader(vin), 30*time.Second, &status); err != nil {
		return nil, fmt.Errorf("vehicle state %s: %w", vin, err)
	}
	return &status, nil
}

// VehicleImage fetches a rendered PNG of the vehicle from the given
// view angle.
func (c *Client) VehicleImage(ctx context.Context, vin, view string) ([]byte, error) {
	path := "/eadrax-ics/v3/presentation/vehicles/" + url.PathEscape(vin) + "/images?carView=" + url.QueryEscape(view)
	res, err := c.request(ctx, apiRequest{
		method:   http.MethodGet,
		path:     path,
		header:   map[string]string{"Accept": "image/png"},
		cacheTTL: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("vehicle image %s: %w", vin, err)
	}
	return res.Body, nil
}

// VehicleRecalls lists open recalls for a VIN.
func (c *Client) VehicleRecalls(ctx context.Context, vin string) ([]Recall, error) {
	var out struct {
		Recalls []Recall `json:"recalls"`
	}
	path := "/eadrax-recallcs/v2/recalls?vin=" + url.QueryEscape(vin)
	if err := c.getJSON(ctx, path, nil, time.Minute, &out); err != nil {
		return nil, fmt.Errorf("recalls %s: %w", vin, err)
	}
	return out.Recalls, nil
}

// UserFlags fetches the account's feature flags.
func (c *Client) UserFlags(ctx context.Context) (*UserFlags, error) {
	var flags UserFlags
	if err := c.getJSON(ctx, "/eadrax-fts/v1/flags", nil, time.Minute, &flags); err != nil {
		return nil, fmt.Errorf("user flags: %w", err)
	}
	return &flags, nil
}

// VehicleChargeSettings fetches the charging profile for a VIN.
func (c *Client) VehicleChargeSettings(ctx context.Context, vin string) (*ChargeSettings, error) {
	var settings ChargeSettings
	path := "/eadrax-crccs/v2/vehicles?fields=charging-profile&has_charging_settings_capabilities=true"
	if err := c.getJSON(ctx, path, vinHeader(vin), 30*time.Second, &settings); err != nil {
		return nil, fmt.Errorf("charge settings %s: %w", vin, err)
	}
	return &settings, nil
}

// VehicleChargeState fetches the charging plan for a VIN.
func (c *Client) VehicleChargeState(ctx context.Context, vin string) (*ChargePlan, error) {
	var plan ChargePlan
	path := fmt.Sprintf("/eadrax-cps/v2/vehicles?fields=charging-plan&current_date=%s&has_charging_settings_capabilities=true",
		url.QueryEscape(c.now().UTC().Format(time.RFC3339)))
	if err := c.getJSON(ctx, path, vinHeader(vin), 30*time.Second, &plan); err != nil {
		return nil, fmt.Errorf("charge state %s: %w", vin, err)
	}
	return &plan, nil
}

// ChargingSessions fetches one month of charging session summaries.
func (c *Client) ChargingSessions(ctx context.Context, vin string, year int, month time.Month) (*ChargingPage, error) {
	date := url.QueryEscape(fmt.Sprintf("%04d-%02d-01T00:00:00.000Z", year, month))
	path := fmt.Sprintf("/eadrax-chs/v2/charging-sessions?next_token&date=%s&location_id&max_results=40&include_date_picker=false", date)

	var out struct {
		ChargingSessions ChargingPage `json:"chargingSessions"`
	}
	if err := c.getJSON(ctx, path, vinHeader(vin), time.Minute, &out); err != nil {
		return nil, fmt.Errorf("charging sessions %s %d-%02d: %w", vin, year, month, err)
	}
	return &out.ChargingSessions, nil
}

// ChargingSessionDetails fetches the full record of one session.
func (c *Client) ChargingSessionDetails(ctx context.Context, vin, sessionID string) (*ChargingSessionDetails, error) {
	var details ChargingSessionDetails
	path := "/eadrax-chs/v2/charging-sessions/" + url.PathEscape(sessionID)
	if err := c.getJSON(ctx, path, vinHeader(vin), time.Minute, &details); err != nil {
		return nil, fmt.Errorf("charging session %s: %w", sessionID, err)
	}
	return &details, nil
}

// TripHistory fetches one page of the monthly trip history starting at
// offset.
func (c *Client) TripHistory(ctx context.Context, vin string, year int, month time.Month, offset int) (*TripPage, error) {
	path := fmt.Sprintf("/eadrax-suscs/v1/vehicles/sustainability/trips/history?date=%04d-%02d&offset=%d&limit=50&groupByWeek=false&timezone=%s",
		year, month, offset, url.QueryEscape(tripTimezone))

	var page TripPage
	if err := c.getJSON(ctx, path, vinHeader(vin), time.Minute, &page); err != nil {
		return nil, fmt.Errorf("trip history %s %d-%02d: %w", vin, year, month, err)
	}
	return &page, nil
}

// TripDetails fetches the full record of one trip.
func (c *Client) TripDetails(ctx context.Context, vin, tripID string) (*TripDetails, error) {
	path := fmt.Sprintf("/eadrax-suscs/v1/vehicles/sustainability/trips/%s?timezone=%s",
		url.PathEscape(tripID), url.QueryEscape(tripTimezone))

	var details TripDetails
	if err := c.getJSON(ctx, path, vinHeader(vin), time.Minute, &details); err != nil {
		return nil, fmt.Errorf("trip %s: %w", tripID, err)
	}
	return &details, nil
}
