package bmw

import (
	"context"
	"fmt"
	"net/url"
)

// Remote command lifecycle statuses reported by the event endpoint.
const (
	EventPending  = "PENDING"
	EventExecuted = "EXECUTED"
	EventError    = "ERROR"
)

// RemoteCommandEvent is the handle returned when a command is issued;
// progress is observed by polling EventStatus with its id.
type RemoteCommandEvent struct {
	EventID string `json:"eventId"`
}

type EventErrorDetails struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// EventStatus is one observation of a remote command's progress.
type EventStatus struct {
	EventStatus  string             `json:"eventStatus"`
	ErrorDetails *EventErrorDetails `json:"errorDetails,omitempty"`
}

// Terminal reports whether the command has left the PENDING state.
func (s *EventStatus) Terminal() bool {
	return s.EventStatus != "" && s.EventStatus != EventPending
}

func (c *Client) remoteCommand(ctx context.Context, vin, service string) (*RemoteCommandEvent, error) {
	path := fmt.Sprintf("/eadrax-vrccs/v3/presentation/remote-commands/%s/%s", url.PathEscape(vin), service)

	var event RemoteCommandEvent
	if err := c.postJSON(ctx, path, &event); err != nil {
		return nil, fmt.Errorf("%s %s: %w", service, vin, err)
	}
	return &event, nil
}

// Lock locks the doors.
func (c *Client) Lock(ctx context.Context, vin string) (*RemoteCommandEvent, error) {
	return c.remoteCommand(ctx, vin, "door-lock")
}

// Unlock unlocks the doors.
func (c *Client) Unlock(ctx context.Context, vin string) (*RemoteCommandEvent, error) {
	return c.remoteCommand(ctx, vin, "door-unlock")
}

// FlashLights flashes the headlights.
func (c *Client) FlashLights(ctx context.Context, vin string) (*RemoteCommandEvent, error) {
	return c.remoteCommand(ctx, vin, "light-flash")
}

// HonkHorn sounds the horn.
func (c *Client) HonkHorn(ctx context.Context, vin string) (*RemoteCommandEvent, error) {
	return c.remoteCommand(ctx, vin, "horn-blow")
}

// StartClimate starts preconditioning.
func (c *Client) StartClimate(ctx context.Context, vin string) (*RemoteCommandEvent, error) {
	return c.remoteCommand(ctx, vin, "climate-now?action=START")
}

// StopClimate stops preconditioning.
func (c *Client) StopClimate(ctx context.Context, vin string) (*RemoteCommandEvent, error) {
	return c.remoteCommand(ctx, vin, "climate-now?action=STOP")
}

// StartCharging starts a charging session on a plugged-in vehicle.
func (c *Client) StartCharging(ctx context.Context, vin string) (*RemoteCommandEvent, error) {
	path := fmt.Sprintf("/eadrax-crccs/v1/vehicles/%s/start-charging", url.PathEscape(vin))

	var event RemoteCommandEvent
	if err := c.postJSON(ctx, path, &event); err != nil {
		return nil, fmt.Errorf("start charging %s: %w", vin, err)
	}
	return &event, nil
}

// StopCharging stops the active charging session.
func (c *Client) StopCharging(ctx context.Context, vin string) (*RemoteCommandEvent, error) {
	path := fmt.Sprintf("/eadrax-crccs/v1/vehicles/%s/stop-charging", url.PathEscape(vin))

	var event RemoteCommandEvent
	if err := c.postJSON(ctx, path, &event); err != nil {
		return nil, fmt.Errorf("stop charging %s: %w", vin, err)
	}
	return &event, nil
}

// CommandStatus polls the status of an issued remote command.
func (c *Client) CommandStatus(ctx context.Context, eventID string) (*EventStatus, error) {
	path := "/eadrax-vrccs/v3/presentation/remote-commands/eventStatus?eventId=" + url.QueryEscape(eventID)

	var status EventStatus
	if err := c.postJSON(ctx, path, &status); err != nil {
		return nil, fmt.Errorf("event status %s: %w", eventID, err)
	}
	return &status, nil
}
