package host

import (
	"context"
	"errors"
	"time"

	"github.com/saviobatista/aman-bridge/internal/types"
)

// Override kinds applied by client commands
const (
	OverrideRunway        = "runway"
	OverrideDepartureTime = "departure_time"
)

// State is the host's view of the traffic at one instant
type State struct {
	Aircraft    []types.AircraftSnapshot
	Environment types.Environment
}

// Provider supplies the current aircraft and environment
type Provider interface {
	Snapshot(now time.Time) State
}

// Commander applies client commands to flight plans. Departure times are passed
// as HH:MM in UTC.
type Commander interface {
	AssignRunway(ctx context.Context, callsign, runway string) error
	SetDepartureTime(ctx context.Context, callsign, hhmm string) error
}

// Commanders fans a command out to several commanders. Every commander is called
// even if an earlier one fails; the errors are joined.
type Commanders []Commander

// AssignRunway implements Commander
func (c Commanders) AssignRunway(ctx context.Context, callsign, runway string) error {
	var errs []error
	for _, cmd := range c {
		if err := cmd.AssignRunway(ctx, callsign, runway); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetDepartureTime implements Commander
func (c Commanders) SetDepartureTime(ctx context.Context, callsign, hhmm string) error {
	var errs []error
	for _, cmd := range c {
		if err := cmd.SetDepartureTime(ctx, callsign, hhmm); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
