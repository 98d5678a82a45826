// Package dispatch translates externally invoked commands into remote
// Connect actions and turns successful actions into refresh requests.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stefanuc111/homeassistant-skodaconnect/internal/client/connect"
)

var (
	// ErrRemoteActionFailed indicates the service reported an
	// unsuccessful action. Nothing changed, so no refresh is triggered.
	ErrRemoteActionFailed = errors.New("remote action reported failure")

	// ErrUnknownVehicle indicates the command addressed a VIN this
	// dispatcher does not manage.
	ErrUnknownVehicle = errors.New("unknown vehicle")
)

// ActionSession is the slice of the Connect session the dispatcher uses.
type ActionSession interface {
	SetTimerSchedule(ctx context.Context, vin string, slot int, schedule connect.Schedule) (bool, error)
	SetChargeLimit(ctx context.Context, vin string, limit int) (bool, error)
	SetChargerCurrent(ctx context.Context, vin string, code int) (bool, error)
	SetParkingHeaterDuration(ctx context.Context, vin string, minutes int) (bool, error)
}

// Refresher requests a coalesced coordinator refresh after a successful
// action so observers see its effect.
type Refresher interface {
	RequestRefresh(ctx context.Context) error
}

// Dispatcher validates and executes remote commands for one vehicle.
type Dispatcher struct {
	session   ActionSession
	refresher Refresher
	vin       string
	logger    *zerolog.Logger
}

// New creates a dispatcher bound to one vehicle.
func New(session ActionSession, refresher Refresher, vin string, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		session:   session,
		refresher: refresher,
		vin:       strings.ToUpper(vin),
		logger:    &logger,
	}
}

// SetSchedule programs a departure timer slot.
func (d *Dispatcher) SetSchedule(ctx context.Context, cmd ScheduleCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	vin, err := d.resolveVIN(cmd.VIN)
	if err != nil {
		return err
	}

	schedule := connect.Schedule{
		Enabled:   cmd.Enabled,
		Recurring: cmd.Recurring,
		Time:      cmd.Time,
		Date:      cmd.Date,
		Days:      cmd.Days,
	}
	d.logger.Info().Int("slot", cmd.SlotID).Str("vin", vin).Msg("setting departure schedule")

	ok, err := d.session.SetTimerSchedule(ctx, vin, cmd.SlotID, schedule)
	return d.finish(ctx, "set_schedule", ok, err)
}

// SetMaxCurrent sets the maximum AC charging current.
func (d *Dispatcher) SetMaxCurrent(ctx context.Context, cmd MaxCurrentCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	vin, err := d.resolveVIN(cmd.VIN)
	if err != nil {
		return err
	}

	d.logger.Info().Int("code", cmd.Current.Code()).Str("vin", vin).Msg("setting maximum charger current")

	ok, err := d.session.SetChargerCurrent(ctx, vin, cmd.Current.Code())
	return d.finish(ctx, "set_max_current", ok, err)
}

// SetChargeLimit sets the minimum charge level.
func (d *Dispatcher) SetChargeLimit(ctx context.Context, cmd ChargeLimitCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	vin, err := d.resolveVIN(cmd.VIN)
	if err != nil {
		return err
	}

	d.logger.Info().Int("limit", cmd.Limit).Str("vin", vin).Msg("setting charge limit")

	ok, err := d.session.SetChargeLimit(ctx, vin, cmd.Limit)
	return d.finish(ctx, "set_charge_limit", ok, err)
}

// SetParkingHeaterDuration sets the auxiliary heater runtime.
func (d *Dispatcher) SetParkingHeaterDuration(ctx context.Context, cmd HeaterDurationCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	vin, err := d.resolveVIN(cmd.VIN)
	if err != nil {
		return err
	}

	d.logger.Info().Int("duration", cmd.Duration).Str("vin", vin).Msg("setting parking heater duration")

	ok, err := d.session.SetParkingHeaterDuration(ctx, vin, cmd.Duration)
	return d.finish(ctx, "set_pheater_duration", ok, err)
}

// resolveVIN maps an optional command VIN onto the managed vehicle. An
// empty VIN targets the dispatcher's vehicle.
func (d *Dispatcher) resolveVIN(vin string) (string, error) {
	if vin == "" {
		return d.vin, nil
	}
	if !strings.EqualFold(vin, d.vin) {
		return "", fmt.Errorf("%w: %s", ErrUnknownVehicle, vin)
	}
	return d.vin, nil
}

// finish handles an action outcome: transport errors propagate, a
// service-reported failure is logged without a refresh, and a success
// triggers exactly one coalesced refresh.
func (d *Dispatcher) finish(ctx context.Context, action string, ok bool, err error) error {
	if err != nil {
		return fmt.Errorf("failed to execute %s: %w", action, err)
	}
	if !ok {
		d.logger.Warn().Str("action", action).Msg("remote action rejected by the service")
		return fmt.Errorf("%s: %w", action, ErrRemoteActionFailed)
	}

	d.logger.Info().Str("action", action).Msg("remote action succeeded")
	if err := d.refresher.RequestRefresh(ctx); err != nil {
		d.logger.Warn().Err(err).Str("action", action).Msg("refresh after action failed")
	}
	return nil
}
