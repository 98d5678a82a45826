package app

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/stefanuc111/homeassistant-skodaconnect/internal/config"
	"github.com/stefanuc111/homeassistant-skodaconnect/internal/coordinator"
	"github.com/stefanuc111/homeassistant-skodaconnect/internal/dispatch"
	"github.com/stefanuc111/homeassistant-skodaconnect/internal/instrument"
)

// StateProvider is the coordinator surface the controller reads from.
type StateProvider interface {
	Snapshot() *instrument.Snapshot
	LastUpdateSuccess() bool
	RequestRefresh(ctx context.Context) error
}

// ServiceDispatcher executes the remote-action services.
type ServiceDispatcher interface {
	SetSchedule(ctx context.Context, cmd dispatch.ScheduleCommand) error
	SetMaxCurrent(ctx context.Context, cmd dispatch.MaxCurrentCommand) error
	SetChargeLimit(ctx context.Context, cmd dispatch.ChargeLimitCommand) error
	SetParkingHeaterDuration(ctx context.Context, cmd dispatch.HeaterDurationCommand) error
}

// Controller serves instrument state and dispatches service calls.
type Controller struct {
	state      StateProvider
	dispatcher ServiceDispatcher
	settings   *config.Settings
	logger     *zerolog.Logger
}

// NewController creates a controller with all required collaborators.
func NewController(settings *config.Settings, logger *zerolog.Logger, state StateProvider, dispatcher ServiceDispatcher) (*Controller, error) {
	if state == nil {
		return nil, errors.New("state provider is nil")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is nil")
	}
	return &Controller{
		state:      state,
		dispatcher: dispatcher,
		settings:   settings,
		logger:     logger,
	}, nil
}

// vehicleResponse is the device metadata of the bridged vehicle.
type vehicleResponse struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	ModelYear    string   `json:"modelYear"`
	Available    bool     `json:"available"`
}

// GetVehicle returns the device metadata derived from the current
// snapshot.
func (c *Controller) GetVehicle(ctx *fiber.Ctx) error {
	snapshot := c.state.Snapshot()
	if snapshot == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "No vehicle data yet")
	}

	return ctx.JSON(vehicleResponse{
		Identifiers:  []string{snapshot.VIN},
		Name:         snapshot.DisplayName(c.settings.VehicleName),
		Manufacturer: "Skoda",
		Model:        snapshot.Model,
		ModelYear:    snapshot.ModelYear,
		Available:    c.state.LastUpdateSuccess(),
	})
}

// instrumentsResponse lists the instruments of the current snapshot.
type instrumentsResponse struct {
	VIN         string                  `json:"vin"`
	Taken       string                  `json:"taken"`
	Available   bool                    `json:"available"`
	Instruments []instrument.Instrument `json:"instruments"`
}

// GetInstruments returns the current snapshot, filtered by the resource
// allow-list.
func (c *Controller) GetInstruments(ctx *fiber.Ctx) error {
	snapshot := c.state.Snapshot()
	if snapshot == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "No vehicle data yet")
	}

	all := snapshot.Instruments()
	enabled := make([]instrument.Instrument, 0, len(all))
	for _, inst := range all {
		if c.settings.ResourceEnabled(inst.Attribute) {
			enabled = append(enabled, inst)
		}
	}

	return ctx.JSON(instrumentsResponse{
		VIN:         snapshot.VIN,
		Taken:       snapshot.Taken.UTC().Format(time.RFC3339),
		Available:   c.state.LastUpdateSuccess(),
		Instruments: enabled,
	})
}

// GetInstrument resolves a single instrument by category and attribute.
func (c *Controller) GetInstrument(ctx *fiber.Ctx) error {
	snapshot := c.state.Snapshot()
	if snapshot == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "No vehicle data yet")
	}

	category := instrument.Category(ctx.Params("category"))
	attribute := ctx.Params("attribute")
	if !c.settings.ResourceEnabled(attribute) {
		return fiber.NewError(fiber.StatusNotFound, "Instrument not enabled")
	}

	inst, ok := snapshot.Lookup(category, attribute)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "Instrument not found")
	}

	return ctx.JSON(inst)
}

// RequestRefresh triggers a coalesced refresh and reports the outcome.
func (c *Controller) RequestRefresh(ctx *fiber.Ctx) error {
	if err := c.state.RequestRefresh(ctx.UserContext()); err != nil {
		if errors.Is(err, coordinator.ErrAuthRequired) {
			return fiber.NewError(fiber.StatusUnauthorized, "Login required")
		}
		return fiber.NewError(fiber.StatusBadGateway, "Refresh failed")
	}

	return ctx.JSON(serviceResponse{Success: true})
}

// serviceResponse is the outcome envelope of a service call.
type serviceResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// SetSchedule handles the set_schedule service.
func (c *Controller) SetSchedule(ctx *fiber.Ctx) error {
	var cmd dispatch.ScheduleCommand
	if err := ctx.BodyParser(&cmd); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return c.serviceOutcome(ctx, c.dispatcher.SetSchedule(ctx.UserContext(), cmd))
}

// SetMaxCurrent handles the set_max_current service.
func (c *Controller) SetMaxCurrent(ctx *fiber.Ctx) error {
	var cmd dispatch.MaxCurrentCommand
	if err := ctx.BodyParser(&cmd); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return c.serviceOutcome(ctx, c.dispatcher.SetMaxCurrent(ctx.UserContext(), cmd))
}

// SetChargeLimit handles the set_charge_limit service.
func (c *Controller) SetChargeLimit(ctx *fiber.Ctx) error {
	var cmd dispatch.ChargeLimitCommand
	if err := ctx.BodyParser(&cmd); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return c.serviceOutcome(ctx, c.dispatcher.SetChargeLimit(ctx.UserContext(), cmd))
}

// SetParkingHeaterDuration handles the set_pheater_duration service.
func (c *Controller) SetParkingHeaterDuration(ctx *fiber.Ctx) error {
	var cmd dispatch.HeaterDurationCommand
	if err := ctx.BodyParser(&cmd); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return c.serviceOutcome(ctx, c.dispatcher.SetParkingHeaterDuration(ctx.UserContext(), cmd))
}

// serviceOutcome maps dispatcher errors onto HTTP semantics: validation
// failures are client errors, a service-reported rejection is a
// non-fatal unsuccessful outcome, everything else is internal.
func (c *Controller) serviceOutcome(ctx *fiber.Ctx, err error) error {
	if err == nil {
		return ctx.JSON(serviceResponse{Success: true})
	}

	var validationErr *dispatch.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return fiber.NewError(fiber.StatusBadRequest, validationErr.Error())
	case errors.Is(err, dispatch.ErrUnknownVehicle):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrRemoteActionFailed):
		return ctx.JSON(serviceResponse{Success: false, Message: err.Error()})
	default:
		c.logger.Error().Err(err).Msg("service call failed")
		return fiber.NewError(fiber.StatusBadGateway, "Remote action failed")
	}
}
