// Package app exposes the bridge over HTTP: instrument state, device
// metadata and the four remote-action services.
package app

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// CreateServer builds the fiber app with all routes registered.
func CreateServer(logger *zerolog.Logger, ctrl *Controller) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return ErrorHandler(c, err, logger)
		},
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(func(c *fiber.Ctx) error {
		userCtx := logger.With().Str("httpPath", strings.TrimPrefix(c.Path(), "/")).
			Str("httpMethod", c.Method()).Logger().WithContext(c.UserContext())
		c.SetUserContext(userCtx)
		return c.Next()
	})

	app.Get("/", HealthCheck)
	app.Get("/vehicle", ctrl.GetVehicle)
	app.Get("/instruments", ctrl.GetInstruments)
	app.Get("/instruments/:category/:attribute", ctrl.GetInstrument)
	app.Post("/refresh", ctrl.RequestRefresh)

	services := app.Group("/services")
	services.Post("/set_schedule", ctrl.SetSchedule)
	services.Post("/set_max_current", ctrl.SetMaxCurrent)
	services.Post("/set_charge_limit", ctrl.SetChargeLimit)
	services.Post("/set_pheater_duration", ctrl.SetParkingHeaterDuration)

	return app
}

// HealthCheck reports that the server is up.
func HealthCheck(ctx *fiber.Ctx) error {
	res := map[string]any{
		"data": "Server is up and running",
	}

	return ctx.JSON(res)
}

// ErrorHandler logs recovered errors using our logger and returns json
// instead of a string body.
func ErrorHandler(ctx *fiber.Ctx, err error, logger *zerolog.Logger) error {
	code := fiber.StatusInternalServerError // Default 500 statuscode
	message := "Internal error."

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	// don't log not found errors
	if code != fiber.StatusNotFound {
		logger.Err(err).Int("httpStatusCode", code).
			Str("httpPath", strings.TrimPrefix(ctx.Path(), "/")).
			Str("httpMethod", ctx.Method()).
			Msg("caught an error from http request")
	}

	return ctx.Status(code).JSON(codeResp{Code: code, Message: message})
}

type codeResp struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}
