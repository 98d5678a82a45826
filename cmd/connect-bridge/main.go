package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stefanuc111/homeassistant-skodaconnect/internal/app"
	"github.com/stefanuc111/homeassistant-skodaconnect/internal/client/connect"
	"github.com/stefanuc111/homeassistant-skodaconnect/internal/config"
	"github.com/stefanuc111/homeassistant-skodaconnect/internal/coordinator"
	"github.com/stefanuc111/homeassistant-skodaconnect/internal/dispatch"
	"github.com/stefanuc111/homeassistant-skodaconnect/internal/instrument"
	"github.com/stefanuc111/homeassistant-skodaconnect/internal/mqtt"
)

const (
	appName        = "connect-bridge"
	requestTimeout = 30 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	group, gCtx := errgroup.WithContext(ctx)

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", appName).Logger()

	go func() {
		<-ctx.Done()
		logger.Info().Msg("Received signal, shutting down...")
	}()

	settings, err := config.LoadSettings()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load settings.")
	}

	level, err := zerolog.ParseLevel(settings.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to parse log level.")
	}
	logger = logger.Level(level)

	session, err := connect.New(settings, &http.Client{Timeout: requestTimeout}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Connect client.")
	}

	conversion, err := instrument.ParseConversion(settings.Convert)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to parse unit conversion.")
	}
	opts := instrument.Options{
		Mutable: settings.Mutable,
		SPIN:    settings.SPIN,
		Convert: conversion,
	}

	coord := coordinator.New(session, settings.VIN, opts, settings.UpdateInterval(), clock.New(), logger)

	if !coord.Login(ctx) {
		logger.Fatal().Msg("Could not log in to Skoda Connect. Check the credentials and accept any pending EULA in the official app, then restart.")
	}
	if _, err := coord.Refresh(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Initial vehicle refresh failed.")
	}

	group.Go(func() error {
		return coord.Run(gCtx)
	})

	if settings.MQTTBroker != "" {
		publisher, err := mqtt.NewPublisher(settings, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create MQTT publisher.")
		}
		unsubscribe := publisher.Attach(coord)
		group.Go(func() error {
			<-gCtx.Done()
			unsubscribe()
			publisher.Close()
			return nil
		})
	}

	dispatcher := dispatch.New(session, coord, settings.VIN, logger)
	ctrl, err := app.NewController(settings, &logger, coord, dispatcher)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create controller.")
	}

	fiberApp := app.CreateServer(&logger, ctrl)
	runFiber(gCtx, fiberApp, settings.Port, group)
	logger.Info().Int("port", settings.Port).Msg("Listening for HTTP requests")

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("Failed to run servers.")
	}
}

// runFiber runs the fiber server and shuts it down when the context ends.
func runFiber(ctx context.Context, fiberApp *fiber.App, port int, group *errgroup.Group) {
	group.Go(func() error {
		if err := fiberApp.Listen(fmt.Sprintf(":%d", port)); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		if err := fiberApp.Shutdown(); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	})
}
