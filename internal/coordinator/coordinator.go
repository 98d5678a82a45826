// Package coordinator owns the authenticated Connect session, the refresh
// cadence and the current instrument snapshot, and fans successful
// refreshes out to subscribed listeners.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/stefanuc111/homeassistant-skodaconnect/internal/client/connect"
	"github.com/stefanuc111/homeassistant-skodaconnect/internal/config"
	"github.com/stefanuc111/homeassistant-skodaconnect/internal/instrument"
)

const logoutTimeout = 10 * time.Second

// Session is the Connect account session the coordinator drives.
type Session interface {
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	LoggedIn() bool
	Vehicles(ctx context.Context) ([]connect.VehicleRecord, error)
}

// Coordinator manages fetching data for one vehicle: one session, one
// VIN, one update cadence. The current snapshot is replaced wholesale on
// each successful refresh and never mutated in place, so concurrent
// readers always observe a complete snapshot.
type Coordinator struct {
	session  Session
	vin      string
	opts     instrument.Options
	interval time.Duration
	clock    clock.Clock
	logger   *zerolog.Logger

	flight   singleflight.Group
	snapshot atomic.Pointer[instrument.Snapshot]
	success  atomic.Bool

	mu         sync.Mutex
	listeners  map[int]func()
	listenerID int
}

// New creates a coordinator for one vehicle. The update interval is
// clamped to the configured floor.
func New(session Session, vin string, opts instrument.Options, interval time.Duration, clk clock.Clock, logger zerolog.Logger) *Coordinator {
	if interval < config.MinUpdateInterval {
		interval = config.MinUpdateInterval
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Coordinator{
		session:   session,
		vin:       strings.ToUpper(vin),
		opts:      opts,
		interval:  interval,
		clock:     clk,
		logger:    &logger,
		listeners: make(map[int]func()),
	}
}

// Login authenticates the session if needed. Credential failures are
// logged, not returned; the caller decides whether to start a re-auth
// flow.
func (c *Coordinator) Login(ctx context.Context) bool {
	if c.session.LoggedIn() {
		return true
	}
	if err := c.session.Login(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("could not log in to Skoda Connect, check credentials and service status")
		return false
	}
	return true
}

// Logout ends the session. Returns true if logged out afterward; transport
// errors are logged and reported as false, never raised.
func (c *Coordinator) Logout(ctx context.Context) bool {
	if !c.session.LoggedIn() {
		return true
	}
	if err := c.session.Logout(ctx); err != nil {
		c.logger.Error().Err(err).Msg("could not log out from Skoda Connect")
		return false
	}
	return true
}

// Refresh fetches the vehicle's raw record and derives a new snapshot.
// On success the snapshot is swapped in atomically and every subscribed
// listener is invoked exactly once. On failure the previous snapshot is
// retained and the update is marked unsuccessful.
func (c *Coordinator) Refresh(ctx context.Context) (*instrument.Snapshot, error) {
	if !c.session.LoggedIn() {
		return nil, ErrAuthRequired
	}

	records, err := c.session.Vehicles(ctx)
	if err != nil {
		return nil, c.fail(fmt.Errorf("could not query update from Skoda Connect: %w", err))
	}

	record, found := findVehicle(records, c.vin)
	if !found {
		return nil, c.fail(fmt.Errorf("%w: %s", ErrVehicleNotFound, c.vin))
	}

	snapshot, err := instrument.Derive(record, c.opts)
	if err != nil {
		return nil, c.fail(fmt.Errorf("failed to derive instruments: %w", err))
	}

	c.snapshot.Store(snapshot)
	c.success.Store(true)
	c.logger.Debug().
		Str("vin", c.vin).
		Int("instruments", len(snapshot.Instruments())).
		Time("taken", snapshot.Taken).
		Msg("snapshot updated")

	c.notifyListeners()

	return snapshot, nil
}

// RequestRefresh performs a refresh, coalescing concurrent requests: at
// most one fetch is in flight per coordinator, and every caller issued
// while it is pending attaches to it and observes its outcome. A request
// arriving after completion starts a fresh refresh.
func (c *Coordinator) RequestRefresh(ctx context.Context) error {
	_, err, _ := c.flight.Do("refresh", func() (any, error) {
		return c.Refresh(ctx)
	})
	return err
}

// Subscribe registers a listener invoked once per successful refresh,
// after the snapshot swap and before RequestRefresh returns to any
// coalesced caller. The returned unsubscribe function is idempotent.
func (c *Coordinator) Subscribe(listener func()) func() {
	c.mu.Lock()
	id := c.listenerID
	c.listenerID++
	c.listeners[id] = listener
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Snapshot returns the last successfully derived snapshot, or nil before
// the first success.
func (c *Coordinator) Snapshot() *instrument.Snapshot {
	return c.snapshot.Load()
}

// LastUpdateSuccess reports whether the most recent refresh succeeded.
func (c *Coordinator) LastUpdateSuccess() bool {
	return c.success.Load()
}

// Run drives the scheduled refresh until the context is canceled, then
// logs out best-effort. Manually requested refreshes do not reset the
// tick phase.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := c.clock.Ticker(c.interval)
	defer ticker.Stop()

	c.logger.Info().Dur("interval", c.interval).Str("vin", c.vin).Msg("starting scheduled refresh")

	for {
		select {
		case <-ctx.Done():
			logoutCtx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
			defer cancel()
			c.Logout(logoutCtx)
			return ctx.Err()
		case <-ticker.C:
			if err := c.RequestRefresh(ctx); err != nil {
				c.logger.Warn().Err(err).Msg("scheduled refresh failed")
			}
		}
	}
}

func (c *Coordinator) fail(err error) error {
	c.success.Store(false)
	refreshErr := &RefreshError{err: err}
	c.logger.Warn().Err(refreshErr).Str("vin", c.vin).Msg("refresh failed, keeping previous snapshot")
	return refreshErr
}

func (c *Coordinator) notifyListeners() {
	c.mu.Lock()
	listeners := make([]func(), 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l()
	}
}

// findVehicle resolves the configured VIN in the fetched records.
func findVehicle(records []connect.VehicleRecord, vin string) (connect.VehicleRecord, bool) {
	for _, r := range records {
		if strings.EqualFold(r.VIN, vin) {
			return r, true
		}
	}
	return connect.VehicleRecord{}, false
}
