package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefanuc111/homeassistant-skodaconnect/internal/client/connect"
	"github.com/stefanuc111/homeassistant-skodaconnect/internal/instrument"
)

const testVIN = "TMBJB7NS4L1234567"

// fakeSession is a scripted Session for coordinator tests.
type fakeSession struct {
	loggedIn   atomic.Bool
	loginErr   error
	logoutErr  error
	fetchCalls atomic.Int32
	vehiclesFn func(ctx context.Context) ([]connect.VehicleRecord, error)
}

func (s *fakeSession) Login(context.Context) error {
	if s.loginErr != nil {
		return s.loginErr
	}
	s.loggedIn.Store(true)
	return nil
}

func (s *fakeSession) Logout(context.Context) error {
	if s.logoutErr != nil {
		return s.logoutErr
	}
	s.loggedIn.Store(false)
	return nil
}

func (s *fakeSession) LoggedIn() bool { return s.loggedIn.Load() }

func (s *fakeSession) Vehicles(ctx context.Context) ([]connect.VehicleRecord, error) {
	s.fetchCalls.Add(1)
	if s.vehiclesFn != nil {
		return s.vehiclesFn(ctx)
	}
	return []connect.VehicleRecord{testVehicle()}, nil
}

func testVehicle() connect.VehicleRecord {
	return connect.VehicleRecord{
		VIN:   testVIN,
		Model: "Enyaq iV 80",
		Status: connect.VehicleStatus{
			Battery: &connect.BatteryStatus{LevelPercent: 74, ChargingState: "idle"},
			Range:   &connect.RangeStatus{ElectricKM: 280},
		},
	}
}

func newTestCoordinator(session *fakeSession) *Coordinator {
	return New(session, testVIN, instrument.Options{}, time.Minute, clock.NewMock(), zerolog.Nop())
}

func TestRefreshRequiresLogin(t *testing.T) {
	session := &fakeSession{}
	c := newTestCoordinator(session)

	_, err := c.Refresh(context.Background())
	require.ErrorIs(t, err, ErrAuthRequired)
	assert.Equal(t, int32(0), session.fetchCalls.Load(), "no network call while logged out")
}

func TestRefreshUpdatesSnapshot(t *testing.T) {
	session := &fakeSession{}
	c := newTestCoordinator(session)
	require.True(t, c.Login(context.Background()))
	require.Nil(t, c.Snapshot())

	snapshot, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Same(t, snapshot, c.Snapshot())
	assert.True(t, c.LastUpdateSuccess())

	_, ok := snapshot.Lookup(instrument.CategorySensor, "battery_level")
	assert.True(t, ok)
}

func TestFailedRefreshKeepsPreviousSnapshot(t *testing.T) {
	session := &fakeSession{}
	c := newTestCoordinator(session)
	require.True(t, c.Login(context.Background()))

	previous, err := c.Refresh(context.Background())
	require.NoError(t, err)

	session.vehiclesFn = func(context.Context) ([]connect.VehicleRecord, error) {
		return nil, errors.New("gateway timeout")
	}

	_, err = c.Refresh(context.Background())
	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.Same(t, previous, c.Snapshot(), "stale snapshot stays available")
	assert.False(t, c.LastUpdateSuccess())
}

func TestRefreshVehicleNotFound(t *testing.T) {
	session := &fakeSession{
		vehiclesFn: func(context.Context) ([]connect.VehicleRecord, error) {
			return []connect.VehicleRecord{{VIN: "SOMEOTHERVIN000001"}}, nil
		},
	}
	c := newTestCoordinator(session)
	require.True(t, c.Login(context.Background()))

	_, err := c.Refresh(context.Background())
	require.ErrorIs(t, err, ErrVehicleNotFound)
	assert.False(t, c.LastUpdateSuccess())
}

func TestRequestRefreshCoalesces(t *testing.T) {
	const callers = 10

	release := make(chan struct{})
	fetchStarted := make(chan struct{})
	var once sync.Once

	session := &fakeSession{}
	session.vehiclesFn = func(context.Context) ([]connect.VehicleRecord, error) {
		once.Do(func() { close(fetchStarted) })
		<-release
		return []connect.VehicleRecord{testVehicle()}, nil
	}

	c := newTestCoordinator(session)
	require.True(t, c.Login(context.Background()))

	var notified atomic.Int32
	unsubscribe := c.Subscribe(func() { notified.Add(1) })
	defer unsubscribe()

	var wg sync.WaitGroup
	errs := make([]error, callers)
	snapshots := make([]*instrument.Snapshot, callers)

	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = c.RequestRefresh(context.Background())
			snapshots[i] = c.Snapshot()
		}(i)
	}

	close(start)
	<-fetchStarted
	// let the remaining callers attach to the in-flight refresh
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), session.fetchCalls.Load(), "exactly one fetch for all concurrent requests")
	assert.Equal(t, int32(1), notified.Load(), "listeners notified exactly once per refresh")

	want := c.Snapshot()
	require.NotNil(t, want)
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, want, snapshots[i], "all coalesced callers observe the same snapshot")
	}
}

func TestRequestRefreshAfterCompletionStartsNewFetch(t *testing.T) {
	session := &fakeSession{}
	c := newTestCoordinator(session)
	require.True(t, c.Login(context.Background()))

	require.NoError(t, c.RequestRefresh(context.Background()))
	require.NoError(t, c.RequestRefresh(context.Background()))
	assert.Equal(t, int32(2), session.fetchCalls.Load())
}

func TestSubscribeNotifiedBeforeRequestRefreshReturns(t *testing.T) {
	session := &fakeSession{}
	c := newTestCoordinator(session)
	require.True(t, c.Login(context.Background()))

	var sawSnapshot *instrument.Snapshot
	unsubscribe := c.Subscribe(func() { sawSnapshot = c.Snapshot() })
	defer unsubscribe()

	require.NoError(t, c.RequestRefresh(context.Background()))
	assert.Same(t, c.Snapshot(), sawSnapshot, "listener ran after the snapshot swap")
}

func TestListenerNotNotifiedOnFailure(t *testing.T) {
	session := &fakeSession{
		vehiclesFn: func(context.Context) ([]connect.VehicleRecord, error) {
			return nil, errors.New("boom")
		},
	}
	c := newTestCoordinator(session)
	require.True(t, c.Login(context.Background()))

	var notified atomic.Int32
	defer c.Subscribe(func() { notified.Add(1) })()

	require.Error(t, c.RequestRefresh(context.Background()))
	assert.Equal(t, int32(0), notified.Load())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	session := &fakeSession{}
	c := newTestCoordinator(session)
	require.True(t, c.Login(context.Background()))

	var notified atomic.Int32
	unsubscribe := c.Subscribe(func() { notified.Add(1) })

	require.NoError(t, c.RequestRefresh(context.Background()))
	assert.Equal(t, int32(1), notified.Load())

	unsubscribe()
	unsubscribe() // second call is a no-op

	require.NoError(t, c.RequestRefresh(context.Background()))
	assert.Equal(t, int32(1), notified.Load())
}

func TestLoginReportsCredentialFailure(t *testing.T) {
	session := &fakeSession{loginErr: fmt.Errorf("%w: check account credentials", connect.ErrAuthDenied)}
	c := newTestCoordinator(session)

	assert.False(t, c.Login(context.Background()))

	session.loginErr = nil
	assert.True(t, c.Login(context.Background()))
	assert.True(t, c.Login(context.Background()), "already logged in")
}

func TestLogoutSemantics(t *testing.T) {
	session := &fakeSession{}
	c := newTestCoordinator(session)

	assert.True(t, c.Logout(context.Background()), "already logged out")

	require.True(t, c.Login(context.Background()))
	session.logoutErr = errors.New("connection reset")
	assert.False(t, c.Logout(context.Background()))

	session.logoutErr = nil
	assert.True(t, c.Logout(context.Background()))
}

func TestRunSchedulesRefreshes(t *testing.T) {
	session := &fakeSession{}
	mock := clock.NewMock()
	c := New(session, testVIN, instrument.Options{}, 5*time.Minute, mock, zerolog.Nop())
	require.True(t, c.Login(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// give Run a chance to create its ticker before advancing the clock
	time.Sleep(10 * time.Millisecond)

	mock.Add(5 * time.Minute)
	require.Eventually(t, func() bool { return session.fetchCalls.Load() == 1 },
		time.Second, 5*time.Millisecond)

	mock.Add(5 * time.Minute)
	require.Eventually(t, func() bool { return session.fetchCalls.Load() == 2 },
		time.Second, 5*time.Millisecond)

	cancel()
	err := <-done
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, session.LoggedIn(), "shutdown logs out best-effort")
}

func TestIntervalFloor(t *testing.T) {
	c := New(&fakeSession{}, testVIN, instrument.Options{}, time.Second, clock.NewMock(), zerolog.Nop())
	assert.Equal(t, time.Minute, c.interval)
}
