package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefanuc111/homeassistant-skodaconnect/internal/config"
	"github.com/stefanuc111/homeassistant-skodaconnect/internal/dispatch"
	"github.com/stefanuc111/homeassistant-skodaconnect/internal/instrument"
)

const testVIN = "TMBJB7NS4L1234567"

type fakeState struct {
	snapshot   *instrument.Snapshot
	success    bool
	refreshErr error
	refreshed  int
}

func (f *fakeState) Snapshot() *instrument.Snapshot { return f.snapshot }
func (f *fakeState) LastUpdateSuccess() bool        { return f.success }
func (f *fakeState) RequestRefresh(context.Context) error {
	f.refreshed++
	return f.refreshErr
}

type fakeDispatcher struct {
	err      error
	schedule *dispatch.ScheduleCommand
	current  *dispatch.MaxCurrentCommand
	limit    *dispatch.ChargeLimitCommand
	duration *dispatch.HeaterDurationCommand
}

func (f *fakeDispatcher) SetSchedule(_ context.Context, cmd dispatch.ScheduleCommand) error {
	f.schedule = &cmd
	return f.err
}

func (f *fakeDispatcher) SetMaxCurrent(_ context.Context, cmd dispatch.MaxCurrentCommand) error {
	f.current = &cmd
	return f.err
}

func (f *fakeDispatcher) SetChargeLimit(_ context.Context, cmd dispatch.ChargeLimitCommand) error {
	f.limit = &cmd
	return f.err
}

func (f *fakeDispatcher) SetParkingHeaterDuration(_ context.Context, cmd dispatch.HeaterDurationCommand) error {
	f.duration = &cmd
	return f.err
}

func testSnapshot(t *testing.T) *instrument.Snapshot {
	t.Helper()
	taken := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	snapshot, err := instrument.NewSnapshot(testVIN, "Enyaq", "2021", "Daily driver", taken, []instrument.Instrument{
		{
			VIN:       testVIN,
			Category:  instrument.CategorySensor,
			Attribute: "battery_level",
			Name:      "Battery level",
			Unit:      "%",
			Value:     instrument.IntValue(70),
		},
		{
			VIN:       testVIN,
			Category:  instrument.CategoryBinarySensor,
			Attribute: "charging",
			Name:      "Charging",
			Value:     instrument.BoolValue(true),
		},
	})
	require.NoError(t, err)
	return snapshot
}

func newTestServer(t *testing.T, state *fakeState, dispatcher *fakeDispatcher, settings *config.Settings) *fiber.App {
	t.Helper()
	logger := zerolog.Nop()
	if settings == nil {
		settings = &config.Settings{}
	}
	ctrl, err := NewController(settings, &logger, state, dispatcher)
	require.NoError(t, err)

	return CreateServer(&logger, ctrl)
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, payload
}

func TestGetVehicleMetadata(t *testing.T) {
	state := &fakeState{snapshot: testSnapshot(t), success: true}
	app := newTestServer(t, state, &fakeDispatcher{}, &config.Settings{VehicleName: "Garage Enyaq"})

	status, payload := doRequest(t, app, http.MethodGet, "/vehicle", nil)
	require.Equal(t, http.StatusOK, status)

	var body vehicleResponse
	require.NoError(t, json.Unmarshal(payload, &body))
	assert.Equal(t, []string{testVIN}, body.Identifiers)
	assert.Equal(t, "Garage Enyaq", body.Name)
	assert.Equal(t, "Skoda", body.Manufacturer)
	assert.Equal(t, "Enyaq", body.Model)
	assert.Equal(t, "2021", body.ModelYear)
	assert.True(t, body.Available)
}

func TestGetVehicleWithoutSnapshot(t *testing.T) {
	app := newTestServer(t, &fakeState{}, &fakeDispatcher{}, nil)

	status, _ := doRequest(t, app, http.MethodGet, "/vehicle", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestGetInstrumentsFiltersResources(t *testing.T) {
	state := &fakeState{snapshot: testSnapshot(t), success: true}
	settings := &config.Settings{Resources: []string{"battery_level"}}
	app := newTestServer(t, state, &fakeDispatcher{}, settings)

	status, payload := doRequest(t, app, http.MethodGet, "/instruments", nil)
	require.Equal(t, http.StatusOK, status)

	var body instrumentsResponse
	require.NoError(t, json.Unmarshal(payload, &body))
	assert.Equal(t, testVIN, body.VIN)
	require.Len(t, body.Instruments, 1)
	assert.Equal(t, "battery_level", body.Instruments[0].Attribute)
}

func TestGetInstrumentByIdentity(t *testing.T) {
	state := &fakeState{snapshot: testSnapshot(t), success: true}
	app := newTestServer(t, state, &fakeDispatcher{}, nil)

	status, _ := doRequest(t, app, http.MethodGet, "/instruments/binary_sensor/charging", nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = doRequest(t, app, http.MethodGet, "/instruments/sensor/charging", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRequestRefresh(t *testing.T) {
	state := &fakeState{snapshot: testSnapshot(t), success: true}
	app := newTestServer(t, state, &fakeDispatcher{}, nil)

	status, _ := doRequest(t, app, http.MethodPost, "/refresh", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, state.refreshed)
}

func TestServiceValidationErrorsAreClientErrors(t *testing.T) {
	state := &fakeState{snapshot: testSnapshot(t), success: true}
	dispatcher := &fakeDispatcher{err: &dispatch.ValidationError{Field: "limit", Reason: "must be one of 0, 10, 20, 30, 40, 50"}}
	app := newTestServer(t, state, dispatcher, nil)

	status, _ := doRequest(t, app, http.MethodPost, "/services/set_charge_limit", map[string]any{"limit": 25})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServiceRemoteFailureIsUnsuccessfulOutcome(t *testing.T) {
	state := &fakeState{snapshot: testSnapshot(t), success: true}
	dispatcher := &fakeDispatcher{err: dispatch.ErrRemoteActionFailed}
	app := newTestServer(t, state, dispatcher, nil)

	status, payload := doRequest(t, app, http.MethodPost, "/services/set_charge_limit", map[string]any{"limit": 50})
	require.Equal(t, http.StatusOK, status)

	var body serviceResponse
	require.NoError(t, json.Unmarshal(payload, &body))
	assert.False(t, body.Success)
}

func TestServiceSuccess(t *testing.T) {
	state := &fakeState{snapshot: testSnapshot(t), success: true}
	dispatcher := &fakeDispatcher{}
	app := newTestServer(t, state, dispatcher, nil)

	status, payload := doRequest(t, app, http.MethodPost, "/services/set_max_current", map[string]any{"current": "maximum"})
	require.Equal(t, http.StatusOK, status)

	var body serviceResponse
	require.NoError(t, json.Unmarshal(payload, &body))
	assert.True(t, body.Success)
	require.NotNil(t, dispatcher.current)
	assert.Equal(t, dispatch.ChargerCurrentMaximum, dispatcher.current.Current.Code())
}

func TestScheduleServiceBody(t *testing.T) {
	state := &fakeState{snapshot: testSnapshot(t), success: true}
	dispatcher := &fakeDispatcher{}
	app := newTestServer(t, state, dispatcher, nil)

	status, _ := doRequest(t, app, http.MethodPost, "/services/set_schedule", map[string]any{
		"id":      2,
		"time":    "07:30",
		"enabled": true,
	})
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, dispatcher.schedule)
	assert.Equal(t, 2, dispatcher.schedule.SlotID)
	assert.Equal(t, "07:30", dispatcher.schedule.Time)
}
