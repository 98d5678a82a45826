package connect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	timerPath          = "api/v1/vehicles/%s/timers/%d"
	chargeLimitPath    = "api/v1/vehicles/%s/charging/limit"
	chargerCurrentPath = "api/v1/vehicles/%s/charging/max-current"
	parkingHeaterPath  = "api/v1/vehicles/%s/parking-heater/duration"
)

// SetTimerSchedule programs one departure timer slot. The returned bool is
// the outcome reported by the service; a false result with a nil error
// means the service rejected the action.
func (c *Client) SetTimerSchedule(ctx context.Context, vin string, slot int, schedule Schedule) (bool, error) {
	return c.doAction(ctx, fmt.Sprintf(timerPath, vin, slot), schedule)
}

// SetChargeLimit sets the minimum charge level the vehicle maintains.
func (c *Client) SetChargeLimit(ctx context.Context, vin string, limit int) (bool, error) {
	body := struct {
		LimitPercent int `json:"limitPercent"`
	}{LimitPercent: limit}

	return c.doAction(ctx, fmt.Sprintf(chargeLimitPath, vin), body)
}

// SetChargerCurrent sets the maximum AC charging current. The code is
// either an ampere value or one of the fixed symbolic codes.
func (c *Client) SetChargerCurrent(ctx context.Context, vin string, code int) (bool, error) {
	body := struct {
		Current int `json:"current"`
	}{Current: code}

	return c.doAction(ctx, fmt.Sprintf(chargerCurrentPath, vin), body)
}

// SetParkingHeaterDuration sets the auxiliary heater runtime. This is a
// privileged action and carries the account SPIN.
func (c *Client) SetParkingHeaterDuration(ctx context.Context, vin string, minutes int) (bool, error) {
	body := struct {
		DurationMinutes int    `json:"durationMinutes"`
		SPIN            string `json:"spin"`
	}{DurationMinutes: minutes, SPIN: c.spin}

	return c.doAction(ctx, fmt.Sprintf(parkingHeaterPath, vin), body)
}

// doAction posts an action payload and decodes the in-band outcome.
func (c *Client) doAction(ctx context.Context, path string, payload any) (bool, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("failed to marshal action payload: %w", err)
	}

	req, err := c.newAuthorizedRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to send action request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // ignore error

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read action response: %w", err)
	}
	if c.debug {
		c.logger.Debug().Str("path", path).RawJSON("body", respBody).Msg("Connect action response")
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return false, fmt.Errorf("non-200 response from %s: %d", path, resp.StatusCode)
	}

	var outcome actionResponse
	if err := json.Unmarshal(respBody, &outcome); err != nil {
		return false, fmt.Errorf("failed to unmarshal action response: %w", err)
	}

	if !outcome.accepted() {
		c.logger.Warn().
			Str("path", path).
			Str("requestId", outcome.RequestID).
			Str("reason", outcome.Reason).
			Msg("Connect service rejected remote action")
	}

	return outcome.accepted(), nil
}
