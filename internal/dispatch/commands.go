package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Fixed codes the Connect service expects for the symbolic charger
// current values.
const (
	ChargerCurrentMaximum = 254
	ChargerCurrentReduced = 252
)

// ValidationError rejects a malformed command before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ScheduleCommand programs one departure timer slot.
type ScheduleCommand struct {
	VIN       string `json:"vin"`
	SlotID    int    `json:"id"`
	Enabled   bool   `json:"enabled"`
	Recurring bool   `json:"recurring"`
	Time      string `json:"time"`
	Date      string `json:"date"`
	Days      string `json:"days"`
}

// applyDefaults fills the optional fields the way the service expects
// them when omitted.
func (c *ScheduleCommand) applyDefaults() {
	if c.Time == "" {
		c.Time = "08:00"
	}
	if c.Date == "" {
		c.Date = "2020-01-01"
	}
	if c.Days == "" {
		c.Days = "nnnnnnn"
	}
}

// Validate checks the slot, time, date and weekday mask.
func (c *ScheduleCommand) Validate() error {
	c.applyDefaults()

	if c.SlotID < 1 || c.SlotID > 3 {
		return &ValidationError{Field: "id", Reason: "timer slot must be 1, 2 or 3"}
	}
	if _, err := time.Parse("15:04", c.Time); err != nil {
		return &ValidationError{Field: "time", Reason: "must be HH:MM"}
	}
	if _, err := time.Parse("2006-01-02", c.Date); err != nil {
		return &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	if len(c.Days) != 7 {
		return &ValidationError{Field: "days", Reason: "must be a 7-character weekday mask"}
	}
	for _, r := range c.Days {
		if r != 'y' && r != 'n' {
			return &ValidationError{Field: "days", Reason: "mask characters must be 'y' or 'n'"}
		}
	}
	return nil
}

// CurrentValue accepts either an ampere number or one of the symbolic
// values "maximum"/"reduced", which map to fixed codes before being sent.
type CurrentValue struct {
	code     int
	symbolic bool
}

// UnmarshalJSON decodes a number or a symbolic string.
func (v *CurrentValue) UnmarshalJSON(data []byte) error {
	var symbolic string
	if err := json.Unmarshal(data, &symbolic); err == nil {
		switch strings.ToLower(symbolic) {
		case "maximum":
			*v = CurrentValue{code: ChargerCurrentMaximum, symbolic: true}
		case "reduced":
			*v = CurrentValue{code: ChargerCurrentReduced, symbolic: true}
		default:
			return &ValidationError{Field: "current", Reason: `symbolic value must be "maximum" or "reduced"`}
		}
		return nil
	}

	var amps int
	if err := json.Unmarshal(data, &amps); err != nil {
		return &ValidationError{Field: "current", Reason: "must be an integer or a symbolic value"}
	}
	*v = CurrentValue{code: amps}
	return nil
}

// Code returns the numeric code sent to the service.
func (v CurrentValue) Code() int { return v.code }

// MaxCurrentCommand sets the maximum AC charging current.
type MaxCurrentCommand struct {
	VIN     string       `json:"vin"`
	Current CurrentValue `json:"current"`
}

// Validate checks the ampere range; symbolic values are pre-mapped.
func (c *MaxCurrentCommand) Validate() error {
	if c.Current.symbolic {
		return nil
	}
	if c.Current.code < 5 || c.Current.code > 32 {
		return &ValidationError{Field: "current", Reason: "must be 5..32 A, \"maximum\" or \"reduced\""}
	}
	return nil
}

// ChargeLimitCommand sets the minimum charge level.
type ChargeLimitCommand struct {
	VIN   string `json:"vin"`
	Limit int    `json:"limit"`
}

// Validate permits the fixed steps the service accepts.
func (c *ChargeLimitCommand) Validate() error {
	switch c.Limit {
	case 0, 10, 20, 30, 40, 50:
		return nil
	default:
		return &ValidationError{Field: "limit", Reason: "must be one of 0, 10, 20, 30, 40, 50"}
	}
}

// HeaterDurationCommand sets the parking heater runtime.
type HeaterDurationCommand struct {
	VIN      string `json:"vin"`
	Duration int    `json:"duration"`
}

// Validate permits the fixed steps the service accepts.
func (c *HeaterDurationCommand) Validate() error {
	switch c.Duration {
	case 10, 20, 30, 40, 50, 60:
		return nil
	default:
		return &ValidationError{Field: "duration", Reason: "must be one of 10, 20, 30, 40, 50, 60 minutes"}
	}
}
