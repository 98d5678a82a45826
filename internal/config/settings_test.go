package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() Settings {
	return Settings{
		Username: "user@example.com",
		Password: "hunter2",
		VIN:      "tmbjb7ns4l1234567",
	}
}

func TestUpdateIntervalFloor(t *testing.T) {
	tests := []struct {
		name    string
		minutes int
		want    time.Duration
	}{
		{"default when unset", 0, DefaultUpdateInterval},
		{"default when negative", -5, DefaultUpdateInterval},
		{"one minute passes", 1, time.Minute},
		{"regular value", 10, 10 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Settings{UpdateIntervalMinutes: tt.minutes}
			assert.Equal(t, tt.want, s.UpdateInterval())
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	s := validSettings()
	require.NoError(t, s.applyDefaults())

	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, 8080, s.Port)
	assert.Equal(t, ConvertNone, s.Convert)
	assert.Equal(t, "TMBJB7NS4L1234567", s.VIN)
	assert.Equal(t, "homeassistant", s.MQTTDiscoveryPrefix)
}

func TestApplyDefaultsRejectsMissingCredentials(t *testing.T) {
	s := validSettings()
	s.Password = ""
	require.Error(t, s.applyDefaults())
}

func TestApplyDefaultsRejectsUnknownConversion(t *testing.T) {
	s := validSettings()
	s.Convert = "nautical_miles"
	require.Error(t, s.applyDefaults())

	s.Convert = ConvertScandinavianMiles
	require.NoError(t, s.applyDefaults())
}

func TestResourceEnabled(t *testing.T) {
	s := validSettings()
	assert.True(t, s.ResourceEnabled("battery_level"), "empty allow-list enables everything")

	s.Resources = []string{"battery_level", " charging "}
	assert.True(t, s.ResourceEnabled("battery_level"))
	assert.True(t, s.ResourceEnabled("charging"))
	assert.False(t, s.ResourceEnabled("odometer"))
}
