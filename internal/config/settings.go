// Package config holds the bridge settings parsed from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Update cadence bounds. The floor keeps the bridge from hammering the
// Skoda Connect service when misconfigured.
const (
	MinUpdateInterval     = time.Minute
	DefaultUpdateInterval = 5 * time.Minute
)

// Unit conversion selectors for derived instrument values.
const (
	ConvertNone              = "none"
	ConvertImperial          = "imperial"
	ConvertScandinavianMiles = "scandinavian_miles"
)

// Settings contains the application config.
type Settings struct {
	Environment string `env:"ENVIRONMENT" yaml:"environment"`
	LogLevel    string `env:"LOG_LEVEL"   yaml:"logLevel"`
	Port        int    `env:"PORT"        yaml:"port"`

	// Skoda Connect account settings
	ConnectBaseURL string `env:"CONNECT_BASE_URL" yaml:"connectBaseUrl"`
	Username       string `env:"CONNECT_USERNAME" yaml:"username"`
	Password       string `env:"CONNECT_PASSWORD" yaml:"password"`
	VIN            string `env:"CONNECT_VIN"      yaml:"vin"`
	SPIN           string `env:"CONNECT_SPIN"     yaml:"spin"`

	// Polling and derivation settings
	UpdateIntervalMinutes int      `env:"UPDATE_INTERVAL_MINUTES" yaml:"updateIntervalMinutes"`
	Mutable               bool     `env:"MUTABLE"                 yaml:"mutable"`
	Convert               string   `env:"CONVERT"                 yaml:"convert"`
	Debug                 bool     `env:"DEBUG"                   yaml:"debug"`
	Resources             []string `env:"RESOURCES"               yaml:"resources"`
	VehicleName           string   `env:"VEHICLE_NAME"            yaml:"vehicleName"`

	// MQTT settings; an empty broker disables the publisher.
	MQTTBroker          string `env:"MQTT_BROKER"           yaml:"mqttBroker"`
	MQTTClientID        string `env:"MQTT_CLIENT_ID"        yaml:"mqttClientId"`
	MQTTUsername        string `env:"MQTT_USERNAME"         yaml:"mqttUsername"`
	MQTTPassword        string `env:"MQTT_PASSWORD"         yaml:"mqttPassword"`
	MQTTTopicPrefix     string `env:"MQTT_TOPIC_PREFIX"     yaml:"mqttTopicPrefix"`
	MQTTDiscoveryPrefix string `env:"MQTT_DISCOVERY_PREFIX" yaml:"mqttDiscoveryPrefix"`
}

// LoadSettings parses settings from the environment and applies defaults.
func LoadSettings() (*Settings, error) {
	settings, err := env.ParseAs[Settings]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	if err := settings.applyDefaults(); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *Settings) applyDefaults() error {
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.Port == 0 {
		s.Port = 8080
	}
	if s.ConnectBaseURL == "" {
		s.ConnectBaseURL = "https://api.connect.skoda-auto.cz"
	}
	if s.MQTTTopicPrefix == "" {
		s.MQTTTopicPrefix = "skodaconnect"
	}
	if s.MQTTDiscoveryPrefix == "" {
		s.MQTTDiscoveryPrefix = "homeassistant"
	}
	if s.MQTTClientID == "" {
		s.MQTTClientID = "skodaconnect-bridge"
	}
	if s.Username == "" || s.Password == "" {
		return fmt.Errorf("missing Skoda Connect credentials")
	}
	s.VIN = strings.ToUpper(strings.TrimSpace(s.VIN))
	switch s.Convert {
	case "":
		s.Convert = ConvertNone
	case ConvertNone, ConvertImperial, ConvertScandinavianMiles:
	default:
		return fmt.Errorf("invalid unit conversion %q", s.Convert)
	}
	return nil
}

// UpdateInterval returns the configured polling interval with the minimum
// floor enforced.
func (s *Settings) UpdateInterval() time.Duration {
	if s.UpdateIntervalMinutes <= 0 {
		return DefaultUpdateInterval
	}
	interval := time.Duration(s.UpdateIntervalMinutes) * time.Minute
	if interval < MinUpdateInterval {
		return MinUpdateInterval
	}
	return interval
}

// ResourceEnabled reports whether an attribute is on the resource
// allow-list. An empty list enables everything.
func (s *Settings) ResourceEnabled(attribute string) bool {
	if len(s.Resources) == 0 {
		return true
	}
	for _, r := range s.Resources {
		if strings.EqualFold(strings.TrimSpace(r), attribute) {
			return true
		}
	}
	return false
}
