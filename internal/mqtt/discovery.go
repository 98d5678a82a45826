package mqtt

import (
	"fmt"

	"github.com/stefanuc111/homeassistant-skodaconnect/internal/instrument"
)

// device is the Home Assistant device registry block shared by every
// entity the bridge publishes.
type device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model,omitempty"`
	SwVersion    string   `json:"sw_version,omitempty"`
}

// discoveryConfig is a Home Assistant MQTT discovery payload. One is
// published retained per instrument so entities appear without any
// configuration on the Home Assistant side.
type discoveryConfig struct {
	Name                string `json:"name"`
	UniqueID            string `json:"unique_id"`
	StateTopic          string `json:"state_topic"`
	JSONAttributesTopic string `json:"json_attributes_topic,omitempty"`
	AvailabilityTopic   string `json:"availability_topic"`
	PayloadAvailable    string `json:"payload_available"`
	PayloadNotAvailable string `json:"payload_not_available"`
	UnitOfMeasurement   string `json:"unit_of_measurement,omitempty"`
	Icon                string `json:"icon,omitempty"`
	Device              device `json:"device"`
}

// discoveryComponent maps an instrument category onto the Home Assistant
// component segment of its discovery topic. Locks and switches are
// announced as their read-only counterparts because remote actions run
// over the HTTP services, not over MQTT command topics.
func discoveryComponent(category instrument.Category) string {
	switch category {
	case instrument.CategorySwitch, instrument.CategoryLock:
		return "binary_sensor"
	case instrument.CategoryDeviceTracker:
		return "device_tracker"
	default:
		return string(category)
	}
}

func (p *Publisher) availabilityTopic(vin string) string {
	return fmt.Sprintf("%s/%s/availability", p.topicPrefix, vin)
}

func (p *Publisher) stateTopic(inst *instrument.Instrument) string {
	return fmt.Sprintf("%s/%s/%s/%s/state", p.topicPrefix, inst.VIN, inst.Category, inst.Attribute)
}

func (p *Publisher) attributesTopic(inst *instrument.Instrument) string {
	return fmt.Sprintf("%s/%s/%s/%s/attributes", p.topicPrefix, inst.VIN, inst.Category, inst.Attribute)
}

func (p *Publisher) discoveryTopic(inst *instrument.Instrument) string {
	return fmt.Sprintf("%s/%s/%s/config", p.discoveryPrefix, discoveryComponent(inst.Category), inst.EntityID())
}

func (p *Publisher) discoveryPayload(inst *instrument.Instrument, dev device) discoveryConfig {
	cfg := discoveryConfig{
		Name:                inst.Name,
		UniqueID:            inst.EntityID(),
		StateTopic:          p.stateTopic(inst),
		AvailabilityTopic:   p.availabilityTopic(inst.VIN),
		PayloadAvailable:    payloadOnline,
		PayloadNotAvailable: payloadOffline,
		UnitOfMeasurement:   inst.Unit,
		Icon:                inst.Icon,
		Device:              dev,
	}
	if len(inst.Attributes) > 0 {
		cfg.JSONAttributesTopic = p.attributesTopic(inst)
	}
	return cfg
}
