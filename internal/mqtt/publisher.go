// Package mqtt mirrors instrument snapshots onto an MQTT broker using the
// Home Assistant discovery convention, so each instrument shows up as an
// entity without manual configuration.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/stefanuc111/homeassistant-skodaconnect/internal/config"
	"github.com/stefanuc111/homeassistant-skodaconnect/internal/instrument"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"

	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // milliseconds, paho Disconnect argument
)

// SnapshotSource is the coordinator surface the publisher consumes.
type SnapshotSource interface {
	Snapshot() *instrument.Snapshot
	LastUpdateSuccess() bool
	Subscribe(listener func()) func()
}

// Publisher pushes snapshots to the broker. All state topics are
// retained so Home Assistant recovers entity state after a restart.
type Publisher struct {
	client          mqtt.Client
	settings        *config.Settings
	topicPrefix     string
	discoveryPrefix string
	logger          *zerolog.Logger

	// announced maps entity ids to their discovery topics so configs
	// of instruments missing from a newer snapshot can be cleared.
	announced map[string]string

	// vin of the last published snapshot, for the offline marker on close.
	vin string
}

// NewPublisher connects to the broker and returns a publisher. The
// client keeps reconnecting on its own once the first connect succeeds.
func NewPublisher(settings *config.Settings, logger *zerolog.Logger) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(settings.MQTTBroker)
	opts.SetClientID(settings.MQTTClientID)
	if settings.MQTTUsername != "" {
		opts.SetUsername(settings.MQTTUsername)
	}
	if settings.MQTTPassword != "" {
		opts.SetPassword(settings.MQTTPassword)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info().Str("broker", settings.MQTTBroker).Msg("connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", settings.MQTTBroker)
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Publisher{
		client:          client,
		settings:        settings,
		topicPrefix:     settings.MQTTTopicPrefix,
		discoveryPrefix: settings.MQTTDiscoveryPrefix,
		logger:          logger,
		announced:       make(map[string]string),
	}, nil
}

// Attach subscribes the publisher to the source and mirrors every new
// snapshot. It returns the unsubscribe function. An initial snapshot, if
// one exists, is published right away.
func (p *Publisher) Attach(source SnapshotSource) func() {
	publish := func() {
		snapshot := source.Snapshot()
		if snapshot == nil {
			return
		}
		if err := p.PublishSnapshot(snapshot, source.LastUpdateSuccess()); err != nil {
			p.logger.Error().Err(err).Msg("failed to publish snapshot")
		}
	}
	unsubscribe := source.Subscribe(publish)
	publish()
	return unsubscribe
}

// PublishSnapshot mirrors one snapshot: availability, discovery configs,
// per-instrument state and attributes. Discovery configs of instruments
// absent from this snapshot are cleared so their entities disappear.
// Listener callbacks run sequentially, so no locking is needed here.
func (p *Publisher) PublishSnapshot(snapshot *instrument.Snapshot, available bool) error {
	availability := payloadOffline
	if available {
		availability = payloadOnline
	}
	if err := p.publish(p.availabilityTopic(snapshot.VIN), []byte(availability)); err != nil {
		return err
	}
	p.vin = snapshot.VIN

	dev := device{
		Identifiers:  []string{snapshot.VIN},
		Name:         snapshot.DisplayName(p.settings.VehicleName),
		Manufacturer: "Skoda",
		Model:        snapshot.Model,
		SwVersion:    snapshot.ModelYear,
	}

	current := make(map[string]string)
	instruments := snapshot.Instruments()
	for i := range instruments {
		inst := &instruments[i]
		if !p.settings.ResourceEnabled(inst.Attribute) {
			continue
		}
		if err := p.publishInstrument(inst, dev); err != nil {
			return err
		}
		current[inst.EntityID()] = p.discoveryTopic(inst)
	}

	for entityID, topic := range p.announced {
		if _, ok := current[entityID]; ok {
			continue
		}
		// Empty retained payload deletes the entity on the Home
		// Assistant side.
		if err := p.publish(topic, nil); err != nil {
			return err
		}
		p.logger.Debug().Str("entity", entityID).Msg("cleared discovery config")
	}
	p.announced = current

	return nil
}

func (p *Publisher) publishInstrument(inst *instrument.Instrument, dev device) error {
	cfg, err := json.Marshal(p.discoveryPayload(inst, dev))
	if err != nil {
		return fmt.Errorf("failed to marshal discovery config for %s: %w", inst.EntityID(), err)
	}
	if err := p.publish(p.discoveryTopic(inst), cfg); err != nil {
		return err
	}

	if err := p.publish(p.stateTopic(inst), []byte(inst.Value.Format())); err != nil {
		return err
	}

	if len(inst.Attributes) > 0 {
		attrs, err := json.Marshal(inst.Attributes)
		if err != nil {
			return fmt.Errorf("failed to marshal attributes for %s: %w", inst.EntityID(), err)
		}
		if err := p.publish(p.attributesTopic(inst), attrs); err != nil {
			return err
		}
	}

	return nil
}

func (p *Publisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 1, true, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
	}
	return nil
}

// Close marks the device offline and disconnects from the broker.
func (p *Publisher) Close() {
	if p.vin != "" {
		if err := p.publish(p.availabilityTopic(p.vin), []byte(payloadOffline)); err != nil {
			p.logger.Warn().Err(err).Msg("failed to publish offline marker")
		}
	}
	p.client.Disconnect(disconnectQuiesce)
	p.logger.Info().Msg("MQTT publisher closed")
}
