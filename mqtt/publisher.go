package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"gasbridge/config"
	"gasbridge/pricing"
	"gasbridge/sensor"
)

const (
	defaultDiscoveryPrefix = "homeassistant"
	defaultBaseTopic       = "gasbridge"

	payloadOnline  = "online"
	payloadOffline = "offline"
)

// Publisher announces one entry's sensors via discovery and mirrors the
// projected states onto the broker.
type Publisher struct {
	client mqtt.Client
	logger zerolog.Logger

	entry  config.Entry
	prefix string
	base   string
	qos    byte
	retain bool

	once sync.Once
}

// NewPublisher builds a publisher for one entry.
func NewPublisher(client mqtt.Client, cfg config.MQTTConfig, entry config.Entry, logger zerolog.Logger) *Publisher {
	prefix := strings.Trim(cfg.DiscoveryPrefix, "/")
	if prefix == "" {
		prefix = defaultDiscoveryPrefix
	}
	base := strings.Trim(cfg.BaseTopic, "/")
	if base == "" {
		base = defaultBaseTopic
	}
	return &Publisher{
		client: client,
		logger: logger.With().Str("component", "mqtt").Str("entry", entry.ID).Logger(),
		entry:  entry,
		prefix: prefix,
		base:   base,
		qos:    cfg.QoS,
		retain: cfg.Retain,
	}
}

func (p *Publisher) discoveryTopic(sensorID string) string {
	return fmt.Sprintf("%s/sensor/%s_%s/config", p.prefix, p.entry.ID, sensorID)
}

func (p *Publisher) stateTopic(sensorID string) string {
	return fmt.Sprintf("%s/%s/%s/state", p.base, p.entry.ID, sensorID)
}

func (p *Publisher) attributesTopic(sensorID string) string {
	return fmt.Sprintf("%s/%s/%s/attributes", p.base, p.entry.ID, sensorID)
}

func (p *Publisher) availabilityTopic() string {
	return fmt.Sprintf("%s/%s/availability", p.base, p.entry.ID)
}

// EnsureDiscovery publishes the retained discovery document for every
// sensor of the entry. Repeated calls are no-ops.
func (p *Publisher) EnsureDiscovery() {
	p.once.Do(func() {
		for _, desc := range sensor.Descriptions {
			body, err := json.Marshal(p.discoveryPayload(desc))
			if err != nil {
				p.logger.Error().Err(err).Str("sensor", desc.ID).Msg("mqtt: encode discovery")
				continue
			}
			topic := p.discoveryTopic(desc.ID)
			token := p.client.Publish(topic, 1, true, body)
			if token.Wait() && token.Error() != nil {
				p.logger.Error().Err(token.Error()).Str("topic", topic).Msg("mqtt: discovery publish failed")
				continue
			}
			p.logger.Debug().Str("topic", topic).Msg("mqtt: discovery published")
		}
	})
}

func (p *Publisher) discoveryPayload(desc sensor.Description) map[string]any {
	payload := map[string]any{
		"name":                  desc.Name,
		"unique_id":             fmt.Sprintf("%s_%s", p.entry.ID, desc.ID),
		"state_topic":           p.stateTopic(desc.ID),
		"json_attributes_topic": p.attributesTopic(desc.ID),
		"availability_topic":    p.availabilityTopic(),
		"payload_available":     payloadOnline,
		"payload_not_available": payloadOffline,
		"device": map[string]any{
			"identifiers":  []string{p.entry.ID},
			"manufacturer": "GasBuddy",
			"name":         p.entry.Name,
		},
	}
	if desc.Icon != "" {
		payload["icon"] = desc.Icon
	}
	return payload
}

// PublishStates projects the snapshot through every sensor description and
// publishes state plus attribute payloads. Availability follows the
// snapshot: any available sensor marks the entry online.
func (p *Publisher) PublishStates(data *pricing.StationPrices, lastSuccess bool, opts sensor.Options) {
	online := false
	for _, desc := range sensor.Descriptions {
		state := sensor.Project(desc, data, lastSuccess, opts)
		if !state.Available {
			continue
		}
		online = true
		p.publish(p.stateTopic(desc.ID), []byte(state.Value))
		attrs := state.Attributes
		if attrs == nil {
			attrs = map[string]any{}
		}
		if state.Unit != "" {
			attrs["unit_of_measurement"] = state.Unit
		}
		if state.Picture != "" {
			attrs["entity_picture"] = state.Picture
		}
		body, err := json.Marshal(attrs)
		if err != nil {
			p.logger.Error().Err(err).Str("sensor", desc.ID).Msg("mqtt: encode attributes")
			continue
		}
		p.publish(p.attributesTopic(desc.ID), body)
	}
	p.PublishAvailability(online)
}

// PublishAvailability marks the entry online or offline.
func (p *Publisher) PublishAvailability(online bool) {
	payload := payloadOffline
	if online {
		payload = payloadOnline
	}
	token := p.client.Publish(p.availabilityTopic(), 1, true, payload)
	if token.Wait() && token.Error() != nil {
		p.logger.Error().Err(token.Error()).Msg("mqtt: availability publish failed")
	}
}

// Unpublish clears the retained discovery documents when an entry is
// removed.
func (p *Publisher) Unpublish() {
	for _, desc := range sensor.Descriptions {
		topic := p.discoveryTopic(desc.ID)
		token := p.client.Publish(topic, 1, true, []byte{})
		if token.Wait() && token.Error() != nil {
			p.logger.Error().Err(token.Error()).Str("topic", topic).Msg("mqtt: discovery clear failed")
		}
	}
	p.PublishAvailability(false)
}

func (p *Publisher) publish(topic string, payload []byte) {
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.Wait() && token.Error() != nil {
		p.logger.Error().Err(token.Error()).Str("topic", topic).Msg("mqtt: publish failed")
	}
}
