package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"gasbridge/config"
)

type trackedLocation struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// LocationTracker subscribes to attribute topics of location-bearing
// entities and keeps their latest coordinates for the GPS lookup service.
type LocationTracker struct {
	logger zerolog.Logger

	mu        sync.RWMutex
	locations map[string]trackedLocation
}

// NewLocationTracker subscribes to every configured tracker topic.
func NewLocationTracker(client mqtt.Client, topics []config.TrackerTopic, logger zerolog.Logger) (*LocationTracker, error) {
	t := &LocationTracker{
		logger:    logger.With().Str("component", "tracker").Logger(),
		locations: make(map[string]trackedLocation),
	}
	for _, topic := range topics {
		entityID := topic.EntityID
		token := client.Subscribe(topic.Topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			t.handle(entityID, msg.Payload())
		})
		if token.Wait() && token.Error() != nil {
			return nil, fmt.Errorf("mqtt: subscribe %s: %w", topic.Topic, token.Error())
		}
	}
	return t, nil
}

func (t *LocationTracker) handle(entityID string, payload []byte) {
	var loc trackedLocation
	if err := json.Unmarshal(payload, &loc); err != nil {
		t.logger.Warn().Err(err).Str("entity", entityID).Msg("tracker: decode payload")
		return
	}
	t.mu.Lock()
	t.locations[entityID] = loc
	t.mu.Unlock()
}

// Location returns the last known coordinates of an entity. ok is false
// when the entity is unknown or its payload lacked coordinates.
func (t *LocationTracker) Location(entityID string) (float64, float64, bool) {
	t.mu.RLock()
	loc, found := t.locations[entityID]
	t.mu.RUnlock()
	if !found || loc.Latitude == nil || loc.Longitude == nil {
		return 0, 0, false
	}
	return *loc.Latitude, *loc.Longitude, true
}
