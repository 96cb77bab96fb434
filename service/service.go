// Package service wires entries, coordinators and the MQTT publishers into
// a running bridge and exposes the lookup and cache operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"gasbridge/config"
	"gasbridge/coordinator"
	"gasbridge/flow"
	"gasbridge/mqtt"
	"gasbridge/pricing"
	"gasbridge/sensor"
	"gasbridge/telemetry"
)

const (
	// DefaultLookupLimit is applied when an area lookup omits the result
	// limit.
	DefaultLookupLimit = 5
	minLookupLimit     = 1
	maxLookupLimit     = 99
)

// LocationSource resolves a tracked entity to coordinates. The MQTT
// location tracker implements it; tests substitute fakes.
type LocationSource interface {
	Location(entityID string) (lat, lon float64, ok bool)
}

// ClientFunc builds a price client for a solver URL.
type ClientFunc func(solverURL string) (pricing.Client, error)

type runtime struct {
	coord     *coordinator.Coordinator
	publisher *mqtt.Publisher
	cancel    context.CancelFunc
	done      chan struct{}
}

// Service owns one coordinator per entry plus the shared collaborators.
type Service struct {
	cfg       *config.Config
	store     *config.EntryStore
	logger    zerolog.Logger
	collector telemetry.Collector

	clientFor  ClientFunc
	locations  LocationSource
	mqttClient pahomqtt.Client
	wizard     *flow.Flow

	mu       sync.Mutex
	ctx      context.Context
	runtimes map[string]*runtime
}

// Option customizes service construction.
type Option func(*Service)

// WithClientFactory overrides how price clients are built.
func WithClientFactory(fn ClientFunc) Option {
	return func(s *Service) { s.clientFor = fn }
}

// WithLocationSource supplies the entity location resolver used by the GPS
// lookup.
func WithLocationSource(src LocationSource) Option {
	return func(s *Service) { s.locations = src }
}

// WithCollector supplies the telemetry collector shared by all
// coordinators.
func WithCollector(collector telemetry.Collector) Option {
	return func(s *Service) { s.collector = collector }
}

// WithMQTT supplies a connected broker client for discovery publishing.
func WithMQTT(client pahomqtt.Client) Option {
	return func(s *Service) { s.mqttClient = client }
}

// New builds a service from the loaded configuration and entry store.
func New(cfg *config.Config, store *config.EntryStore, logger zerolog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("service: config must not be nil")
	}
	if store == nil {
		return nil, errors.New("service: entry store must not be nil")
	}
	svc := &Service{
		cfg:       cfg,
		store:     store,
		logger:    logger,
		collector: telemetry.Noop(),
		runtimes:  make(map[string]*runtime),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.clientFor == nil {
		svc.clientFor = func(solverURL string) (pricing.Client, error) {
			return pricing.New(cfg.Client.Driver, pricing.ClientConfig{
				SolverURL: solverURL,
				Timeout:   cfg.Client.Timeout.Duration,
			})
		}
	}
	svc.wizard = flow.New(flow.ClientFunc(svc.clientFor), cfg.Home, logger)
	return svc, nil
}

// Flow returns the configuration wizard shared with the HTTP API.
func (s *Service) Flow() *flow.Flow {
	return s.wizard
}

// Start launches one poll loop per persisted entry. A failed initial
// refresh does not abort startup; the loop retries on its cadence.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	entries := s.store.Entries()
	s.mu.Unlock()
	for _, entry := range entries {
		if err := s.startEntry(ctx, entry); err != nil {
			return err
		}
	}
	s.logger.Info().Int("entries", len(entries)).Msg("service started")
	return nil
}

// Stop tears down all poll loops and waits for them to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	runtimes := s.runtimes
	s.runtimes = make(map[string]*runtime)
	s.mu.Unlock()
	for _, rt := range runtimes {
		rt.cancel()
		<-rt.done
	}
}

func (s *Service) startEntry(ctx context.Context, entry config.Entry) error {
	client, err := s.clientFor(entry.Solver())
	if err != nil {
		return fmt.Errorf("service: entry %s: %w", entry.ID, err)
	}
	coord, err := coordinator.New(entry, client, s.logger, s.collector)
	if err != nil {
		return fmt.Errorf("service: entry %s: %w", entry.ID, err)
	}

	entryCtx, cancel := context.WithCancel(ctx)
	rt := &runtime{coord: coord, cancel: cancel, done: make(chan struct{})}
	if s.mqttClient != nil {
		rt.publisher = mqtt.NewPublisher(s.mqttClient, *s.cfg.MQTT, entry, s.logger)
		rt.publisher.EnsureDiscovery()
		coord.SetOnUpdate(func() {
			data, ok := coord.Snapshot()
			rt.publisher.PublishStates(data, ok, sensor.OptionsFromEntry(entry))
		})
	}

	if err := coord.Refresh(entryCtx); err != nil {
		s.logger.Error().Err(err).Str("entry", entry.ID).Msg("initial refresh failed")
	}

	go func() {
		defer close(rt.done)
		_ = coord.Run(entryCtx)
	}()

	s.mu.Lock()
	s.runtimes[entry.ID] = rt
	s.mu.Unlock()
	return nil
}

func (s *Service) stopEntry(id string) *runtime {
	s.mu.Lock()
	rt := s.runtimes[id]
	delete(s.runtimes, id)
	s.mu.Unlock()
	if rt != nil {
		rt.cancel()
		<-rt.done
	}
	return rt
}

// AddEntry persists a wizard-created entry and starts its poll loop.
func (s *Service) AddEntry(entry config.Entry) error {
	if err := s.store.Add(entry); err != nil {
		return err
	}
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return nil
	}
	return s.startEntry(ctx, entry)
}

// UpdateEntry persists a changed entry and rebuilds its runtime so the new
// interval, toggles or solver take effect.
func (s *Service) UpdateEntry(entry config.Entry) error {
	if err := s.store.Update(entry); err != nil {
		return err
	}
	s.stopEntry(entry.ID)
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return nil
	}
	return s.startEntry(ctx, entry)
}

// RemoveEntry deletes an entry, stops its loop and clears its retained
// discovery documents.
func (s *Service) RemoveEntry(id string) error {
	if err := s.store.Remove(id); err != nil {
		return err
	}
	rt := s.stopEntry(id)
	if rt != nil && rt.publisher != nil {
		rt.publisher.Unpublish()
	}
	return nil
}

// Entry returns the persisted entry with the given id.
func (s *Service) Entry(id string) (config.Entry, bool) {
	return s.store.Get(id)
}

// Entries returns all persisted entries.
func (s *Service) Entries() []config.Entry {
	return s.store.Entries()
}

// Snapshot returns the cached reading of one entry.
func (s *Service) Snapshot(id string) (*pricing.StationPrices, bool, error) {
	s.mu.Lock()
	rt := s.runtimes[id]
	s.mu.Unlock()
	if rt == nil {
		return nil, false, fmt.Errorf("service: unknown entry %s", id)
	}
	data, ok := rt.coord.Snapshot()
	return data, ok, nil
}

// RequestRefresh schedules an immediate refresh for one entry.
func (s *Service) RequestRefresh(id string) error {
	s.mu.Lock()
	rt := s.runtimes[id]
	s.mu.Unlock()
	if rt == nil {
		return fmt.Errorf("service: unknown entry %s", id)
	}
	rt.coord.RequestRefresh()
	return nil
}

func normalizeLimit(limit int) (int, error) {
	if limit == 0 {
		return DefaultLookupLimit, nil
	}
	if limit < minLookupLimit || limit > maxLookupLimit {
		return 0, fmt.Errorf("service: limit %d outside [%d,%d]", limit, minLookupLimit, maxLookupLimit)
	}
	return limit, nil
}

// LookupGPS resolves each tracked entity to coordinates and performs an
// area price lookup around it. Entities that cannot be resolved or whose
// lookup fails are logged and omitted from the result.
func (s *Service) LookupGPS(ctx context.Context, entityIDs []string, limit int) (map[string]*pricing.AreaResults, error) {
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	if s.locations == nil {
		return nil, errors.New("service: no location source configured")
	}
	client, err := s.clientFor("")
	if err != nil {
		return nil, err
	}
	results := make(map[string]*pricing.AreaResults)
	for _, entityID := range entityIDs {
		lat, lon, ok := s.locations.Location(entityID)
		if !ok {
			s.logger.Warn().Str("entity", entityID).Msg("no location for entity")
			continue
		}
		area, err := client.PriceLookupGPS(ctx, lat, lon, limit)
		if err != nil {
			s.logger.Error().Err(err).Str("entity", entityID).Msg("gps lookup failed")
			continue
		}
		results[entityID] = area
	}
	return results, nil
}

// LookupZIP performs an area price lookup around a postal code. A failed
// upstream lookup yields an empty result rather than an error.
func (s *Service) LookupZIP(ctx context.Context, zip string, limit int) (*pricing.AreaResults, error) {
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	if zip == "" {
		return nil, errors.New("service: zip must not be empty")
	}
	client, err := s.clientFor("")
	if err != nil {
		return nil, err
	}
	area, err := client.PriceLookupZIP(ctx, zip, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("zip", zip).Msg("zip lookup failed")
		return &pricing.AreaResults{}, nil
	}
	return area, nil
}

// ClearCache clears the client caches of the entries identified by the
// device ids. All ids are resolved up front: one unresolvable id fails the
// whole call before any coordinator is touched.
func (s *Service) ClearCache(ctx context.Context, deviceIDs []string) error {
	if len(deviceIDs) == 0 {
		return errors.New("service: at least one device id is required")
	}
	s.mu.Lock()
	targets := make([]*runtime, 0, len(deviceIDs))
	for _, id := range deviceIDs {
		rt := s.runtimes[id]
		if rt == nil {
			s.mu.Unlock()
			return fmt.Errorf("service: no entry for device %s", id)
		}
		targets = append(targets, rt)
	}
	s.mu.Unlock()
	for _, rt := range targets {
		if err := rt.coord.ClearCache(ctx); err != nil {
			return err
		}
	}
	return nil
}
