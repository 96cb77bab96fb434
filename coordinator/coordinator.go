// Package coordinator polls the price client on a fixed cadence and caches
// the latest reading per station entry.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gasbridge/config"
	"gasbridge/pricing"
	"gasbridge/telemetry"
)

// ErrNoData indicates a refresh failed before any reading was ever cached.
// Setup paths use it to fail fast so the entry can be retried later.
var ErrNoData = errors.New("coordinator: no cached data")

// UpdateError wraps an unrecognized refresh failure. The poll loop treats
// it as a generic update failure and relies on the next tick as retry.
type UpdateError struct {
	Err error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("coordinator: update failed: %v", e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }

// Coordinator owns the cache for a single station entry. The cache is
// mutated only from Refresh, which the Run loop and explicit refresh
// requests serialize; consumers read snapshots.
type Coordinator struct {
	entry     config.Entry
	client    pricing.Client
	logger    zerolog.Logger
	collector telemetry.Collector

	refreshCh chan struct{}
	onUpdate  func()

	mu          sync.RWMutex
	data        *pricing.StationPrices
	lastSuccess bool
}

// New builds a coordinator for one entry. The collector may be nil.
func New(entry config.Entry, client pricing.Client, logger zerolog.Logger, collector telemetry.Collector) (*Coordinator, error) {
	if client == nil {
		return nil, errors.New("coordinator: client must not be nil")
	}
	if collector == nil {
		collector = telemetry.Noop()
	}
	logger = logger.With().Str("entry", entry.ID).Str("station", entry.StationID).Logger()
	logger.Debug().Dur("interval", entry.PollInterval()).Msg("data will be updated on interval")
	return &Coordinator{
		entry:     entry,
		client:    client,
		logger:    logger,
		collector: collector,
		refreshCh: make(chan struct{}, 1),
	}, nil
}

// SetOnUpdate registers a hook invoked after every refresh attempt,
// regardless of outcome. It must be set before Run starts.
func (c *Coordinator) SetOnUpdate(fn func()) {
	c.onUpdate = fn
}

// Entry returns the configuration the coordinator was built from.
func (c *Coordinator) Entry() config.Entry {
	return c.entry
}

// Interval returns the poll cadence.
func (c *Coordinator) Interval() time.Duration {
	return c.entry.PollInterval()
}

// Refresh performs a single price lookup and updates the cache.
//
// Recognized upstream errors (API error, parse error, missing token) leave
// the previous cache untouched: the coordinator stays successful as long
// as it ever had data, and returns ErrNoData otherwise. Anything else is
// wrapped in an UpdateError.
func (c *Coordinator) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.entry.Timeout())
	defer cancel()
	if c.onUpdate != nil {
		defer c.onUpdate()
	}

	data, err := c.client.PriceLookup(ctx, c.entry.StationID)
	if err != nil {
		if pricing.IsRecognized(err) {
			c.logger.Error().Err(err).Msg("error retrieving data")
			c.collector.IncPollError(c.entry.StationID, errorKind(err))
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.data == nil {
				c.lastSuccess = false
				return fmt.Errorf("%w: %v", ErrNoData, err)
			}
			c.lastSuccess = true
			return nil
		}
		c.collector.IncPollError(c.entry.StationID, "unknown")
		c.mu.Lock()
		c.lastSuccess = false
		c.mu.Unlock()
		return &UpdateError{Err: err}
	}

	snapshot := data.Clone()
	snapshot.LastUpdated = time.Now().UTC()

	c.mu.Lock()
	c.data = snapshot
	c.lastSuccess = true
	c.mu.Unlock()

	c.collector.IncPoll(c.entry.StationID)
	c.recordPrices(snapshot)
	return nil
}

const (
	bootstrapBaseDelay = 30 * time.Second
	bootstrapMaxDelay  = 5 * time.Minute
)

// Run polls until the context is cancelled. Refresh failures are logged
// and the next tick acts as the retry. An entry that has never produced a
// reading is bootstrapped at a short doubling delay first, so a failed
// initial lookup does not sit out a full poll interval.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.bootstrap(ctx) {
		return nil
	}
	ticker := time.NewTicker(c.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-c.refreshCh:
		}
		if err := c.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().Err(err).Msg("refresh failure")
		}
	}
}

// bootstrap retries until the first reading lands. Returns false when the
// context got cancelled before that happened.
func (c *Coordinator) bootstrap(ctx context.Context) bool {
	maxDelay := bootstrapMaxDelay
	if iv := c.Interval(); iv < maxDelay {
		maxDelay = iv
	}
	delay := bootstrapBaseDelay
	if delay > maxDelay {
		delay = maxDelay
	}
	for {
		if c.hasData() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		case <-c.refreshCh:
		}
		if err := c.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return false
			}
			c.logger.Error().Err(err).Msg("bootstrap refresh failure")
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (c *Coordinator) hasData() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data != nil
}

// RequestRefresh schedules an immediate refresh on the Run loop. A pending
// request is coalesced.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.refreshCh <- struct{}{}:
	default:
	}
}

// ClearCache discards the client's locally cached session artifacts.
func (c *Coordinator) ClearCache(ctx context.Context) error {
	if err := c.client.ClearCache(ctx); err != nil {
		return fmt.Errorf("coordinator: clear cache: %w", err)
	}
	c.logger.Debug().Msg("cache cleared")
	return nil
}

// Snapshot returns the latest reading and the last-success flag. The
// snapshot is a deep copy; callers may retain it freely.
func (c *Coordinator) Snapshot() (*pricing.StationPrices, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.Clone(), c.lastSuccess
}

func (c *Coordinator) recordPrices(data *pricing.StationPrices) {
	for grade, price := range data.Fuels {
		if price == nil || price.Price == nil {
			continue
		}
		c.collector.SetFuelPrice(c.entry.StationID, grade, *price.Price)
	}
}

func errorKind(err error) string {
	var apiErr *pricing.APIError
	var parseErr *pricing.ParseError
	switch {
	case errors.As(err, &apiErr):
		return "api"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.Is(err, pricing.ErrMissingToken):
		return "token"
	default:
		return "unknown"
	}
}
