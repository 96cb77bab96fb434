// Package pricing defines the contract between gasbridge and the
// third-party price lookup clients. The concrete clients (GraphQL
// transport, anti-bot solver handling) live in separate modules and
// register themselves through the factory registry; gasbridge itself only
// consumes the interface.
package pricing

import (
	"context"
	"time"
)

// Unit enumerates the units of measure reported by the price API.
type Unit string

const (
	// UnitDollarsPerGallon reports whole currency units per gallon.
	UnitDollarsPerGallon Unit = "dollars_per_gallon"
	// UnitCentsPerLiter reports sub-unit integer prices per liter.
	UnitCentsPerLiter Unit = "cents_per_liter"
)

// FuelPrice is the reading for a single fuel grade.
type FuelPrice struct {
	// Credit is the identifier of the member that posted the credit price.
	Credit      string
	Price       *float64
	CashPrice   *float64
	LastUpdated time.Time
}

// StationPrices is the full reading for one station, one entry per fuel
// grade plus station-level metadata. A nil grade entry means the API
// returned the grade without usable data.
type StationPrices struct {
	StationID     string
	UnitOfMeasure Unit
	Currency      string
	ImageURL      *string
	Latitude      *float64
	Longitude     *float64
	Fuels         map[string]*FuelPrice
	// LastUpdated is stamped by the coordinator on each successful poll.
	LastUpdated time.Time
}

// Clone returns a deep copy so callers can hand out snapshots without
// exposing the coordinator's cache to mutation.
func (s *StationPrices) Clone() *StationPrices {
	if s == nil {
		return nil
	}
	clone := *s
	clone.ImageURL = cloneString(s.ImageURL)
	clone.Latitude = cloneFloat(s.Latitude)
	clone.Longitude = cloneFloat(s.Longitude)
	if s.Fuels != nil {
		clone.Fuels = make(map[string]*FuelPrice, len(s.Fuels))
		for grade, price := range s.Fuels {
			if price == nil {
				clone.Fuels[grade] = nil
				continue
			}
			copied := *price
			copied.Price = cloneFloat(price.Price)
			copied.CashPrice = cloneFloat(price.CashPrice)
			clone.Fuels[grade] = &copied
		}
	}
	return &clone
}

// Station is a single search hit from a location search.
type Station struct {
	ID      string
	Name    string
	Address string
}

// SearchQuery selects stations either by coordinates or by postal code.
type SearchQuery struct {
	Latitude  *float64
	Longitude *float64
	Zip       string
}

// SearchResults is the ephemeral station list produced during config flows.
type SearchResults struct {
	Stations []Station
}

// AreaStation is one station inside an area price lookup.
type AreaStation struct {
	Station
	Fuels map[string]*FuelPrice
}

// Trend summarises the price situation of a searched area.
type Trend struct {
	Area         string
	AveragePrice float64
	LowestPrice  float64
}

// AreaResults is the response of the GPS and ZIP lookup services.
type AreaResults struct {
	Results []AreaStation
	Trend   *Trend
}

// Client is the price lookup collaborator consumed by the coordinator, the
// config flow and the service handlers. Implementations own their network
// timeouts; callers only pass a context for cancellation.
type Client interface {
	PriceLookup(ctx context.Context, stationID string) (*StationPrices, error)
	LocationSearch(ctx context.Context, query SearchQuery) (*SearchResults, error)
	PriceLookupGPS(ctx context.Context, lat, lon float64, limit int) (*AreaResults, error)
	PriceLookupZIP(ctx context.Context, zip string, limit int) (*AreaResults, error)
	ClearCache(ctx context.Context) error
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	copied := *v
	return &copied
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	copied := *v
	return &copied
}
