// Package sensor projects a coordinator cache snapshot into displayable
// sensor states. All functions are pure; the MQTT publisher and the HTTP
// API consume the results.
package sensor

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"gasbridge/config"
	"gasbridge/pricing"
)

// StateUnknown is reported when a record exists but the requested price
// sub-field is absent.
const StateUnknown = "unknown"

// Description declares one sensor derived from the cache.
type Description struct {
	// ID is the unique suffix of the sensor within an entry.
	ID string
	// Key is the fuel grade key in the cache; ignored for non-price sensors.
	Key  string
	Name string
	Icon string
	// Cash selects the cash price instead of the credit price.
	Cash bool
	// Price marks sensors that read a fuel grade record. The last-updated
	// sensor is the only non-price sensor.
	Price bool
}

// Descriptions lists every sensor exposed per entry: one per fuel grade and
// payment method plus the last-updated timestamp.
var Descriptions = []Description{
	{ID: "regular_gas", Key: "regular_gas", Name: "Regular Gas", Icon: "mdi:gas-station", Price: true},
	{ID: "midgrade_gas", Key: "midgrade_gas", Name: "MidGrade Gas", Icon: "mdi:gas-station", Price: true},
	{ID: "premium_gas", Key: "premium_gas", Name: "Premium Gas", Icon: "mdi:gas-station", Price: true},
	{ID: "diesel", Key: "diesel", Name: "Diesel", Icon: "mdi:gas-station", Price: true},
	{ID: "regular_gas_cash", Key: "regular_gas", Name: "Regular Gas (Cash)", Icon: "mdi:gas-station", Cash: true, Price: true},
	{ID: "midgrade_gas_cash", Key: "midgrade_gas", Name: "MidGrade Gas (Cash)", Icon: "mdi:gas-station", Cash: true, Price: true},
	{ID: "premium_gas_cash", Key: "premium_gas", Name: "Premium Gas (Cash)", Icon: "mdi:gas-station", Cash: true, Price: true},
	{ID: "diesel_cash", Key: "diesel", Name: "Diesel (Cash)", Icon: "mdi:gas-station", Cash: true, Price: true},
	{ID: "last_updated", Name: "Last Updated", Icon: "mdi:update"},
}

var unitWords = map[pricing.Unit]string{
	pricing.UnitDollarsPerGallon: "gallon",
	pricing.UnitCentsPerLiter:    "liter",
}

// Options carries the entry toggles that shape the projection.
type Options struct {
	UOM bool
	GPS bool
}

// OptionsFromEntry derives projection options from a persisted entry.
func OptionsFromEntry(entry config.Entry) Options {
	return Options{UOM: entry.UOMEnabled(), GPS: entry.GPSEnabled()}
}

// State is the projected, displayable form of one sensor.
type State struct {
	Available  bool
	Value      string
	Unit       string
	Attributes map[string]any
	Picture    string
}

// Project maps a cache snapshot onto the sensor described by desc.
func Project(desc Description, data *pricing.StationPrices, lastSuccess bool, opts Options) State {
	if !desc.Price {
		return projectLastUpdated(data, lastSuccess)
	}
	if data == nil {
		return State{}
	}
	record, ok := data.Fuels[desc.Key]
	if !ok || record == nil {
		return State{}
	}

	state := State{
		Available:  lastSuccess,
		Value:      StateUnknown,
		Unit:       unitLabel(data, opts),
		Attributes: priceAttributes(desc, record, data, opts),
	}
	if data.ImageURL != nil {
		state.Picture = *data.ImageURL
	}

	raw := record.Price
	if desc.Cash {
		raw = record.CashPrice
	}
	if raw == nil {
		return state
	}
	state.Value = displayValue(*raw, data.UnitOfMeasure)
	return state
}

// displayValue normalizes a raw price for display. Cents-per-liter prices
// arrive as sub-unit integers and are divided by 100 exactly.
func displayValue(price float64, unit pricing.Unit) string {
	value := decimal.NewFromFloat(price)
	if unit == pricing.UnitCentsPerLiter {
		value = value.Div(decimal.NewFromInt(100))
	}
	return value.String()
}

func unitLabel(data *pricing.StationPrices, opts Options) string {
	word, known := unitWords[data.UnitOfMeasure]
	if opts.UOM && known && data.Currency != "" {
		return fmt.Sprintf("%s/%s", data.Currency, word)
	}
	return data.Currency
}

func priceAttributes(desc Description, record *pricing.FuelPrice, data *pricing.StationPrices, opts Options) map[string]any {
	attrs := map[string]any{
		"attribution":  fmt.Sprintf("%s via GasBuddy", record.Credit),
		"last_updated": record.LastUpdated.Format(time.RFC3339),
		"station_id":   data.StationID,
	}
	if opts.GPS && data.Latitude != nil && data.Longitude != nil {
		attrs["latitude"] = *data.Latitude
		attrs["longitude"] = *data.Longitude
	}
	return attrs
}

func projectLastUpdated(data *pricing.StationPrices, lastSuccess bool) State {
	if data == nil {
		return State{}
	}
	return State{
		Available: lastSuccess,
		Value:     data.LastUpdated.Format(time.RFC3339),
	}
}
