package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by the runtime.
//
// Implementations may forward metrics to Prometheus or other monitoring
// systems. They should be inexpensive to call because hooks are executed
// inline with the poll path.
type Collector interface {
	IncPoll(station string)
	IncPollError(station, kind string)
	SetFuelPrice(station, grade string, price float64)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncPoll(string)                       {}
func (noopCollector) IncPollError(string, string)          {}
func (noopCollector) SetFuelPrice(string, string, float64) {}

// PrometheusCollector exposes poll counters and price gauges via Prometheus.
type PrometheusCollector struct {
	polls      *prometheus.CounterVec
	pollErrors *prometheus.CounterVec
	fuelPrices *prometheus.GaugeVec
}

var (
	pollCounter        *prometheus.CounterVec
	pollCounterLock    sync.Mutex
	pollErrCounter     *prometheus.CounterVec
	pollErrCounterLock sync.Mutex
	fuelPriceGauge     *prometheus.GaugeVec
	fuelPriceGaugeLock sync.Mutex
)

// NewPrometheusCollector registers the required metrics with the provided registerer.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	pollCounterLock.Lock()
	if pollCounter == nil {
		counter := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gasbridge_poll_total",
			Help: "Number of successful price polls per station.",
		}, []string{"station"})
		registered, err := registerCounterVec(reg, counter)
		if err != nil {
			pollCounterLock.Unlock()
			return nil, err
		}
		pollCounter = registered
	}
	pollCounterLock.Unlock()

	pollErrCounterLock.Lock()
	if pollErrCounter == nil {
		counter := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gasbridge_poll_errors_total",
			Help: "Number of failed price polls per station and error kind.",
		}, []string{"station", "kind"})
		registered, err := registerCounterVec(reg, counter)
		if err != nil {
			pollErrCounterLock.Unlock()
			return nil, err
		}
		pollErrCounter = registered
	}
	pollErrCounterLock.Unlock()

	fuelPriceGaugeLock.Lock()
	if fuelPriceGauge == nil {
		gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gasbridge_fuel_price",
			Help: "Last observed credit price per station and fuel grade.",
		}, []string{"station", "grade"})
		registered, err := registerGaugeVec(reg, gauge)
		if err != nil {
			fuelPriceGaugeLock.Unlock()
			return nil, err
		}
		fuelPriceGauge = registered
	}
	fuelPriceGaugeLock.Unlock()

	return &PrometheusCollector{
		polls:      pollCounter,
		pollErrors: pollErrCounter,
		fuelPrices: fuelPriceGauge,
	}, nil
}

func registerCounterVec(reg prometheus.Registerer, counter *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(counter); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return counter, nil
}

func registerGaugeVec(reg prometheus.Registerer, gauge *prometheus.GaugeVec) (*prometheus.GaugeVec, error) {
	if err := reg.Register(gauge); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return gauge, nil
}

// IncPoll increments the success counter for a station.
func (p *PrometheusCollector) IncPoll(station string) {
	if p == nil || p.polls == nil {
		return
	}
	p.polls.WithLabelValues(station).Inc()
}

// IncPollError records a failed poll with its classified kind.
func (p *PrometheusCollector) IncPollError(station, kind string) {
	if p == nil || p.pollErrors == nil {
		return
	}
	p.pollErrors.WithLabelValues(station, kind).Inc()
}

// SetFuelPrice updates the price gauge for a station and fuel grade.
func (p *PrometheusCollector) SetFuelPrice(station, grade string, price float64) {
	if p == nil || p.fuelPrices == nil {
		return
	}
	p.fuelPrices.WithLabelValues(station, grade).Set(price)
}
