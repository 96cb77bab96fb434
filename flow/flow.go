// Package flow implements the multi-step configuration wizard as an
// explicit state machine. Every transition consumes the current State plus
// the user submission and returns the next State; validation failures keep
// the step and attach field-scoped error keys instead of advancing.
package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"gasbridge/config"
	"gasbridge/pricing"
)

// Step identifies a state of the wizard.
type Step string

const (
	StepUser        Step = "user"
	StepManual      Step = "manual"
	StepSearch      Step = "search"
	StepHome        Step = "home"
	StepHome2       Step = "home2"
	StepPostal      Step = "postal"
	StepStationList Step = "station_list"
	StepReconfigure Step = "reconfigure"
	StepOptions     Step = "options"
	// StepCreateEntry is the successful terminal state; State.Entry holds
	// the record to persist.
	StepCreateEntry Step = "create_entry"
	// StepAbort is the terminal state of a completed reconfiguration.
	StepAbort Step = "abort"
)

// Field-scoped error keys surfaced to the user.
const (
	ErrStationID  = "station_id"
	ErrInvalidURL = "invalid_url"
	ErrNoResults  = "no_results"
	ErrInterval   = "invalid_interval"
)

// NoResultsSentinel is the placeholder station id inserted when a location
// search comes back empty. It is never selectable.
const NoResultsSentinel = "-"

const noResultsLabel = "No stations in search area."

// Menu choices for the two menu steps.
const (
	MenuManual = "manual"
	MenuSearch = "search"
	MenuHome   = "home"
	MenuPostal = "postal"
)

// Field names used in State.Fields.
const (
	fieldStationID = "station_id"
	fieldName      = "name"
	fieldSolver    = "solver_url"
	fieldPostal    = "zipcode"
)

// Input is a single user submission.
type Input struct {
	Menu      string
	StationID string
	Name      string
	SolverURL string
	Postal    string
	Interval  int
	UOM       *bool
	GPS       *bool
}

// State is the value threaded through the wizard. Errors carries at most
// one error key per field and is cleared on every transition attempt.
type State struct {
	Step     Step
	Fields   map[string]string
	Errors   map[string]string
	Stations map[string]string
	// Entry is set when Step is StepCreateEntry or StepAbort.
	Entry  *config.Entry
	Reason string

	base *config.Entry
}

func (s State) withError(field, key string) State {
	s.Errors = map[string]string{field: key}
	return s
}

func (s State) field(name string) string {
	if s.Fields == nil {
		return ""
	}
	return s.Fields[name]
}

func (s *State) setField(name, value string) {
	if s.Fields == nil {
		s.Fields = make(map[string]string)
	}
	s.Fields[name] = value
}

// ClientFunc builds a price client for the given solver URL. The flow uses
// it for live validation lookups and location searches.
type ClientFunc func(solverURL string) (pricing.Client, error)

// Flow executes wizard transitions. Station list searches are cached for a
// few minutes so re-showing a picker does not trigger another lookup.
type Flow struct {
	clientFor ClientFunc
	home      *config.HomeConfig
	logger    zerolog.Logger
	searches  *gocache.Cache
}

// New builds a flow. home may be nil when no coordinates are configured;
// the GPS-based path then reports no results.
func New(clientFor ClientFunc, home *config.HomeConfig, logger zerolog.Logger) *Flow {
	return &Flow{
		clientFor: clientFor,
		home:      home,
		logger:    logger.With().Str("component", "flow").Logger(),
		searches:  gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// Start returns the initial wizard state.
func (f *Flow) Start() State {
	return State{Step: StepUser}
}

// StartReconfigure re-enters the wizard for an existing entry with its
// fields prefilled.
func (f *Flow) StartReconfigure(entry config.Entry) State {
	st := State{Step: StepReconfigure, base: &entry}
	st.setField(fieldStationID, entry.StationID)
	st.setField(fieldName, entry.Name)
	st.setField(fieldSolver, entry.Solver())
	return st
}

// StartOptions opens the options form for an existing entry.
func (f *Flow) StartOptions(entry config.Entry) State {
	return State{Step: StepOptions, base: &entry}
}

// Advance applies one user submission to the wizard.
func (f *Flow) Advance(ctx context.Context, st State, in Input) State {
	st.Errors = nil
	switch st.Step {
	case StepUser:
		return f.stepUser(st, in)
	case StepSearch:
		return f.stepSearch(st, in)
	case StepManual:
		return f.stepManual(ctx, st, in)
	case StepHome:
		return f.stepHome(ctx, st, in)
	case StepHome2:
		return f.stepHome2(st, in)
	case StepPostal:
		return f.stepPostal(ctx, st, in)
	case StepStationList:
		return f.stepStationList(st, in)
	case StepReconfigure:
		return f.stepReconfigure(ctx, st, in)
	case StepOptions:
		return f.stepOptions(st, in)
	default:
		return st
	}
}

func (f *Flow) stepUser(st State, in Input) State {
	switch in.Menu {
	case MenuManual:
		st.Step = StepManual
	case MenuSearch:
		st.Step = StepSearch
	}
	return st
}

func (f *Flow) stepSearch(st State, in Input) State {
	switch in.Menu {
	case MenuHome:
		st.Step = StepHome
	case MenuPostal:
		st.Step = StepPostal
	}
	return st
}

// Manual path: station id, display name and optional solver in one form.
func (f *Flow) stepManual(ctx context.Context, st State, in Input) State {
	solver := strings.TrimSpace(in.SolverURL)
	if !config.ValidSolverURL(solver) {
		return st.withError(fieldSolver, ErrInvalidURL)
	}
	if !f.validateStation(ctx, solver, in.StationID) {
		return st.withError(fieldStationID, ErrStationID)
	}
	return f.createEntry(in.StationID, in.Name, solver)
}

// Home path: optional solver first, then a picker fed by a coordinate
// search around the configured home location.
func (f *Flow) stepHome(ctx context.Context, st State, in Input) State {
	solver := strings.TrimSpace(in.SolverURL)
	if !config.ValidSolverURL(solver) {
		return st.withError(fieldSolver, ErrInvalidURL)
	}
	st.setField(fieldSolver, solver)
	st.Stations = f.stationList(ctx, solver, "")
	st.Step = StepHome2
	if _, empty := st.Stations[NoResultsSentinel]; empty {
		return st.withError(fieldStationID, ErrNoResults)
	}
	return st
}

func (f *Flow) stepHome2(st State, in Input) State {
	if !selectable(st.Stations, in.StationID) {
		return st.withError(fieldStationID, pickError(st.Stations))
	}
	return f.createEntry(in.StationID, in.Name, st.field(fieldSolver))
}

// Postal path: postal code plus optional solver, then the station picker.
func (f *Flow) stepPostal(ctx context.Context, st State, in Input) State {
	solver := strings.TrimSpace(in.SolverURL)
	if !config.ValidSolverURL(solver) {
		return st.withError(fieldSolver, ErrInvalidURL)
	}
	st.setField(fieldSolver, solver)
	st.setField(fieldPostal, in.Postal)
	st.Stations = f.stationList(ctx, solver, in.Postal)
	st.Step = StepStationList
	if _, empty := st.Stations[NoResultsSentinel]; empty {
		return st.withError(fieldStationID, ErrNoResults)
	}
	return st
}

func (f *Flow) stepStationList(st State, in Input) State {
	if !selectable(st.Stations, in.StationID) {
		return st.withError(fieldStationID, pickError(st.Stations))
	}
	delete(st.Fields, fieldPostal)
	return f.createEntry(in.StationID, in.Name, st.field(fieldSolver))
}

// Reconfigure re-validates solver and station, then updates the existing
// entry in place while preserving its options.
func (f *Flow) stepReconfigure(ctx context.Context, st State, in Input) State {
	solver := strings.TrimSpace(in.SolverURL)
	if !config.ValidSolverURL(solver) {
		return st.withError(fieldSolver, ErrInvalidURL)
	}
	if !f.validateStation(ctx, solver, in.StationID) {
		return st.withError(fieldStationID, ErrStationID)
	}
	updated := *st.base
	updated.StationID = in.StationID
	updated.Name = nameOrDefault(in.Name)
	updated.SolverURL = solverPtr(solver)
	st.Step = StepAbort
	st.Reason = "reconfigure_successful"
	st.Entry = &updated
	return st
}

// Options form: poll interval inside the supported bounds plus the two
// display toggles.
func (f *Flow) stepOptions(st State, in Input) State {
	if !config.ValidInterval(in.Interval) {
		return st.withError("interval", ErrInterval)
	}
	updated := *st.base
	updated.Interval = in.Interval
	if in.UOM != nil {
		updated.UOM = in.UOM
	}
	if in.GPS != nil {
		updated.GPS = in.GPS
	}
	st.Step = StepCreateEntry
	st.Entry = &updated
	return st
}

func (f *Flow) createEntry(stationID, name, solver string) State {
	uom := true
	gps := true
	timeout := config.DefaultTimeoutMS
	entry := config.Entry{
		ID:        config.NewEntryID(),
		StationID: stationID,
		Name:      nameOrDefault(name),
		Interval:  config.DefaultInterval,
		UOM:       &uom,
		GPS:       &gps,
		SolverURL: solverPtr(solver),
		TimeoutMS: &timeout,
		Version:   config.CurrentVersion,
	}
	return State{Step: StepCreateEntry, Entry: &entry}
}

// validateStation issues a live price lookup; any error payload rejects
// the station.
func (f *Flow) validateStation(ctx context.Context, solver, stationID string) bool {
	if strings.TrimSpace(stationID) == "" {
		return false
	}
	client, err := f.clientFor(solver)
	if err != nil {
		f.logger.Error().Err(err).Msg("build validation client")
		return false
	}
	if _, err := client.PriceLookup(ctx, stationID); err != nil {
		f.logger.Debug().Err(err).Str("station", stationID).Msg("station validation failed")
		return false
	}
	return true
}

// stationList performs a location search by postal code, or around the
// home coordinates when postal is empty, and maps station ids to display
// labels. An empty result carries only the sentinel entry.
func (f *Flow) stationList(ctx context.Context, solver, postal string) map[string]string {
	key := fmt.Sprintf("%s|%s", solver, postal)
	if cached, ok := f.searches.Get(key); ok {
		if stations, ok := cached.(map[string]string); ok {
			return stations
		}
	}

	query := pricing.SearchQuery{Zip: postal}
	if postal == "" {
		if f.home == nil {
			return map[string]string{NoResultsSentinel: noResultsLabel}
		}
		query.Latitude = &f.home.Latitude
		query.Longitude = &f.home.Longitude
	}

	stations := make(map[string]string)
	client, err := f.clientFor(solver)
	if err != nil {
		f.logger.Error().Err(err).Msg("build search client")
	} else if results, err := client.LocationSearch(ctx, query); err != nil {
		f.logger.Error().Err(err).Msg("location search failed")
	} else {
		for _, station := range results.Stations {
			stations[station.ID] = fmt.Sprintf("%s @ %s", station.Name, station.Address)
		}
	}
	if len(stations) == 0 {
		stations[NoResultsSentinel] = noResultsLabel
	}
	f.searches.SetDefault(key, stations)
	return stations
}

// pickError distinguishes an empty search from a bad selection out of a
// real station list.
func pickError(stations map[string]string) string {
	if _, empty := stations[NoResultsSentinel]; empty {
		return ErrNoResults
	}
	return ErrStationID
}

func selectable(stations map[string]string, stationID string) bool {
	if stationID == NoResultsSentinel {
		return false
	}
	_, ok := stations[stationID]
	return ok
}

func nameOrDefault(name string) string {
	if strings.TrimSpace(name) == "" {
		return config.DefaultName
	}
	return name
}

func solverPtr(solver string) *string {
	if solver == "" {
		return nil
	}
	return &solver
}
