package service

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"gasbridge/config"
	"gasbridge/flow"
	"gasbridge/sensor"
)

// Server exposes the bridge over HTTP: status, the three service calls and
// the configuration wizard.
type Server struct {
	logger  zerolog.Logger
	service *Service
	server  *http.Server
	ln      net.Listener

	mu       sync.Mutex
	sessions map[string]flow.State
}

type statusEntry struct {
	ID        string                  `json:"id"`
	StationID string                  `json:"station_id"`
	Name      string                  `json:"name"`
	Interval  int                     `json:"interval"`
	Available bool                    `json:"available"`
	Sensors   map[string]sensor.State `json:"sensors,omitempty"`
}

type statusResponse struct {
	Entries []statusEntry `json:"entries"`
}

type lookupGPSRequest struct {
	EntityIDs []string `json:"entity_ids"`
	Limit     int      `json:"limit,omitempty"`
}

type lookupZIPRequest struct {
	Zip   string `json:"zip"`
	Limit int    `json:"limit,omitempty"`
}

type clearCacheRequest struct {
	DeviceIDs []string `json:"device_ids"`
}

type flowStartRequest struct {
	Reconfigure string `json:"reconfigure,omitempty"`
	Options     string `json:"options,omitempty"`
}

type flowStepRequest struct {
	Session   string `json:"session"`
	Menu      string `json:"menu,omitempty"`
	StationID string `json:"station_id,omitempty"`
	Name      string `json:"name,omitempty"`
	SolverURL string `json:"solver_url,omitempty"`
	Postal    string `json:"zipcode,omitempty"`
	Interval  int    `json:"interval,omitempty"`
	UOM       *bool  `json:"uom,omitempty"`
	GPS       *bool  `json:"gps,omitempty"`
}

type flowResponse struct {
	Session  string            `json:"session"`
	Step     flow.Step         `json:"step"`
	Errors   map[string]string `json:"errors,omitempty"`
	Stations map[string]string `json:"stations,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	EntryID  string            `json:"entry_id,omitempty"`
}

// NewServer starts the HTTP API on the configured listener.
func NewServer(listen string, svc *Service, logger zerolog.Logger) (*Server, error) {
	server := &Server{
		logger:   logger.With().Str("component", "server").Logger(),
		service:  svc,
		sessions: make(map[string]flow.State),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", server.handleStatus)
	mux.HandleFunc("/api/services/lookup_gps", server.handleLookupGPS)
	mux.HandleFunc("/api/services/lookup_zip", server.handleLookupZIP)
	mux.HandleFunc("/api/services/clear_cache", server.handleClearCache)
	mux.HandleFunc("/api/flow/start", server.handleFlowStart)
	mux.HandleFunc("/api/flow/step", server.handleFlowStep)
	mux.Handle("/metrics", promhttp.Handler())

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: mux}
	server.server = srv
	server.ln = ln

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			server.logger.Error().Err(err).Msg("api server stopped")
		}
	}()

	server.logger.Info().Str("listen", ln.Addr().String()).Msg("api server started")
	return server, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close shuts the listener down.
func (s *Server) Close() error {
	return s.server.Close()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entries := s.service.Entries()
	resp := statusResponse{Entries: make([]statusEntry, 0, len(entries))}
	for _, entry := range entries {
		item := statusEntry{
			ID:        entry.ID,
			StationID: entry.StationID,
			Name:      entry.Name,
			Interval:  int(entry.PollInterval() / time.Second),
		}
		if data, ok, err := s.service.Snapshot(entry.ID); err == nil {
			item.Available = ok
			item.Sensors = make(map[string]sensor.State, len(sensor.Descriptions))
			opts := sensor.OptionsFromEntry(entry)
			for _, desc := range sensor.Descriptions {
				item.Sensors[desc.ID] = sensor.Project(desc, data, ok, opts)
			}
		}
		resp.Entries = append(resp.Entries, item)
	}
	s.respond(w, resp)
}

func (s *Server) handleLookupGPS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req lookupGPSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	results, err := s.service.LookupGPS(r.Context(), req.EntityIDs, req.Limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.respond(w, results)
}

func (s *Server) handleLookupZIP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req lookupZIPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	results, err := s.service.LookupZIP(r.Context(), req.Zip, req.Limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.respond(w, results)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req clearCacheRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := s.service.ClearCache(r.Context(), req.DeviceIDs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.respond(w, map[string]bool{"ok": true})
}

func (s *Server) handleFlowStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req flowStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	wizard := s.service.Flow()
	var state flow.State
	switch {
	case req.Reconfigure != "":
		entry, ok := s.service.Entry(req.Reconfigure)
		if !ok {
			http.Error(w, "unknown entry", http.StatusNotFound)
			return
		}
		state = wizard.StartReconfigure(entry)
	case req.Options != "":
		entry, ok := s.service.Entry(req.Options)
		if !ok {
			http.Error(w, "unknown entry", http.StatusNotFound)
			return
		}
		state = wizard.StartOptions(entry)
	default:
		state = wizard.Start()
	}

	session := config.NewEntryID()
	s.mu.Lock()
	s.sessions[session] = state
	s.mu.Unlock()
	s.respond(w, flowResponse{Session: session, Step: state.Step})
}

func (s *Server) handleFlowStep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req flowStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	state, ok := s.sessions[req.Session]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	input := flow.Input{
		Menu:      req.Menu,
		StationID: req.StationID,
		Name:      req.Name,
		SolverURL: req.SolverURL,
		Postal:    req.Postal,
		Interval:  req.Interval,
		UOM:       req.UOM,
		GPS:       req.GPS,
	}
	state = s.service.Flow().Advance(r.Context(), state, input)

	resp := flowResponse{
		Session:  req.Session,
		Step:     state.Step,
		Errors:   state.Errors,
		Stations: state.Stations,
		Reason:   state.Reason,
	}
	switch state.Step {
	case flow.StepCreateEntry, flow.StepAbort:
		if err := s.applyTerminal(state); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp.EntryID = state.Entry.ID
		s.mu.Lock()
		delete(s.sessions, req.Session)
		s.mu.Unlock()
	default:
		s.mu.Lock()
		s.sessions[req.Session] = state
		s.mu.Unlock()
	}
	s.respond(w, resp)
}

// applyTerminal persists the wizard result: new entries start polling,
// updated entries are rebuilt.
func (s *Server) applyTerminal(state flow.State) error {
	entry := *state.Entry
	if _, exists := s.service.Entry(entry.ID); exists {
		return s.service.UpdateEntry(entry)
	}
	return s.service.AddEntry(entry)
}

func (s *Server) respond(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("encode response")
	}
}
