package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Entry is one persisted station configuration. Identity fields (station
// id, name, solver URL) are set by the config flow; the mutable options
// (interval, uom, gps) are edited through the options flow. Fields subject
// to schema migration are pointers so that absence survives a round trip.
type Entry struct {
	ID        string  `yaml:"id"`
	StationID string  `yaml:"station_id"`
	Name      string  `yaml:"name"`
	Interval  int     `yaml:"interval"`
	UOM       *bool   `yaml:"uom,omitempty"`
	GPS       *bool   `yaml:"gps,omitempty"`
	SolverURL *string `yaml:"solver_url"`
	TimeoutMS *int    `yaml:"timeout,omitempty"`
	Version   int     `yaml:"version"`
}

// PollInterval returns the configured interval, falling back to the
// default when absent or zero.
func (e Entry) PollInterval() time.Duration {
	seconds := e.Interval
	if seconds <= 0 {
		seconds = DefaultInterval
	}
	return time.Duration(seconds) * time.Second
}

// UOMEnabled reports the unit-of-measure display toggle, defaulting to on.
func (e Entry) UOMEnabled() bool {
	return e.UOM == nil || *e.UOM
}

// GPSEnabled reports the GPS attribute exposure toggle, defaulting to on.
func (e Entry) GPSEnabled() bool {
	return e.GPS == nil || *e.GPS
}

// Solver returns the solver URL or the empty string when none is set.
func (e Entry) Solver() string {
	if e.SolverURL == nil {
		return ""
	}
	return *e.SolverURL
}

// Timeout returns the lookup timeout, falling back to the default.
func (e Entry) Timeout() time.Duration {
	ms := DefaultTimeoutMS
	if e.TimeoutMS != nil && *e.TimeoutMS > 0 {
		ms = *e.TimeoutMS
	}
	return time.Duration(ms) * time.Millisecond
}

// NewEntryID produces a collision-safe identifier for a fresh entry.
func NewEntryID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("entry-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

type entriesFile struct {
	Entries []Entry `yaml:"entries"`
}

// EntryStore persists entries to a YAML file. All mutating operations
// rewrite the file atomically via a temp file rename.
type EntryStore struct {
	mu      sync.Mutex
	path    string
	entries []Entry
}

// OpenEntryStore loads the entry file, applying schema migration to every
// record. A missing file yields an empty store.
func OpenEntryStore(path string) (*EntryStore, error) {
	if path == "" {
		return nil, errors.New("entry store path must not be empty")
	}
	store := &EntryStore{path: path}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("read entries %s: %w", path, err)
	}
	var file entriesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("unmarshal entries %s: %w", path, err)
	}
	migrated := false
	for i := range file.Entries {
		if Migrate(&file.Entries[i]) {
			migrated = true
		}
	}
	store.entries = file.Entries
	if migrated {
		if err := store.flush(); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// Entries returns a copy of all persisted entries.
func (s *EntryStore) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

// Get returns the entry with the given id.
func (s *EntryStore) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		if entry.ID == id {
			return entry, true
		}
	}
	return Entry{}, false
}

// Add persists a new entry.
func (s *EntryStore) Add(entry Entry) error {
	if entry.ID == "" {
		return errors.New("entry id must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.entries {
		if existing.ID == entry.ID {
			return fmt.Errorf("entry %s already exists", entry.ID)
		}
	}
	s.entries = append(s.entries, entry)
	return s.flush()
}

// Update replaces an existing entry in place.
func (s *EntryStore) Update(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.entries {
		if existing.ID == entry.ID {
			s.entries[i] = entry
			return s.flush()
		}
	}
	return fmt.Errorf("entry %s not found", entry.ID)
}

// Remove deletes an entry by id.
func (s *EntryStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.entries {
		if existing.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return s.flush()
		}
	}
	return fmt.Errorf("entry %s not found", id)
}

func (s *EntryStore) flush() error {
	raw, err := yaml.Marshal(entriesFile{Entries: s.entries})
	if err != nil {
		return fmt.Errorf("marshal entries: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write entries %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace entries %s: %w", s.path, err)
	}
	return nil
}
