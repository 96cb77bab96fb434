package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEntryStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entries.yaml")

	store, err := OpenEntryStore(path)
	if err != nil {
		t.Fatalf("open empty store: %v", err)
	}
	if len(store.Entries()) != 0 {
		t.Fatalf("expected empty store, got %d entries", len(store.Entries()))
	}

	uom := true
	entry := Entry{
		ID:        NewEntryID(),
		StationID: "208656",
		Name:      "Gas Station",
		Interval:  3600,
		UOM:       &uom,
		Version:   CurrentVersion,
	}
	if err := store.Add(entry); err != nil {
		t.Fatalf("add: %v", err)
	}

	reopened, err := OpenEntryStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := reopened.Get(entry.ID)
	if !ok {
		t.Fatalf("entry %s not found after reopen", entry.ID)
	}
	if got.StationID != "208656" || got.Interval != 3600 {
		t.Fatalf("unexpected entry after reopen: %+v", got)
	}

	got.Interval = 900
	if err := reopened.Update(got); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := reopened.Remove(entry.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := reopened.Remove(entry.ID); err == nil {
		t.Fatal("expected error removing unknown entry")
	}
}

func TestOpenEntryStoreMigratesOnLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entries.yaml")

	content := `entries:
  - id: abc123
    station_id: "208656"
    name: Gas Station
    interval: 3600
    solver_url: null
    version: 1
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write entries: %v", err)
	}

	store, err := OpenEntryStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	entry, ok := store.Get("abc123")
	if !ok {
		t.Fatal("entry missing")
	}
	if entry.Version != CurrentVersion {
		t.Fatalf("expected version %d, got %d", CurrentVersion, entry.Version)
	}
	if !entry.UOMEnabled() || !entry.GPSEnabled() {
		t.Fatal("expected migrated toggles to default on")
	}
	if entry.TimeoutMS == nil || *entry.TimeoutMS != DefaultTimeoutMS {
		t.Fatalf("expected migrated timeout %d, got %v", DefaultTimeoutMS, entry.TimeoutMS)
	}

	// The migrated file must keep the explicit null solver field.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(raw), "solver_url:") {
		t.Fatalf("expected solver_url field in migrated file:\n%s", raw)
	}
}

func TestEntryDefaults(t *testing.T) {
	entry := Entry{}
	if entry.PollInterval().Seconds() != DefaultInterval {
		t.Fatalf("expected default interval, got %s", entry.PollInterval())
	}
	if !entry.UOMEnabled() || !entry.GPSEnabled() {
		t.Fatal("expected toggles default to on")
	}
	if entry.Solver() != "" {
		t.Fatalf("expected empty solver, got %q", entry.Solver())
	}
	if entry.Timeout().Milliseconds() != DefaultTimeoutMS {
		t.Fatalf("expected default timeout, got %s", entry.Timeout())
	}

	off := false
	entry.UOM = &off
	if entry.UOMEnabled() {
		t.Fatal("expected uom off")
	}
}

func TestNewEntryIDUnique(t *testing.T) {
	a, b := NewEntryID(), NewEntryID()
	if a == "" || a == b {
		t.Fatalf("expected distinct ids, got %q and %q", a, b)
	}
}
