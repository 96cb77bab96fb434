package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `logging:
  level: debug
client:
  driver: gasbuddy
  timeout: 30s
entries: entries.yaml
server:
  enabled: true
  listen: ":18080"
home:
  latitude: 33.87
  longitude: -117.92
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Client.Driver != "gasbuddy" {
		t.Fatalf("expected driver gasbuddy, got %q", cfg.Client.Driver)
	}
	if cfg.Client.Timeout.Duration.Seconds() != 30 {
		t.Fatalf("expected 30s timeout, got %s", cfg.Client.Timeout.Duration)
	}
	if cfg.Entries != filepath.Join(dir, "entries.yaml") {
		t.Fatalf("expected entries path anchored at config dir, got %q", cfg.Entries)
	}
	if cfg.Home == nil || cfg.Home.Latitude != 33.87 {
		t.Fatalf("unexpected home config: %+v", cfg.Home)
	}
}

func TestLoadRejectsMissingDriver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("entries: entries.yaml\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing client.driver")
	}
}

func TestLoadRejectsIncompleteTracker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `client:
  driver: gasbuddy
entries: entries.yaml
tracker:
  - entity_id: device_tracker.phone
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for tracker without topic")
	}
}

func TestValidSolverURL(t *testing.T) {
	valid := []string{
		"",
		"http://localhost:8000",
		"https://solver.example.com",
		"https://solver.example.com:8191/v1",
	}
	for _, url := range valid {
		if !ValidSolverURL(url) {
			t.Errorf("expected %q to be valid", url)
		}
	}

	invalid := []string{
		"ftp://solver.example.com",
		"solver.example.com",
		"http://",
		"http://bad host/v1",
	}
	for _, url := range invalid {
		if ValidSolverURL(url) {
			t.Errorf("expected %q to be invalid", url)
		}
	}
}

func TestValidInterval(t *testing.T) {
	cases := map[int]bool{
		899:   false,
		900:   true,
		3600:  true,
		14400: true,
		14401: false,
		0:     false,
	}
	for seconds, want := range cases {
		if got := ValidInterval(seconds); got != want {
			t.Errorf("interval %d: got %v, want %v", seconds, got, want)
		}
	}
}
