package config

import "testing"

func TestMigrateFromVersionOne(t *testing.T) {
	entry := &Entry{ID: "a", StationID: "208656", Version: 1}
	if !Migrate(entry) {
		t.Fatal("expected migration to report a change")
	}
	if entry.Version != CurrentVersion {
		t.Fatalf("expected version %d, got %d", CurrentVersion, entry.Version)
	}
	if entry.UOM == nil || !*entry.UOM {
		t.Fatal("expected uom added with default true")
	}
	if entry.GPS == nil || !*entry.GPS {
		t.Fatal("expected gps added with default true")
	}
	if entry.SolverURL != nil {
		t.Fatal("expected solver url to stay null")
	}
	if entry.TimeoutMS == nil || *entry.TimeoutMS != DefaultTimeoutMS {
		t.Fatalf("expected timeout %d, got %v", DefaultTimeoutMS, entry.TimeoutMS)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	entry := &Entry{ID: "a", Version: 1}
	Migrate(entry)
	snapshot := *entry
	if Migrate(entry) {
		t.Fatal("expected second migration to be a no-op")
	}
	if *entry != snapshot {
		t.Fatalf("entry changed on repeat migration: %+v vs %+v", *entry, snapshot)
	}
}

func TestMigratePreservesExistingValues(t *testing.T) {
	off := false
	ms := 30000
	entry := &Entry{ID: "a", UOM: &off, TimeoutMS: &ms, Version: 2}
	Migrate(entry)
	if *entry.UOM {
		t.Fatal("expected existing uom value to survive")
	}
	if *entry.TimeoutMS != 30000 {
		t.Fatalf("expected existing timeout to survive, got %d", *entry.TimeoutMS)
	}
	if entry.GPS == nil || !*entry.GPS {
		t.Fatal("expected missing gps to be added")
	}
}

func TestMigrateCurrentVersionUntouched(t *testing.T) {
	entry := &Entry{ID: "a", Version: CurrentVersion}
	if Migrate(entry) {
		t.Fatal("expected current-version entry to be untouched")
	}
	if entry.UOM != nil || entry.GPS != nil || entry.TimeoutMS != nil {
		t.Fatal("expected no fields added at current version")
	}
}
