package config

// CurrentVersion is the schema version new entries are written with.
const CurrentVersion = 4

// migrationStep adds a single field when it is absent. Steps are total and
// idempotent; they never remove or overwrite a field that is present.
type migrationStep struct {
	name  string
	apply func(*Entry) bool
}

var migrationSteps = []migrationStep{
	{
		name: "add uom default",
		apply: func(e *Entry) bool {
			if e.UOM != nil {
				return false
			}
			enabled := true
			e.UOM = &enabled
			return true
		},
	},
	{
		name: "add gps default",
		apply: func(e *Entry) bool {
			if e.GPS != nil {
				return false
			}
			enabled := true
			e.GPS = &enabled
			return true
		},
	},
	{
		name: "add solver url",
		apply: func(e *Entry) bool {
			// Defaulted to null: nothing to store, the nil pointer already
			// round-trips as an explicit null field.
			return false
		},
	},
	{
		name: "add lookup timeout",
		apply: func(e *Entry) bool {
			if e.TimeoutMS != nil {
				return false
			}
			ms := DefaultTimeoutMS
			e.TimeoutMS = &ms
			return true
		},
	},
}

// Migrate upgrades an entry from an older schema version. It returns true
// when the entry was modified. Entries already at the current version are
// left untouched; the version is bumped only when a step actually added a
// field, so re-running is always a no-op.
func Migrate(e *Entry) bool {
	if e == nil || e.Version >= CurrentVersion {
		return false
	}
	changed := false
	for _, step := range migrationSteps {
		if step.apply(e) {
			changed = true
		}
	}
	if changed {
		e.Version = CurrentVersion
	}
	return changed
}
