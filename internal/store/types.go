package store

import "time"

// ScrapedRoom is one queue row as delivered by the scraper collaborator.
type ScrapedRoom struct {
	ExtID       int64
	Type        string
	Description string
	Capacity    int
	Position    int
}

// UpdatePolicy decides what happens when a scrape delivers different values
// for a (room, date) pair that already has a row.
type UpdatePolicy int

const (
	// UpdateForbidden keeps the stored row and reports the difference.
	UpdateForbidden UpdatePolicy = iota
	// UpdateAllowed overwrites the stored row.
	UpdateAllowed
)

// PolicyFromString maps the config value to a policy. Anything but "allow"
// is the conservative default.
func PolicyFromString(s string) UpdatePolicy {
	if s == "allow" {
		return UpdateAllowed
	}
	return UpdateForbidden
}

// UpsertOutcome classifies what an UpsertObservation call did. A conflict is
// an expected condition, not an error.
type UpsertOutcome string

const (
	OutcomeCreated   UpsertOutcome = "created"
	OutcomeUnchanged UpsertOutcome = "unchanged"
	OutcomeUpdated   UpsertOutcome = "updated"
	OutcomeConflict  UpsertOutcome = "conflict"
)

// UpsertResult reports the outcome of an upsert together with the old and
// new values, so conflicts and updates can be surfaced with both sides.
type UpsertResult struct {
	Outcome     UpsertOutcome
	OldCapacity int
	OldPosition int
	NewCapacity int
	NewPosition int
}

// DateOnly truncates a timestamp to its calendar day in UTC. Every date that
// reaches the storage layer goes through this, so (room_id, date) equality
// is well defined across drivers.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
