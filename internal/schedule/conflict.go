package schedule

import (
	"sort"
	"time"
)

// Booking is the part of an appointment the detector needs.
type Booking struct {
	ID              string
	Date            Date
	Start           Clock
	DurationMinutes int
	// Attended is nil until an operator records attendance.
	Attended *bool
}

// Detector checks candidate occupancy against the bookings of one day.
type Detector struct {
	Location *time.Location
	Now      func() time.Time
}

func NewDetector(loc *time.Location, now func() time.Time) Detector {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return Detector{Location: loc, Now: now}
}

func (d Detector) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// StartsAt returns the instant b begins in the detector's location.
func (d Detector) StartsAt(b Booking) time.Time {
	return b.Date.At(b.Start, d.Location)
}

// Released reports whether b no longer holds its slots: it was explicitly
// marked as a no-show and its start is already in the past. The flag alone
// is not enough.
func (d Detector) Released(b Booking) bool {
	if b.Attended == nil || *b.Attended {
		return false
	}
	return d.StartsAt(b).Before(d.now())
}

// HasConflict reports whether any slot in candidate is held by a booking in
// existing other than selfID.
func (d Detector) HasConflict(candidate []Clock, existing []Booking, selfID string) bool {
	wanted := make(map[int]struct{}, len(candidate))
	for _, c := range candidate {
		wanted[c.minutes] = struct{}{}
	}

	for _, b := range existing {
		if selfID != "" && b.ID == selfID {
			continue
		}
		if d.Released(b) {
			continue
		}
		for _, s := range OccupiedSlots(b.Start, b.DurationMinutes) {
			if _, ok := wanted[s.minutes]; ok {
				return true
			}
		}
	}
	return false
}

// Occupied returns the sorted union of slots held by existing, skipping
// excludeID and released bookings.
func (d Detector) Occupied(existing []Booking, excludeID string) []Clock {
	seen := make(map[int]struct{})
	for _, b := range existing {
		if excludeID != "" && b.ID == excludeID {
			continue
		}
		if d.Released(b) {
			continue
		}
		for _, s := range OccupiedSlots(b.Start, b.DurationMinutes) {
			seen[s.minutes] = struct{}{}
		}
	}

	out := make([]Clock, 0, len(seen))
	for m := range seen {
		out = append(out, Clock{minutes: m})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].minutes < out[j].minutes })
	return out
}

// Free returns the grid starts not present in occupied.
func Free(occupied []Clock) []Clock {
	taken := make(map[int]struct{}, len(occupied))
	for _, c := range occupied {
		taken[c.minutes] = struct{}{}
	}
	var out []Clock
	for _, c := range workingDay {
		if _, ok := taken[c.minutes]; !ok {
			out = append(out, c)
		}
	}
	return out
}
