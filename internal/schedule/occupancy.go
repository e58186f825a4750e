package schedule

// OccupiedSlots returns the grid slots an appointment of durationMinutes
// starting at start consumes. Partial slots count as whole slots.
func OccupiedSlots(start Clock, durationMinutes int) []Clock {
	if durationMinutes <= 0 {
		durationMinutes = DefaultDurationMinutes
	}
	end := start.minutes + durationMinutes

	slots := make([]Clock, 0, (durationMinutes+SlotMinutes-1)/SlotMinutes)
	for m := start.minutes; m < end; m += SlotMinutes {
		slots = append(slots, Clock{minutes: m})
	}
	return slots
}

// Labels renders clocks as HH:MM strings.
func Labels(slots []Clock) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.String()
	}
	return out
}
