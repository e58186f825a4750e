package catalog

import (
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/dental-booking/internal/schedule"
)

const (
	// OtherReason selects the free-text reason path.
	OtherReason = "other"

	MinDurationMinutes = 15
	MaxDurationMinutes = 120
)

// Entry is one bookable service with its estimated chair time.
type Entry struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"durationMinutes"`
}

// Resolution is the outcome of mapping a reason code to a duration.
type Resolution struct {
	DurationMinutes int
	Reason          string
}

// Defaults is the seed catalog used until an operator stores one.
func Defaults() []Entry {
	return []Entry{
		{ID: "checkup", Name: "General check-up", DurationMinutes: 30},
		{ID: "cleaning", Name: "Dental cleaning", DurationMinutes: 40},
		{ID: "orthodontics-adjustment", Name: "Orthodontics - check / adjustment", DurationMinutes: 30},
		{ID: "orthodontics-placement", Name: "Orthodontics - placement or assessment", DurationMinutes: 45},
		{ID: "filling", Name: "Cavity / composite filling", DurationMinutes: 45},
		{ID: "root-canal", Name: "Root canal treatment", DurationMinutes: 60},
		{ID: "extraction-simple", Name: "Simple extraction", DurationMinutes: 30},
		{ID: "extraction-surgical", Name: "Wisdom teeth / oral surgery", DurationMinutes: 60},
		{ID: "whitening", Name: "Teeth whitening", DurationMinutes: 60},
		{ID: "crowns", Name: "Crowns / caps", DurationMinutes: 45},
		{ID: "prosthetics", Name: "Prosthetics (fixed or removable)", DurationMinutes: 45},
		{ID: "periodontics", Name: "Periodontics / gums", DurationMinutes: 45},
		{ID: "implant-placement", Name: "Implants - placement", DurationMinutes: 60},
		{ID: "implant-review", Name: "Implants - review", DurationMinutes: 30},
		{ID: "sealants", Name: "Pit and fissure sealants", DurationMinutes: 30},
		{ID: "pediatric", Name: "Pediatric dentistry", DurationMinutes: 40},
		{ID: "rehabilitation", Name: "Oral rehabilitation", DurationMinutes: 60},
		{ID: "xray-assessment", Name: "X-ray / initial assessment", DurationMinutes: 30},
		{ID: "emergency", Name: "Emergency / pain", DurationMinutes: 30},
	}
}

// Resolve maps a reason code to a duration and display reason. It never fails.
func Resolve(reasonCode, otherText string, entries []Entry) Resolution {
	code := strings.ToLower(strings.TrimSpace(reasonCode))

	if code == OtherReason {
		reason := strings.TrimSpace(otherText)
		if reason == "" {
			reason = "Other"
		}
		return Resolution{DurationMinutes: schedule.DefaultDurationMinutes, Reason: reason}
	}

	for _, e := range entries {
		if strings.ToLower(e.ID) != code {
			continue
		}
		res := Resolution{DurationMinutes: e.DurationMinutes, Reason: e.Name}
		if res.DurationMinutes <= 0 {
			res.DurationMinutes = schedule.DefaultDurationMinutes
		}
		if res.Reason == "" {
			res.Reason = code
		}
		return res
	}

	return Resolution{DurationMinutes: schedule.DefaultDurationMinutes, Reason: strings.TrimSpace(reasonCode)}
}

// Normalize applies the rules every stored catalog obeys.
func Normalize(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		id := strings.ToLower(strings.TrimSpace(e.ID))
		if id == "" {
			id = "svc-" + uuid.NewString()[:8]
		}
		name := strings.TrimSpace(e.Name)
		if name == "" {
			name = "Unnamed"
		}
		out = append(out, Entry{
			ID:              id,
			Name:            name,
			DurationMinutes: clampDuration(e.DurationMinutes),
		})
	}
	return out
}

func clampDuration(m int) int {
	if m <= 0 {
		return schedule.DefaultDurationMinutes
	}
	if m < MinDurationMinutes {
		return MinDurationMinutes
	}
	if m > MaxDurationMinutes {
		return MaxDurationMinutes
	}
	return m
}
