package deploy

import (
	"strconv"
	"strings"

	"github.com/christy136/AutoFlowAI/pkg/models"
)

// Schedules that never create a trigger.
var noTrigger = map[string]bool{
	"":         true,
	"once":     true,
	"manual":   true,
	"off":      true,
	"disabled": true,
	"none":     true,
}

// ParseSchedule turns a canonical schedule string into a trigger spec.
//
// A nil spec with supported=true means "run on demand, no trigger". A nil
// spec with supported=false means the frequency is not one a trigger can be
// built for. Out-of-range hours and minutes are clamped; a time that does
// not parse falls back to midnight.
func ParseSchedule(s string) (*models.ScheduleTrigger, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if noTrigger[s] {
		return nil, true
	}

	freq, at, _ := strings.Cut(s, "@")
	if strings.TrimSpace(freq) != models.TriggerKindDaily {
		return nil, false
	}

	hour, minute := parseClock(strings.TrimSpace(at))
	return &models.ScheduleTrigger{Kind: models.TriggerKindDaily, Hour: hour, Minute: minute}, true
}

func parseClock(at string) (int, int) {
	if at == "" {
		return 0, 0
	}
	hh, mm, ok := strings.Cut(at, ":")
	if !ok {
		mm = "0"
	}
	h, err := strconv.Atoi(strings.TrimSpace(hh))
	if err != nil {
		return 0, 0
	}
	m, err := strconv.Atoi(strings.TrimSpace(mm))
	if err != nil {
		return 0, 0
	}
	return clamp(h, 0, 23), clamp(m, 0, 59)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
