package util

import (
	"regexp"
	"time"
)

var timeOfDayRegex = regexp.MustCompile(`^\d{2}:\d{2}$`)

// IsValidTimeOfDay reports whether s matches the HH:MM opening-hours format.
func IsValidTimeOfDay(s string) bool {
	return timeOfDayRegex.MatchString(s)
}

// IsValidTimezone reports whether name resolves as an IANA zone.
func IsValidTimezone(name string) bool {
	if name == "" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}
