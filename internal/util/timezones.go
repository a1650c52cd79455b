package util

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const zoneinfoDir = "/usr/share/zoneinfo"

var fallbackTimezones = []string{
	"UTC",
	"Africa/Cairo", "Africa/Johannesburg", "Africa/Lagos", "Africa/Nairobi",
	"America/Argentina/Buenos_Aires", "America/Chicago", "America/Denver",
	"America/Los_Angeles", "America/Mexico_City", "America/New_York",
	"America/Sao_Paulo", "America/Toronto", "America/Vancouver",
	"Asia/Bangkok", "Asia/Dubai", "Asia/Hong_Kong", "Asia/Jakarta",
	"Asia/Kolkata", "Asia/Seoul", "Asia/Shanghai", "Asia/Singapore",
	"Asia/Tokyo",
	"Australia/Melbourne", "Australia/Sydney",
	"Europe/Amsterdam", "Europe/Berlin", "Europe/Lisbon", "Europe/London",
	"Europe/Madrid", "Europe/Paris", "Europe/Prague", "Europe/Rome",
	"Europe/Stockholm", "Europe/Warsaw", "Europe/Zurich",
	"Pacific/Auckland",
}

var loadTimezones = sync.OnceValue(func() []string {
	zones := scanZoneinfo()
	if len(zones) == 0 {
		zones = fallbackTimezones
	}
	return zones
})

// AvailableTimezones lists the IANA zone names devices may be configured
// with. The system zoneinfo database is scanned once; hosts without one get
// a curated subset.
func AvailableTimezones() []string {
	zones := loadTimezones()
	out := make([]string, len(zones))
	copy(out, zones)
	return out
}

func scanZoneinfo() []string {
	var zones []string
	err := filepath.WalkDir(zoneinfoDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := strings.TrimPrefix(path, zoneinfoDir+string(os.PathSeparator))
		if d.IsDir() {
			// Metadata directories hold legacy aliases, not zones.
			if name == "posix" || name == "right" {
				return fs.SkipDir
			}
			return nil
		}
		base := filepath.Base(name)
		if base == "" || base[0] < 'A' || base[0] > 'Z' || strings.Contains(base, ".") {
			return nil
		}
		if !strings.Contains(name, "/") {
			// Top-level entries are mostly legacy shorthands; keep UTC only.
			if name != "UTC" {
				return nil
			}
		}
		zones = append(zones, name)
		return nil
	})
	if err != nil {
		return nil
	}
	return zones
}
