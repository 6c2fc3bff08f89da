package engine

import (
	"regexp"
	"strconv"
	"strings"
)

var durationPattern = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// parseDuration extracts the input duration in seconds from an ffmpeg banner line
func parseDuration(line string) (float64, bool) {
	m := durationPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	hours, _ := strconv.ParseFloat(m[1], 64)
	minutes, _ := strconv.ParseFloat(m[2], 64)
	seconds, _ := strconv.ParseFloat(m[3], 64)
	total := hours*3600 + minutes*60 + seconds
	if total <= 0 {
		return 0, false
	}
	return total, true
}

func parseMicroseconds(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	if value == "" || value == "N/A" {
		return 0, false
	}
	us, err := strconv.ParseInt(value, 10, 64)
	if err != nil || us < 0 {
		return 0, false
	}
	return float64(us) / 1e6, true
}

// percentOf converts elapsed output time into a percentage of duration.
// It returns nil when the duration is unknown.
func percentOf(elapsed, duration float64) *float64 {
	if duration <= 0 {
		return nil
	}
	pct := elapsed / duration * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return &pct
}
