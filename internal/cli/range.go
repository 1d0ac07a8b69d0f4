package cli

import (
	"fmt"
	"time"
)

var rangeLayouts = []string{"2006-01-02", "2006-01", time.RFC3339}

// ParseRange resolves the --start/--end flag pair. Defaults are the
// first of the current month through now; a bare "YYYY-MM" start means
// the whole of that month when no end is given.
func ParseRange(startStr, endStr string, now time.Time) (time.Time, time.Time, error) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := now

	if startStr != "" {
		parsed, err := parseRangeDate(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q: %w", startStr, err)
		}
		start = parsed
		if endStr == "" {
			end = start.AddDate(0, 1, 0).Add(-time.Second)
			if end.After(now) {
				end = now
			}
		}
	}

	if endStr != "" {
		parsed, err := parseRangeDate(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q: %w", endStr, err)
		}
		end = parsed
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date %s precedes start date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	return start, end, nil
}

func parseRangeDate(s string) (time.Time, error) {
	for _, layout := range rangeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("expected YYYY-MM, YYYY-MM-DD or RFC3339")
}
