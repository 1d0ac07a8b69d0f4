package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The charging history endpoints report session dates in two forms: an
// absolute "M/D/YYYY h:mm" or a relative "Today 9:23 PM" /
// "Yesterday 14:30" / "<Weekday> 8:15 AM". Which form shows up depends
// on how recent the session is. The exact vendor contract is not
// documented anywhere, so this grammar is deliberately narrow and
// everything else is an error.
var sessionDatePattern = regexp.MustCompile(
	`(?i)^\s*(?:(\d{1,2})/(\d{1,2})/(\d{4})|([A-Za-z]+))\s+(\d{1,2}):(\d{2})\s*(AM|PM)?\s*$`)

var weekdays = map[string]time.Weekday{
	"SUNDAY":    time.Sunday,
	"MONDAY":    time.Monday,
	"TUESDAY":   time.Tuesday,
	"WEDNESDAY": time.Wednesday,
	"THURSDAY":  time.Thursday,
	"FRIDAY":    time.Friday,
	"SATURDAY":  time.Saturday,
}

// ParseSessionTime parses a vendor session date string relative to now.
// Day arithmetic happens on the UTC calendar; tzOffsetHours shifts the
// result to correct for the vendor rendering times in an unknown local
// zone (see TimezoneOffsetHours).
func ParseSessionTime(s string, now time.Time, tzOffsetHours int) (time.Time, error) {
	m := sessionDatePattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("unrecognized session date %q", s)
	}

	hour, _ := strconv.Atoi(m[5])
	minute, _ := strconv.Atoi(m[6])
	switch strings.ToUpper(m[7]) {
	case "PM":
		if hour < 12 {
			hour += 12
		}
	case "AM":
		if hour == 12 {
			hour = 0
		}
	}

	base := now.UTC()
	var year, month, day int

	if word := strings.ToUpper(m[4]); word != "" {
		daysBack := 0
		switch word {
		case "TODAY":
			daysBack = 0
		case "YESTERDAY":
			daysBack = 1
		default:
			target, ok := weekdays[word]
			if !ok {
				return time.Time{}, fmt.Errorf("unrecognized day word %q", word)
			}
			// A weekday name always refers to the most recent past
			// occurrence; the current day would have been "Today".
			daysBack = (int(base.Weekday()) - int(target) + 7) % 7
			if daysBack == 0 {
				daysBack = 7
			}
		}
		ref := base.AddDate(0, 0, -daysBack)
		year, month, day = ref.Year(), int(ref.Month()), ref.Day()
	} else {
		month, _ = strconv.Atoi(m[1])
		day, _ = strconv.Atoi(m[2])
		year, _ = strconv.Atoi(m[3])
	}

	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC)
	return t.Add(time.Duration(tzOffsetHours) * time.Hour), nil
}

// SessionTimeFromID extracts the timestamp embedded in charging session
// ids of the form "2022-12-20T04:59:50Z_5f48b47b". Not every session id
// carries one.
func SessionTimeFromID(id string) (time.Time, bool) {
	prefix, _, found := strings.Cut(id, "_")
	if !found {
		return time.Time{}, false
	}

	t, err := time.Parse(time.RFC3339, prefix)
	if err != nil {
		return time.Time{}, false
	}

	return t, true
}

// TimezoneOffsetHours estimates the offset between the vendor's
// rendered session date and the timestamp embedded in the session id,
// rounded to whole hours. Used to correct relative dates on sessions
// whose ids carry no timestamp.
func TimezoneOffsetHours(idTime, displayTime time.Time) int {
	diff := idTime.Sub(displayTime)
	return int((diff + sign(diff)*30*time.Minute) / time.Hour)
}

func sign(d time.Duration) time.Duration {
	if d < 0 {
		return -1
	}
	return 1
}
