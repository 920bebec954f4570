// Package ist normalizes every timestamp the system persists into India
// Standard Time (Asia/Kolkata).
package ist

import (
	"fmt"
	"regexp"
	"time"
	_ "time/tzdata"

	"github.com/hms/hms/internal/platform/clock"
)

// Name is the IANA zone every persisted timestamp carries.
const Name = "Asia/Kolkata"

const (
	naiveLayout = "2006-01-02T15:04:05"
	dateLayout  = "2006-01-02"
)

// Location is the fixed civil zone of the system.
var Location *time.Location

// appointmentPattern is YYYY-MM-DDTHH:MM:SS with an optional Z or ±HH:MM suffix.
var appointmentPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(Z|[+-]\d{2}:\d{2})?$`)

func init() {
	loc, err := time.LoadLocation(Name)
	if err != nil {
		panic(fmt.Sprintf("load %s: %v", Name, err))
	}
	Location = loc
}

// ToIST converts a zone-aware instant into IST. The instant is unchanged.
func ToIST(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.In(Location)
}

// FromNaive treats the wall-clock fields of t as IST, discarding whatever
// location t carried.
func FromNaive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), Location)
}

// IsIST reports whether t is labelled with the Asia/Kolkata zone and carries
// that zone's offset for its instant. A fixed +05:30 offset under another
// name does not qualify, and neither does a zone merely named Asia/Kolkata.
func IsIST(t time.Time) bool {
	if t.Location().String() != Name {
		return false
	}
	_, got := t.Zone()
	_, want := t.In(Location).Zone()
	return got == want
}

// Now returns the current time of c in IST.
func Now(c clock.Clock) time.Time {
	return ToIST(c.Now())
}

// Today returns midnight IST of the current day of c.
func Today(c clock.Clock) time.Time {
	n := Now(c)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, Location)
}

// Parse reads an appointment timestamp. Strings without a zone are IST wall
// clock; strings with Z or an offset are converted to IST.
func Parse(s string) (time.Time, error) {
	if !appointmentPattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("invalid datetime %q: expected YYYY-MM-DDTHH:MM:SS with optional Z or +HH:MM", s)
	}
	if len(s) == len(naiveLayout) {
		return time.ParseInLocation(naiveLayout, s, Location)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid datetime %q: %w", s, err)
	}
	return t.In(Location), nil
}

// ParseDate reads a YYYY-MM-DD calendar date as midnight IST.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate renders the IST calendar date of t.
func FormatDate(t time.Time) string {
	return ToIST(t).Format(dateLayout)
}

// DayBounds returns [start, end) of the IST day containing t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	t = ToIST(t)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Location)
	return start, start.AddDate(0, 0, 1)
}
