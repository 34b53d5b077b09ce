package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar date format accepted by the API.
const DateLayout = "2006-01-02"

// LabelLayout renders an instant as a slot label, e.g. "01:00 PM".
const LabelLayout = "03:04 PM"

// FixedSlots are the bookable times of day, identical for every doctor
// and every date.
var FixedSlots = []string{"09:00 AM", "11:00 AM", "01:00 PM", "03:00 PM", "05:00 PM"}

// Policy enumerates slots and turns (date, label) pairs into instants.
// Calendar dates are interpreted in loc.
type Policy struct {
	loc   *time.Location
	slots []string
}

func NewPolicy(loc *time.Location) *Policy {
	if loc == nil {
		loc = time.Local
	}
	return &Policy{loc: loc, slots: FixedSlots}
}

func (p *Policy) Location() *time.Location {
	return p.loc
}

// EnumerateSlots returns the slot labels offered on date, in order.
func (p *Policy) EnumerateSlots(date time.Time) []string {
	out := make([]string, len(p.slots))
	copy(out, p.slots)
	return out
}

// ParseDate parses a YYYY-MM-DD calendar date at midnight in the policy zone.
func (p *Policy) ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrMissingDate
	}
	d, err := time.ParseInLocation(DateLayout, s, p.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// DayBounds returns [00:00:00, 23:59:59] of date in the policy zone.
func (p *Policy) DayBounds(date time.Time) (time.Time, time.Time) {
	y, m, d := date.In(p.loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, p.loc)
	end := time.Date(y, m, d, 23, 59, 59, 0, p.loc)
	return start, end
}

// ResolveInstant combines a calendar date and a "HH:MM AM|PM" label into
// an absolute instant. 12:00 AM is midnight and 12:00 PM is noon.
func (p *Policy) ResolveInstant(date time.Time, label string) (time.Time, error) {
	hour, minute, err := ParseLabel(label)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := date.In(p.loc).Date()
	return time.Date(y, m, d, hour, minute, 0, 0, p.loc), nil
}

// Offers reports whether label is one of the slots enumerated for date.
func (p *Policy) Offers(date time.Time, label string) bool {
	hour, minute, err := ParseLabel(label)
	if err != nil {
		return false
	}
	for _, s := range p.EnumerateSlots(date) {
		h, mm, _ := ParseLabel(s)
		if h == hour && mm == minute {
			return true
		}
	}
	return false
}

// LabelFor renders t as a slot label in the policy zone.
func (p *Policy) LabelFor(t time.Time) string {
	return t.In(p.loc).Format(LabelLayout)
}

// ParseLabel parses "HH:MM AM|PM" into a 24-hour clock time. The marker
// is case-insensitive; the hour must be 1-12 and minutes 00-59.
func ParseLabel(label string) (hour, minute int, err error) {
	fields := strings.Fields(label)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSlotFormat, label)
	}
	clock, marker := fields[0], strings.ToUpper(fields[1])
	if marker != "AM" && marker != "PM" {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSlotFormat, label)
	}

	hh, mm, ok := strings.Cut(clock, ":")
	if !ok || len(hh) < 1 || len(hh) > 2 || len(mm) != 2 || !digits(hh) || !digits(mm) {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSlotFormat, label)
	}
	hour, err = strconv.Atoi(hh)
	if err != nil || hour < 1 || hour > 12 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSlotFormat, label)
	}
	minute, err = strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSlotFormat, label)
	}

	switch {
	case marker == "AM" && hour == 12:
		hour = 0
	case marker == "PM" && hour != 12:
		hour += 12
	}
	return hour, minute, nil
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
