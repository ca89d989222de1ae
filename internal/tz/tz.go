// Package tz holds the fixed table of supported event time zones and the
// US daylight-saving rule that every VTIMEZONE block carries.
package tz

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/teambition/rrule-go"
)

// ErrUnknownTimeZone is returned when a key or TZID is not in the table.
var ErrUnknownTimeZone = errors.New("unknown time zone")

// US daylight-saving observances, as emitted in VTIMEZONE.
//
//   - daylight begins the 2nd Sunday of March at 02:00 local standard time
//   - standard resumes the 1st Sunday of November at 02:00 local daylight time
const (
	DaylightDTStart = "20070311T020000"
	DaylightRRule   = "FREQ=YEARLY;BYMONTH=3;BYDAY=2SU"
	StandardDTStart = "20071104T020000"
	StandardRRule   = "FREQ=YEARLY;BYMONTH=11;BYDAY=1SU"
)

const localLayout = "20060102T150405"

// Offset is a fixed UTC offset in seconds east of UTC.
type Offset int

// Hours builds an Offset from a whole number of hours.
func Hours(h int) Offset {
	return Offset(h * 3600)
}

// String formats the offset the way TZOFFSETFROM/TZOFFSETTO expect: ±hhmm.
func (o Offset) String() string {
	sign := '+'
	secs := int(o)
	if secs < 0 {
		sign = '-'
		secs = -secs
	}
	return fmt.Sprintf("%c%02d%02d", sign, secs/3600, (secs%3600)/60)
}

// Rule describes one selectable time zone.
type Rule struct {
	// Key is the short name offered in the form (PST, CST, EST). It is also
	// used as TZNAME in both observances.
	Key string `json:"key"`
	// TZID is the IANA identifier written into VTIMEZONE and DTSTART/DTEND.
	TZID string `json:"tzid"`
	// Name is a human readable label.
	Name string `json:"name"`

	StandardOffset Offset `json:"-"`
	DaylightOffset Offset `json:"-"`
}

var table = []Rule{
	{Key: "PST", TZID: "America/Los_Angeles", Name: "Pacific Standard Time", StandardOffset: Hours(-8), DaylightOffset: Hours(-7)},
	{Key: "CST", TZID: "America/Chicago", Name: "Central Standard Time", StandardOffset: Hours(-6), DaylightOffset: Hours(-5)},
	{Key: "EST", TZID: "America/New_York", Name: "Eastern Standard Time", StandardOffset: Hours(-5), DaylightOffset: Hours(-4)},
}

// DefaultKey is the zone preselected in the form.
const DefaultKey = "PST"

// All returns a copy of the table in display order.
func All() []Rule {
	out := make([]Rule, len(table))
	copy(out, table)
	return out
}

// Keys returns the recognized zone keys in display order.
func Keys() []string {
	keys := make([]string, 0, len(table))
	for _, r := range table {
		keys = append(keys, r.Key)
	}
	return keys
}

// Lookup resolves a zone key (case-insensitive, surrounding spaces ignored).
func Lookup(key string) (Rule, error) {
	k := strings.ToUpper(strings.TrimSpace(key))
	for _, r := range table {
		if r.Key == k {
			return r, nil
		}
	}
	return Rule{}, fmt.Errorf("%w: %q", ErrUnknownTimeZone, key)
}

// ByTZID resolves an IANA identifier back to its table entry.
func ByTZID(tzid string) (Rule, error) {
	for _, r := range table {
		if r.TZID == tzid {
			return r, nil
		}
	}
	return Rule{}, fmt.Errorf("%w: tzid %q", ErrUnknownTimeZone, tzid)
}

// usDST holds the compiled observance rules. Wall-clock values are carried
// as naive times in time.UTC.
type usDST struct {
	daylight *rrule.RRule
	standard *rrule.RRule
}

var dst = mustCompileDST()

func mustCompileDST() usDST {
	compile := func(rule, start string) *rrule.RRule {
		r, err := rrule.StrToRRule(rule)
		if err != nil {
			panic(fmt.Sprintf("tz: bad rrule %q: %v", rule, err))
		}
		dtstart, err := time.ParseInLocation(localLayout, start, time.UTC)
		if err != nil {
			panic(fmt.Sprintf("tz: bad dtstart %q: %v", start, err))
		}
		r.DTStart(dtstart)
		return r
	}
	return usDST{
		daylight: compile(DaylightRRule, DaylightDTStart),
		standard: compile(StandardRRule, StandardDTStart),
	}
}

type transition struct {
	daylightStart, standardStart time.Time
	ok                           bool
}

// transitions memoizes per-year results. Parsed wall clocks carry four-digit
// years, so the map stays small.
var transitions = struct {
	mu    sync.Mutex
	years map[int]transition
}{years: make(map[int]transition)}

// Transitions returns the local wall-clock moments at which daylight time
// begins and ends in year. ok is false for years before the rule's onset;
// those years observe standard time throughout.
func Transitions(year int) (daylightStart, standardStart time.Time, ok bool) {
	transitions.mu.Lock()
	defer transitions.mu.Unlock()

	tr, hit := transitions.years[year]
	if !hit {
		tr = computeTransitions(year)
		transitions.years[year] = tr
	}
	return tr.daylightStart, tr.standardStart, tr.ok
}

func computeTransitions(year int) transition {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	daylightStart := dst.daylight.After(from, true)
	standardStart := dst.standard.After(from, true)
	if daylightStart.IsZero() || standardStart.IsZero() ||
		daylightStart.Year() != year || standardStart.Year() != year {
		return transition{}
	}
	return transition{daylightStart: daylightStart, standardStart: standardStart, ok: true}
}

// naive strips the location from t, keeping its wall clock.
func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// IsDaylight reports whether the wall clock reading falls in daylight time.
// Only the wall clock of wall is used; its Location is ignored.
//
// Readings skipped by the spring transition count as daylight; readings
// repeated by the autumn transition resolve to the first (daylight) pass.
func (r Rule) IsDaylight(wall time.Time) bool {
	w := naive(wall)
	start, end, ok := Transitions(w.Year())
	if !ok {
		return false
	}
	return !w.Before(start) && w.Before(end)
}

// OffsetAt returns the UTC offset in effect at the given wall clock reading.
func (r Rule) OffsetAt(wall time.Time) Offset {
	if r.IsDaylight(wall) {
		return r.DaylightOffset
	}
	return r.StandardOffset
}

// Abbrev returns the customary abbreviation at the wall clock reading,
// e.g. PST or PDT.
func (r Rule) Abbrev(wall time.Time) string {
	if r.IsDaylight(wall) && strings.HasSuffix(r.Key, "ST") {
		return strings.TrimSuffix(r.Key, "ST") + "DT"
	}
	return r.Key
}

// In anchors a wall clock reading in this zone and returns the instant,
// carried in a fixed zone with the resolved offset.
func (r Rule) In(wall time.Time) time.Time {
	w := naive(wall)
	loc := time.FixedZone(r.Abbrev(w), int(r.OffsetAt(w)))
	return time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), w.Second(), w.Nanosecond(), loc)
}

// Location loads the zone from the system tz database.
func (r Rule) Location() (*time.Location, error) {
	return time.LoadLocation(r.TZID)
}
