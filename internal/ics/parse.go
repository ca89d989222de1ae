package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "icsgen/internal/log"
	"icsgen/internal/model"
	"icsgen/internal/tz"
)

// ParsedEvent is what Parse recovers from a single-event document.
type ParsedEvent struct {
	CalendarName string `json:"calendar_name"`

	UID      string `json:"uid"`
	Sequence int    `json:"sequence"`

	Summary  string `json:"summary"`
	Location string `json:"location"`
	URL      string `json:"url"`

	// TimeZone is the table key the TZID resolves to.
	TimeZone string `json:"time_zone"`
	TZID     string `json:"tzid"`

	DTStamp time.Time `json:"dtstamp"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// Input converts the parsed event back into the submission that would
// produce it.
func (p ParsedEvent) Input() model.EventInput {
	return model.EventInput{
		Summary:   p.Summary,
		Location:  p.Location,
		ZoomLink:  p.URL,
		TimeZone:  p.TimeZone,
		StartTime: formatLocal(p.Start),
		EndTime:   formatLocal(p.End),
	}
}

func formatLocal(t time.Time) string {
	if t.Second() != 0 {
		return t.Format("2006-01-02T15:04:05")
	}
	return t.Format("2006-01-02T15:04")
}

// Parse reads a document with exactly one VEVENT. TZID parameters are
// resolved through the fixed zone table, not the system tz database.
func Parse(body []byte) (ParsedEvent, error) {
	var out ParsedEvent

	if len(bytes.TrimSpace(body)) == 0 {
		return out, errors.New("parse: empty document")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("parse: %w", err)
	}

	for _, p := range cal.CalendarProperties {
		if p.IANAToken == string(ical.PropertyXWRCalName) {
			out.CalendarName = trimMarker(p.Value)
		}
	}

	events := cal.Events()
	if len(events) != 1 {
		return out, fmt.Errorf("parse: expected exactly one VEVENT, got %d", len(events))
	}
	ve := events[0]

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("parse: missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.Sequence = n
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = trimMarker(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil {
		out.URL = p.Value
	}

	if p := ve.GetProperty(ical.ComponentPropertyDtstamp); p != nil {
		stamp, err := time.Parse(utcLayout, p.Value)
		if err != nil {
			return out, fmt.Errorf("parse: DTSTAMP: %w", err)
		}
		out.DTStamp = stamp
	}

	startRule, start, err := zonedTime(ve.GetProperty(ical.ComponentPropertyDtStart))
	if err != nil {
		return out, fmt.Errorf("parse: DTSTART: %w", err)
	}
	endRule, end, err := zonedTime(ve.GetProperty(ical.ComponentPropertyDtEnd))
	if err != nil {
		return out, fmt.Errorf("parse: DTEND: %w", err)
	}
	if startRule.TZID != endRule.TZID {
		appLog.Debug("ics parse: DTSTART and DTEND use different zones", "start_tzid", startRule.TZID, "end_tzid", endRule.TZID)
	}

	out.TimeZone = startRule.Key
	out.TZID = startRule.TZID
	out.Start = start
	out.End = end

	return out, nil
}

// zonedTime resolves a DTSTART/DTEND property carrying a TZID parameter.
func zonedTime(p *ical.IANAProperty) (tz.Rule, time.Time, error) {
	if p == nil {
		return tz.Rule{}, time.Time{}, errors.New("missing")
	}
	tzids := p.ICalParameters[string(ical.ParameterTzid)]
	if len(tzids) != 1 {
		return tz.Rule{}, time.Time{}, fmt.Errorf("expected one TZID parameter, got %d", len(tzids))
	}
	rule, err := tz.ByTZID(tzids[0])
	if err != nil {
		return tz.Rule{}, time.Time{}, err
	}
	wall, err := time.ParseInLocation(localLayout, p.Value, time.UTC)
	if err != nil {
		return tz.Rule{}, time.Time{}, fmt.Errorf("%w: %q", model.ErrInvalidDateTime, p.Value)
	}
	return rule, rule.In(wall), nil
}
