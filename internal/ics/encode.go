// Package ics turns an event submission into a single-event iCalendar
// document and reads such documents back.
package ics

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"icsgen/internal/model"
	"icsgen/internal/tz"
)

const (
	// DefaultProductID is the PRODID written into every document.
	DefaultProductID = "-//Custom iCalendar Generator//EN"

	LineEndingCRLF = "crlf"
	LineEndingLF   = "lf"

	localLayout = "20060102T150405"
	utcLayout   = "20060102T150405Z"
)

// Options controls document details that do not depend on the event.
// Zero values select the defaults.
type Options struct {
	// ProductID is the PRODID value. Defaults to DefaultProductID.
	ProductID string

	// LineEnding is LineEndingCRLF (default) or LineEndingLF. The whole
	// document uses the selected style.
	LineEnding string

	// OmitNewlineMarker drops the escaped newline that is otherwise
	// appended to X-WR-CALNAME and SUMMARY.
	OmitNewlineMarker bool

	// NewUID generates the event UID. Defaults to a random UUID.
	NewUID func() string
}

func (o Options) withDefaults() Options {
	if o.ProductID == "" {
		o.ProductID = DefaultProductID
	}
	if o.LineEnding != LineEndingLF {
		o.LineEnding = LineEndingCRLF
	}
	if o.NewUID == nil {
		o.NewUID = uuid.NewString
	}
	return o
}

// Encode builds the iCalendar document for in. now is the generation
// instant written to DTSTAMP. Encode performs no I/O.
//
// The start and end wall clocks are kept as entered and qualified with the
// zone's TZID; the VTIMEZONE block carries the zone's standard/daylight
// offsets and the US transition rule.
func Encode(in model.EventInput, now time.Time, opts Options) (model.GeneratedEvent, error) {
	opts = opts.withDefaults()

	rule, err := tz.Lookup(in.TimeZone)
	if err != nil {
		return model.GeneratedEvent{}, fmt.Errorf("encode: %w", err)
	}

	start, err := model.ParseLocal(in.StartTime)
	if err != nil {
		return model.GeneratedEvent{}, fmt.Errorf("encode: start time: %w", err)
	}
	end, err := model.ParseLocal(in.EndTime)
	if err != nil {
		return model.GeneratedEvent{}, fmt.Errorf("encode: end time: %w", err)
	}

	out := model.GeneratedEvent{
		UID:      opts.NewUID(),
		DTStamp:  now.UTC().Format(utcLayout),
		DTStart:  start.Format(localLayout),
		DTEnd:    end.Format(localLayout),
		TZID:     rule.TZID,
		Start:    rule.In(start),
		End:      rule.In(end),
		FileName: FileName(in.Summary),
		MimeType: model.MimeType,
	}

	marker := newlineMarker
	if opts.OmitNewlineMarker {
		marker = ""
	}

	cal := &ical.Calendar{}
	cal.SetCalscale("GREGORIAN")
	cal.SetVersion("2.0")
	cal.SetXWRCalName(textValue(in.Summary) + marker)
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(opts.ProductID)

	cal.AddVTimezone(buildTimezone(rule))

	tzidParam := &ical.KeyValues{Key: string(ical.ParameterTzid), Value: []string{rule.TZID}}

	event := &ical.VEvent{}
	event.AddProperty(ical.ComponentPropertyTransp, string(ical.TransparencyOpaque))
	event.AddProperty(ical.ComponentPropertyDtEnd, out.DTEnd, tzidParam)
	event.AddProperty(ical.ComponentPropertyUniqueId, out.UID)
	event.AddProperty(ical.ComponentPropertyDtstamp, out.DTStamp)
	event.AddProperty(ical.ComponentPropertyUrl, stripLineBreaks(in.ZoomLink), ical.WithValue(string(ical.ValueDataTypeUri)))
	event.AddProperty(ical.ComponentPropertySequence, strconv.Itoa(0))
	event.AddProperty(ical.ComponentPropertySummary, textValue(in.Summary)+marker)
	event.AddProperty(ical.ComponentPropertyDtStart, out.DTStart, tzidParam)
	event.AddProperty(ical.ComponentPropertyLocation, textValue(in.Location))
	cal.AddVEvent(event)

	out.Document = normalizeLineEndings(cal.Serialize(), opts.LineEnding)
	return out, nil
}

// buildTimezone renders the VTIMEZONE for rule: one DAYLIGHT and one
// STANDARD observance, both recurring under the US rule.
func buildTimezone(rule tz.Rule) *ical.VTimezone {
	vtz := ical.NewTimezone(rule.TZID)

	daylight := &ical.Daylight{}
	addObservance(&daylight.ComponentBase, rule.StandardOffset, rule.DaylightOffset, tz.DaylightDTStart, tz.DaylightRRule, rule.Key)

	standard := &ical.Standard{}
	addObservance(&standard.ComponentBase, rule.DaylightOffset, rule.StandardOffset, tz.StandardDTStart, tz.StandardRRule, rule.Key)

	vtz.Components = append(vtz.Components, daylight, standard)
	return vtz
}

func addObservance(c *ical.ComponentBase, from, to tz.Offset, dtstart, rrule, name string) {
	c.AddProperty(ical.ComponentProperty(ical.PropertyTzoffsetfrom), from.String())
	c.AddProperty(ical.ComponentPropertyDtStart, dtstart)
	c.AddProperty(ical.ComponentPropertyRrule, rrule)
	c.AddProperty(ical.ComponentProperty(ical.PropertyTzname), name)
	c.AddProperty(ical.ComponentProperty(ical.PropertyTzoffsetto), to.String())
}

// normalizeLineEndings rewrites every line terminator, including the ones
// inside folded lines, to the selected style.
func normalizeLineEndings(doc, style string) string {
	doc = strings.ReplaceAll(doc, "\r\n", "\n")
	if style == LineEndingLF {
		return doc
	}
	return strings.ReplaceAll(doc, "\n", "\r\n")
}
