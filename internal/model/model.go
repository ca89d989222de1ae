package model

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"icsgen/internal/tz"
)

// DefaultLocation is the location prefilled in the form.
const DefaultLocation = "Zoom"

// MimeType is the media type of every generated document.
const MimeType = "text/calendar"

// ErrInvalidDateTime is returned when a start/end value cannot be parsed.
var ErrInvalidDateTime = errors.New("invalid date-time")

// EventInput is one form submission. StartTime and EndTime are local
// date-time strings without a zone; they are interpreted in TimeZone.
type EventInput struct {
	Summary   string `json:"summary" yaml:"summary"`
	Location  string `json:"location" yaml:"location"`
	ZoomLink  string `json:"zoom_link" yaml:"zoom_link"`
	TimeZone  string `json:"time_zone" yaml:"time_zone"`
	StartTime string `json:"start_time" yaml:"start_time"`
	EndTime   string `json:"end_time" yaml:"end_time"`
}

// GeneratedEvent is the result of encoding one EventInput.
type GeneratedEvent struct {
	UID     string `json:"uid"`
	DTStamp string `json:"dtstamp"`
	DTStart string `json:"dtstart"`
	DTEnd   string `json:"dtend"`
	TZID    string `json:"tzid"`

	// Start / End are the absolute instants, carried in a fixed zone with
	// the offset in effect at the wall clock reading.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Document string `json:"document"`
}

// localLayouts are the accepted shapes of a local date-time. The first one
// is what an HTML datetime-local input submits.
var localLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// ParseLocal parses a zone-less local date-time. The returned value carries
// the wall clock in time.UTC; callers must not treat it as a UTC instant.
func ParseLocal(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidDateTime)
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateTime, s)
}

// ValidationError collects per-field problems found before encoding.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("invalid event input: ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(k + " " + e.Fields[k])
	}
	return b.String()
}

// Validate performs the required-field checks the form enforces. It does
// not check that EndTime is after StartTime.
func (in EventInput) Validate() error {
	fields := map[string]string{}

	if strings.TrimSpace(in.Summary) == "" {
		fields["summary"] = "is required"
	}
	if strings.TrimSpace(in.Location) == "" {
		fields["location"] = "is required"
	}

	switch link := strings.TrimSpace(in.ZoomLink); {
	case link == "":
		fields["zoom_link"] = "is required"
	default:
		u, err := url.Parse(link)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			fields["zoom_link"] = "must be an http(s) URL"
		}
	}

	if _, err := tz.Lookup(in.TimeZone); err != nil {
		fields["time_zone"] = "must be one of " + strings.Join(tz.Keys(), ", ")
	}
	if _, err := ParseLocal(in.StartTime); err != nil {
		fields["start_time"] = "must be a date-time like 2006-01-02T15:04"
	}
	if _, err := ParseLocal(in.EndTime); err != nil {
		fields["end_time"] = "must be a date-time like 2006-01-02T15:04"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// WithDefaults fills empty Location and TimeZone with the given defaults.
func (in EventInput) WithDefaults(location, timeZone string) EventInput {
	if strings.TrimSpace(in.Location) == "" {
		in.Location = location
	}
	if strings.TrimSpace(in.TimeZone) == "" {
		in.TimeZone = timeZone
	}
	return in
}
