// Package invite ties validation, encoding and delivery together.
package invite

import (
	"context"
	"fmt"
	"time"

	"icsgen/internal/download"
	"icsgen/internal/ics"
	appLog "icsgen/internal/log"
	"icsgen/internal/model"
)

// Service generates events and hands them to savers. Sinks receive a copy
// of every delivered document; their failures are logged, not returned.
type Service struct {
	opts  ics.Options
	now   func() time.Time
	sinks []download.Saver

	defaultLocation string
	defaultTimeZone string
}

// Option configures a Service.
type Option func(*Service)

// WithSinks adds best-effort savers (archive, CalDAV).
func WithSinks(sinks ...download.Saver) Option {
	return func(s *Service) {
		s.sinks = append(s.sinks, sinks...)
	}
}

// WithClock overrides the generation clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithDefaults fills empty location and time zone fields of submissions.
func WithDefaults(location, timeZone string) Option {
	return func(s *Service) {
		s.defaultLocation = location
		s.defaultTimeZone = timeZone
	}
}

// NewService returns a Service encoding with opts.
func NewService(opts ics.Options, options ...Option) *Service {
	s := &Service{opts: opts, now: time.Now}
	for _, o := range options {
		o(s)
	}
	return s
}

// Generate validates in and encodes it. Validation failures are returned
// as *model.ValidationError.
func (s *Service) Generate(in model.EventInput) (model.GeneratedEvent, error) {
	in = in.WithDefaults(s.defaultLocation, s.defaultTimeZone)
	if err := in.Validate(); err != nil {
		return model.GeneratedEvent{}, err
	}

	ev, err := ics.Encode(in, s.now().UTC(), s.opts)
	if err != nil {
		return model.GeneratedEvent{}, err
	}

	appLog.Debug("event generated", "uid", ev.UID, "tzid", ev.TZID, "file_name", ev.FileName)
	return ev, nil
}

// Deliver saves ev through primary, then through every sink. Only the
// primary error is returned. A nil primary delivers to the sinks only.
func (s *Service) Deliver(ctx context.Context, ev model.GeneratedEvent, primary download.Saver) error {
	data := []byte(ev.Document)

	if primary != nil {
		if err := primary.Save(ctx, data, ev.FileName, ev.MimeType); err != nil {
			return fmt.Errorf("deliver %s: %w", ev.FileName, err)
		}
	}

	for _, sink := range s.sinks {
		if err := sink.Save(ctx, data, ev.FileName, ev.MimeType); err != nil {
			appLog.Error("sink save failed", err, "uid", ev.UID, "file_name", ev.FileName)
		}
	}
	return nil
}

// GenerateAndDeliver is Generate followed by Deliver.
func (s *Service) GenerateAndDeliver(ctx context.Context, in model.EventInput, primary download.Saver) (model.GeneratedEvent, error) {
	ev, err := s.Generate(in)
	if err != nil {
		return model.GeneratedEvent{}, err
	}
	if err := s.Deliver(ctx, ev, primary); err != nil {
		return ev, err
	}
	appLog.Info("event delivered", "uid", ev.UID, "file_name", ev.FileName, "sinks", len(s.sinks))
	return ev, nil
}
