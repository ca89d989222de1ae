// Package archive keeps a local copy of every generated document and
// periodically removes copies older than a retention window.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"icsgen/internal/download"
	appLog "icsgen/internal/log"
)

const stampLayout = "20060102T150405Z"

// Saver stores documents as <dir>/<utc stamp>_<filename>, so repeated
// generations of the same event never overwrite each other.
type Saver struct {
	files *download.FileSaver
	now   func() time.Time
}

// NewSaver returns a Saver writing into dir.
func NewSaver(dir string) *Saver {
	return &Saver{files: download.NewFileSaver(dir), now: time.Now}
}

// Name returns the archived file name for filename generated at t.
func Name(t time.Time, filename string) string {
	return t.UTC().Format(stampLayout) + "_" + filepath.Base(filename)
}

func (s *Saver) Save(ctx context.Context, data []byte, filename, mimeType string) error {
	name := Name(s.now(), filename)
	if err := s.files.Save(ctx, data, name, mimeType); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	appLog.Debug("archived document", "dir", s.files.Dir, "file", name)
	return nil
}

// Sweeper deletes archived .ics files whose modification time is older
// than MaxAge. It runs on a cron schedule once started.
type Sweeper struct {
	dir      string
	maxAge   time.Duration
	schedule string

	mu   sync.Mutex
	cron *cron.Cron
}

// NewSweeper validates the schedule and returns an idle sweeper.
func NewSweeper(dir, schedule string, maxAge time.Duration) (*Sweeper, error) {
	if dir == "" {
		return nil, errors.New("archive: directory is empty")
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("archive: max age must be positive, got %s", maxAge)
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("archive: schedule %q: %w", schedule, err)
	}
	return &Sweeper{dir: dir, maxAge: maxAge, schedule: schedule}, nil
}

// Start schedules periodic sweeps. Calling Start twice is a no-op.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.run); err != nil {
		return fmt.Errorf("archive: schedule sweep: %w", err)
	}
	c.Start()
	s.cron = c

	appLog.Info("archive sweeper started", "dir", s.dir, "schedule", s.schedule, "max_age", s.maxAge.String())
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish or ctx
// to expire.
func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Sweeper) run() {
	removed, err := s.Sweep(time.Now())
	if err != nil {
		appLog.Error("archive sweep failed", err, "dir", s.dir)
		return
	}
	appLog.Info("archive sweep done", "dir", s.dir, "removed", removed)
}

// Sweep removes .ics files modified before now-MaxAge and returns how
// many were removed. A missing directory is not an error.
func (s *Sweeper) Sweep(now time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("archive: read dir: %w", err)
	}

	cutoff := now.Add(-s.maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".ics") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed concurrently.
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
