package archive

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	at := time.Date(2024, 6, 1, 5, 30, 45, 0, time.FixedZone("PDT", -7*3600))
	assert.Equal(t, "20240601T123045Z_Team_Sync.ics", Name(at, "Team_Sync.ics"))
	assert.Equal(t, "20240601T123045Z_x.ics", Name(at, "../x.ics"))
}

func TestSaver(t *testing.T) {
	dir := t.TempDir()
	s := NewSaver(dir)
	times := []time.Time{
		time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 1, 12, 0, 1, 0, time.UTC),
	}
	i := 0
	s.now = func() time.Time {
		t := times[i]
		i++
		return t
	}

	require.NoError(t, s.Save(context.Background(), []byte("one"), "Team_Sync.ics", "text/calendar"))
	require.NoError(t, s.Save(context.Background(), []byte("two"), "Team_Sync.ics", "text/calendar"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		"20240601T120000Z_Team_Sync.ics",
		"20240601T120001Z_Team_Sync.ics",
	}, names)
}

func TestNewSweeperValidates(t *testing.T) {
	_, err := NewSweeper("", "0 * * * *", time.Hour)
	assert.Error(t, err)
	_, err = NewSweeper(t.TempDir(), "not a schedule", time.Hour)
	assert.Error(t, err)
	_, err = NewSweeper(t.TempDir(), "0 * * * *", 0)
	assert.Error(t, err)
}

func TestSweep(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	write := func(name string, mod time.Time) {
		t.Helper()
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		require.NoError(t, os.Chtimes(p, mod, mod))
	}
	write("old.ics", now.Add(-48*time.Hour))
	write("OLD2.ICS", now.Add(-25*time.Hour))
	write("fresh.ics", now.Add(-time.Hour))
	write("notes.txt", now.Add(-100*time.Hour))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.ics"), 0o755))

	s, err := NewSweeper(dir, "0 * * * *", 24*time.Hour)
	require.NoError(t, err)

	removed, err := s.Sweep(now)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	for _, keep := range []string{"fresh.ics", "notes.txt", "sub.ics"} {
		_, err := os.Stat(filepath.Join(dir, keep))
		assert.NoError(t, err, keep)
	}
	for _, gone := range []string{"old.ics", "OLD2.ICS"} {
		_, err := os.Stat(filepath.Join(dir, gone))
		assert.True(t, os.IsNotExist(err), gone)
	}
}

func TestSweepMissingDir(t *testing.T) {
	s, err := NewSweeper(filepath.Join(t.TempDir(), "absent"), "@hourly", time.Hour)
	require.NoError(t, err)

	removed, err := s.Sweep(time.Now())
	assert.NoError(t, err)
	assert.Zero(t, removed)
}

func TestStartStop(t *testing.T) {
	s, err := NewSweeper(t.TempDir(), "@every 1h", time.Hour)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	s.Stop(ctx)
}
