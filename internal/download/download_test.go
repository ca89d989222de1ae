package download

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = "BEGIN:VCALENDAR\r\n" +
	"CALSCALE:GREGORIAN\r\n" +
	"VERSION:2.0\r\n" +
	"X-WR-CALNAME:Team Sync\\n\r\n" +
	"METHOD:PUBLISH\r\n" +
	"PRODID:-//icsgen//EN\r\n" +
	"BEGIN:VTIMEZONE\r\n" +
	"TZID:America/Los_Angeles\r\n" +
	"BEGIN:DAYLIGHT\r\n" +
	"TZOFFSETFROM:-0800\r\n" +
	"DTSTART:20070311T020000\r\n" +
	"RRULE:FREQ=YEARLY;BYMONTH=3;BYDAY=2SU\r\n" +
	"TZNAME:PDT\r\n" +
	"TZOFFSETTO:-0700\r\n" +
	"END:DAYLIGHT\r\n" +
	"BEGIN:STANDARD\r\n" +
	"TZOFFSETFROM:-0700\r\n" +
	"DTSTART:20071104T020000\r\n" +
	"RRULE:FREQ=YEARLY;BYMONTH=11;BYDAY=1SU\r\n" +
	"TZNAME:PST\r\n" +
	"TZOFFSETTO:-0800\r\n" +
	"END:STANDARD\r\n" +
	"END:VTIMEZONE\r\n" +
	"BEGIN:VEVENT\r\n" +
	"TRANSP:OPAQUE\r\n" +
	"DTEND;TZID=America/Los_Angeles:20240610T100000\r\n" +
	"UID:3f1c2a10-0000-4000-8000-000000000001\r\n" +
	"DTSTAMP:20240601T123045Z\r\n" +
	"URL;VALUE=URI:https://zoom.us/j/123\r\n" +
	"SEQUENCE:0\r\n" +
	"SUMMARY:Team Sync\\n\r\n" +
	"DTSTART;TZID=America/Los_Angeles:20240610T090000\r\n" +
	"LOCATION:Zoom\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestHTTPSaver(t *testing.T) {
	rec := httptest.NewRecorder()

	err := NewHTTPSaver(rec).Save(context.Background(), []byte(sampleDoc), "Team_Sync.ics", "text/calendar")
	require.NoError(t, err)

	res := rec.Result()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/calendar; charset=utf-8", res.Header.Get("Content-Type"))
	assert.Equal(t, "attachment; filename=Team_Sync.ics", res.Header.Get("Content-Disposition"))
	assert.Equal(t, "no-store", res.Header.Get("Cache-Control"))
	assert.Equal(t, sampleDoc, rec.Body.String())
}

func TestHTTPSaverQuotesFileName(t *testing.T) {
	rec := httptest.NewRecorder()

	err := NewHTTPSaver(rec).Save(context.Background(), []byte("x"), "Q3 (final).ics", "text/calendar")
	require.NoError(t, err)
	assert.Equal(t, `attachment; filename="Q3 (final).ics"`, rec.Header().Get("Content-Disposition"))
}

func TestWriterSaver(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, WriterSaver{W: &sb}.Save(context.Background(), []byte("doc"), "a.ics", "text/calendar"))
	assert.Equal(t, "doc", sb.String())
}

func TestFileSaver(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s := NewFileSaver(dir)

	require.NoError(t, s.Save(context.Background(), []byte(sampleDoc), "Team_Sync.ics", "text/calendar"))

	data, err := os.ReadFile(filepath.Join(dir, "Team_Sync.ics"))
	require.NoError(t, err)
	assert.Equal(t, sampleDoc, string(data))

	// Overwrite replaces the content.
	require.NoError(t, s.Save(context.Background(), []byte("second"), "Team_Sync.ics", "text/calendar"))
	data, err = os.ReadFile(filepath.Join(dir, "Team_Sync.ics"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files left behind")
}

func TestFileSaverStripsDirectories(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSaver(dir)

	require.NoError(t, s.Save(context.Background(), []byte("x"), "../../escape.ics", "text/calendar"))
	_, err := os.Stat(filepath.Join(dir, "escape.ics"))
	assert.NoError(t, err)

	_, err = s.Path("..")
	assert.Error(t, err)

	err = NewFileSaver("").Save(context.Background(), []byte("x"), "a.ics", "text/calendar")
	assert.Error(t, err)
}

func TestSaverFunc(t *testing.T) {
	var got string
	var s Saver = SaverFunc(func(_ context.Context, _ []byte, filename, _ string) error {
		got = filename
		return nil
	})
	require.NoError(t, s.Save(context.Background(), nil, "a.ics", "text/calendar"))
	assert.Equal(t, "a.ics", got)
}

type putRecord struct {
	method      string
	path        string
	contentType string
	user        string
	pass        string
	body        string
}

func fakeCalDAV(t *testing.T) (*httptest.Server, func() []putRecord) {
	t.Helper()
	var (
		mu   sync.Mutex
		puts []putRecord
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		user, pass, _ := r.BasicAuth()
		mu.Lock()
		puts = append(puts, putRecord{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			user:        user,
			pass:        pass,
			body:        string(body),
		})
		mu.Unlock()
		w.Header().Set("ETag", `"etag-1"`)
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []putRecord {
		mu.Lock()
		defer mu.Unlock()
		return append([]putRecord(nil), puts...)
	}
}

func TestCalDAVSaver(t *testing.T) {
	srv, records := fakeCalDAV(t)

	s, err := NewCalDAVSaver(srv.URL, "alice", "secret", "calendars/alice/work/")
	require.NoError(t, err)
	assert.Equal(t, "/calendars/alice/work/abc.ics", s.ObjectPath("abc"))

	require.NoError(t, s.Save(context.Background(), []byte(sampleDoc), "Team_Sync.ics", "text/calendar"))

	got := records()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPut, got[0].method)
	assert.Equal(t, "/calendars/alice/work/3f1c2a10-0000-4000-8000-000000000001.ics", got[0].path)
	assert.True(t, strings.HasPrefix(got[0].contentType, "text/calendar"), got[0].contentType)
	assert.Equal(t, "alice", got[0].user)
	assert.Equal(t, "secret", got[0].pass)
	assert.Contains(t, got[0].body, "UID:3f1c2a10-0000-4000-8000-000000000001")
	assert.Contains(t, got[0].body, "TZID:America/Los_Angeles")
}

func TestCalDAVSaverRejects(t *testing.T) {
	_, err := NewCalDAVSaver("", "", "", "/cal")
	assert.Error(t, err)
	_, err = NewCalDAVSaver("http://localhost", "", "", "")
	assert.Error(t, err)

	srv, records := fakeCalDAV(t)
	s, err := NewCalDAVSaver(srv.URL, "", "", "/cal")
	require.NoError(t, err)

	err = s.Save(context.Background(), []byte("not a calendar"), "x.ics", "text/calendar")
	assert.Error(t, err)

	noEvent := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//x//EN\r\nEND:VCALENDAR\r\n"
	err = s.Save(context.Background(), []byte(noEvent), "x.ics", "text/calendar")
	assert.Error(t, err)

	assert.Empty(t, records())
}
