package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	goical "github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"

	appLog "icsgen/internal/log"
)

// CalDAVSaver publishes documents into a CalDAV calendar collection. The
// object is stored as <collection>/<UID>.ics, so re-saving an event with
// the same UID replaces it.
type CalDAVSaver struct {
	client     *caldav.Client
	collection string
}

// NewCalDAVSaver creates a saver for the collection path on the server at
// endpoint. Empty username disables Basic Auth.
func NewCalDAVSaver(endpoint, username, password, collection string) (*CalDAVSaver, error) {
	if endpoint == "" {
		return nil, errors.New("caldav: endpoint is empty")
	}
	if collection == "" {
		return nil, errors.New("caldav: collection path is empty")
	}

	var transport http.RoundTripper = http.DefaultTransport
	if username != "" {
		transport = &basicAuthTransport{
			username: username,
			password: password,
			base:     http.DefaultTransport,
		}
	}
	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}

	client, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("caldav: create client: %w", err)
	}

	return &CalDAVSaver{
		client:     client,
		collection: "/" + strings.Trim(collection, "/"),
	}, nil
}

// ObjectPath returns the path the event with uid is stored at.
func (s *CalDAVSaver) ObjectPath(uid string) string {
	return path.Join(s.collection, uid+".ics")
}

func (s *CalDAVSaver) Save(ctx context.Context, data []byte, filename, _ string) error {
	cal, err := goical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return fmt.Errorf("caldav: decode document: %w", err)
	}

	uid, err := eventUID(cal)
	if err != nil {
		return err
	}

	objPath := s.ObjectPath(uid)
	obj, err := s.client.PutCalendarObject(ctx, objPath, cal)
	if err != nil {
		return fmt.Errorf("caldav: put %s: %w", objPath, err)
	}

	appLog.Info("caldav object stored", "path", obj.Path, "etag", obj.ETag, "file_name", filename)
	return nil
}

func eventUID(cal *goical.Calendar) (string, error) {
	events := cal.Events()
	if len(events) != 1 {
		return "", fmt.Errorf("caldav: expected one VEVENT, got %d", len(events))
	}
	uid, err := events[0].Props.Text(goical.PropUID)
	if err != nil {
		return "", fmt.Errorf("caldav: read UID: %w", err)
	}
	if uid == "" {
		return "", errors.New("caldav: event has no UID")
	}
	return uid, nil
}

// basicAuthTransport adds basic auth to HTTP requests.
type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(req)
}
