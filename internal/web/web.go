package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"time"

	"icsgen/internal/config"
	"icsgen/internal/download"
	"icsgen/internal/ics"
	"icsgen/internal/invite"
	appLog "icsgen/internal/log"
	"icsgen/internal/model"
	"icsgen/internal/tz"
)

const maxBodyBytes = 1 << 20

// Server serves the invite form and the JSON API.
type Server struct {
	cfg  *config.Config
	svc  *invite.Service
	mux  *http.ServeMux
	form *template.Template
}

//go:embed templates/*.html
var embeddedTemplates embed.FS

var formTemplate = template.Must(template.ParseFS(embeddedTemplates, "templates/form.html"))

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, svc *invite.Service) *Server {
	s := &Server{
		cfg:  cfg,
		svc:  svc,
		mux:  http.NewServeMux(),
		form: formTemplate,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password disables auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="icsgen", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves on cfg.Listen until ctx is canceled, then shuts
// down gracefully.
func ListenAndServe(ctx context.Context, cfg *config.Config, svc *invite.Service) error {
	s := NewServer(cfg, svc)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /{$}", s.handleForm)
	s.mux.HandleFunc("POST /generate", s.handleGenerate)
	s.mux.HandleFunc("POST /api/events", s.handleEvents)
	s.mux.HandleFunc("POST /api/inspect", s.handleInspect)
	s.mux.HandleFunc("GET /api/timezones", s.handleTimeZones)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type formData struct {
	Input  model.EventInput
	Errors map[string]string
	Zones  []tz.Rule
}

func (s *Server) renderForm(w http.ResponseWriter, status int, data formData) {
	data.Zones = tz.All()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.form.Execute(w, data); err != nil {
		appLog.Error("failed to render form", err)
	}
}

func (s *Server) handleForm(w http.ResponseWriter, _ *http.Request) {
	s.renderForm(w, http.StatusOK, formData{
		Input: model.EventInput{
			Location: s.cfg.DefaultLocation,
			TimeZone: s.cfg.DefaultTimeZone,
		},
	})
}

// handleGenerate answers a form submission with the .ics attachment.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	in := model.EventInput{
		Summary:   r.PostForm.Get("summary"),
		Location:  r.PostForm.Get("location"),
		ZoomLink:  r.PostForm.Get("zoomLink"),
		TimeZone:  r.PostForm.Get("timeZone"),
		StartTime: r.PostForm.Get("startTime"),
		EndTime:   r.PostForm.Get("endTime"),
	}

	ev, err := s.svc.Generate(in)
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			s.renderForm(w, http.StatusBadRequest, formData{Input: in, Errors: verr.Fields})
			return
		}
		appLog.Error("generate failed", err, "summary", in.Summary)
		http.Error(w, "failed to generate event", http.StatusInternalServerError)
		return
	}

	// Headers are already sent if this fails.
	if err := s.svc.Deliver(r.Context(), ev, download.NewHTTPSaver(w)); err != nil {
		appLog.Error("failed to write attachment", err, "uid", ev.UID)
	}
}

// handleEvents encodes a JSON EventInput.
//
// POST /api/events
//   - default:      the .ics attachment
//   - format=json:  event metadata with the document inline
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var in model.EventInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if r.URL.Query().Get("format") == "json" {
		ev, err := s.svc.GenerateAndDeliver(r.Context(), in, nil)
		if err != nil {
			writeGenerateError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ev)
		return
	}

	ev, err := s.svc.Generate(in)
	if err != nil {
		writeGenerateError(w, err)
		return
	}
	if err := s.svc.Deliver(r.Context(), ev, download.NewHTTPSaver(w)); err != nil {
		appLog.Error("failed to write attachment", err, "uid", ev.UID)
	}
}

// handleInspect parses an uploaded document.
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	parsed, err := ics.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, parsed)
}

// timeZoneDTO is a JSON-friendly view of a zone rule.
type timeZoneDTO struct {
	tz.Rule
	StandardOffset string `json:"standard_offset"`
	DaylightOffset string `json:"daylight_offset"`
	Default        bool   `json:"default"`
}

func (s *Server) handleTimeZones(w http.ResponseWriter, _ *http.Request) {
	rules := tz.All()
	out := make([]timeZoneDTO, 0, len(rules))
	for _, r := range rules {
		out = append(out, timeZoneDTO{
			Rule:           r,
			StandardOffset: r.StandardOffset.String(),
			DaylightOffset: r.DaylightOffset.String(),
			Default:        r.Key == s.cfg.DefaultTimeZone,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeGenerateError(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, validationResp{Error: verr.Error(), Fields: verr.Fields})
		return
	}
	if errors.Is(err, tz.ErrUnknownTimeZone) || errors.Is(err, model.ErrInvalidDateTime) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	appLog.Error("generate failed", err)
	writeError(w, http.StatusInternalServerError, "failed to generate event")
}

type validationResp struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
