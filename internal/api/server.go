// Package api serves the agent's status endpoints and history chart.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/banshee-data/envsensor/internal/ambient"
	"github.com/banshee-data/envsensor/internal/httputil"
	"github.com/banshee-data/envsensor/internal/monitoring"
	"github.com/banshee-data/envsensor/internal/sensor"
	"github.com/banshee-data/envsensor/internal/supervisor"
	"github.com/banshee-data/envsensor/internal/version"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 5000
)

// ReadingSource returns the latest reading.
type ReadingSource interface {
	Current() sensor.Reading
}

// StatusSource returns the supervisor's state.
type StatusSource interface {
	Status() supervisor.Status
}

// AmbientStatusSource returns the camera loop's state.
type AmbientStatusSource interface {
	Status() ambient.Status
}

// History returns stored readings, newest first.
type History interface {
	RecentReadings(ctx context.Context, limit int) ([]sensor.Reading, error)
}

// Server holds the API's data sources. Ambient and History may be nil.
type Server struct {
	Readings   ReadingSource
	Supervisor StatusSource
	Ambient    AmbientStatusSource
	History    History
	Station    string
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)

		level := slog.LevelDebug
		if lrw.statusCode >= 500 {
			level = slog.LevelWarn
		}
		monitoring.Logger().Log(r.Context(), level, "http request",
			"method", r.Method,
			"uri", r.RequestURI,
			"status", lrw.statusCode,
			"duration_ms", float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/reading", s.showReading)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/readings", s.listReadings)
	mux.HandleFunc("/api/chart", s.showChart)
	mux.HandleFunc("/api/version", s.showVersion)
	return mux
}

// readingResponse adds freshness to a reading.
type readingResponse struct {
	sensor.Reading
	Available bool    `json:"available"`
	AgeSecs   float64 `json:"age_seconds,omitempty"`
}

func (s *Server) showReading(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	cur := s.Readings.Current()
	resp := readingResponse{Reading: cur, Available: !cur.IsZero()}
	if resp.Available {
		resp.AgeSecs = time.Since(cur.Timestamp).Seconds()
	}
	httputil.WriteJSONOK(w, resp)
}

type statusResponse struct {
	Station    string            `json:"station,omitempty"`
	Version    string            `json:"version"`
	Supervisor supervisor.Status `json:"supervisor"`
	Ambient    *ambient.Status   `json:"ambient,omitempty"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := statusResponse{
		Station:    s.Station,
		Version:    version.Version,
		Supervisor: s.Supervisor.Status(),
	}
	if s.Ambient != nil {
		st := s.Ambient.Status()
		resp.Ambient = &st
	}
	httputil.WriteJSONOK(w, resp)
}

var errHistoryDisabled = errors.New("reading history is not enabled (set db_path)")

func (s *Server) recent(r *http.Request) ([]sensor.Reading, int, error) {
	if s.History == nil {
		return nil, http.StatusNotFound, errHistoryDisabled
	}
	limit, err := httputil.IntQuery(r, "limit", defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	readings, err := s.History.RecentReadings(r.Context(), limit)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return readings, http.StatusOK, nil
}

func (s *Server) listReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	readings, status, err := s.recent(r)
	if err != nil {
		httputil.WriteJSONError(w, status, err.Error())
		return
	}
	if readings == nil {
		readings = []sensor.Reading{}
	}
	httputil.WriteJSONOK(w, readings)
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}
