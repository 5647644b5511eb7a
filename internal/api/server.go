// Package api serves the daemon's admin and status HTTP surface: mode
// transitions, pipeline health, meter levels, and manual accents. The
// server is reachable in Maintenance and Probe; Show mode asserts
// offline operation, so nothing in the real-time path depends on it.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/christianprison/lighting.ai/internal/catalog"
	"github.com/christianprison/lighting.ai/internal/httputil"
	"github.com/christianprison/lighting.ai/internal/mode"
	"github.com/christianprison/lighting.ai/internal/pipeline"
	"github.com/christianprison/lighting.ai/internal/version"
)

// ANSI escape codes for request logging
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes the admin API. The pipeline runtime comes through an
// accessor because it only exists while Probe or Show is active.
type Server struct {
	modes   *mode.Controller
	cat     *catalog.Catalog
	runtime func() *pipeline.Runtime
}

func NewServer(modes *mode.Controller, cat *catalog.Catalog, runtime func() *pipeline.Runtime) *Server {
	return &Server{modes: modes, cat: cat, runtime: runtime}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf("[%s] %s %s %vms",
			statusCodeColor(lrw.statusCode), r.Method, r.URL.Path,
			time.Since(start).Milliseconds())
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/mode", s.handleMode)
	mux.HandleFunc("/api/meters", s.handleMeters)
	mux.HandleFunc("/api/match", s.handleMatch)
	mux.HandleFunc("/api/accent", s.handleAccent)
	mux.HandleFunc("/api/songs", s.handleSongs)
	mux.HandleFunc("/api/setlist", s.handleSetlist)
	mux.HandleFunc("/charts/bpm", s.handleBPMChart)
	return mux
}

type healthResponse struct {
	Version       string    `json:"version"`
	Mode          string    `json:"mode"`
	PipelineUp    bool      `json:"pipeline_up"`
	ReceiverAlive bool      `json:"receiver_alive,omitempty"`
	Received      int64     `json:"received,omitempty"`
	Malformed     int64     `json:"malformed,omitempty"`
	Dropped       int64     `json:"dropped,omitempty"`
	LastRecv      time.Time `json:"last_recv,omitempty"`
	BPM           float64   `json:"bpm,omitempty"`
	Bar           int       `json:"bar,omitempty"`
	BeatInBar     int       `json:"beat_in_bar,omitempty"`
	LastDispatch  time.Time `json:"last_dispatch,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := healthResponse{Version: version.Version, Mode: s.modes.Current().String()}
	if rt := s.runtime(); rt != nil {
		h := rt.Health()
		resp.PipelineUp = true
		resp.ReceiverAlive = h.ReceiverAlive
		resp.Received = h.Received
		resp.Malformed = h.Malformed
		resp.Dropped = h.Dropped
		resp.LastRecv = h.LastRecv
		resp.BPM = h.BPM
		resp.Bar = h.Bar
		resp.BeatInBar = h.BeatInBar
		resp.LastDispatch = h.LastDispatch
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, map[string]string{"mode": s.modes.Current().String()})
	case http.MethodPost:
		var req struct {
			Mode string `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, "invalid request body")
			return
		}
		target, err := mode.Parse(req.Mode)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := s.modes.Transition(target); err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"mode": s.modes.Current().String()})
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleMeters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	rt := s.runtime()
	if rt == nil {
		httputil.NotFound(w, "pipeline not running")
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"levels": rt.Levels()})
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	rt := s.runtime()
	if rt == nil {
		httputil.NotFound(w, "pipeline not running")
		return
	}
	h := rt.Health()
	if h.LastMatch == nil {
		httputil.WriteJSONOK(w, map[string]interface{}{"match": nil})
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"match":      h.LastMatch,
		"matched_at": h.LastMatchAt,
	})
}

func (s *Server) handleAccent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	rt := s.runtime()
	if rt == nil {
		httputil.NotFound(w, "pipeline not running")
		return
	}
	name := r.FormValue("name")
	if name == "" {
		httputil.BadRequest(w, "missing accent name")
		return
	}
	fade := time.Duration(0)
	if f := r.FormValue("fade_ms"); f != "" {
		ms, err := strconv.Atoi(f)
		if err != nil || ms < 0 {
			httputil.BadRequest(w, "invalid fade_ms")
			return
		}
		fade = time.Duration(ms) * time.Millisecond
	}
	if err := rt.FireAccent(r.Context(), name, fade); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			httputil.NotFound(w, "unknown accent "+name)
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"accent": name})
}

func (s *Server) handleSongs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	songs, err := s.cat.Repo.GetAllSongs(r.Context())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"songs": songs})
}

func (s *Server) handleSetlist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		httputil.BadRequest(w, "missing or invalid id")
		return
	}
	sl, err := s.cat.Repo.GetSetlist(r.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		httputil.NotFound(w, "setlist not found")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, sl)
}
