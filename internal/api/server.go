package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/presence.report/internal/config"
	"github.com/banshee-data/presence.report/internal/detect"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Detector is the slice of the detection worker the HTTP surface reads from.
type Detector interface {
	RunID() string
	StatsSnapshot() detect.StatsSnapshot
	ObservedRate() float64
}

// LinkStatus reports the sensor link's last human-readable status message.
type LinkStatus interface {
	Status() string
}

type Server struct {
	detector Detector
	link     LinkStatus
	cfg      *config.Holder
}

func NewServer(detector Detector, link LinkStatus, cfg *config.Holder) *Server {
	return &Server{
		detector: detector,
		link:     link,
		cfg:      cfg,
	}
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

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/detect/stats", s.showStats)
	mux.HandleFunc("/api/detect/config", s.handleConfig)
	mux.HandleFunc("/healthz", s.healthz)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

type statsResponse struct {
	RunID      string               `json:"run_id"`
	Stats      detect.StatsSnapshot `json:"stats"`
	Rate       float64              `json:"rate"`
	LinkStatus string               `json:"link_status,omitempty"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	resp := statsResponse{
		RunID: s.detector.RunID(),
		Stats: s.detector.StatsSnapshot(),
		Rate:  s.detector.ObservedRate(),
	}
	if s.link != nil {
		resp.LinkStatus = s.link.Status()
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to encode stats: %v", err))
	}
}

// tunables is the runtime-mutable slice of the configuration. Connection and
// remote-session settings are fixed at startup and deliberately absent, so
// the HTTP surface can neither read nor change them.
type tunables struct {
	DistanceThresholdCm *float64 `json:"distance_threshold_cm,omitempty"`
	LedTimerSeconds     *float64 `json:"led_timer_seconds,omitempty"`
	SignalsPerSecond    *float64 `json:"signals_per_second,omitempty"`
}

func activeTunables(cfg *config.Config) tunables {
	threshold := cfg.GetDistanceThresholdCm()
	duration := cfg.GetLedTimerSeconds()
	rate := cfg.GetSignalsPerSecond()
	return tunables{
		DistanceThresholdCm: &threshold,
		LedTimerSeconds:     &duration,
		SignalsPerSecond:    &rate,
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		if err := json.NewEncoder(w).Encode(activeTunables(s.cfg.Snapshot())); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError,
				fmt.Sprintf("Failed to encode config: %v", err))
		}

	case http.MethodPut, http.MethodPost:
		var t tunables
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			s.writeJSONError(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid config JSON: %v", err))
			return
		}
		patch := &config.Config{
			DistanceThresholdCm: t.DistanceThresholdCm,
			LedTimerSeconds:     t.LedTimerSeconds,
			SignalsPerSecond:    t.SignalsPerSecond,
		}
		if err := s.cfg.Apply(patch); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Echo back the merged active values so callers see the result of
		// the overlay, not just their patch.
		if err := json.NewEncoder(w).Encode(activeTunables(s.cfg.Snapshot())); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError,
				fmt.Sprintf("Failed to encode config: %v", err))
		}

	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	io.WriteString(w, "ok\n")
}
