package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"face-attendance/internal/logger"
)

// HealthFunc reports component state for /health
type HealthFunc func() map[string]any

// RouterConfig carries everything the HTTP API serves
type RouterConfig struct {
	Detections *DetectionHandler
	Attendance *AttendanceHandler
	Metrics    http.Handler
	Health     HealthFunc
	Log        *logger.Logger
}

// SetupRouter registers the API routes
func SetupRouter(cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{"status": "ok"}
		if cfg.Health != nil {
			for k, v := range cfg.Health() {
				status[k] = v
			}
		}
		writeJSON(w, http.StatusOK, status)
	}).Methods(http.MethodGet)

	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api").Subrouter()

	if d := cfg.Detections; d != nil {
		api.HandleFunc("/detections", d.HandleDetect).Methods(http.MethodPost)
		api.HandleFunc("/frames", d.HandleFrame).Methods(http.MethodPost)
	}

	if a := cfg.Attendance; a != nil {
		api.HandleFunc("/attendance/{employeeID}/{date}", a.GetRecord).Methods(http.MethodGet)
		api.HandleFunc("/attendance/{employeeID}/{date}/history", a.GetHistory).Methods(http.MethodGet)
		api.HandleFunc("/events/{id}", a.GetEvent).Methods(http.MethodGet)
		api.HandleFunc("/analytics", a.GetAnalytics).Methods(http.MethodGet)
		api.HandleFunc("/analytics/trend", a.GetTrend).Methods(http.MethodGet)
		api.HandleFunc("/roster", a.GetRoster).Methods(http.MethodGet)
		api.HandleFunc("/alerts", a.ListAlerts).Methods(http.MethodGet)
		api.HandleFunc("/alerts/{id:[0-9]+}/ack", a.AckAlert).Methods(http.MethodPost)
		api.HandleFunc("/dead-letters", a.ListDeadLetters).Methods(http.MethodGet)
	}

	if cfg.Log != nil {
		router.Use(requestLogger(cfg.Log.Named("http")))
	}
	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func requestLogger(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start))
		})
	}
}
