// Package ops serves health checks, pprof and the fit journal on a port
// separate from the dashboard.
package ops

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"logitdash/internal"
	"logitdash/ports"
)

// SessionCounter reports the number of live dashboard sessions
type SessionCounter interface {
	Len() int
}

// StreamCounter reports connected event streams
type StreamCounter interface {
	ActiveSessions() []string
	ClientCount(sessionID string) int
}

// NewRouter builds the ops router
func NewRouter(sessions SessionCounter, streams StreamCounter, journal ports.FitJournalPort, log *internal.Logger) *chi.Mux {
	if log == nil {
		log = internal.DefaultLogger
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		active := streams.ActiveSessions()
		clients := 0
		for _, id := range active {
			clients += streams.ClientCount(id)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":             "ok",
			"sessions":           sessions.Len(),
			"streaming_sessions": len(active),
			"streams":            clients,
		})
	})

	r.Get("/fits", func(w http.ResponseWriter, req *http.Request) {
		limit := 20
		if raw := req.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > 500 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 500"})
				return
			}
			limit = n
		}
		fits, err := journal.Recent(req.Context(), limit)
		if err != nil {
			log.Error("[Ops] listing fits failed: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if fits == nil {
			fits = []ports.FitRecord{}
		}
		writeJSON(w, http.StatusOK, fits)
	})

	r.Mount("/debug", middleware.Profiler())
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
