// Package opsapi exposes a small read-only HTTP surface reporting operator
// status: run-lock ownership, registry counts per interval, and migration
// plan status as JSON. There is no query/analytics surface over the
// archived bars or trades themselves; this is operational visibility only.
//
// Grounded on the original _examples/chenjiangme-jupitor/internal/httpapi
// dashboard's handler shape (JSON-via-encoding/json), adapted away from
// trading data, and wired to gorilla/mux
// (Outblock-flowindex/backend/internal/api's routing idiom) rather than a
// stdlib ServeMux.
package opsapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"marketvault/internal/migration"
	"marketvault/internal/registry"
	"marketvault/internal/runlock"
)

// Server serves /health, /status/lock, /status/registry, and
// /status/migration.
type Server struct {
	lock     *runlock.Lock
	registry *registry.Registry
	planPath string
	log      *slog.Logger
}

// New constructs a Server. registry and planPath may be nil/empty when
// that document doesn't apply to the running process (e.g. a posttrade
// daemon has no OHLCV registry).
func New(lock *runlock.Lock, reg *registry.Registry, planPath string, log *slog.Logger) *Server {
	return &Server{lock: lock, registry: reg, planPath: planPath, log: log}
}

// Router builds the mux.Router serving this API.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/status/lock", s.handleLockStatus).Methods("GET")
	r.HandleFunc("/status/registry", s.handleRegistryStatus).Methods("GET")
	r.HandleFunc("/status/migration", s.handleMigrationStatus).Methods("GET")
	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encoding response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

// lockStatus reports who (if anyone) holds the run lock.
type lockStatus struct {
	Held  bool          `json:"held"`
	Owner *runlock.Owner `json:"owner,omitempty"`
}

func (s *Server) handleLockStatus(w http.ResponseWriter, r *http.Request) {
	if s.lock == nil {
		s.writeJSON(w, lockStatus{Held: false})
		return
	}
	owner := s.lock.OwnerInfo()
	s.writeJSON(w, lockStatus{Held: owner != nil, Owner: owner})
}

// intervalCounts summarizes how many tickers are in each status for one
// interval.
type intervalCounts struct {
	Active   int `json:"active"`
	NotFound int `json:"not_found"`
}

func (s *Server) handleRegistryStatus(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		http.Error(w, "registry not configured for this process", http.StatusNotFound)
		return
	}
	counts := map[string]*intervalCounts{}
	for _, entry := range s.registry.Entries() {
		for interval, state := range entry.Intervals {
			c, ok := counts[interval]
			if !ok {
				c = &intervalCounts{}
				counts[interval] = c
			}
			switch state.Status {
			case registry.StatusActive:
				c.Active++
			case registry.StatusNotFound:
				c.NotFound++
			}
		}
	}
	s.writeJSON(w, counts)
}

func (s *Server) handleMigrationStatus(w http.ResponseWriter, r *http.Request) {
	if s.planPath == "" {
		http.Error(w, "migration plan not configured for this process", http.StatusNotFound)
		return
	}
	plan, err := migration.LoadPlan(s.planPath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, plan)
}
