// Package poolhttp exposes a small admin HTTP surface over a
// mysqlcore.Pool: a liveness probe and a JSON occupancy snapshot (spec:
// DOMAIN STACK, admin/observability surface).
package poolhttp

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	mysql "github.com/mysqlasync/mysqlcore"
)

// Server wraps a Pool with /healthz and /stats endpoints.
type Server struct {
	pool   *mysql.Pool
	router *mux.Router
}

// NewServer builds a Server backed by pool. Call Router to mount it, or
// ListenAndServe for a standalone admin listener.
func NewServer(pool *mysql.Pool) *Server {
	s := &Server{pool: pool, router: mux.NewRouter()}
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	return s
}

// Router returns the underlying mux.Router for embedding into a larger
// admin mux.
func (s *Server) Router() *mux.Router { return s.router }

// ListenAndServe starts a standalone HTTP server for this admin surface.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.pool.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
