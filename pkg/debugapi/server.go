package debugapi

import (
	"net/http"
	"time"

	"github.com/cuemby/lwm2mcore/pkg/attr"
	"github.com/cuemby/lwm2mcore/pkg/dm"
	"github.com/cuemby/lwm2mcore/pkg/metrics"
	"github.com/cuemby/lwm2mcore/pkg/observe"
)

// Server serves the debug introspection endpoints over HTTP+JSON,
// alongside the ambient health/ready/live/metrics handlers.
type Server struct {
	model *dm.DataModel
	table *observe.Table
	attrs *attr.Store
	mux   *http.ServeMux
}

// NewServer wires a debug HTTP server against the live engine state. table
// and attrs may be nil if those subsystems are not in use.
func NewServer(model *dm.DataModel, table *observe.Table, attrs *attr.Store) *Server {
	s := &Server{model: model, table: table, attrs: attrs, mux: http.NewServeMux()}

	s.mux.HandleFunc("/debug/tree", s.treeHandler)
	s.mux.HandleFunc("/debug/observations", s.observationsHandler)
	s.mux.HandleFunc("/debug/attributes", s.attributesHandler)

	s.mux.Handle("/health", metrics.HealthHandler())
	s.mux.Handle("/ready", metrics.ReadyHandler())
	s.mux.Handle("/live", metrics.LivenessHandler())
	s.mux.Handle("/metrics", metrics.Handler())

	return s
}

// Start runs the server, blocking until it exits.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// Handler returns the HTTP handler for embedding in another server.
func (s *Server) Handler() http.Handler {
	return s.mux
}
