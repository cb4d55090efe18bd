// Package debugapi exposes the running engine's state over HTTP+JSON for
// test harnesses and operator inspection: the registered object/instance
// tree, current observations, and stored attribute entries.
//
// The teacher exposes its equivalent surface (pkg/api) as an mTLS gRPC
// service; a gRPC/protobuf control plane has no SPEC_FULL component to
// exercise here (see DESIGN.md's dropped-dependency entry), so this is
// grounded instead on the teacher's pkg/api/health.go: a plain
// net/http.ServeMux serving JSON-encoded responses, composed alongside
// pkg/metrics' health/ready/live handlers and /metrics the same way
// NewHealthServer composes its mux.
package debugapi
