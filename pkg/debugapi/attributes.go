package debugapi

import (
	"net/http"

	"github.com/cuemby/lwm2mcore/pkg/attr"
)

type attributeDump struct {
	Path  string          `json:"path"`
	SSID  uint16          `json:"ssid"`
	Attrs attr.Attributes `json:"attrs"`
}

// attributesHandler implements GET /debug/attributes: every
// directly-attached attribute entry.
func (s *Server) attributesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.attrs == nil {
		writeJSON(w, []attributeDump{})
		return
	}
	entries := s.attrs.Entries()
	out := make([]attributeDump, 0, len(entries))
	for _, e := range entries {
		out = append(out, attributeDump{Path: e.Path.String(), SSID: e.SSID, Attrs: e.Attrs})
	}
	writeJSON(w, out)
}
