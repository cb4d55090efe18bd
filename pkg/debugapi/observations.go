package debugapi

import (
	"net/http"
)

type observationDump struct {
	SSID          uint16 `json:"ssid"`
	Token         string `json:"token"`
	Path          string `json:"path"`
	ContentFormat int    `json:"content_format"`
	Accept        int    `json:"accept"`
	Composite     bool   `json:"composite"`
	Active        bool   `json:"active"`
	Pending       bool   `json:"pending"`
}

// observationsHandler implements GET /debug/observations: every live
// observation in the table.
func (s *Server) observationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.table == nil {
		writeJSON(w, []observationDump{})
		return
	}
	all := s.table.All()
	out := make([]observationDump, 0, len(all))
	for _, obs := range all {
		out = append(out, observationDump{
			SSID:          obs.SSID(),
			Token:         obs.Token(),
			Path:          obs.Path.String(),
			ContentFormat: obs.ContentFormat(),
			Accept:        obs.Accept(),
			Composite:     obs.IsComposite(),
			Active:        obs.Active,
			Pending:       obs.Pending,
		})
	}
	writeJSON(w, out)
}
