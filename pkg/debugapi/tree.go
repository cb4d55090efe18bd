package debugapi

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/lwm2mcore/pkg/dm"
)

// resourceDump is the JSON shape of one dm.Resource.
type resourceDump struct {
	RID          uint16   `json:"rid"`
	Type         string   `json:"type"`
	Operation    string   `json:"operation"`
	MaxInstCount int      `json:"max_inst_count,omitempty"`
	RIIDs        []uint16 `json:"riids,omitempty"`
}

type instanceDump struct {
	IID       uint16         `json:"iid"`
	Resources []resourceDump `json:"resources"`
}

type objectDump struct {
	OID          uint16         `json:"oid"`
	Version      string         `json:"version,omitempty"`
	MaxInstCount int            `json:"max_inst_count,omitempty"`
	Instances    []instanceDump `json:"instances"`
}

func dumpObject(obj *dm.Object) objectDump {
	od := objectDump{OID: obj.OID, Version: obj.Version, MaxInstCount: obj.MaxInstCount}
	for _, inst := range obj.Instances {
		if inst.IID == dm.InvalidID {
			continue
		}
		id := instanceDump{IID: inst.IID}
		for _, res := range inst.Resources {
			id.Resources = append(id.Resources, resourceDump{
				RID:          res.RID,
				Type:         res.Type.String(),
				Operation:    res.Operation.String(),
				MaxInstCount: res.MaxInstCount,
				RIIDs:        res.RIIDs,
			})
		}
		od.Instances = append(od.Instances, id)
	}
	return od
}

// treeHandler implements GET /debug/tree: the full registered object tree.
func (s *Server) treeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	objects := s.model.Objects()
	out := make([]objectDump, 0, len(objects))
	for _, obj := range objects {
		out = append(out, dumpObject(obj))
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
