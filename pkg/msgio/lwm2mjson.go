package msgio

import (
	"encoding/json"

	"github.com/cuemby/lwm2mcore/pkg/dm"
)

// LwM2MJSONEncoder stands in for the LwM2M-CBOR codec (out of scope) as the
// default single-path format named in spec §4.8, wrapping records in the
// same top-level "e" envelope the real LwM2M JSON content format uses.
type LwM2MJSONEncoder struct{}

func (LwM2MJSONEncoder) ContentFormat() ContentFormat { return FormatLwM2MJSON }

func (LwM2MJSONEncoder) Encode(entries []dm.Entry, capacity int) ([]byte, int, bool, error) {
	return encodeRecords(entries, capacity, func(records []wireRecord) ([]byte, error) {
		if records == nil {
			records = []wireRecord{}
		}
		return json.Marshal(struct {
			E []wireRecord `json:"e"`
		}{E: records})
	})
}
