package msgio

import (
	"encoding/json"

	"github.com/cuemby/lwm2mcore/pkg/dm"
)

// SenMLJSONEncoder stands in for the SenML-CBOR codec (out of scope) as
// the composite-read format named in spec §4.8: a SenML pack is simply a
// JSON array of records, with no wrapping envelope.
type SenMLJSONEncoder struct{}

func (SenMLJSONEncoder) ContentFormat() ContentFormat { return FormatSenMLJSON }

func (SenMLJSONEncoder) Encode(entries []dm.Entry, capacity int) ([]byte, int, bool, error) {
	return encodeRecords(entries, capacity, func(records []wireRecord) ([]byte, error) {
		if records == nil {
			records = []wireRecord{}
		}
		return json.Marshal(records)
	})
}
