package msgio

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cuemby/lwm2mcore/pkg/dm"
	"github.com/cuemby/lwm2mcore/pkg/dmerr"
	"github.com/cuemby/lwm2mcore/pkg/dmvalue"
)

// wireRecord is the shared per-entry shape both throwaway encoders marshal:
// a path plus whichever single typed field the value occupies, mirroring
// how LwM2M JSON/SenML JSON records carry exactly one of sv/bv/v/ov per
// entry.
type wireRecord struct {
	Name string   `json:"n"`
	SV   *string  `json:"sv,omitempty"`
	BV   *bool    `json:"bv,omitempty"`
	V    *float64 `json:"v,omitempty"`
	OV   *string  `json:"ov,omitempty"`
}

const materializeChunkSize = 4096

func toWireRecord(e dm.Entry) (wireRecord, error) {
	r := wireRecord{Name: e.Path.String()}
	switch e.Value.Type {
	case dmvalue.TypeString:
		s := e.Value.String
		r.SV = &s
	case dmvalue.TypeExternalString:
		s, err := materializeString(e.Value.ExternalString)
		if err != nil {
			return wireRecord{}, err
		}
		r.SV = &s
	case dmvalue.TypeBool:
		b := e.Value.Bool
		r.BV = &b
	case dmvalue.TypeInt:
		v := float64(e.Value.Int)
		r.V = &v
	case dmvalue.TypeUint:
		v := float64(e.Value.Uint)
		r.V = &v
	case dmvalue.TypeDouble:
		v := e.Value.Double
		r.V = &v
	case dmvalue.TypeBytes:
		s := base64.StdEncoding.EncodeToString(e.Value.Bytes)
		r.OV = &s
	case dmvalue.TypeExternalBytes:
		b, err := materializeBytes(e.Value.ExternalBytes)
		if err != nil {
			return wireRecord{}, err
		}
		s := base64.StdEncoding.EncodeToString(b)
		r.OV = &s
	case dmvalue.TypeObjLnk:
		s := fmt.Sprintf("%d:%d", e.Value.ObjLnk.OID, e.Value.ObjLnk.IID)
		r.OV = &s
	case dmvalue.TypeTime:
		v := float64(e.Value.Time.Unix())
		r.V = &v
	default:
		// TypeNone: no value to carry, name-only record.
	}
	return r, nil
}

// materializeString fully drains an external string producer. A real
// block-transfer-aware codec would interleave this with the capacity walk
// chunk by chunk; these throwaway encoders trade that precision for
// simplicity since CBOR/TLV are out of scope anyway.
func materializeString(produce dmvalue.ExternalStringProducer) (string, error) {
	var sb strings.Builder
	for {
		chunk, isLast, err := produce(materializeChunkSize)
		if err != nil {
			return "", dmerr.Internal("msgio: external string producer: %v", err)
		}
		sb.WriteString(chunk)
		if isLast {
			return sb.String(), nil
		}
	}
}

func materializeBytes(produce dmvalue.ExternalBytesProducer) ([]byte, error) {
	var buf []byte
	for {
		chunk, isLast, err := produce(materializeChunkSize)
		if err != nil {
			return nil, dmerr.Internal("msgio: external bytes producer: %v", err)
		}
		buf = append(buf, chunk...)
		if isLast {
			return buf, nil
		}
	}
}

// encodeRecords drives the shared greedy block-fitting walk: add entries
// one at a time, re-marshal via marshal, and stop the moment a candidate
// would exceed capacity. Returns the last block that fit, how many entries
// it contains, and whether entries remain.
func encodeRecords(entries []dm.Entry, capacity int, marshal func([]wireRecord) ([]byte, error)) ([]byte, int, bool, error) {
	if len(entries) == 0 {
		out, err := marshal(nil)
		if err != nil {
			return nil, 0, false, dmerr.Internal("msgio: encode empty container: %v", err)
		}
		return out, 0, false, nil
	}

	var records []wireRecord
	var last []byte
	for i, e := range entries {
		rec, err := toWireRecord(e)
		if err != nil {
			return nil, i, false, err
		}
		candidate := append(append([]wireRecord{}, records...), rec)
		data, err := marshal(candidate)
		if err != nil {
			return nil, i, false, dmerr.Internal("msgio: marshal: %v", err)
		}
		if len(data) > capacity {
			if i == 0 {
				return nil, 0, false, dmerr.BadRequest("msgio: capacity %d too small for a single entry", capacity)
			}
			return last, i, true, nil
		}
		records = candidate
		last = data
	}
	return last, len(entries), false, nil
}
