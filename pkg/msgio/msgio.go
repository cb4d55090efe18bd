package msgio

import (
	"github.com/cuemby/lwm2mcore/pkg/dm"
	"github.com/cuemby/lwm2mcore/pkg/dmerr"
)

// ContentFormat is a CoAP content-format identifier BuildMsg can honor.
// The numeric values match the real LwM2M/SenML JSON media-type registry
// entries, even though the bytes these encoders actually produce are a
// throwaway stand-in for the CBOR variants the spec puts out of scope.
type ContentFormat int

const (
	FormatLwM2MJSON ContentFormat = 11543
	FormatSenMLJSON ContentFormat = 110
)

// Encoder serializes a stream of dm.Entry values within a capacity budget.
// Encode consumes as many leading entries as fit within capacity bytes and
// reports how many were fully emitted; the caller re-invokes with
// entries[processed:] across consecutive calls until more is false, exactly
// spec §4.8's block-transfer re-invocation contract.
type Encoder interface {
	ContentFormat() ContentFormat
	Encode(entries []dm.Entry, capacity int) (out []byte, processed int, more bool, err error)
}

// BuildMsg serializes entries into a capacity-bounded block, selecting
// LwM2M-JSON for a single path or SenML-JSON for a composite read (spec
// §4.8's default-format rule), honoring a caller-pre-selected accept format
// when given, and tracking already_processed across repeated
// BLOCK_TRANSFER_NEEDED invocations.
//
// Unlike the reference's buf/len/capacity out-parameters, entries is a Go
// slice the caller already holds (ReadOperation/ReadCompositeOperation
// already materialize it via NextEntry); BuildMsg's job is purely the
// format-selection and block-transfer bookkeeping around an Encoder.
func BuildMsg(entries []dm.Entry, alreadyProcessed, capacity int, accept *ContentFormat, isComposite bool) (out []byte, newAlreadyProcessed int, blockTransferNeeded bool, format ContentFormat, err error) {
	enc, format, err := selectEncoder(accept, isComposite)
	if err != nil {
		return nil, alreadyProcessed, false, 0, err
	}
	if alreadyProcessed < 0 || alreadyProcessed > len(entries) {
		return nil, alreadyProcessed, false, format, dmerr.Internal("msgio: already_processed %d out of range for %d entries", alreadyProcessed, len(entries))
	}

	remaining := entries[alreadyProcessed:]
	out, processed, more, err := enc.Encode(remaining, capacity)
	if err != nil {
		return nil, alreadyProcessed, false, format, err
	}
	return out, alreadyProcessed + processed, more, format, nil
}

func selectEncoder(accept *ContentFormat, isComposite bool) (Encoder, ContentFormat, error) {
	want := FormatLwM2MJSON
	if isComposite {
		want = FormatSenMLJSON
	}
	if accept != nil {
		want = *accept
	}
	switch want {
	case FormatLwM2MJSON:
		return LwM2MJSONEncoder{}, FormatLwM2MJSON, nil
	case FormatSenMLJSON:
		return SenMLJSONEncoder{}, FormatSenMLJSON, nil
	default:
		return nil, 0, dmerr.UnsupportedContentFormat("msgio: content format %d not supported", want)
	}
}
