// Package msgio implements the build-notification message contract (spec
// §4.8): it drives an Encoder across a stream of already-collected dm.Entry
// values, honoring a caller-supplied capacity and reporting
// BLOCK_TRANSFER_NEEDED when a single call cannot emit every entry.
//
// Real LwM2M payload formats (LwM2M-CBOR, SenML-CBOR, TLV) are named a
// non-goal; LwM2MJSONEncoder and SenMLJSONEncoder stand in for them using
// encoding/json, so the already_processed/BLOCK_TRANSFER_NEEDED bookkeeping
// stays testable without pulling in a CBOR library the spec itself puts out
// of scope.
package msgio
