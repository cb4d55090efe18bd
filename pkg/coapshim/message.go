// Package coapshim defines the narrow CoAP message contract the data model
// engine consumes. The actual CoAP wire codec and block-wise transfer
// implementation are out of scope (spec §1 non-goals); this package only
// carries the fields the engine's operation state machine reads.
package coapshim

import "github.com/cuemby/lwm2mcore/pkg/dmpath"

// Op names the protocol operation a Message requests.
type Op int

const (
	OpRead Op = iota
	OpWrite
	OpWritePartialUpdate
	OpCreate
	OpDelete
	OpExecute
	OpDiscover
	OpBootstrapDiscover
	OpBootstrapDelete
	OpRegister
	OpObserve
	OpObserveComposite
	OpReadComposite
)

// BlockType names which CoAP block option a BlockInfo describes.
type BlockType int

const (
	BlockNotDefined BlockType = iota
	Block1
	Block2
)

// BlockInfo carries the block-wise transfer fields named in spec §6. The
// engine itself never interprets these; they pass through to/from the
// (out of scope) codec layer.
type BlockInfo struct {
	Number int
	More   bool
	Size   int
	Type   BlockType
}

// Code enumerates the canonical CoAP response codes the engine can cause
// to be returned (spec §6).
type Code int

const (
	CodeContent Code = iota
	CodeContinue
	CodeChanged
	CodeDeleted
	CodeBadRequest
	CodeNotFound
	CodeMethodNotAllowed
	CodeUnsupportedContentFormat
	CodeInternalServerError
)

// Message is the consumed shape of an inbound CoAP request (spec §6):
// operation, uri (path), token, content_format, accept, optional block
// fields, optional payload, and the optional Observe option. Parsed
// notification attributes are not carried.
type Message struct {
	Operation     Op
	URI           dmpath.Path
	Token         []byte
	ContentFormat int
	Accept        int
	Block         *BlockInfo
	Payload       []byte
	ObserveOption *int // nil = absent; 0 = establish; 1 = cancel
}

// IsObserve reports whether the message carries the Observe option with
// value 0 (establish).
func (m *Message) IsObserve() bool {
	return m.ObserveOption != nil && *m.ObserveOption == 0
}

// IsObserveCancel reports whether the message carries the Observe option
// with value 1 (cancel).
func (m *Message) IsObserveCancel() bool {
	return m.ObserveOption != nil && *m.ObserveOption == 1
}
