// Package dmvalue implements the LwM2M resource value tagged union,
// including the chunked-transfer buffering used for large bytes/strings
// that arrive across multiple write calls (spec §4.4.2, §9 "Chunked
// values" — the offset/chunk_length/full_length_hint contract is kept
// verbatim from the reference implementation).
package dmvalue

import (
	"fmt"
	"time"
)

// Type tags the kind of value a Resource holds.
type Type int

const (
	TypeNone Type = iota
	TypeInt
	TypeUint
	TypeDouble
	TypeBool
	TypeString
	TypeBytes
	TypeObjLnk
	TypeTime
	TypeExternalString
	TypeExternalBytes
)

func (t Type) String() string {
	switch t {
	case TypeInt:
		return "INT"
	case TypeUint:
		return "UINT"
	case TypeDouble:
		return "DOUBLE"
	case TypeBool:
		return "BOOL"
	case TypeString:
		return "STRING"
	case TypeBytes:
		return "BYTES"
	case TypeObjLnk:
		return "OBJLNK"
	case TypeTime:
		return "TIME"
	case TypeExternalString:
		return "EXTERNAL_STRING"
	case TypeExternalBytes:
		return "EXTERNAL_BYTES"
	default:
		return "NONE"
	}
}

// ObjLnk is a pair of u16 identifying an Object Instance.
type ObjLnk struct {
	OID uint16
	IID uint16
}

// Chunk is one fragment of a value delivered across multiple write_entry
// calls. Offset/ChunkLength/Data/FullLengthHint mirror the reference
// implementation's field names exactly.
type Chunk struct {
	Offset         int
	ChunkLength    int
	Data           []byte
	FullLengthHint int // 0 when unknown
}

// ExternalStringProducer lazily produces string content, e.g. backed by a
// file or a generated report, without requiring it all live in memory.
type ExternalStringProducer func(maxLen int) (data string, isLast bool, err error)

// ExternalBytesProducer is the bytes analogue of ExternalStringProducer.
type ExternalBytesProducer func(maxLen int) (data []byte, isLast bool, err error)

// Value is the tagged union of every resource value kind the engine moves
// around. Only the field matching Type is meaningful.
type Value struct {
	Type Type

	Int    int64
	Uint   uint64
	Double float64
	Bool   bool
	Time   time.Time
	ObjLnk ObjLnk

	String string
	Bytes  []byte

	ExternalString ExternalStringProducer
	ExternalBytes  ExternalBytesProducer

	// Chunk is non-nil when this String/Bytes value is one fragment of a
	// larger write delivered across multiple WriteEntry calls at the
	// same path (spec §9 "Chunked values"); nil means the value carried
	// by String/Bytes is already complete. A resource whose write
	// handler cares about chunked delivery inspects Chunk itself and
	// accumulates via a ChunkedBuffer; every other handler can ignore it
	// and keep treating String/Bytes as the whole value.
	Chunk *Chunk
}

func Int(v int64) Value        { return Value{Type: TypeInt, Int: v} }
func Uint(v uint64) Value      { return Value{Type: TypeUint, Uint: v} }
func Double(v float64) Value   { return Value{Type: TypeDouble, Double: v} }
func Bool(v bool) Value        { return Value{Type: TypeBool, Bool: v} }
func String(v string) Value    { return Value{Type: TypeString, String: v} }
func Bytes(v []byte) Value     { return Value{Type: TypeBytes, Bytes: v} }
func Time(v time.Time) Value   { return Value{Type: TypeTime, Time: v} }
func ObjLink(oid, iid uint16) Value {
	return Value{Type: TypeObjLnk, ObjLnk: ObjLnk{OID: oid, IID: iid}}
}

// Equal reports whether two values are the same for the purposes of the
// notification evaluator's "fire on any inequality" rule (spec §4.7.5).
// External producers are never equal to themselves across samples, since
// the engine cannot cheaply compare producer identity to content.
func (v Value) Equal(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case TypeInt:
		return v.Int == other.Int
	case TypeUint:
		return v.Uint == other.Uint
	case TypeDouble:
		return v.Double == other.Double
	case TypeBool:
		return v.Bool == other.Bool
	case TypeString:
		return v.String == other.String
	case TypeBytes:
		return string(v.Bytes) == string(other.Bytes)
	case TypeObjLnk:
		return v.ObjLnk == other.ObjLnk
	case TypeTime:
		return v.Time.Equal(other.Time)
	default:
		return false
	}
}

// Numeric reports whether the value is one the threshold rules (gt/lt/st)
// can operate on, and returns it as a float64.
func (v Value) Numeric() (float64, bool) {
	switch v.Type {
	case TypeInt:
		return float64(v.Int), true
	case TypeUint:
		return float64(v.Uint), true
	case TypeDouble:
		return v.Double, true
	default:
		return 0, false
	}
}

// TypesCompatible implements spec §4.4.2's "legal widening" rule: a record
// type must match the resource type, except EXTERNAL STRING widens to/from
// STRING and EXTERNAL BYTES widens to/from BYTES.
func TypesCompatible(recordType, resourceType Type) bool {
	if recordType == resourceType {
		return true
	}
	switch {
	case recordType == TypeExternalString && resourceType == TypeString:
		return true
	case recordType == TypeString && resourceType == TypeExternalString:
		return true
	case recordType == TypeExternalBytes && resourceType == TypeBytes:
		return true
	case recordType == TypeBytes && resourceType == TypeExternalBytes:
		return true
	}
	return false
}

// ChunkedBuffer accumulates Chunk fragments into a fixed-capacity
// destination, exposing IsLastChunk once the accumulated length reaches
// FullLengthHint. It is the safe "append into fixed-capacity buffer" helper
// named in the design notes as a strategy for the reference's chunked
// value contract.
type ChunkedBuffer struct {
	dst            []byte
	written        int
	fullLengthHint int
	isString       bool
}

// NewChunkedBuffer creates a buffer backed by dst (len(dst) is the
// capacity cap; the caller is expected to size it from the resource's
// declared maximum).
func NewChunkedBuffer(dst []byte, isString bool) *ChunkedBuffer {
	return &ChunkedBuffer{dst: dst, isString: isString}
}

// WriteChunk appends one chunk at its declared offset. Offsets must arrive
// contiguously (offset == bytes written so far); anything else is a
// protocol error from the caller's block-transfer layer.
func (b *ChunkedBuffer) WriteChunk(c Chunk) error {
	if c.Offset != b.written {
		return fmt.Errorf("dmvalue: non-contiguous chunk at offset %d, expected %d", c.Offset, b.written)
	}
	length := c.ChunkLength
	if length == 0 {
		length = len(c.Data)
	}
	if b.written+length > len(b.dst) {
		return fmt.Errorf("dmvalue: chunk overflows destination capacity %d", len(b.dst))
	}
	copy(b.dst[b.written:b.written+length], c.Data[:length])
	b.written += length
	if c.FullLengthHint != 0 {
		b.fullLengthHint = c.FullLengthHint
	}
	if b.isString && b.IsLastChunk() && b.written < len(b.dst) {
		b.dst[b.written] = 0
	}
	return nil
}

// IsLastChunk reports whether the accumulated length equals the full
// length hint supplied by the most recent chunk.
func (b *ChunkedBuffer) IsLastChunk() bool {
	return b.fullLengthHint != 0 && b.written >= b.fullLengthHint
}

// Bytes returns the bytes written so far.
func (b *ChunkedBuffer) Bytes() []byte {
	return b.dst[:b.written]
}

// String returns the written bytes as a Go string. For a buffer created
// with isString, WriteChunk stores a trailing NUL in dst right after the
// last byte once the value is complete (when dst has room for it); that
// NUL is not part of the returned Go string.
func (b *ChunkedBuffer) String() string {
	return string(b.dst[:b.written])
}

// Len returns the number of bytes written so far.
func (b *ChunkedBuffer) Len() int { return b.written }
