// Package dmerr implements the two error taxonomies the engine uses
// (spec §4.4.10, §7): protocol errors that map 1:1 onto CoAP response
// codes, and engine misuse errors that are only ever surfaced to the host
// runtime.
package dmerr

import "fmt"

// ProtocolCode enumerates the CoAP response codes the engine can produce.
type ProtocolCode int

const (
	CodeNotFound ProtocolCode = iota
	CodeMethodNotAllowed
	CodeBadRequest
	CodeInternal
	CodeUnsupportedContentFormat
)

func (c ProtocolCode) String() string {
	switch c {
	case CodeNotFound:
		return "NOT_FOUND"
	case CodeMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case CodeBadRequest:
		return "BAD_REQUEST"
	case CodeInternal:
		return "INTERNAL"
	case CodeUnsupportedContentFormat:
		return "UNSUPPORTED_CONTENT_FORMAT"
	default:
		return "UNKNOWN"
	}
}

// ProtocolError is returned for every failure the CoAP layer must map to a
// response code.
type ProtocolError struct {
	Code ProtocolCode
	Msg  string
}

func (e *ProtocolError) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func NotFound(format string, args ...any) error {
	return &ProtocolError{Code: CodeNotFound, Msg: fmt.Sprintf(format, args...)}
}

func MethodNotAllowed(format string, args ...any) error {
	return &ProtocolError{Code: CodeMethodNotAllowed, Msg: fmt.Sprintf(format, args...)}
}

func BadRequest(format string, args ...any) error {
	return &ProtocolError{Code: CodeBadRequest, Msg: fmt.Sprintf(format, args...)}
}

func Internal(format string, args ...any) error {
	return &ProtocolError{Code: CodeInternal, Msg: fmt.Sprintf(format, args...)}
}

func UnsupportedContentFormat(format string, args ...any) error {
	return &ProtocolError{Code: CodeUnsupportedContentFormat, Msg: fmt.Sprintf(format, args...)}
}

// AsProtocol extracts a *ProtocolError from err, if any.
func AsProtocol(err error) (*ProtocolError, bool) {
	pe, ok := err.(*ProtocolError)
	return pe, ok
}

// EngineCode enumerates the misuse errors surfaced only to the host
// runtime, never mapped to a CoAP response code.
type EngineCode int

const (
	CodeMemory EngineCode = iota
	CodeLogic
	CodeInputArg
)

func (c EngineCode) String() string {
	switch c {
	case CodeMemory:
		return "MEMORY"
	case CodeLogic:
		return "LOGIC"
	case CodeInputArg:
		return "INPUT_ARG"
	default:
		return "UNKNOWN"
	}
}

// EngineError signals misuse of the engine API: capacity exhaustion,
// out-of-sequence calls, or (debug builds only, in the reference) invalid
// registration data.
type EngineError struct {
	Code EngineCode
	Msg  string
}

func (e *EngineError) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func Memory(format string, args ...any) error {
	return &EngineError{Code: CodeMemory, Msg: fmt.Sprintf(format, args...)}
}

func Logic(format string, args ...any) error {
	return &EngineError{Code: CodeLogic, Msg: fmt.Sprintf(format, args...)}
}

func InputArg(format string, args ...any) error {
	return &EngineError{Code: CodeInputArg, Msg: fmt.Sprintf(format, args...)}
}

// AsEngine extracts an *EngineError from err, if any.
func AsEngine(err error) (*EngineError, bool) {
	ee, ok := err.(*EngineError)
	return ee, ok
}
