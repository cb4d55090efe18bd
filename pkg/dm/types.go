// Package dm implements the LwM2M data model engine: the Object registry,
// entity locator, and per-operation state machine described in spec §4.
// The engine does not own the memory backing Objects or Instances; callers
// (built-in or user adapters) own them and the engine holds only a
// fixed-size ordered index, exactly as spec §3 "Lifecycle" describes.
package dm

import "github.com/cuemby/lwm2mcore/pkg/dmvalue"

// ResOp is a resource's operation tag.
type ResOp int

const (
	OpR ResOp = iota
	OpW
	OpRW
	OpE
	OpRM
	OpWM
	OpRWM
)

// IsMultiInstance reports whether op is one of the "M"-suffixed
// multi-instance variants.
func (op ResOp) IsMultiInstance() bool {
	return op == OpRM || op == OpWM || op == OpRWM
}

// IsReadable reports whether a resource with this operation may be read.
func (op ResOp) IsReadable() bool {
	return op == OpR || op == OpRW || op == OpRM || op == OpRWM
}

// IsWritable reports whether a resource with this operation may be
// written under regular (non-bootstrap) semantics.
func (op ResOp) IsWritable() bool {
	return op == OpW || op == OpRW || op == OpWM || op == OpRWM
}

// IsExecutable reports whether a resource with this operation may be
// executed.
func (op ResOp) IsExecutable() bool {
	return op == OpE
}

func (op ResOp) String() string {
	switch op {
	case OpR:
		return "R"
	case OpW:
		return "W"
	case OpRW:
		return "RW"
	case OpE:
		return "E"
	case OpRM:
		return "RM"
	case OpWM:
		return "WM"
	case OpRWM:
		return "RWM"
	default:
		return "UNKNOWN"
	}
}

// InvalidID is the reserved "unused slot" / "invalid" sentinel for
// IID/RID/RIID, matching spec §3: "65535 is reserved as invalid".
const InvalidID uint16 = 0xFFFF

// Resource is a constant-shape descriptor for one resource definition
// within an Instance. Multi-instance resources additionally carry
// MaxInstCount and a RIIDs slice, kept sorted ascending with no
// duplicates (spec §3 invariants).
type Resource struct {
	RID          uint16
	Type         dmvalue.Type // zero value for Execute resources, which carry no type
	Operation    ResOp
	MaxInstCount int      // multi-instance only
	RIIDs        []uint16 // sorted ascending, multi-instance only
}

// HasRIID reports whether riid is present in the resource's RIID list.
func (r *Resource) HasRIID(riid uint16) bool {
	for _, id := range r.RIIDs {
		if id == riid {
			return true
		}
	}
	return false
}

// Instance is one Object Instance: an IID plus its resource slots. IID ==
// InvalidID marks a free slot; per spec §3, instance arrays are kept
// sorted ascending by IID with invalid slots trailing.
type Instance struct {
	IID       uint16
	Resources []*Resource
}

// FindResource returns the Resource with the given RID, or nil.
func (i *Instance) FindResource(rid uint16) *Resource {
	for _, r := range i.Resources {
		if r.RID == rid {
			return r
		}
	}
	return nil
}

// Handlers is the object's handler table (spec §3). Every entry is
// optional unless required by the operations actually performed on the
// object (e.g. a res_execute handler is required iff any resource has
// operation E).
type Handlers struct {
	InstCreate func(iid uint16) error
	InstDelete func(iid uint16) error
	InstReset  func(iid uint16) error

	// ResRead reads one resource (or, for a multi-instance resource
	// instance, riid != InvalidID names which one).
	ResRead func(iid, rid, riid uint16) (dmvalue.Value, error)

	// ResWrite writes one resource (or resource instance).
	ResWrite func(iid, rid, riid uint16, value dmvalue.Value) error

	ResExecute func(iid, rid uint16, arg []byte) error

	ResInstCreate func(iid, rid, riid uint16) error
	ResInstDelete func(iid, rid, riid uint16) error

	TransactionBegin    func() error
	TransactionValidate func() error
	TransactionEnd      func(result error)
}

// Object is a constant-shape descriptor for one registered LwM2M Object:
// OID, optional version string, a capacity, the (user-owned) instance
// slots, and the handler table.
type Object struct {
	OID          uint16
	Version      string
	MaxInstCount int
	Instances    []*Instance
	Handlers     Handlers
}

// FindInstance returns the Instance with the given IID, or nil.
func (o *Object) FindInstance(iid uint16) *Instance {
	for _, inst := range o.Instances {
		if inst.IID == iid {
			return inst
		}
	}
	return nil
}

// CountInstances returns the number of non-invalid instance slots.
func (o *Object) CountInstances() int {
	n := 0
	for _, inst := range o.Instances {
		if inst.IID != InvalidID {
			n++
		}
	}
	return n
}
