package dm

import (
	"sort"
	"sync"

	"github.com/cuemby/lwm2mcore/pkg/dmerr"
	"github.com/cuemby/lwm2mcore/pkg/dmvalue"
)

// Limits bounds the fixed-capacity arrays the engine maintains, mirroring
// the reference's constructor-time sizing (no dynamic allocation once
// running).
type Limits struct {
	MaxObjects int
}

// DefaultLimits returns the limits the reference firmware ships with.
func DefaultLimits() Limits {
	return Limits{MaxObjects: 64}
}

// ChangeKind tags what changed in a Notify callback.
type ChangeKind int

const (
	ChangeResourceValue ChangeKind = iota
	ChangeInstanceCreated
	ChangeInstanceDeleted
	ChangeObjectAdded
	ChangeObjectRemoved
)

// Change describes one data model mutation, consumed by the observation
// subsystem's notification evaluator to know which paths to re-check.
type Change struct {
	Kind ChangeKind
	OID  uint16
	IID  uint16
	RID  uint16
	RIID uint16
}

// Watcher receives data model changes as they happen, synchronously,
// while the engine's mutex is held. Implementations must not call back
// into the DataModel — in particular, not read it — from OnChange;
// anything that needs the model's current state must defer to outside
// this call (see WatcherFunc's typical use below).
type Watcher interface {
	OnChange(c Change)
}

// WatcherFunc adapts a plain function to the Watcher interface, the
// same shape as the standard library's http.HandlerFunc, for callers
// that want to wire a one-line reaction (e.g. poking a pump to
// re-evaluate soon) without a dedicated named type.
type WatcherFunc func(Change)

// OnChange calls f.
func (f WatcherFunc) OnChange(c Change) { f(c) }

// DataModel is the Object registry plus the single in-flight operation
// slot. It owns no resource storage itself; Objects/Instances/Resources
// are supplied by the caller and merely indexed here, exactly as the
// reference keeps the data model a thin index over caller-owned memory.
type DataModel struct {
	mu      sync.Mutex
	limits  Limits
	objects []*Object // ascending OID

	current *opBase

	watchers []Watcher
}

// New creates an empty DataModel bounded by limits.
func New(limits Limits) *DataModel {
	return &DataModel{limits: limits}
}

// Watch registers w to receive every subsequent Change. Intended for the
// observation subsystem's Pump.
func (dm *DataModel) Watch(w Watcher) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.watchers = append(dm.watchers, w)
}

func (dm *DataModel) notify(c Change) {
	for _, w := range dm.watchers {
		w.OnChange(c)
	}
}

// AddObject registers obj. Objects are kept sorted ascending by OID; a
// duplicate OID or exceeding MaxObjects is a LOGIC/MEMORY engine error.
// Like every registry mutation, this may not be called while an
// operation is in flight.
func (dm *DataModel) AddObject(obj *Object) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.current != nil {
		return dmerr.Logic("cannot add object %d while an operation is in progress", obj.OID)
	}
	if dm.findObjectLocked(obj.OID) != nil {
		return dmerr.Logic("object %d already registered", obj.OID)
	}
	if dm.limits.MaxObjects > 0 && len(dm.objects) >= dm.limits.MaxObjects {
		return dmerr.Memory("object registry full (limit %d)", dm.limits.MaxObjects)
	}

	dm.objects = append(dm.objects, obj)
	sort.Slice(dm.objects, func(i, j int) bool { return dm.objects[i].OID < dm.objects[j].OID })
	dm.notify(Change{Kind: ChangeObjectAdded, OID: obj.OID})
	return nil
}

// RemoveObject unregisters the object with the given OID.
func (dm *DataModel) RemoveObject(oid uint16) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.current != nil {
		return dmerr.Logic("cannot remove object %d while an operation is in progress", oid)
	}
	for i, obj := range dm.objects {
		if obj.OID == oid {
			dm.objects = append(dm.objects[:i], dm.objects[i+1:]...)
			dm.notify(Change{Kind: ChangeObjectRemoved, OID: oid})
			return nil
		}
	}
	return dmerr.Logic("object %d not registered", oid)
}

// FindObject returns the registered Object with the given OID, or nil.
func (dm *DataModel) FindObject(oid uint16) *Object {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.findObjectLocked(oid)
}

func (dm *DataModel) findObjectLocked(oid uint16) *Object {
	for _, obj := range dm.objects {
		if obj.OID == oid {
			return obj
		}
	}
	return nil
}

// Objects returns a snapshot slice of every registered Object in
// ascending OID order. The slice is safe for the caller to range over;
// it is not connected to engine-internal state.
func (dm *DataModel) Objects() []*Object {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	out := make([]*Object, len(dm.objects))
	copy(out, dm.objects)
	return out
}

// ResourceType implements attr.TypeOracle: it reports the declared type
// and multi-instance flag for a resource, used to validate numeric-only
// (st) and single-instance-bool-only (edge) attributes.
func (dm *DataModel) ResourceType(oid, rid uint16) (typ dmvalue.Type, multiInstance bool, ok bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	obj := dm.findObjectLocked(oid)
	if obj == nil {
		return dmvalue.TypeNone, false, false
	}
	for _, inst := range obj.Instances {
		if inst.IID == InvalidID {
			continue
		}
		if r := inst.FindResource(rid); r != nil {
			return r.Type, r.Operation.IsMultiInstance(), true
		}
	}
	return dmvalue.TypeNone, false, false
}
