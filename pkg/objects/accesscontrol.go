package objects

import (
	"sort"
	"sync"

	"github.com/cuemby/lwm2mcore/pkg/dm"
	"github.com/cuemby/lwm2mcore/pkg/dmerr"
	"github.com/cuemby/lwm2mcore/pkg/dmvalue"
)

// AccessControl resource IDs (standard LwM2M Access Control Object 2).
const (
	AccessControlRIDObjectID         uint16 = 0
	AccessControlRIDObjectInstanceID uint16 = 1
	AccessControlRIDACL              uint16 = 2 // multi-instance, RIID = SSID
	AccessControlRIDOwner            uint16 = 3
)

// AccessControlInstance names the access rights (ACL, keyed by SSID) for
// one target Object Instance, plus its owning SSID.
type AccessControlInstance struct {
	IID              uint16
	TargetObjectID   uint16
	TargetInstanceID uint16
	ACL              map[uint16]int64 // ssid -> access bitmask
	Owner            uint16
}

func (i AccessControlInstance) clone() AccessControlInstance {
	out := i
	out.ACL = make(map[uint16]int64, len(i.ACL))
	for k, v := range i.ACL {
		out.ACL[k] = v
	}
	return out
}

// AccessControl is the built-in adapter for Object 2 — the one object,
// besides Server, a bootstrap server is permitted to Read at object
// granularity (spec §4.4.1's bootstrap constraint, SPEC_FULL §4.5).
type AccessControl struct {
	mu        sync.Mutex
	obj       *dm.Object
	instances []*AccessControlInstance
	shadow    []AccessControlInstance
}

// NewAccessControl creates an empty AccessControl adapter.
func NewAccessControl() *AccessControl {
	return &AccessControl{}
}

// Object returns the wired dm.Object descriptor.
func (a *AccessControl) Object() *dm.Object {
	a.obj = &dm.Object{
		OID: 2,
		Handlers: dm.Handlers{
			InstCreate:          a.instCreate,
			InstDelete:          a.instDelete,
			InstReset:           a.instReset,
			ResRead:             a.resRead,
			ResWrite:            a.resWrite,
			ResInstCreate:       a.resInstCreate,
			ResInstDelete:       a.resInstDelete,
			TransactionBegin:    a.transactionBegin,
			TransactionValidate: a.transactionValidate,
			TransactionEnd:      a.transactionEnd,
		},
	}
	return a.obj
}

func accessControlDescriptor(inst *AccessControlInstance) *dm.Instance {
	riids := make([]uint16, 0, len(inst.ACL))
	for ssid := range inst.ACL {
		riids = append(riids, ssid)
	}
	sort.Slice(riids, func(i, j int) bool { return riids[i] < riids[j] })
	return &dm.Instance{
		IID: inst.IID,
		Resources: []*dm.Resource{
			{RID: AccessControlRIDObjectID, Type: dmvalue.TypeInt, Operation: dm.OpR},
			{RID: AccessControlRIDObjectInstanceID, Type: dmvalue.TypeInt, Operation: dm.OpR},
			{RID: AccessControlRIDACL, Type: dmvalue.TypeInt, Operation: dm.OpRWM, MaxInstCount: 32, RIIDs: riids},
			{RID: AccessControlRIDOwner, Type: dmvalue.TypeInt, Operation: dm.OpRW},
		},
	}
}

func (a *AccessControl) find(iid uint16) *AccessControlInstance {
	for _, inst := range a.instances {
		if inst.IID == iid {
			return inst
		}
	}
	return nil
}

func (a *AccessControl) syncDescriptor(iid uint16) {
	inst := a.find(iid)
	if inst == nil {
		return
	}
	for idx, d := range a.obj.Instances {
		if d.IID == iid {
			a.obj.Instances[idx] = accessControlDescriptor(inst)
			return
		}
	}
}

// Seed registers an initial AccessControl instance outside of any engine
// operation.
func (a *AccessControl) Seed(inst AccessControlInstance) {
	a.mu.Lock()
	defer a.mu.Unlock()
	stored := inst.clone()
	a.instances = append(a.instances, &stored)
	a.obj.Instances = append(a.obj.Instances, accessControlDescriptor(&stored))
	a.sortLocked()
}

// sortLocked keeps both the adapter's own instance list and the
// registered object's descriptor list sorted ascending by IID.
func (a *AccessControl) sortLocked() {
	sort.Slice(a.instances, func(i, j int) bool { return a.instances[i].IID < a.instances[j].IID })
	sort.Slice(a.obj.Instances, func(i, j int) bool { return a.obj.Instances[i].IID < a.obj.Instances[j].IID })
}

func (a *AccessControl) instCreate(iid uint16) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	inst := &AccessControlInstance{IID: iid, ACL: map[uint16]int64{}}
	a.instances = append(a.instances, inst)
	a.obj.Instances = append(a.obj.Instances, accessControlDescriptor(inst))
	a.sortLocked()
	return nil
}

func (a *AccessControl) instDelete(iid uint16) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	found := false
	for idx, inst := range a.instances {
		if inst.IID == iid {
			a.instances = append(a.instances[:idx], a.instances[idx+1:]...)
			found = true
			break
		}
	}
	if !found {
		return dmerr.Internal("access control: instance %d not found", iid)
	}
	for idx, d := range a.obj.Instances {
		if d.IID == iid {
			a.obj.Instances = append(a.obj.Instances[:idx], a.obj.Instances[idx+1:]...)
			break
		}
	}
	return nil
}

// instReset implements the WRITE_REPLACE instance-level contract (spec
// §4.4.2): clears the ACL map and target/owner fields back to zero value.
func (a *AccessControl) instReset(iid uint16) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	inst := a.find(iid)
	if inst == nil {
		return dmerr.NotFound("access control: instance %d not found", iid)
	}
	inst.TargetObjectID = 0
	inst.TargetInstanceID = 0
	inst.Owner = 0
	inst.ACL = map[uint16]int64{}
	a.syncDescriptor(iid)
	return nil
}

func (a *AccessControl) resRead(iid, rid, riid uint16) (dmvalue.Value, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	inst := a.find(iid)
	if inst == nil {
		return dmvalue.Value{}, dmerr.NotFound("access control: instance %d not found", iid)
	}
	switch rid {
	case AccessControlRIDObjectID:
		return dmvalue.Int(int64(inst.TargetObjectID)), nil
	case AccessControlRIDObjectInstanceID:
		return dmvalue.Int(int64(inst.TargetInstanceID)), nil
	case AccessControlRIDACL:
		v, ok := inst.ACL[riid]
		if !ok {
			return dmvalue.Value{}, dmerr.NotFound("access control: no ACL entry for ssid %d", riid)
		}
		return dmvalue.Int(v), nil
	case AccessControlRIDOwner:
		return dmvalue.Int(int64(inst.Owner)), nil
	default:
		return dmvalue.Value{}, dmerr.NotFound("access control: resource %d not found", rid)
	}
}

func (a *AccessControl) resWrite(iid, rid, riid uint16, value dmvalue.Value) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	inst := a.find(iid)
	if inst == nil {
		return dmerr.NotFound("access control: instance %d not found", iid)
	}
	switch rid {
	case AccessControlRIDObjectID:
		inst.TargetObjectID = uint16(value.Int)
	case AccessControlRIDObjectInstanceID:
		inst.TargetInstanceID = uint16(value.Int)
	case AccessControlRIDACL:
		inst.ACL[riid] = value.Int
	case AccessControlRIDOwner:
		inst.Owner = uint16(value.Int)
	default:
		return dmerr.NotFound("access control: resource %d not found", rid)
	}
	return nil
}

func (a *AccessControl) resInstCreate(iid, rid, riid uint16) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rid != AccessControlRIDACL {
		return dmerr.MethodNotAllowed("access control: resource %d has no instances", rid)
	}
	inst := a.find(iid)
	if inst == nil {
		return dmerr.NotFound("access control: instance %d not found", iid)
	}
	if _, exists := inst.ACL[riid]; !exists {
		inst.ACL[riid] = 0
	}
	a.syncDescriptor(iid)
	return nil
}

func (a *AccessControl) resInstDelete(iid, rid, riid uint16) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rid != AccessControlRIDACL {
		return dmerr.MethodNotAllowed("access control: resource %d has no instances", rid)
	}
	inst := a.find(iid)
	if inst == nil {
		return dmerr.NotFound("access control: instance %d not found", iid)
	}
	delete(inst.ACL, riid)
	a.syncDescriptor(iid)
	return nil
}

func (a *AccessControl) transactionBegin() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shadow = make([]AccessControlInstance, len(a.instances))
	for i, inst := range a.instances {
		a.shadow[i] = inst.clone()
	}
	return nil
}

// transactionValidate enforces that every target (TargetObjectID,
// TargetInstanceID) pair is unique across instances — two AccessControl
// records for the same target instance would make the "effective ACL"
// for that instance ambiguous.
func (a *AccessControl) transactionValidate() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	type target struct{ oid, iid uint16 }
	seen := make(map[target]bool, len(a.instances))
	for _, inst := range a.instances {
		t := target{inst.TargetObjectID, inst.TargetInstanceID}
		if seen[t] {
			return dmerr.BadRequest("access control: duplicate entry for /%d/%d", t.oid, t.iid)
		}
		seen[t] = true
	}
	return nil
}

func (a *AccessControl) transactionEnd(result error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if result == nil {
		a.shadow = nil
		return
	}
	restored := make([]*AccessControlInstance, len(a.shadow))
	descriptors := make([]*dm.Instance, len(a.shadow))
	for i := range a.shadow {
		v := a.shadow[i].clone()
		restored[i] = &v
		descriptors[i] = accessControlDescriptor(&v)
	}
	a.instances = restored
	a.obj.Instances = descriptors
	a.shadow = nil
}
