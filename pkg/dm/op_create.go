package dm

import (
	"github.com/cuemby/lwm2mcore/pkg/coapshim"
	"github.com/cuemby/lwm2mcore/pkg/dmerr"
	"github.com/cuemby/lwm2mcore/pkg/dmpath"
	"github.com/cuemby/lwm2mcore/pkg/dmvalue"
)

// CreateOperation implements spec §4.4.3. It is transactional: the new
// instance is staged via InstCreate, initial resource values are
// applied via the object's ResWrite handler, and the whole thing
// commits or rolls back together with End().
type CreateOperation struct {
	*opBase
	obj *Object
	iid uint16
}

// BeginCreate starts a Create operation against the Object named by p
// (p must be exactly an Object-level path). If iidHint is InvalidID the
// engine assigns the lowest free IID; a caller-chosen IID that is
// already occupied is a BadRequest.
func (dm *DataModel) BeginCreate(p dmpath.Path, iidHint uint16, isBootstrap bool) (*CreateOperation, error) {
	if p.Len() != 1 {
		return nil, dmerr.BadRequest("create target %s must name an object", p.String())
	}
	base := newOpBase(dm, coapshim.OpCreate, p, isBootstrap, true)
	if err := dm.beginOn(base); err != nil {
		return nil, err
	}

	dm.mu.Lock()
	obj := dm.findObjectLocked(p.OID())
	dm.mu.Unlock()
	if obj == nil {
		base.fail(dmerr.NotFound("object %d not registered", p.OID()))
		base.end()
		return nil, base.err
	}

	co := &CreateOperation{opBase: base, obj: obj}
	if err := co.touch(obj); err != nil {
		co.fail(err)
		co.end()
		return nil, err
	}

	if obj.MaxInstCount > 0 && obj.CountInstances() >= obj.MaxInstCount {
		// Spec §8 E2E-4: a Create that would exceed the object's
		// instance capacity is rejected as METHOD-NOT-ALLOWED, not
		// BAD-REQUEST or MEMORY (MEMORY is reserved for the registry's
		// own ANJ_DM_MAX_OBJECTS_NUMBER cap, spec §4.2).
		err := dmerr.MethodNotAllowed("object %d instance capacity reached", obj.OID)
		co.fail(err)
		co.end()
		return nil, err
	}

	iid := iidHint
	if iid == InvalidID {
		iid = firstFreeIID(obj)
	} else if obj.FindInstance(iid) != nil {
		err := dmerr.BadRequest("instance %d/%d already exists", obj.OID, iid)
		co.fail(err)
		co.end()
		return nil, err
	}
	if iid == InvalidID {
		err := dmerr.Memory("no free instance id for object %d", obj.OID)
		co.fail(err)
		co.end()
		return nil, err
	}

	if obj.Handlers.InstCreate != nil {
		if err := obj.Handlers.InstCreate(iid); err != nil {
			co.fail(err)
			co.end()
			return nil, err
		}
	}
	co.iid = iid
	return co, nil
}

func firstFreeIID(obj *Object) uint16 {
	used := make(map[uint16]bool, len(obj.Instances))
	for _, inst := range obj.Instances {
		if inst.IID != InvalidID {
			used[inst.IID] = true
		}
	}
	for iid := uint16(0); iid < InvalidID; iid++ {
		if !used[iid] {
			return iid
		}
	}
	return InvalidID
}

// IID returns the identifier assigned to the new instance.
func (co *CreateOperation) IID() uint16 { return co.iid }

// WriteEntry applies one initial resource value to the newly created
// instance, reusing the same writability/type-compatibility rules as
// a regular Write (spec §4.4.3: create's payload is validated exactly
// like a write to the new instance).
func (co *CreateOperation) WriteEntry(path dmpath.Path, value dmvalue.Value) error {
	if path.OID() != co.obj.OID || path.IID() != co.iid {
		return co.fail(dmerr.BadRequest("create payload path %s does not target new instance %d/%d", path.String(), co.obj.OID, co.iid))
	}
	if !path.Has(3) {
		return co.fail(dmerr.BadRequest("create payload path %s does not name a resource", path.String()))
	}

	inst := co.obj.FindInstance(co.iid)
	if inst == nil {
		return co.fail(dmerr.Internal("inst_create for %d/%d did not register the instance", co.obj.OID, co.iid))
	}
	res := inst.FindResource(path.RID())
	if res == nil {
		return co.fail(dmerr.NotFound("no resource %d on %d/%d", path.RID(), co.obj.OID, co.iid))
	}
	if !co.isBootstrap && !res.Operation.IsWritable() {
		return co.fail(dmerr.MethodNotAllowed("resource %s is not writable", path.String()))
	}
	if !dmvalue.TypesCompatible(value.Type, res.Type) {
		return co.fail(dmerr.BadRequest("value type %s incompatible with resource type %s", value.Type, res.Type))
	}

	riid := uint16(InvalidID)
	if path.Has(4) {
		riid = path.RIID()
	}
	if co.obj.Handlers.ResWrite == nil {
		return co.fail(dmerr.Internal("object %d has no res_write handler", co.obj.OID))
	}
	return co.fail(co.obj.Handlers.ResWrite(co.iid, res.RID, riid, value))
}

// End runs the transactional validate/commit pass and, on success,
// emits an instance-created change notification.
func (co *CreateOperation) End() error {
	err := co.end()
	if err == nil {
		co.dm.mu.Lock()
		co.dm.notify(Change{Kind: ChangeInstanceCreated, OID: co.obj.OID, IID: co.iid})
		co.dm.mu.Unlock()
	}
	return err
}
