package dm

import (
	"github.com/cuemby/lwm2mcore/pkg/coapshim"
	"github.com/cuemby/lwm2mcore/pkg/dmerr"
	"github.com/cuemby/lwm2mcore/pkg/dmpath"
)

// Object 3 (Device) is never deleted, bootstrap or not (spec §4.4.4).
const deviceOID uint16 = 3

// Security resource 1 (Bootstrap Server flag) and resource 17 (OSCORE
// link) drive the bootstrap-wipe survivor rules below. Duplicated here
// rather than imported from pkg/objects, which itself depends on pkg/dm.
const (
	securityOID                uint16 = 0
	securityRIDBootstrapServer uint16 = 1
	securityRIDOSCORELink      uint16 = 17
	oscoreOID                  uint16 = 21
)

// Delete implements spec §4.4.4. Unlike Read/Write/Create it completes
// in a single call: the path names one instance (regular delete) or one
// resource instance (multi-instance resource element delete); with
// isBootstrap it may also name a whole object or the root, wiping every
// instance that bootstrap-delete does not preserve. The transaction
// protocol runs to completion before Delete returns.
func (dm *DataModel) Delete(p dmpath.Path, isBootstrap bool) error {
	base := newOpBase(dm, coapshim.OpDelete, p, isBootstrap, true)
	if err := dm.beginOn(base); err != nil {
		return err
	}
	defer base.end()

	dm.mu.Lock()
	loc := dm.locateLocked(p)
	dm.mu.Unlock()

	switch {
	case p.Has(4):
		if loc.Object == nil || loc.Instance == nil || loc.Resource == nil || loc.RIID == InvalidID {
			return base.fail(dmerr.NotFound("no entity at %s", p.String()))
		}
		if err := base.touch(loc.Object); err != nil {
			return base.fail(err)
		}
		if loc.Object.Handlers.ResInstDelete == nil {
			return base.fail(dmerr.Internal("object %d has no res_inst_delete handler", loc.Object.OID))
		}
		if err := loc.Object.Handlers.ResInstDelete(loc.Instance.IID, loc.Resource.RID, loc.RIID); err != nil {
			return base.fail(err)
		}
	case p.Has(2):
		if loc.Object == nil || loc.Instance == nil {
			return base.fail(dmerr.NotFound("no instance at %s", p.String()))
		}
		if loc.Object.OID == deviceOID {
			return base.fail(dmerr.BadRequest("device object instance %d is never deleted", loc.Instance.IID))
		}
		if isBootstrap {
			if protected, err := dm.isProtectedBootstrapInstance(loc.Object.OID, loc.Instance.IID); err != nil {
				return base.fail(err)
			} else if protected {
				return base.fail(dmerr.BadRequest("instance %s is a bootstrap-server survivor and cannot be deleted explicitly", p.String()))
			}
		}
		if err := base.touch(loc.Object); err != nil {
			return base.fail(err)
		}
		if loc.Object.Handlers.InstDelete == nil {
			return base.fail(dmerr.Internal("object %d has no inst_delete handler", loc.Object.OID))
		}
		if err := loc.Object.Handlers.InstDelete(loc.Instance.IID); err != nil {
			return base.fail(err)
		}
	case p.Has(1) && isBootstrap:
		if loc.Object == nil {
			return base.fail(dmerr.NotFound("object %d not registered", p.OID()))
		}
		if loc.Object.OID == deviceOID {
			return base.fail(dmerr.BadRequest("device object is never deleted"))
		}
		if err := base.touch(loc.Object); err != nil {
			return base.fail(err)
		}
		protectedOSCORE, err := dm.protectedOSCOREInstances()
		if err != nil {
			return base.fail(err)
		}
		// Snapshot IIDs before deleting: InstDelete handlers shift
		// loc.Object.Instances in place (spec §3's lifecycle table), so
		// ranging over the live slice while deleting from it would skip
		// elements after each removal.
		for _, iid := range instanceIIDs(loc.Object) {
			if dm.skipsBootstrapWipe(loc.Object.OID, iid, protectedOSCORE) {
				continue
			}
			if loc.Object.Handlers.InstDelete != nil {
				if err := loc.Object.Handlers.InstDelete(iid); err != nil {
					return base.fail(err)
				}
			}
		}
	case !p.Has(1) && isBootstrap:
		return dm.bootstrapDeleteAll(base)
	default:
		return base.fail(dmerr.BadRequest("delete target %s is not a valid instance path", p.String()))
	}

	dm.mu.Lock()
	dm.notify(Change{Kind: ChangeInstanceDeleted, OID: p.OID(), IID: p.IID()})
	dm.mu.Unlock()
	return nil
}

// isProtectedBootstrapInstance reports whether (oid, iid) is one of
// the bootstrap-wipe survivors spec §4.4.4 forbids targeting explicitly:
// a bootstrap-server Security instance, or an OSCORE instance a
// bootstrap-server Security instance links to via resource 17.
func (dm *DataModel) isProtectedBootstrapInstance(oid, iid uint16) (bool, error) {
	switch oid {
	case securityOID:
		obj := dm.FindObject(securityOID)
		if obj == nil || obj.Handlers.ResRead == nil {
			return false, nil
		}
		return securityInstanceIsBootstrapServer(obj, iid)
	case oscoreOID:
		protected, err := dm.protectedOSCOREInstances()
		if err != nil {
			return false, err
		}
		return protected[iid], nil
	default:
		return false, nil
	}
}

// skipsBootstrapWipe reports whether (oid, iid) must survive an implicit
// bootstrap wipe (object-level or root), per spec §4.4.4.
func (dm *DataModel) skipsBootstrapWipe(oid, iid uint16, protectedOSCORE map[uint16]bool) bool {
	switch oid {
	case deviceOID:
		return true
	case securityOID:
		obj := dm.FindObject(securityOID)
		if obj == nil || obj.Handlers.ResRead == nil {
			return false
		}
		ok, err := securityInstanceIsBootstrapServer(obj, iid)
		return err == nil && ok
	case oscoreOID:
		return protectedOSCORE[iid]
	default:
		return false
	}
}

// securityInstanceIsBootstrapServer reads resource /0/iid/1 directly
// through the Security adapter's handler, bypassing the normal Read
// operation machinery since this check runs mid-delete, inside the
// engine's own lock.
func securityInstanceIsBootstrapServer(secObj *Object, iid uint16) (bool, error) {
	v, err := secObj.Handlers.ResRead(iid, securityRIDBootstrapServer, InvalidID)
	if err != nil {
		return false, nil
	}
	return v.Bool, nil
}

// protectedOSCOREInstances scans every registered Security
// instance for a true Bootstrap Server flag with an OSCORE link
// (resource 17) and returns the set of OSCORE instance IDs those links
// protect from a bootstrap wipe.
func (dm *DataModel) protectedOSCOREInstances() (map[uint16]bool, error) {
	protected := make(map[uint16]bool)
	secObj := dm.FindObject(securityOID)
	if secObj == nil || secObj.Handlers.ResRead == nil {
		return protected, nil
	}
	for _, inst := range secObj.Instances {
		if inst.IID == InvalidID {
			continue
		}
		isBootstrapServer, err := securityInstanceIsBootstrapServer(secObj, inst.IID)
		if err != nil || !isBootstrapServer {
			continue
		}
		link, err := secObj.Handlers.ResRead(inst.IID, securityRIDOSCORELink, InvalidID)
		if err != nil {
			continue
		}
		if link.ObjLnk.OID == oscoreOID {
			protected[link.ObjLnk.IID] = true
		}
	}
	return protected, nil
}

// bootstrapDeleteAll implements Bootstrap-Delete "/": every instance of
// every registered object is deleted, object by object in registration
// order, except the survivors spec §4.4.4 names: Device is skipped
// entirely, bootstrap-server Security instances and the OSCORE
// instances they link to are skipped individually.
func (dm *DataModel) bootstrapDeleteAll(base *opBase) error {
	dm.mu.Lock()
	objs := make([]*Object, len(dm.objects))
	copy(objs, dm.objects)
	dm.mu.Unlock()

	protectedOSCORE, err := dm.protectedOSCOREInstances()
	if err != nil {
		return base.fail(err)
	}

	for _, obj := range objs {
		if obj.OID == deviceOID {
			continue
		}
		if err := base.touch(obj); err != nil {
			return base.fail(err)
		}
		if obj.Handlers.InstDelete == nil {
			continue
		}
		// Snapshot IIDs before deleting, for the same reason as the
		// object-level branch of Delete above.
		for _, iid := range instanceIIDs(obj) {
			if dm.skipsBootstrapWipe(obj.OID, iid, protectedOSCORE) {
				continue
			}
			if err := obj.Handlers.InstDelete(iid); err != nil {
				return base.fail(err)
			}
		}
	}
	return nil
}

// instanceIIDs snapshots the non-invalid instance IIDs of obj at this
// moment, so callers can safely delete while iterating even though
// InstDelete handlers mutate obj.Instances's backing array in place.
func instanceIIDs(obj *Object) []uint16 {
	iids := make([]uint16, 0, len(obj.Instances))
	for _, inst := range obj.Instances {
		if inst.IID != InvalidID {
			iids = append(iids, inst.IID)
		}
	}
	return iids
}
