package dm

import (
	"github.com/cuemby/lwm2mcore/pkg/coapshim"
	"github.com/cuemby/lwm2mcore/pkg/dmerr"
	"github.com/cuemby/lwm2mcore/pkg/dmpath"
	"github.com/cuemby/lwm2mcore/pkg/dmvalue"
)

// WriteKind distinguishes the two Write flavors of spec §4.4.2.
type WriteKind int

const (
	WriteReplace WriteKind = iota
	WritePartialUpdate
)

// WriteOperation implements spec §4.4.2. It is transactional: every
// Object reached by a WriteEntry call is touched (transaction_begin
// fires once, on first touch), and End() runs the validate+commit pass.
//
// Under WriteReplace, the first write reaching a given Instance resets
// it (via InstReset) before applying the write, and the first write
// reaching a given multi-instance Resource (when the operation targets
// that resource directly) deletes every existing Resource Instance via
// ResInstDelete first — matching "replace clears everything not
// present in this request" semantics at whichever granularity the
// request targets. Bootstrap writes bypass the regular
// IsWritable/MethodNotAllowed gating (spec §4.4.2 "Bootstrap Write").
type WriteOperation struct {
	*opBase
	kind         WriteKind
	resetDone    map[[2]uint16]bool // (oid,iid) already inst_reset this op
	resResetDone map[[3]uint16]bool // (oid,iid,rid) already res_inst_delete-wiped this op
}

// BeginWrite starts a Write operation of the given kind, rooted at p
// only in the sense that p names the single entry this call targets;
// unlike Read, Write entries are supplied one at a time via WriteEntry,
// since a single CoAP Write can carry many resource records.
func (dm *DataModel) BeginWrite(p dmpath.Path, kind WriteKind, isBootstrap bool) (*WriteOperation, error) {
	base := newOpBase(dm, coapshim.OpWrite, p, isBootstrap, true)
	if err := dm.beginOn(base); err != nil {
		return nil, err
	}
	return &WriteOperation{
		opBase:       base,
		kind:         kind,
		resetDone:    map[[2]uint16]bool{},
		resResetDone: map[[3]uint16]bool{},
	}, nil
}

// WriteEntry applies one (path, value) record. path must name a
// resource or resource instance within the operation's base object
// subtree (spec §4.4.2 invariant: every record's path is validated
// against the request's target before being applied).
func (wo *WriteOperation) WriteEntry(path dmpath.Path, value dmvalue.Value) error {
	if dmpath.OutsideBase(path, wo.basePath) {
		return wo.fail(dmerr.BadRequest("write path %s outside request target %s", path.String(), wo.basePath.String()))
	}
	if !path.Has(3) {
		return wo.fail(dmerr.BadRequest("write path %s does not name a resource", path.String()))
	}

	dm := wo.dm
	dm.mu.Lock()
	loc := dm.locateLocked(path)
	dm.mu.Unlock()

	if loc.Object != nil && loc.Instance == nil && wo.isBootstrap {
		// Bootstrap Write may target a not-yet-existing Instance; the
		// engine synthesizes inst_create(iid) before proceeding (spec
		// §4.4.2 "bootstrap writes may additionally target a
		// non-existent instance").
		if err := wo.touch(loc.Object); err != nil {
			return wo.fail(err)
		}
		if loc.Object.Handlers.InstCreate == nil {
			return wo.fail(dmerr.Internal("object %d has no inst_create handler", loc.Object.OID))
		}
		if err := loc.Object.Handlers.InstCreate(path.IID()); err != nil {
			return wo.fail(err)
		}
		dm.mu.Lock()
		loc = dm.locateLocked(path)
		dm.mu.Unlock()
	}

	if loc.Object == nil || loc.Instance == nil || loc.Resource == nil {
		return wo.fail(dmerr.NotFound("no entity at %s", path.String()))
	}
	if err := wo.touch(loc.Object); err != nil {
		return wo.fail(err)
	}

	if !wo.isBootstrap && !loc.Resource.Operation.IsWritable() {
		return wo.fail(dmerr.MethodNotAllowed("resource %s is not writable", path.String()))
	}
	if !dmvalue.TypesCompatible(value.Type, loc.Resource.Type) {
		return wo.fail(dmerr.BadRequest("value type %s incompatible with resource type %s", value.Type, loc.Resource.Type))
	}

	resetMutated := false
	if wo.kind == WriteReplace {
		switch {
		case wo.basePath.Is(dmpath.LevelInstance):
			// WRITE_REPLACE on an instance: inst_reset fires once per
			// instance, before any entry reaching it is applied.
			key := [2]uint16{loc.Object.OID, loc.Instance.IID}
			if !wo.resetDone[key] {
				wo.resetDone[key] = true
				if loc.Object.Handlers.InstReset == nil {
					return wo.fail(dmerr.Internal("object %d instance %d has no inst_reset handler", loc.Object.OID, loc.Instance.IID))
				}
				if err := loc.Object.Handlers.InstReset(loc.Instance.IID); err != nil {
					return wo.fail(err)
				}
				resetMutated = true
			}
		case wo.basePath.Is(dmpath.LevelResource) && loc.Resource.Operation.IsMultiInstance():
			// WRITE_REPLACE on a multi-instance resource (spec §4.4.2,
			// E2E-5): every existing RIID is deleted before entries land.
			key := [3]uint16{loc.Object.OID, loc.Instance.IID, loc.Resource.RID}
			if !wo.resResetDone[key] {
				wo.resResetDone[key] = true
				if loc.Object.Handlers.ResInstDelete == nil {
					return wo.fail(dmerr.Internal("object %d has no res_inst_delete handler", loc.Object.OID))
				}
				for _, existing := range append([]uint16(nil), loc.Resource.RIIDs...) {
					if err := loc.Object.Handlers.ResInstDelete(loc.Instance.IID, loc.Resource.RID, existing); err != nil {
						return wo.fail(err)
					}
				}
				resetMutated = true
			}
		}
	}

	if resetMutated {
		// inst_reset / the res_inst_delete sweep may have replaced the
		// adapter's descriptor (new RIIDs slice, reset resource values);
		// re-locate so the rest of this call sees current state.
		dm.mu.Lock()
		loc = dm.locateLocked(path)
		dm.mu.Unlock()
		if loc.Object == nil || loc.Instance == nil || loc.Resource == nil {
			return wo.fail(dmerr.NotFound("no entity at %s", path.String()))
		}
	}

	riid := uint16(InvalidID)
	if path.Has(4) {
		riid = path.RIID()
		if loc.Resource.Operation.IsMultiInstance() && !loc.Resource.HasRIID(riid) {
			if loc.Object.Handlers.ResInstCreate == nil {
				return wo.fail(dmerr.Internal("object %d has no res_inst_create handler", loc.Object.OID))
			}
			if err := loc.Object.Handlers.ResInstCreate(loc.Instance.IID, loc.Resource.RID, riid); err != nil {
				return wo.fail(err)
			}
		}
	}

	if loc.Object.Handlers.ResWrite == nil {
		return wo.fail(dmerr.Internal("object %d has no res_write handler", loc.Object.OID))
	}
	if err := loc.Object.Handlers.ResWrite(loc.Instance.IID, loc.Resource.RID, riid, value); err != nil {
		return wo.fail(err)
	}

	dm.mu.Lock()
	dm.notify(Change{Kind: ChangeResourceValue, OID: loc.Object.OID, IID: loc.Instance.IID, RID: loc.Resource.RID, RIID: riid})
	dm.mu.Unlock()
	return nil
}

// End runs the transactional validate/commit pass across every object
// touched by this Write and releases the operation slot.
func (wo *WriteOperation) End() error { return wo.end() }
