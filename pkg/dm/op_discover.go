package dm

import (
	"github.com/cuemby/lwm2mcore/pkg/coapshim"
	"github.com/cuemby/lwm2mcore/pkg/dmerr"
	"github.com/cuemby/lwm2mcore/pkg/dmpath"
)

// DiscoverRecord is one line of a Discover response, spec §4.4.6:
// Version is set only on the object record; HasDim/Dim are set only on
// multi-instance resource records (Dim may legitimately be zero, when
// the resource currently has no instances).
type DiscoverRecord struct {
	Path    dmpath.Path
	Version string
	HasDim  bool
	Dim     int
}

// DiscoverOperation implements spec §4.4.6. It lists the object record
// (only when the target is object-level), the matching instance
// record(s), every matching resource record — multi-instance resources
// report their cardinality via Dim even with zero instances — and a
// resource-instance record for each existing RIID of a matching
// multi-instance resource.
type DiscoverOperation struct {
	*opBase
	records []DiscoverRecord
	pos     int
}

// BeginDiscover starts a Discover operation rooted at p.
func (dm *DataModel) BeginDiscover(p dmpath.Path) (*DiscoverOperation, error) {
	base := newOpBase(dm, coapshim.OpDiscover, p, false, false)
	if err := dm.beginOn(base); err != nil {
		return nil, err
	}
	do := &DiscoverOperation{opBase: base}

	dm.mu.Lock()
	loc := dm.locateLocked(p)
	dm.mu.Unlock()

	if loc.Object == nil {
		do.fail(dmerr.NotFound("object %d not registered", p.OID()))
		do.end()
		return nil, do.err
	}
	if err := do.touch(loc.Object); err != nil {
		do.fail(err)
		do.end()
		return nil, err
	}

	switch {
	case p.Has(3):
		if loc.Resource == nil {
			do.fail(dmerr.NotFound("no entity at %s", p.String()))
			do.end()
			return nil, do.err
		}
		do.records = discoverResource(loc.Object.OID, loc.Instance.IID, loc.Resource)
	case p.Has(2):
		if loc.Instance == nil {
			do.fail(dmerr.NotFound("no entity at %s", p.String()))
			do.end()
			return nil, do.err
		}
		do.records = discoverInstance(loc.Object.OID, loc.Instance)
	default:
		do.records = discoverObject(loc.Object)
	}
	return do, nil
}

// discoverObject is used only when the request targets the object
// itself: the object record (carrying Version) precedes every
// instance's records.
func discoverObject(obj *Object) []DiscoverRecord {
	out := []DiscoverRecord{{Path: dmpath.Object(obj.OID), Version: obj.Version}}
	for _, inst := range obj.Instances {
		if inst.IID == InvalidID {
			continue
		}
		out = append(out, discoverInstance(obj.OID, inst)...)
	}
	return out
}

func discoverInstance(oid uint16, inst *Instance) []DiscoverRecord {
	out := []DiscoverRecord{{Path: dmpath.Instance(oid, inst.IID)}}
	for _, res := range inst.Resources {
		out = append(out, discoverResource(oid, inst.IID, res)...)
	}
	return out
}

// discoverResource always emits the resource's own record; a
// multi-instance resource additionally carries Dim (its RIID count,
// which may be zero) and is followed by one record per existing RIID.
func discoverResource(oid uint16, iid uint16, res *Resource) []DiscoverRecord {
	rec := DiscoverRecord{Path: dmpath.Resource(oid, iid, res.RID)}
	if !res.Operation.IsMultiInstance() {
		return []DiscoverRecord{rec}
	}
	rec.HasDim = true
	rec.Dim = len(res.RIIDs)
	out := make([]DiscoverRecord, 0, 1+len(res.RIIDs))
	out = append(out, rec)
	for _, riid := range res.RIIDs {
		out = append(out, DiscoverRecord{Path: dmpath.ResourceInstance(oid, iid, res.RID, riid)})
	}
	return out
}

// NextRecord returns the next discovered record, or ok == false once
// exhausted.
func (do *DiscoverOperation) NextRecord() (DiscoverRecord, bool) {
	if do.pos >= len(do.records) {
		return DiscoverRecord{}, false
	}
	r := do.records[do.pos]
	do.pos++
	return r, true
}

// End releases the operation slot.
func (do *DiscoverOperation) End() error { return do.end() }
