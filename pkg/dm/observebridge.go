package dm

import (
	"github.com/cuemby/lwm2mcore/pkg/dmpath"
	"github.com/cuemby/lwm2mcore/pkg/dmvalue"
)

// HasReadableContent reports whether p (always a Resource-level path
// here, per observe.Table's own check) names a readable resource, so
// the Observation Table can reject OBSERVE on a write-only or
// executable resource (spec §4.7.1). Satisfies observe.ContentChecker.
func (dm *DataModel) HasReadableContent(p dmpath.Path) bool {
	loc := dm.locate(p)
	if loc.Resource == nil {
		return false
	}
	return loc.Resource.Operation.IsReadable()
}

// ReadCurrent samples the value currently addressed by p, for the
// Observation Table's baseline capture and the notification evaluator's
// per-tick comparison (spec §4.7.5). Multi-instance resources report no
// single current value; callers observe a specific Resource Instance
// instead. Satisfies observe.ValueReader.
func (dm *DataModel) ReadCurrent(p dmpath.Path) (dmvalue.Value, bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	loc := dm.locateLocked(p)
	if loc.Object == nil || loc.Instance == nil || loc.Resource == nil {
		return dmvalue.Value{}, false
	}
	if !loc.Resource.Operation.IsReadable() {
		return dmvalue.Value{}, false
	}
	riid := InvalidID
	if loc.Resource.Operation.IsMultiInstance() {
		if loc.RIID == InvalidID {
			return dmvalue.Value{}, false
		}
		riid = loc.RIID
	}
	v, err := readResourceInstance(loc.Object, loc.Instance, loc.Resource, riid)
	if err != nil {
		return dmvalue.Value{}, false
	}
	return v, true
}

// ExpandObservable implements the root-path expansion spec §4.7.2
// shares with Read-Composite's §4.4.9: "/" iterates every registered
// Object in turn. It returns the concrete Resource and Resource
// Instance paths beneath p, since those are the only granularities
// ReadCurrent can sample; an Object with nothing readable contributes
// no paths (NO_RECORD) rather than an error. A non-root p passes
// through unchanged as a one-element result. Satisfies
// observe.PathExpander.
func (dm *DataModel) ExpandObservable(p dmpath.Path) []dmpath.Path {
	if p.Has(1) {
		return []dmpath.Path{p}
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	var out []dmpath.Path
	for _, obj := range dm.objects {
		out = append(out, expandObjectObservable(obj)...)
	}
	return out
}

func expandObjectObservable(obj *Object) []dmpath.Path {
	var out []dmpath.Path
	for _, inst := range obj.Instances {
		if inst.IID == InvalidID {
			continue
		}
		for _, res := range inst.Resources {
			if !res.Operation.IsReadable() {
				continue
			}
			if !res.Operation.IsMultiInstance() {
				out = append(out, dmpath.Resource(obj.OID, inst.IID, res.RID))
				continue
			}
			for _, riid := range res.RIIDs {
				out = append(out, dmpath.ResourceInstance(obj.OID, inst.IID, res.RID, riid))
			}
		}
	}
	return out
}
