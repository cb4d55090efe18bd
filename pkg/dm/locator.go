package dm

import (
	"github.com/cuemby/lwm2mcore/pkg/dmerr"
	"github.com/cuemby/lwm2mcore/pkg/dmpath"
)

// Located is the result of resolving a Path against the registry: each
// field is non-nil only as far as the path's Len() reaches, and a miss
// at any level stops the walk (spec §4.3: locate never invents the
// missing level).
type Located struct {
	Object   *Object
	Instance *Instance
	Resource *Resource
	RIID     uint16 // InvalidID unless path.Has(4) and the instance exists
}

// locate walks p against dm's registered objects, stopping at the first
// missing level. It does not itself decide whether a miss is an error;
// callers translate a nil field into the appropriate dmerr.NotFound at
// the right granularity (spec §4.4.1 "Read" discusses this precisely:
// a miss on Object is NOT_FOUND, a miss deeper down after a partial
// match may instead elide that piece of a composite response).
func (dm *DataModel) locate(p dmpath.Path) Located {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.locateLocked(p)
}

func (dm *DataModel) locateLocked(p dmpath.Path) Located {
	var loc Located
	loc.RIID = InvalidID

	if !p.Has(1) {
		return loc
	}
	loc.Object = dm.findObjectLocked(p.OID())
	if loc.Object == nil || !p.Has(2) {
		return loc
	}
	loc.Instance = loc.Object.FindInstance(p.IID())
	if loc.Instance == nil || !p.Has(3) {
		return loc
	}
	loc.Resource = loc.Instance.FindResource(p.RID())
	if loc.Resource == nil || !p.Has(4) {
		return loc
	}
	if loc.Resource.HasRIID(p.RIID()) {
		loc.RIID = p.RIID()
	}
	return loc
}

// requireObject resolves just the Object level, surfacing a NOT_FOUND
// protocol error on a miss.
func (dm *DataModel) requireObject(p dmpath.Path) (*Object, error) {
	loc := dm.locate(p)
	if loc.Object == nil {
		return nil, dmerr.NotFound("object %d not registered", p.OID())
	}
	return loc.Object, nil
}
