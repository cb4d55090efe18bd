package dm

import (
	"github.com/cuemby/lwm2mcore/pkg/coapshim"
	"github.com/cuemby/lwm2mcore/pkg/dmerr"
	"github.com/cuemby/lwm2mcore/pkg/dmpath"
)

// Execute implements spec §4.4.5. Execute is not transactional: a
// single resource either runs its action and reports success, or it
// doesn't run at all.
func (dm *DataModel) Execute(p dmpath.Path, arg []byte) error {
	base := newOpBase(dm, coapshim.OpExecute, p, false, false)
	if err := dm.beginOn(base); err != nil {
		return err
	}
	defer base.end()

	if !p.Has(3) {
		return base.fail(dmerr.BadRequest("execute target %s does not name a resource", p.String()))
	}

	dm.mu.Lock()
	loc := dm.locateLocked(p)
	dm.mu.Unlock()

	if loc.Object == nil || loc.Instance == nil || loc.Resource == nil {
		return base.fail(dmerr.NotFound("no entity at %s", p.String()))
	}
	if err := base.touch(loc.Object); err != nil {
		return base.fail(err)
	}
	if !loc.Resource.Operation.IsExecutable() {
		return base.fail(dmerr.MethodNotAllowed("resource %s is not executable", p.String()))
	}
	if loc.Object.Handlers.ResExecute == nil {
		return base.fail(dmerr.Internal("object %d has no res_execute handler", loc.Object.OID))
	}
	return base.fail(loc.Object.Handlers.ResExecute(loc.Instance.IID, loc.Resource.RID, arg))
}
