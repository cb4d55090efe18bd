package dm

import (
	"github.com/cuemby/lwm2mcore/pkg/coapshim"
	"github.com/cuemby/lwm2mcore/pkg/dmerr"
	"github.com/cuemby/lwm2mcore/pkg/dmpath"
	"github.com/cuemby/lwm2mcore/pkg/dmvalue"
)

// Entry is one (path, value) pair produced by a read-shaped operation,
// the unit NextEntry yields and BuildMsg encodes downstream (spec §4.8).
type Entry struct {
	Path  dmpath.Path
	Value dmvalue.Value
}

// ReadOperation implements spec §4.4.1. Read never mutates, so it is
// not transactional; its entries are computed eagerly at Begin time and
// streamed out one at a time via NextEntry.
type ReadOperation struct {
	*opBase
	entries []Entry
	pos     int
}

// BeginRead starts a Read operation rooted at p. A miss at the Object
// level is NOT_FOUND; a miss deeper in the path after a (possibly
// empty) partial Object match is also NOT_FOUND, since a single Read
// always targets one concrete node (unlike Read-Composite).
func (dm *DataModel) BeginRead(p dmpath.Path, isBootstrap bool) (*ReadOperation, error) {
	base := newOpBase(dm, coapshim.OpRead, p, isBootstrap, false)
	if err := dm.beginOn(base); err != nil {
		return nil, err
	}
	ro := &ReadOperation{opBase: base}

	dm.mu.Lock()
	entries, err := dm.collectReadEntriesLocked(p, ro.opBase)
	dm.mu.Unlock()
	if err != nil {
		ro.fail(err)
		ro.end()
		return nil, err
	}
	ro.entries = entries
	return ro, nil
}

// collectReadEntriesLocked gathers every readable (path, value) pair at
// or beneath p. Callers must hold dm.mu.
func (dm *DataModel) collectReadEntriesLocked(p dmpath.Path, op *opBase) ([]Entry, error) {
	loc := dm.locateLocked(p)
	if loc.Object == nil {
		return nil, dmerr.NotFound("no entity at %s", p.String())
	}
	if err := op.touch(loc.Object); err != nil {
		return nil, err
	}

	var entries []Entry
	switch {
	case p.Has(4):
		if loc.Resource == nil || loc.RIID == InvalidID {
			return nil, dmerr.NotFound("no entity at %s", p.String())
		}
		v, err := readResourceInstance(loc.Object, loc.Instance, loc.Resource, loc.RIID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Path: p, Value: v})
	case p.Has(3):
		if loc.Resource == nil {
			return nil, dmerr.NotFound("no entity at %s", p.String())
		}
		es, err := readResource(loc.Object, loc.Instance, loc.Resource)
		if err != nil {
			return nil, err
		}
		entries = append(entries, es...)
	case p.Has(2):
		if loc.Instance == nil {
			return nil, dmerr.NotFound("no entity at %s", p.String())
		}
		es, err := readInstance(loc.Object, loc.Instance)
		if err != nil {
			return nil, err
		}
		entries = append(entries, es...)
	default:
		es, err := readObject(loc.Object)
		if err != nil {
			return nil, err
		}
		entries = append(entries, es...)
	}
	return entries, nil
}

func readObject(obj *Object) ([]Entry, error) {
	var out []Entry
	for _, inst := range obj.Instances {
		if inst.IID == InvalidID {
			continue
		}
		es, err := readInstance(obj, inst)
		if err != nil {
			return nil, err
		}
		out = append(out, es...)
	}
	return out, nil
}

func readInstance(obj *Object, inst *Instance) ([]Entry, error) {
	var out []Entry
	for _, res := range inst.Resources {
		if !res.Operation.IsReadable() {
			continue
		}
		es, err := readResource(obj, inst, res)
		if err != nil {
			return nil, err
		}
		out = append(out, es...)
	}
	return out, nil
}

func readResource(obj *Object, inst *Instance, res *Resource) ([]Entry, error) {
	if !res.Operation.IsReadable() {
		return nil, dmerr.MethodNotAllowed("resource %d/%d/%d is not readable", obj.OID, inst.IID, res.RID)
	}
	if !res.Operation.IsMultiInstance() {
		v, err := readResourceInstance(obj, inst, res, InvalidID)
		if err != nil {
			return nil, err
		}
		return []Entry{{Path: dmpath.Resource(obj.OID, inst.IID, res.RID), Value: v}}, nil
	}
	var out []Entry
	for _, riid := range res.RIIDs {
		v, err := readResourceInstance(obj, inst, res, riid)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Path: dmpath.ResourceInstance(obj.OID, inst.IID, res.RID, riid), Value: v})
	}
	return out, nil
}

func readResourceInstance(obj *Object, inst *Instance, res *Resource, riid uint16) (dmvalue.Value, error) {
	if obj.Handlers.ResRead == nil {
		return dmvalue.Value{}, dmerr.Internal("object %d has no res_read handler", obj.OID)
	}
	return obj.Handlers.ResRead(inst.IID, res.RID, riid)
}

// NextEntry returns the next (path, value) pair, or ok == false once
// the operation is exhausted.
func (ro *ReadOperation) NextEntry() (Entry, bool) {
	if ro.pos >= len(ro.entries) {
		return Entry{}, false
	}
	e := ro.entries[ro.pos]
	ro.pos++
	return e, true
}

// Count returns the total number of entries this Read produced.
func (ro *ReadOperation) Count() int { return len(ro.entries) }

// End finalizes the operation. Read never touches TransactionEnd since
// it is non-transactional, but End still releases the operation slot.
func (ro *ReadOperation) End() error { return ro.end() }
