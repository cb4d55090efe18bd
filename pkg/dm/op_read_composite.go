package dm

import (
	"github.com/cuemby/lwm2mcore/pkg/coapshim"
	"github.com/cuemby/lwm2mcore/pkg/dmpath"
)

// ReadCompositeOperation implements spec §4.4.9: many paths are read
// together and merged into one entry stream. A path that falls inside
// a subtree already covered by an earlier path in the request
// contributes no duplicate entries.
type ReadCompositeOperation struct {
	*opBase
	seenRoots []dmpath.Path
	entries   []Entry
	pos       int
}

// BeginReadComposite starts a Read-Composite operation with no paths
// yet added; call AddPath for each requested path before iterating.
func (dm *DataModel) BeginReadComposite(isBootstrap bool) (*ReadCompositeOperation, error) {
	base := newOpBase(dm, coapshim.OpReadComposite, dmpath.Root(), isBootstrap, false)
	if err := dm.beginOn(base); err != nil {
		return nil, err
	}
	return &ReadCompositeOperation{opBase: base}, nil
}

// AddPath folds one more requested path into the composite read. Paths
// are processed in the order added; a path already covered by a prior
// path's subtree is silently skipped rather than erroring, since
// overlapping paths are a client redundancy, not a protocol violation.
//
// A literal root path expands to every registered Object in turn (spec
// §4.4.9): each Object is collected on its own, so one with nothing
// readable simply contributes no entries (NO_RECORD) instead of
// failing the whole composite the way a single top-level NOT_FOUND
// would.
func (rc *ReadCompositeOperation) AddPath(p dmpath.Path) error {
	for _, root := range rc.seenRoots {
		if !dmpath.OutsideBase(p, root) {
			return nil
		}
	}

	dm := rc.dm
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if !p.Has(1) {
		for _, obj := range dm.objects {
			entries, err := dm.collectReadEntriesLocked(dmpath.Object(obj.OID), rc.opBase)
			if err != nil {
				return rc.fail(err)
			}
			rc.entries = append(rc.entries, entries...)
		}
		rc.seenRoots = append(rc.seenRoots, p)
		return nil
	}

	entries, err := dm.collectReadEntriesLocked(p, rc.opBase)
	if err != nil {
		return rc.fail(err)
	}

	rc.seenRoots = append(rc.seenRoots, p)
	rc.entries = append(rc.entries, entries...)
	return nil
}

// NextEntry returns the next merged (path, value) pair, or ok == false
// once exhausted.
func (rc *ReadCompositeOperation) NextEntry() (Entry, bool) {
	if rc.pos >= len(rc.entries) {
		return Entry{}, false
	}
	e := rc.entries[rc.pos]
	rc.pos++
	return e, true
}

// End releases the operation slot.
func (rc *ReadCompositeOperation) End() error { return rc.end() }
