package observe

import (
	"sync"
	"time"

	"github.com/cuemby/lwm2mcore/pkg/attr"
	"github.com/cuemby/lwm2mcore/pkg/dmerr"
	"github.com/cuemby/lwm2mcore/pkg/dmpath"
	"github.com/cuemby/lwm2mcore/pkg/dmvalue"
)

// ContentChecker lets the table ask whether a path has at least one
// readable resource beneath it, without depending on pkg/dm directly
// (dm.DataModel satisfies this).
type ContentChecker interface {
	HasReadableContent(p dmpath.Path) bool
}

// ValueReader samples the current value at a path for baseline capture
// at add time and for evaluation during Tick (dm.DataModel satisfies
// this via a thin wrapper, see ReadCurrent in pkg/dm).
type ValueReader interface {
	ReadCurrent(p dmpath.Path) (dmvalue.Value, bool)
}

// PathExpander turns a path that may name more than one leaf resource
// (the root) into the concrete Resource/Resource-Instance paths it
// contains, so Observe-Composite can expand a root target the same way
// Read-Composite does (spec §4.7.2/§4.4.9). dm.DataModel satisfies this
// via ExpandObservable.
type PathExpander interface {
	ExpandObservable(p dmpath.Path) []dmpath.Path
}

// Table is the fixed-capacity observation store plus notification
// evaluator of spec §4.7. Every exported method takes the table's mutex,
// and Pump.Tick takes the same mutex for its evaluation pass, so the
// pump goroutine and Add/Cancel callers do not race, mirroring the
// teacher's Reconciler ticking against mutex-guarded Manager state.
type Table struct {
	mu sync.Mutex

	maxObservations int
	groups          map[string]*group // key: ssid|token
	attrs           *attr.Store
	content         ContentChecker
	values          ValueReader
	expand          PathExpander
}

// NewTable creates an empty Table bounded at maxObservations.
func NewTable(maxObservations int, attrs *attr.Store, content ContentChecker, values ValueReader, expand PathExpander) *Table {
	return &Table{
		maxObservations: maxObservations,
		groups:          make(map[string]*group),
		attrs:           attrs,
		content:         content,
		values:          values,
		expand:          expand,
	}
}

func groupKey(ssid uint16, token string) string {
	return string(append([]byte{byte(ssid >> 8), byte(ssid)}, token...))
}

func (t *Table) totalObservations() int {
	n := 0
	for _, g := range t.groups {
		n += len(g.members)
	}
	return n
}

// AddObservation implements spec §4.7.1. It locates the path, validates
// it carries at least one readable resource when the path names a
// resource or resource instance, computes the effective attribute set,
// and inserts (or updates) the record.
func (t *Table) AddObservation(ssid uint16, token []byte, path dmpath.Path, observationAttr attr.Attributes, contentFormat, accept int, now time.Time, defaults attr.ServerDefaults) (*Observation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addLocked(ssid, token, path, observationAttr, contentFormat, accept, now, defaults)
}

func (t *Table) addLocked(ssid uint16, token []byte, path dmpath.Path, observationAttr attr.Attributes, contentFormat, accept int, now time.Time, defaults attr.ServerDefaults) (*Observation, error) {
	if path.Has(3) && !t.content.HasReadableContent(path) {
		return nil, dmerr.MethodNotAllowed("observe target %s has no readable resource", path.String())
	}

	key := groupKey(ssid, string(token))
	g, existing := t.groups[key]
	if !existing {
		if t.maxObservations > 0 && t.totalObservations() >= t.maxObservations {
			return nil, dmerr.Internal("observation table full (limit %d)", t.maxObservations)
		}
		g = &group{ssid: ssid, token: string(token), contentFormat: contentFormat, accept: accept}
		t.groups[key] = g
	}

	for _, m := range g.members {
		if dmpath.Equal(m.Path, path) {
			t.populate(m, observationAttr, now, defaults)
			return m, nil
		}
	}

	if t.maxObservations > 0 && t.totalObservations() >= t.maxObservations {
		return nil, dmerr.Internal("observation table full (limit %d)", t.maxObservations)
	}

	obs := &Observation{g: g, Path: path}
	t.populate(obs, observationAttr, now, defaults)
	g.members = append(g.members, obs)
	return obs, nil
}

func (t *Table) populate(obs *Observation, observationAttr attr.Attributes, now time.Time, defaults attr.ServerDefaults) {
	obs.ObservationAttr = observationAttr
	obs.EffectiveAttr = t.attrs.Effective(obs.Path, obs.SSID(), observationAttr, defaults)
	obs.Active = effectiveIsValid(obs.EffectiveAttr)
	if v, ok := t.values.ReadCurrent(obs.Path); ok {
		obs.LastSent = v
	}
	obs.LastNotify = now
	obs.Pending = false
}

func effectiveIsValid(a attr.Attributes) bool {
	if a.EPMin != nil && a.EPMax != nil && *a.EPMin > *a.EPMax {
		return false
	}
	return true
}

// AddObservationComposite implements spec §4.7.2: every path must
// locate successfully or the whole operation is undone. A literal root
// path among the requested paths expands to every registered Object in
// turn; an Object with nothing readable contributes no member
// (NO_RECORD) rather than failing the composite.
func (t *Table) AddObservationComposite(ssid uint16, token []byte, paths []dmpath.Path, observationAttr attr.Attributes, contentFormat, accept int, now time.Time, defaults attr.ServerDefaults) ([]*Observation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var added []*Observation
	for _, p := range paths {
		targets := []dmpath.Path{p}
		if !p.Has(1) && t.expand != nil {
			targets = t.expand.ExpandObservable(p)
		}
		for _, tp := range targets {
			obs, err := t.addLocked(ssid, token, tp, observationAttr, contentFormat, accept, now, defaults)
			if err != nil {
				t.cancelLocked(ssid, string(token))
				return nil, err
			}
			added = append(added, obs)
		}
	}
	return added, nil
}

// Cancel implements spec §4.7.3: removes every record sharing
// (ssid, token), whether the group has one member (cancel-single) or
// many (cancel-composite) — both share the same "remove the whole
// group" behavior.
func (t *Table) Cancel(ssid uint16, token []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.cancelLocked(ssid, string(token)) {
		return dmerr.NotFound("no observation for ssid %d token %x", ssid, token)
	}
	return nil
}

func (t *Table) cancelLocked(ssid uint16, token string) bool {
	key := groupKey(ssid, token)
	if _, ok := t.groups[key]; !ok {
		return false
	}
	delete(t.groups, key)
	return true
}

// RemoveAllObservations implements spec §4.7.4: purges every
// observation owned by ssid (e.g. on server logout), along with its
// scoped attribute storage entries.
func (t *Table) RemoveAllObservations(ssid uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, g := range t.groups {
		if g.ssid == ssid {
			delete(t.groups, key)
		}
	}
	t.attrs.RemoveAllForSSID(ssid)
}

// All returns a snapshot of every observation currently stored, for
// introspection (pkg/debugapi) and tests.
func (t *Table) All() []*Observation {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*Observation
	for _, g := range t.groups {
		out = append(out, g.members...)
	}
	return out
}
