package attr

import (
	"github.com/cuemby/lwm2mcore/pkg/dmerr"
	"github.com/cuemby/lwm2mcore/pkg/dmpath"
)

type record struct {
	path  dmpath.Path
	ssid  uint16
	attrs Attributes
}

// Store is the fixed-capacity array of {path, ssid, attributes}
// triples named in spec §4.6.
type Store struct {
	maxEntries int
	records    []record
	oracle     TypeOracle
}

// NewStore creates a Store bounded at maxEntries, consulting oracle for
// attribute validation (0 means unbounded, used only by tests).
func NewStore(maxEntries int, oracle TypeOracle) *Store {
	return &Store{maxEntries: maxEntries, oracle: oracle}
}

func (s *Store) indexOf(path dmpath.Path, ssid uint16) int {
	for i, r := range s.records {
		if r.ssid == ssid && dmpath.Equal(r.path, path) {
			return i
		}
	}
	return -1
}

// Set validates and upserts the attribute set for (path, ssid).
func (s *Store) Set(path dmpath.Path, ssid uint16, a Attributes) error {
	if err := Validate(path, a, s.oracle); err != nil {
		return err
	}
	if i := s.indexOf(path, ssid); i >= 0 {
		s.records[i].attrs = a
		return nil
	}
	if s.maxEntries > 0 && len(s.records) >= s.maxEntries {
		return dmerr.Memory("attribute storage full (limit %d)", s.maxEntries)
	}
	s.records = append(s.records, record{path: path, ssid: ssid, attrs: a})
	return nil
}

// Count returns the number of directly-attached attribute entries
// currently stored, for metrics collection.
func (s *Store) Count() int {
	return len(s.records)
}

// Entry is one directly-attached attribute record, exposed read-only for
// introspection (pkg/debugapi).
type Entry struct {
	Path  dmpath.Path
	SSID  uint16
	Attrs Attributes
}

// Entries returns every directly-attached attribute record currently
// stored, for the debug introspection API.
func (s *Store) Entries() []Entry {
	out := make([]Entry, len(s.records))
	for i, r := range s.records {
		out[i] = Entry{Path: r.path, SSID: r.ssid, Attrs: r.attrs}
	}
	return out
}

// Get returns the directly-attached attributes for (path, ssid), if any.
func (s *Store) Get(path dmpath.Path, ssid uint16) (Attributes, bool) {
	if i := s.indexOf(path, ssid); i >= 0 {
		return s.records[i].attrs, true
	}
	return Attributes{}, false
}

// Remove deletes the directly-attached attribute entry for (path, ssid).
func (s *Store) Remove(path dmpath.Path, ssid uint16) {
	if i := s.indexOf(path, ssid); i >= 0 {
		s.records = append(s.records[:i], s.records[i+1:]...)
	}
}

// RemoveAllForSSID purges every entry owned by ssid, spec §4.6/§4.7.4's
// server-logout cleanup.
func (s *Store) RemoveAllForSSID(ssid uint16) {
	out := s.records[:0]
	for _, r := range s.records {
		if r.ssid != ssid {
			out = append(out, r)
		}
	}
	s.records = out
}

// ServerDefaults carries the default_pmin/default_pmax backfill values
// sourced from the Server object instance for a given SSID.
type ServerDefaults struct {
	DefaultPMin *int
	DefaultPMax *int
}

// Effective computes the effective attribute set for path under ssid
// (spec §4.6 "Inheritance"): walk root-to-leaf overlaying entries for
// the same SSID at each of /OID, /OID/IID, /OID/IID/RID,
// /OID/IID/RID/RIID, then overlay the observation's own directly
// attached attributes, then backfill pmin/pmax from server defaults if
// still unset.
func (s *Store) Effective(path dmpath.Path, ssid uint16, observationAttr Attributes, defaults ServerDefaults) Attributes {
	var eff Attributes
	for level := 1; level <= path.Len() && level <= 4; level++ {
		prefix := prefixOf(path, level)
		if a, ok := s.Get(prefix, ssid); ok {
			eff = merge(eff, a)
		}
	}
	eff = merge(eff, observationAttr)

	if eff.PMin == nil && defaults.DefaultPMin != nil {
		eff.PMin = defaults.DefaultPMin
	}
	if eff.PMax == nil && defaults.DefaultPMax != nil {
		eff.PMax = defaults.DefaultPMax
	}
	return eff
}

func prefixOf(p dmpath.Path, level int) dmpath.Path {
	switch level {
	case 1:
		return dmpath.Object(p.OID())
	case 2:
		return dmpath.Instance(p.OID(), p.IID())
	case 3:
		return dmpath.Resource(p.OID(), p.IID(), p.RID())
	default:
		return dmpath.ResourceInstance(p.OID(), p.IID(), p.RID(), p.RIID())
	}
}
