// Package attr implements the fixed-size notification attribute storage
// and its 4-level inheritance walk (spec §4.6): pmin/pmax/epmin/epmax/
// gt/lt/st/edge/con/hqmax attached per (path, ssid), with server-default
// pmin/pmax backfill for the observation subsystem.
package attr

import (
	"github.com/cuemby/lwm2mcore/pkg/dmerr"
	"github.com/cuemby/lwm2mcore/pkg/dmpath"
	"github.com/cuemby/lwm2mcore/pkg/dmvalue"
)

// Attributes holds every independently-optional notification attribute.
// A nil field means "not set"; this replaces the reference's has_*
// flags with Go's natural zero-value-is-absent idiom for pointers.
type Attributes struct {
	PMin  *int
	PMax  *int
	EPMin *int
	EPMax *int
	GT    *float64
	LT    *float64
	ST    *float64
	Edge  *bool
	Con   *bool
	HQMax *int
}

func intPtr(v int) *int          { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool       { return &v }

// WithPMin returns a copy of a with PMin set, for convenient chaining
// when building attribute sets in tests and object adapters.
func (a Attributes) WithPMin(v int) Attributes  { a.PMin = intPtr(v); return a }
func (a Attributes) WithPMax(v int) Attributes  { a.PMax = intPtr(v); return a }
func (a Attributes) WithEPMin(v int) Attributes { a.EPMin = intPtr(v); return a }
func (a Attributes) WithEPMax(v int) Attributes { a.EPMax = intPtr(v); return a }
func (a Attributes) WithGT(v float64) Attributes { a.GT = floatPtr(v); return a }
func (a Attributes) WithLT(v float64) Attributes { a.LT = floatPtr(v); return a }
func (a Attributes) WithST(v float64) Attributes { a.ST = floatPtr(v); return a }
func (a Attributes) WithEdge(v bool) Attributes  { a.Edge = boolPtr(v); return a }

// TypeOracle lets the validator and inheritance walk ask the data model
// what kind of resource a path names, without attr depending on pkg/dm
// (dm.DataModel satisfies this directly).
type TypeOracle interface {
	ResourceType(oid, rid uint16) (typ dmvalue.Type, multiInstance bool, ok bool)
}

func isNumeric(t dmvalue.Type) bool {
	return t == dmvalue.TypeInt || t == dmvalue.TypeUint || t == dmvalue.TypeDouble
}

// Validate applies spec §4.6's insert/update rules. pmin<=pmax is
// deliberately not checked here, matching the reference's "consulted
// but not rejected" behavior.
func Validate(path dmpath.Path, a Attributes, oracle TypeOracle) error {
	if a.EPMin != nil && a.EPMax != nil && *a.EPMin > *a.EPMax {
		return dmerr.BadRequest("epmin %d > epmax %d", *a.EPMin, *a.EPMax)
	}
	if a.ST != nil && *a.ST > 0 {
		if !path.Has(3) {
			return dmerr.BadRequest("st attribute requires a resource-level path")
		}
		typ, _, ok := oracle.ResourceType(path.OID(), path.RID())
		if !ok || !isNumeric(typ) {
			return dmerr.BadRequest("st attribute requires a numeric resource")
		}
	}
	if a.Edge != nil {
		if !path.Has(3) {
			return dmerr.BadRequest("edge attribute requires a resource-level path")
		}
		typ, multi, ok := oracle.ResourceType(path.OID(), path.RID())
		if !ok || typ != dmvalue.TypeBool || multi {
			return dmerr.BadRequest("edge attribute requires a single-instance boolean resource")
		}
	}
	return nil
}

// merge overlays every non-nil field of overlay onto base, returning the
// result; base is left untouched.
func merge(base, overlay Attributes) Attributes {
	out := base
	if overlay.PMin != nil {
		out.PMin = overlay.PMin
	}
	if overlay.PMax != nil {
		out.PMax = overlay.PMax
	}
	if overlay.EPMin != nil {
		out.EPMin = overlay.EPMin
	}
	if overlay.EPMax != nil {
		out.EPMax = overlay.EPMax
	}
	if overlay.GT != nil {
		out.GT = overlay.GT
	}
	if overlay.LT != nil {
		out.LT = overlay.LT
	}
	if overlay.ST != nil {
		out.ST = overlay.ST
	}
	if overlay.Edge != nil {
		out.Edge = overlay.Edge
	}
	if overlay.Con != nil {
		out.Con = overlay.Con
	}
	if overlay.HQMax != nil {
		out.HQMax = overlay.HQMax
	}
	return out
}
