// Package observe implements the Observation Table and Notification
// Evaluator (spec §4.7): adding single and composite observations,
// canceling them, the pmin/pmax/gt/lt/st/edge trigger rules, and the
// at-most-one-in-flight-notification pump. epmin/epmax are only checked
// for consistency (an observation whose effective epmin exceeds epmax is
// inactive); they do not gate or force evaluation.
package observe

import (
	"time"

	"github.com/cuemby/lwm2mcore/pkg/attr"
	"github.com/cuemby/lwm2mcore/pkg/dmpath"
	"github.com/cuemby/lwm2mcore/pkg/dmvalue"
)

// group is the shared state of every Observation sharing one
// (ssid, token) pair: the accept/content-format options negotiated once
// for the whole group, and its member paths. The reference links these
// with a circular `prev` pointer per record (spec §4.7); Go's natural
// idiom for "N records share one parent" is a shared pointer to common
// state plus a members slice, which is what this type is.
type group struct {
	ssid          uint16
	token         string
	contentFormat int
	accept        int
	members       []*Observation
}

// Observation is one record of the table (spec §4.7): a path being
// watched, its attribute sets, activity state, and the bookkeeping the
// evaluator needs to decide when to fire.
type Observation struct {
	g *group

	Path            dmpath.Path
	EffectiveAttr   attr.Attributes
	ObservationAttr attr.Attributes

	Active     bool
	LastNotify time.Time
	LastSent   dmvalue.Value
	Pending    bool
}

// SSID returns the server short ID that owns this observation.
func (o *Observation) SSID() uint16 { return o.g.ssid }

// Token returns the CoAP token shared by every member of this
// observation's group.
func (o *Observation) Token() string { return o.g.token }

// ContentFormat returns the negotiated content format for the group.
func (o *Observation) ContentFormat() int { return o.g.contentFormat }

// Accept returns the negotiated accept option for the group.
func (o *Observation) Accept() int { return o.g.accept }

// IsComposite reports whether this observation's group has more than
// one member path.
func (o *Observation) IsComposite() bool { return len(o.g.members) > 1 }
