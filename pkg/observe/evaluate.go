package observe

import (
	"math"
	"time"

	"github.com/cuemby/lwm2mcore/pkg/attr"
	"github.com/cuemby/lwm2mcore/pkg/dmvalue"
)

// shouldNotify implements spec §4.7.5's trigger rules for one
// observation given a freshly sampled current value. pmin suppresses
// unconditionally regardless of any other trigger; pmax force-fires
// once elapsed, subject to that same pmin suppression.
func shouldNotify(obs *Observation, now time.Time, current dmvalue.Value) bool {
	if !obs.Active {
		return false
	}
	dt := now.Sub(obs.LastNotify)

	if obs.EffectiveAttr.PMin != nil && dt < time.Duration(*obs.EffectiveAttr.PMin)*time.Second {
		return false
	}

	if evaluateValueChange(obs.EffectiveAttr, obs.LastSent, current) {
		return true
	}
	if obs.EffectiveAttr.PMax != nil && dt >= time.Duration(*obs.EffectiveAttr.PMax)*time.Second {
		return true
	}
	return false
}

// evaluateValueChange implements the "evaluate value change" bullet of
// spec §4.7.5: numeric resources consult st/gt/lt if any are set, else
// fire on any inequality; boolean resources with edge fire only on the
// configured transition; everything else fires on any inequality.
func evaluateValueChange(eff attr.Attributes, last, current dmvalue.Value) bool {
	if cur, ok := current.Numeric(); ok {
		lastNum, lastOK := last.Numeric()
		anyThresholdSet := eff.ST != nil || eff.GT != nil || eff.LT != nil
		if !anyThresholdSet {
			return !current.Equal(last)
		}
		if !lastOK {
			return false
		}
		if eff.ST != nil && math.Abs(cur-lastNum) >= *eff.ST {
			return true
		}
		if eff.GT != nil && crossedThreshold(lastNum, cur, *eff.GT) {
			return true
		}
		if eff.LT != nil && crossedThreshold(lastNum, cur, *eff.LT) {
			return true
		}
		return false
	}

	if current.Type == dmvalue.TypeBool && eff.Edge != nil {
		return current.Bool == *eff.Edge && last.Bool != *eff.Edge
	}

	return !current.Equal(last)
}

// crossedThreshold reports whether the value moved from one side of
// threshold to the other, in either direction.
func crossedThreshold(prev, cur, threshold float64) bool {
	return (prev < threshold) != (cur < threshold)
}
