package dm

import (
	"github.com/cuemby/lwm2mcore/pkg/coapshim"
	"github.com/cuemby/lwm2mcore/pkg/dmpath"
)

// ObjectLink is one "</OID/IID>;ver=x.y" entry of a registration
// payload, spec §4.4.8.
type ObjectLink struct {
	Path    dmpath.Path
	Version string
}

// RegisterOperation implements spec §4.4.8: it enumerates every
// registered object and instance, in registration order, for the host
// runtime to serialize into the registration/update payload. Register
// touches every object (read-only) but is not transactional, since it
// mutates nothing.
type RegisterOperation struct {
	*opBase
	links []ObjectLink
	pos   int
}

// BeginRegister starts a Register operation spanning every currently
// registered object.
func (dm *DataModel) BeginRegister() (*RegisterOperation, error) {
	base := newOpBase(dm, coapshim.OpRegister, dmpath.Root(), false, false)
	if err := dm.beginOn(base); err != nil {
		return nil, err
	}
	ro := &RegisterOperation{opBase: base}

	dm.mu.Lock()
	for _, obj := range dm.objects {
		// Security (0) and OSCORE (21) never appear in a registration
		// payload even if registered, regardless of instance presence.
		if obj.OID == 0 || obj.OID == 21 {
			continue
		}
		_ = ro.touch(obj)
		ro.links = append(ro.links, ObjectLink{Path: dmpath.Object(obj.OID), Version: obj.Version})
		for _, inst := range obj.Instances {
			if inst.IID == InvalidID {
				continue
			}
			ro.links = append(ro.links, ObjectLink{Path: dmpath.Instance(obj.OID, inst.IID), Version: obj.Version})
		}
	}
	dm.mu.Unlock()
	return ro, nil
}

// NextLink returns the next object link, or ok == false once
// exhausted.
func (ro *RegisterOperation) NextLink() (ObjectLink, bool) {
	if ro.pos >= len(ro.links) {
		return ObjectLink{}, false
	}
	l := ro.links[ro.pos]
	ro.pos++
	return l, true
}

// End releases the operation slot.
func (ro *RegisterOperation) End() error { return ro.end() }
