package dm

import (
	"github.com/cuemby/lwm2mcore/pkg/coapshim"
	"github.com/cuemby/lwm2mcore/pkg/dmerr"
	"github.com/cuemby/lwm2mcore/pkg/dmpath"
)

// Security/Server resource IDs consulted for the ssid/uri population
// rules of spec §4.4.7. Duplicated from pkg/objects rather than
// imported, which itself depends on pkg/dm.
const (
	securityRIDURI  uint16 = 0
	securityRIDSSID uint16 = 10
	serverOID       uint16 = 1
	serverRIDSSID   uint16 = 0
)

// BootstrapDiscoverRecord is one line of a Bootstrap-Discover response:
// an Object or Instance path plus the object's version, matching
// spec §4.4.7. SSID/URI are populated only for Security/Server/OSCORE
// instance records, per the rules named there.
type BootstrapDiscoverRecord struct {
	Path    dmpath.Path
	Version string
	SSID    *uint16
	URI     *string
}

// BootstrapDiscoverOperation implements spec §4.4.7: unlike regular
// Discover it reports Object and Instance paths only (never resources),
// and always spans every registered object when the target is root.
type BootstrapDiscoverOperation struct {
	*opBase
	records []BootstrapDiscoverRecord
	pos     int
}

// BeginBootstrapDiscover starts a Bootstrap-Discover rooted at p. An
// empty p (root) reports every registered object.
func (dm *DataModel) BeginBootstrapDiscover(p dmpath.Path) (*BootstrapDiscoverOperation, error) {
	base := newOpBase(dm, coapshim.OpBootstrapDiscover, p, true, false)
	if err := dm.beginOn(base); err != nil {
		return nil, err
	}
	bo := &BootstrapDiscoverOperation{opBase: base}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	if !p.Has(1) {
		for _, obj := range dm.objects {
			if err := bo.touch(obj); err != nil {
				bo.fail(err)
				bo.end()
				return nil, err
			}
			bo.records = append(bo.records, dm.bootstrapDiscoverObjectLocked(obj)...)
		}
		return bo, nil
	}

	obj := dm.findObjectLocked(p.OID())
	if obj == nil {
		bo.fail(dmerr.NotFound("object %d not registered", p.OID()))
		bo.end()
		return nil, bo.err
	}
	if err := bo.touch(obj); err != nil {
		bo.fail(err)
		bo.end()
		return nil, err
	}
	bo.records = dm.bootstrapDiscoverObjectLocked(obj)
	return bo, nil
}

func (dm *DataModel) bootstrapDiscoverObjectLocked(obj *Object) []BootstrapDiscoverRecord {
	out := []BootstrapDiscoverRecord{{Path: dmpath.Object(obj.OID), Version: obj.Version}}
	for _, inst := range obj.Instances {
		if inst.IID == InvalidID {
			continue
		}
		rec := BootstrapDiscoverRecord{Path: dmpath.Instance(obj.OID, inst.IID)}
		rec.SSID, rec.URI = dm.bootstrapDiscoverSSIDAndURILocked(obj, inst.IID)
		out = append(out, rec)
	}
	return out
}

// bootstrapDiscoverSSIDAndURILocked implements spec §4.4.7's ssid/uri
// population rules: a non-bootstrap-server Security instance emits its
// SSID and URI; a Server instance emits its SSID; an OSCORE instance
// emits the SSID of the (non-bootstrap-server) Security instance that
// links to it via resource 17. Every other object emits neither.
func (dm *DataModel) bootstrapDiscoverSSIDAndURILocked(obj *Object, iid uint16) (*uint16, *string) {
	switch obj.OID {
	case securityOID:
		if obj.Handlers.ResRead == nil {
			return nil, nil
		}
		isBootstrapServer, err := securityInstanceIsBootstrapServer(obj, iid)
		if err != nil || isBootstrapServer {
			return nil, nil
		}
		ssidVal, err := obj.Handlers.ResRead(iid, securityRIDSSID, InvalidID)
		if err != nil {
			return nil, nil
		}
		ssid := uint16(ssidVal.Int)
		uriVal, err := obj.Handlers.ResRead(iid, securityRIDURI, InvalidID)
		if err != nil {
			return &ssid, nil
		}
		uri := uriVal.String
		return &ssid, &uri
	case serverOID:
		if obj.Handlers.ResRead == nil {
			return nil, nil
		}
		ssidVal, err := obj.Handlers.ResRead(iid, serverRIDSSID, InvalidID)
		if err != nil {
			return nil, nil
		}
		ssid := uint16(ssidVal.Int)
		return &ssid, nil
	case oscoreOID:
		secObj := dm.findObjectLocked(securityOID)
		if secObj == nil || secObj.Handlers.ResRead == nil {
			return nil, nil
		}
		for _, inst := range secObj.Instances {
			if inst.IID == InvalidID {
				continue
			}
			isBootstrapServer, err := securityInstanceIsBootstrapServer(secObj, inst.IID)
			if err != nil || isBootstrapServer {
				continue
			}
			link, err := secObj.Handlers.ResRead(inst.IID, securityRIDOSCORELink, InvalidID)
			if err != nil || link.ObjLnk.OID != oscoreOID || link.ObjLnk.IID != iid {
				continue
			}
			return dm.bootstrapDiscoverSSIDAndURILocked(secObj, inst.IID)
		}
		return nil, nil
	default:
		return nil, nil
	}
}

// NextRecord returns the next record, or ok == false once exhausted.
func (bo *BootstrapDiscoverOperation) NextRecord() (BootstrapDiscoverRecord, bool) {
	if bo.pos >= len(bo.records) {
		return BootstrapDiscoverRecord{}, false
	}
	r := bo.records[bo.pos]
	bo.pos++
	return r, true
}

// End releases the operation slot.
func (bo *BootstrapDiscoverOperation) End() error { return bo.end() }
