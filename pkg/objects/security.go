package objects

import (
	"sort"
	"strings"
	"sync"

	"github.com/cuemby/lwm2mcore/pkg/dm"
	"github.com/cuemby/lwm2mcore/pkg/dmerr"
	"github.com/cuemby/lwm2mcore/pkg/dmvalue"
)

// Security resource IDs, spec §6.
const (
	SecurityRIDURI             uint16 = 0
	SecurityRIDBootstrapServer uint16 = 1
	SecurityRIDSecurityMode    uint16 = 2
	SecurityRIDShortServerID   uint16 = 10
	SecurityRIDOSCORELink      uint16 = 17
)

var allowedURISchemes = []string{"coap", "coaps", "coap+tcp", "coaps+tcp"}

// SecurityInstance holds one Security Object Instance's mutable state.
type SecurityInstance struct {
	IID             uint16
	URI             string
	BootstrapServer bool
	SecurityMode    int64
	ShortServerID   uint16
	OSCORELink      dmvalue.ObjLnk
	HasOSCORELink   bool
}

func (i SecurityInstance) clone() SecurityInstance { return i }

// Security is the built-in adapter for Object 0. It shadow-copies its
// instance table in TransactionBegin and restores it in TransactionEnd on
// failure, validates the URI scheme in TransactionValidate, exactly the
// obligations spec §4.5 places on built-in adapters.
type Security struct {
	mu        sync.Mutex
	obj       *dm.Object
	instances []*SecurityInstance
	shadow    []SecurityInstance
}

// NewSecurity creates an empty Security adapter.
func NewSecurity() *Security {
	return &Security{}
}

// Object returns the dm.Object descriptor wired against this adapter's
// handler table, ready to register via DataModel.AddObject. The returned
// pointer is retained by the adapter: InstCreate/InstDelete mutate its
// Instances slice directly, since dm.Object is the authoritative
// structural index the engine's locator walks.
func (s *Security) Object() *dm.Object {
	s.obj = &dm.Object{
		OID:          0,
		MaxInstCount: 0, // unbounded, spec imposes no fixed cap here
		Handlers: dm.Handlers{
			InstCreate:          s.instCreate,
			InstDelete:          s.instDelete,
			InstReset:           s.instReset,
			ResRead:             s.resRead,
			ResWrite:            s.resWrite,
			TransactionBegin:    s.transactionBegin,
			TransactionValidate: s.transactionValidate,
			TransactionEnd:      s.transactionEnd,
		},
	}
	return s.obj
}

func securityDescriptor(iid uint16) *dm.Instance {
	return &dm.Instance{
		IID: iid,
		Resources: []*dm.Resource{
			{RID: SecurityRIDURI, Type: dmvalue.TypeString, Operation: dm.OpRW},
			{RID: SecurityRIDBootstrapServer, Type: dmvalue.TypeBool, Operation: dm.OpRW},
			{RID: SecurityRIDSecurityMode, Type: dmvalue.TypeInt, Operation: dm.OpRW},
			{RID: SecurityRIDShortServerID, Type: dmvalue.TypeInt, Operation: dm.OpRW},
			{RID: SecurityRIDOSCORELink, Type: dmvalue.TypeObjLnk, Operation: dm.OpRW},
		},
	}
}

func (s *Security) find(iid uint16) *SecurityInstance {
	for _, inst := range s.instances {
		if inst.IID == iid {
			return inst
		}
	}
	return nil
}

// Seed registers an initial instance outside of any engine operation,
// for startup-time provisioning of the bootstrap-server Security record
// (cmd/lwm2mcored's serve command uses this before the pump starts).
func (s *Security) Seed(inst SecurityInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := inst
	s.instances = append(s.instances, &stored)
	s.obj.Instances = append(s.obj.Instances, securityDescriptor(inst.IID))
	s.sortLocked()
}

func (s *Security) instCreate(iid uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances = append(s.instances, &SecurityInstance{IID: iid})
	s.obj.Instances = append(s.obj.Instances, securityDescriptor(iid))
	s.sortLocked()
	return nil
}

// sortLocked keeps both the adapter's own instance list and the
// registered object's descriptor list sorted ascending by IID (spec §3's
// "instance arrays kept sorted ascending" invariant).
func (s *Security) sortLocked() {
	sort.Slice(s.instances, func(i, j int) bool { return s.instances[i].IID < s.instances[j].IID })
	sort.Slice(s.obj.Instances, func(i, j int) bool { return s.obj.Instances[i].IID < s.obj.Instances[j].IID })
}

func (s *Security) instDelete(iid uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for idx, inst := range s.instances {
		if inst.IID == iid {
			s.instances = append(s.instances[:idx], s.instances[idx+1:]...)
			found = true
			break
		}
	}
	if !found {
		return dmerr.Internal("security: instance %d not found", iid)
	}
	for idx, inst := range s.obj.Instances {
		if inst.IID == iid {
			s.obj.Instances = append(s.obj.Instances[:idx], s.obj.Instances[idx+1:]...)
			break
		}
	}
	return nil
}

// instReset implements the WRITE_REPLACE instance-level contract (spec
// §4.4.2): every field goes back to its zero value before the replace's
// entries are applied.
func (s *Security) instReset(iid uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst := s.find(iid)
	if inst == nil {
		return dmerr.NotFound("security: instance %d not found", iid)
	}
	*inst = SecurityInstance{IID: iid}
	return nil
}

func (s *Security) resRead(iid, rid, riid uint16) (dmvalue.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst := s.find(iid)
	if inst == nil {
		return dmvalue.Value{}, dmerr.NotFound("security: instance %d not found", iid)
	}
	switch rid {
	case SecurityRIDURI:
		return dmvalue.String(inst.URI), nil
	case SecurityRIDBootstrapServer:
		return dmvalue.Bool(inst.BootstrapServer), nil
	case SecurityRIDSecurityMode:
		return dmvalue.Int(inst.SecurityMode), nil
	case SecurityRIDShortServerID:
		return dmvalue.Int(int64(inst.ShortServerID)), nil
	case SecurityRIDOSCORELink:
		if !inst.HasOSCORELink {
			return dmvalue.Value{}, dmerr.NotFound("security: instance %d has no OSCORE link", iid)
		}
		return dmvalue.ObjLink(inst.OSCORELink.OID, inst.OSCORELink.IID), nil
	default:
		return dmvalue.Value{}, dmerr.NotFound("security: resource %d not found", rid)
	}
}

func (s *Security) resWrite(iid, rid, riid uint16, value dmvalue.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst := s.find(iid)
	if inst == nil {
		return dmerr.NotFound("security: instance %d not found", iid)
	}
	switch rid {
	case SecurityRIDURI:
		inst.URI = value.String
	case SecurityRIDBootstrapServer:
		inst.BootstrapServer = value.Bool
	case SecurityRIDSecurityMode:
		inst.SecurityMode = value.Int
	case SecurityRIDShortServerID:
		inst.ShortServerID = uint16(value.Int)
	case SecurityRIDOSCORELink:
		inst.OSCORELink = value.ObjLnk
		inst.HasOSCORELink = true
	default:
		return dmerr.NotFound("security: resource %d not found", rid)
	}
	return nil
}

func (s *Security) transactionBegin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shadow = make([]SecurityInstance, len(s.instances))
	for i, inst := range s.instances {
		s.shadow[i] = inst.clone()
	}
	return nil
}

// transactionValidate enforces the URI scheme constraint named in spec
// §4.5 and §6. pmin<=pmax-style asymmetries have no analogue here; this
// is Security's one cross-field invariant.
func (s *Security) transactionValidate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.instances {
		if inst.URI == "" {
			continue
		}
		if !hasAllowedScheme(inst.URI) {
			return dmerr.BadRequest("security: instance %d has unsupported URI scheme %q", inst.IID, inst.URI)
		}
	}
	return nil
}

func hasAllowedScheme(uri string) bool {
	for _, scheme := range allowedURISchemes {
		if strings.HasPrefix(uri, scheme+"://") {
			return true
		}
	}
	return false
}

func (s *Security) transactionEnd(result error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if result == nil {
		s.shadow = nil
		return
	}
	restored := make([]*SecurityInstance, len(s.shadow))
	descriptors := make([]*dm.Instance, len(s.shadow))
	for i := range s.shadow {
		v := s.shadow[i]
		restored[i] = &v
		descriptors[i] = securityDescriptor(v.IID)
	}
	s.instances = restored
	s.obj.Instances = descriptors
	s.shadow = nil
}
