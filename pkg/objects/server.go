package objects

import (
	"sort"
	"sync"

	"github.com/cuemby/lwm2mcore/pkg/attr"
	"github.com/cuemby/lwm2mcore/pkg/dm"
	"github.com/cuemby/lwm2mcore/pkg/dmerr"
	"github.com/cuemby/lwm2mcore/pkg/dmvalue"
)

// Server resource IDs (standard LwM2M Server Object 1).
const (
	ServerRIDShortServerID             uint16 = 0
	ServerRIDLifetime                  uint16 = 1
	ServerRIDDefaultMinPeriod          uint16 = 2
	ServerRIDDefaultMaxPeriod          uint16 = 3
	ServerRIDDisable                   uint16 = 4
	ServerRIDBinding                   uint16 = 7
	ServerRIDRegistrationUpdateTrigger uint16 = 8
	ServerRIDBootstrapRequestTrigger   uint16 = 9
)

// ServerInstance holds one Server Object Instance's mutable state.
type ServerInstance struct {
	IID              uint16
	SSID             uint16
	Lifetime         int64
	DefaultMinPeriod int64
	DefaultMaxPeriod int64
	Binding          string
}

func (i ServerInstance) clone() ServerInstance { return i }

// Server is the built-in adapter for Object 1. Its Execute resources
// (Disable, Registration Update Trigger, Bootstrap Request Trigger)
// publish events on a Broker rather than acting directly, since those
// lifecycle actions live outside the data model engine (spec §4.5).
type Server struct {
	mu        sync.Mutex
	obj       *dm.Object
	instances []*ServerInstance
	shadow    []ServerInstance
	broker    *Broker
}

// NewServer creates a Server adapter publishing lifecycle events on
// broker. broker may be nil, in which case Execute requests succeed
// without publishing anything.
func NewServer(broker *Broker) *Server {
	return &Server{broker: broker}
}

// Object returns the wired dm.Object descriptor.
func (s *Server) Object() *dm.Object {
	s.obj = &dm.Object{
		OID: 1,
		Handlers: dm.Handlers{
			InstCreate:          s.instCreate,
			InstDelete:          s.instDelete,
			InstReset:           s.instReset,
			ResRead:             s.resRead,
			ResWrite:            s.resWrite,
			ResExecute:          s.resExecute,
			TransactionBegin:    s.transactionBegin,
			TransactionValidate: s.transactionValidate,
			TransactionEnd:      s.transactionEnd,
		},
	}
	return s.obj
}

func serverDescriptor(iid uint16) *dm.Instance {
	return &dm.Instance{
		IID: iid,
		Resources: []*dm.Resource{
			{RID: ServerRIDShortServerID, Type: dmvalue.TypeInt, Operation: dm.OpR},
			{RID: ServerRIDLifetime, Type: dmvalue.TypeInt, Operation: dm.OpRW},
			{RID: ServerRIDDefaultMinPeriod, Type: dmvalue.TypeInt, Operation: dm.OpRW},
			{RID: ServerRIDDefaultMaxPeriod, Type: dmvalue.TypeInt, Operation: dm.OpRW},
			{RID: ServerRIDDisable, Type: dmvalue.TypeNone, Operation: dm.OpE},
			{RID: ServerRIDBinding, Type: dmvalue.TypeString, Operation: dm.OpRW},
			{RID: ServerRIDRegistrationUpdateTrigger, Type: dmvalue.TypeNone, Operation: dm.OpE},
			{RID: ServerRIDBootstrapRequestTrigger, Type: dmvalue.TypeNone, Operation: dm.OpE},
		},
	}
}

// Seed registers an initial Server instance outside of any engine
// operation.
func (s *Server) Seed(inst ServerInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := inst
	s.instances = append(s.instances, &stored)
	s.obj.Instances = append(s.obj.Instances, serverDescriptor(inst.IID))
	s.sortLocked()
}

// sortLocked keeps both the adapter's own instance list and the
// registered object's descriptor list sorted ascending by IID.
func (s *Server) sortLocked() {
	sort.Slice(s.instances, func(i, j int) bool { return s.instances[i].IID < s.instances[j].IID })
	sort.Slice(s.obj.Instances, func(i, j int) bool { return s.obj.Instances[i].IID < s.obj.Instances[j].IID })
}

func (s *Server) find(iid uint16) *ServerInstance {
	for _, inst := range s.instances {
		if inst.IID == iid {
			return inst
		}
	}
	return nil
}

// DefaultPeriods returns the default_pmin/default_pmax for the server
// instance whose SSID matches, for attr.Store.Effective's backfill step
// (spec §4.6).
func (s *Server) DefaultPeriods(ssid uint16) attr.ServerDefaults {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.instances {
		if inst.SSID == ssid {
			pmin, pmax := int(inst.DefaultMinPeriod), int(inst.DefaultMaxPeriod)
			return attr.ServerDefaults{DefaultPMin: &pmin, DefaultPMax: &pmax}
		}
	}
	return attr.ServerDefaults{}
}

func (s *Server) instCreate(iid uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances = append(s.instances, &ServerInstance{IID: iid})
	s.obj.Instances = append(s.obj.Instances, serverDescriptor(iid))
	s.sortLocked()
	return nil
}

func (s *Server) instDelete(iid uint16) error {
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
		return dmerr.Internal("server: instance %d not found", iid)
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
// §4.4.2): writable fields go back to zero; SSID is read-only and set at
// creation time, so it survives the reset.
func (s *Server) instReset(iid uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst := s.find(iid)
	if inst == nil {
		return dmerr.NotFound("server: instance %d not found", iid)
	}
	*inst = ServerInstance{IID: iid, SSID: inst.SSID}
	return nil
}

func (s *Server) resRead(iid, rid, riid uint16) (dmvalue.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst := s.find(iid)
	if inst == nil {
		return dmvalue.Value{}, dmerr.NotFound("server: instance %d not found", iid)
	}
	switch rid {
	case ServerRIDShortServerID:
		return dmvalue.Int(int64(inst.SSID)), nil
	case ServerRIDLifetime:
		return dmvalue.Int(inst.Lifetime), nil
	case ServerRIDDefaultMinPeriod:
		return dmvalue.Int(inst.DefaultMinPeriod), nil
	case ServerRIDDefaultMaxPeriod:
		return dmvalue.Int(inst.DefaultMaxPeriod), nil
	case ServerRIDBinding:
		return dmvalue.String(inst.Binding), nil
	default:
		return dmvalue.Value{}, dmerr.NotFound("server: resource %d not found", rid)
	}
}

func (s *Server) resWrite(iid, rid, riid uint16, value dmvalue.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst := s.find(iid)
	if inst == nil {
		return dmerr.NotFound("server: instance %d not found", iid)
	}
	switch rid {
	case ServerRIDLifetime:
		inst.Lifetime = value.Int
	case ServerRIDDefaultMinPeriod:
		inst.DefaultMinPeriod = value.Int
	case ServerRIDDefaultMaxPeriod:
		inst.DefaultMaxPeriod = value.Int
	case ServerRIDBinding:
		inst.Binding = value.String
	default:
		return dmerr.MethodNotAllowed("server: resource %d is not writable", rid)
	}
	return nil
}

func (s *Server) resExecute(iid, rid uint16, arg []byte) error {
	s.mu.Lock()
	inst := s.find(iid)
	s.mu.Unlock()
	if inst == nil {
		return dmerr.NotFound("server: instance %d not found", iid)
	}

	var evType EventType
	switch rid {
	case ServerRIDDisable:
		evType = EventDisable
	case ServerRIDRegistrationUpdateTrigger:
		evType = EventRegistrationUpdateTrig
	case ServerRIDBootstrapRequestTrigger:
		evType = EventBootstrapRequestTrigger
	default:
		return dmerr.MethodNotAllowed("server: resource %d is not executable", rid)
	}

	if s.broker != nil {
		s.broker.Publish(Event{Type: evType, SSID: inst.SSID})
	}
	return nil
}

func (s *Server) transactionBegin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shadow = make([]ServerInstance, len(s.instances))
	for i, inst := range s.instances {
		s.shadow[i] = inst.clone()
	}
	return nil
}

// transactionValidate enforces SSID uniqueness across Server instances,
// per spec §4.5's "SSID uniqueness" obligation.
func (s *Server) transactionValidate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[uint16]bool, len(s.instances))
	for _, inst := range s.instances {
		if seen[inst.SSID] {
			return dmerr.BadRequest("server: duplicate SSID %d", inst.SSID)
		}
		seen[inst.SSID] = true
	}
	return nil
}

func (s *Server) transactionEnd(result error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if result == nil {
		s.shadow = nil
		return
	}
	restored := make([]*ServerInstance, len(s.shadow))
	descriptors := make([]*dm.Instance, len(s.shadow))
	for i := range s.shadow {
		v := s.shadow[i]
		restored[i] = &v
		descriptors[i] = serverDescriptor(v.IID)
	}
	s.instances = restored
	s.obj.Instances = descriptors
	s.shadow = nil
}
