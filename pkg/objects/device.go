package objects

import (
	"sync"

	"github.com/cuemby/lwm2mcore/pkg/dm"
	"github.com/cuemby/lwm2mcore/pkg/dmerr"
	"github.com/cuemby/lwm2mcore/pkg/dmvalue"
)

// Device resource IDs (standard LwM2M Device Object 3, the subset this
// adapter exercises).
const (
	DeviceRIDManufacturer uint16 = 0
	DeviceRIDModelNumber  uint16 = 1
	DeviceRIDSerialNumber uint16 = 2
	DeviceRIDReboot       uint16 = 4
)

// Device is the built-in, single-instance adapter for Object 3: a
// handful of read-only inventory resources plus a Reboot Execute. Device
// is the one object Bootstrap-Delete must never remove (spec §4.4.4).
type Device struct {
	mu           sync.Mutex
	obj          *dm.Object
	present      bool
	Manufacturer string
	ModelNumber  string
	SerialNumber string
	broker       *Broker
}

// NewDevice creates a Device adapter publishing a reboot-requested event
// on broker (may be nil).
func NewDevice(broker *Broker) *Device {
	return &Device{broker: broker}
}

// Object returns the wired dm.Object descriptor, already carrying its
// single instance 0.
func (d *Device) Object() *dm.Object {
	d.present = true
	d.obj = &dm.Object{
		OID:          3,
		MaxInstCount: 1,
		Instances: []*dm.Instance{{
			IID: 0,
			Resources: []*dm.Resource{
				{RID: DeviceRIDManufacturer, Type: dmvalue.TypeString, Operation: dm.OpR},
				{RID: DeviceRIDModelNumber, Type: dmvalue.TypeString, Operation: dm.OpR},
				{RID: DeviceRIDSerialNumber, Type: dmvalue.TypeString, Operation: dm.OpR},
				{RID: DeviceRIDReboot, Type: dmvalue.TypeNone, Operation: dm.OpE},
			},
		}},
		Handlers: dm.Handlers{
			ResRead:    d.resRead,
			ResExecute: d.resExecute,
		},
	}
	return d.obj
}

func (d *Device) resRead(iid, rid, riid uint16) (dmvalue.Value, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if iid != 0 {
		return dmvalue.Value{}, dmerr.NotFound("device: instance %d not found", iid)
	}
	switch rid {
	case DeviceRIDManufacturer:
		return dmvalue.String(d.Manufacturer), nil
	case DeviceRIDModelNumber:
		return dmvalue.String(d.ModelNumber), nil
	case DeviceRIDSerialNumber:
		return dmvalue.String(d.SerialNumber), nil
	default:
		return dmvalue.Value{}, dmerr.NotFound("device: resource %d not found", rid)
	}
}

func (d *Device) resExecute(iid, rid uint16, arg []byte) error {
	if iid != 0 {
		return dmerr.NotFound("device: instance %d not found", iid)
	}
	if rid != DeviceRIDReboot {
		return dmerr.MethodNotAllowed("device: resource %d is not executable", rid)
	}
	if d.broker != nil {
		d.broker.Publish(Event{Type: EventDeviceRebootRequested})
	}
	return nil
}
