package objects

import (
	"sync"

	"github.com/cuemby/lwm2mcore/pkg/dm"
	"github.com/cuemby/lwm2mcore/pkg/dmerr"
	"github.com/cuemby/lwm2mcore/pkg/dmvalue"
)

// FirmwareRIDPackage is the Package (OPAQUE) resource: a large firmware
// image written in chunks across repeated WriteEntry calls at the same
// path rather than in one shot, the standard delivery mode for
// Resource 0 of Object 5.
const FirmwareRIDPackage uint16 = 0

// FirmwareRIDPackageMaxSize bounds the in-memory buffer
// firmwarePackageBuffer accumulates a chunked Package write into.
const FirmwareRIDPackageMaxSize = 4 << 20

// FirmwareUpdate resource IDs (standard LwM2M Firmware Update Object 5,
// the subset this adapter exercises).
const (
	FirmwareRIDPackageURI   uint16 = 1
	FirmwareRIDUpdate       uint16 = 2
	FirmwareRIDState        uint16 = 3
	FirmwareRIDUpdateResult uint16 = 5
)

// Firmware update states, spec-standard values for Resource 3.
const (
	FirmwareStateIdle        int64 = 0
	FirmwareStateDownloading int64 = 1
	FirmwareStateDownloaded  int64 = 2
	FirmwareStateUpdating    int64 = 3
)

// FirmwareUpdate is the built-in, single-instance adapter for Object 5.
// Its Update Execute resource is single-instance and non-multi, exercised
// alongside Security/Server's multi-instance paths (SPEC_FULL §4.5).
type FirmwareUpdate struct {
	mu         sync.Mutex
	obj        *dm.Object
	PackageURI string
	Package    []byte
	State      int64
	Result     int64
	broker     *Broker
	pkgBuf     *dmvalue.ChunkedBuffer
}

// NewFirmwareUpdate creates a FirmwareUpdate adapter publishing an
// update-requested event on broker (may be nil).
func NewFirmwareUpdate(broker *Broker) *FirmwareUpdate {
	return &FirmwareUpdate{broker: broker}
}

// Object returns the wired dm.Object descriptor, already carrying its
// single instance 0.
func (f *FirmwareUpdate) Object() *dm.Object {
	f.obj = &dm.Object{
		OID:          5,
		MaxInstCount: 1,
		Instances: []*dm.Instance{{
			IID: 0,
			Resources: []*dm.Resource{
				{RID: FirmwareRIDPackage, Type: dmvalue.TypeBytes, Operation: dm.OpRW},
				{RID: FirmwareRIDPackageURI, Type: dmvalue.TypeString, Operation: dm.OpRW},
				{RID: FirmwareRIDUpdate, Type: dmvalue.TypeNone, Operation: dm.OpE},
				{RID: FirmwareRIDState, Type: dmvalue.TypeInt, Operation: dm.OpR},
				{RID: FirmwareRIDUpdateResult, Type: dmvalue.TypeInt, Operation: dm.OpR},
			},
		}},
		Handlers: dm.Handlers{
			ResRead:    f.resRead,
			ResWrite:   f.resWrite,
			ResExecute: f.resExecute,
		},
	}
	return f.obj
}

func (f *FirmwareUpdate) resRead(iid, rid, riid uint16) (dmvalue.Value, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if iid != 0 {
		return dmvalue.Value{}, dmerr.NotFound("firmware: instance %d not found", iid)
	}
	switch rid {
	case FirmwareRIDPackage:
		return dmvalue.Bytes(f.Package), nil
	case FirmwareRIDPackageURI:
		return dmvalue.String(f.PackageURI), nil
	case FirmwareRIDState:
		return dmvalue.Int(f.State), nil
	case FirmwareRIDUpdateResult:
		return dmvalue.Int(f.Result), nil
	default:
		return dmvalue.Value{}, dmerr.NotFound("firmware: resource %d not found", rid)
	}
}

func (f *FirmwareUpdate) resWrite(iid, rid, riid uint16, value dmvalue.Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if iid != 0 {
		return dmerr.NotFound("firmware: instance %d not found", iid)
	}
	switch rid {
	case FirmwareRIDPackage:
		return f.writePackageLocked(value)
	case FirmwareRIDPackageURI:
		f.PackageURI = value.String
		f.State = FirmwareStateDownloading
		return nil
	default:
		return dmerr.MethodNotAllowed("firmware: resource %d is not writable", rid)
	}
}

// writePackageLocked accumulates a Package write that may arrive as a
// single whole value (value.Chunk == nil) or as one fragment of a
// larger transfer (value.Chunk != nil, spec §9 "Chunked values"); the
// image is only considered downloaded once the last chunk lands.
// Caller holds f.mu.
func (f *FirmwareUpdate) writePackageLocked(value dmvalue.Value) error {
	if value.Chunk == nil {
		f.Package = append([]byte(nil), value.Bytes...)
		f.State = FirmwareStateDownloaded
		return nil
	}

	if value.Chunk.Offset == 0 {
		f.pkgBuf = dmvalue.NewChunkedBuffer(make([]byte, FirmwareRIDPackageMaxSize), false)
		f.State = FirmwareStateDownloading
	}
	if f.pkgBuf == nil {
		return dmerr.BadRequest("firmware: chunked package write did not start at offset 0")
	}
	if err := f.pkgBuf.WriteChunk(*value.Chunk); err != nil {
		return dmerr.BadRequest("firmware: %v", err)
	}
	if f.pkgBuf.IsLastChunk() {
		f.Package = append([]byte(nil), f.pkgBuf.Bytes()...)
		f.pkgBuf = nil
		f.State = FirmwareStateDownloaded
	}
	return nil
}

func (f *FirmwareUpdate) resExecute(iid, rid uint16, arg []byte) error {
	if iid != 0 {
		return dmerr.NotFound("firmware: instance %d not found", iid)
	}
	if rid != FirmwareRIDUpdate {
		return dmerr.MethodNotAllowed("firmware: resource %d is not executable", rid)
	}
	f.mu.Lock()
	if f.State != FirmwareStateDownloaded {
		f.mu.Unlock()
		return dmerr.BadRequest("firmware: update requires state DOWNLOADED, got %d", f.State)
	}
	f.State = FirmwareStateUpdating
	f.mu.Unlock()

	if f.broker != nil {
		f.broker.Publish(Event{Type: EventFirmwareUpdateRequested})
	}
	return nil
}
