package dm

import (
	"github.com/cuemby/lwm2mcore/pkg/coapshim"
	"github.com/cuemby/lwm2mcore/pkg/dmerr"
	"github.com/cuemby/lwm2mcore/pkg/dmpath"
)

// opBase is embedded by every concrete operation type (ReadOperation,
// WriteOperation, ...). It implements the two-pass transactional
// protocol described in spec §4.4: objects are "touched" in the order
// the operation first reaches them, transaction_begin fires once per
// touched object on first touch, and End() runs transaction_validate
// (only if no error latched yet) followed by transaction_end across
// every touched object, in touch order, exactly once each.
//
// This mirrors the reference's manager FSM command dispatch: a command
// is staged against every affected resource, validated once all staging
// finishes, then committed or rolled back as a unit.
type opBase struct {
	dm            *DataModel
	kind          coapshim.Op
	isBootstrap   bool
	basePath      dmpath.Path
	transactional bool

	touched    []*Object
	touchedSet map[uint16]bool

	err   error
	ended bool
}

func newOpBase(dm *DataModel, kind coapshim.Op, base dmpath.Path, isBootstrap, transactional bool) *opBase {
	return &opBase{dm: dm, kind: kind, basePath: base, isBootstrap: isBootstrap, transactional: transactional}
}

// beginOn claims the DataModel's single operation slot for o. Only one
// operation may be active at a time (spec §4.4 invariant 1); attempting
// to start a second is a LOGIC engine error, surfaced to the caller
// rather than the protocol layer, since it signals host misuse.
func (dm *DataModel) beginOn(o *opBase) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.current != nil {
		return dmerr.Logic("operation already in progress")
	}
	dm.current = o
	return nil
}

// touch records first contact with obj for this operation, firing
// transaction_begin exactly once per object, before any mutating
// handler call reaches it.
func (o *opBase) touch(obj *Object) error {
	if o.touchedSet == nil {
		o.touchedSet = make(map[uint16]bool)
	}
	if o.touchedSet[obj.OID] {
		return nil
	}
	o.touchedSet[obj.OID] = true
	o.touched = append(o.touched, obj)
	if o.transactional && obj.Handlers.TransactionBegin != nil {
		if err := obj.Handlers.TransactionBegin(); err != nil {
			return err
		}
	}
	return nil
}

// fail latches the first error seen by the operation; subsequent
// failures are recorded but do not overwrite the first, matching the
// reference's "first error wins" transaction abort semantics.
func (o *opBase) fail(err error) error {
	if err == nil {
		return nil
	}
	if o.err == nil {
		o.err = err
	}
	return err
}

// end runs the validate+commit/rollback pass and releases the
// DataModel's operation slot. It is not idempotent: call it once; a
// second call is a LOGIC error.
func (o *opBase) end() error {
	if o.ended {
		return dmerr.Logic("operation already ended")
	}
	o.ended = true
	defer func() {
		o.dm.mu.Lock()
		o.dm.current = nil
		o.dm.mu.Unlock()
	}()

	if o.transactional {
		if o.err == nil {
			for _, obj := range o.touched {
				if obj.Handlers.TransactionValidate == nil {
					continue
				}
				if verr := obj.Handlers.TransactionValidate(); verr != nil {
					o.err = verr
					break
				}
			}
		}
		for _, obj := range o.touched {
			if obj.Handlers.TransactionEnd != nil {
				obj.Handlers.TransactionEnd(o.err)
			}
		}
	}
	return o.err
}
