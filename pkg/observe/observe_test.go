package observe

import (
	"testing"
	"time"

	"github.com/cuemby/lwm2mcore/pkg/attr"
	"github.com/cuemby/lwm2mcore/pkg/dmpath"
	"github.com/cuemby/lwm2mcore/pkg/dmvalue"
)

type fakeOracle struct{}

func (fakeOracle) ResourceType(oid, rid uint16) (dmvalue.Type, bool, bool) {
	return dmvalue.TypeInt, false, true
}

type fakeContent struct{ readable bool }

func (f fakeContent) HasReadableContent(p dmpath.Path) bool { return f.readable }

type fakeValues struct{ v map[string]dmvalue.Value }

func (f fakeValues) ReadCurrent(p dmpath.Path) (dmvalue.Value, bool) {
	v, ok := f.v[p.String()]
	return v, ok
}

func newTestTable(vals map[string]dmvalue.Value) *Table {
	store := attr.NewStore(0, fakeOracle{})
	return NewTable(0, store, fakeContent{readable: true}, fakeValues{v: vals}, nil)
}

// fakeExpander stands in for dm.DataModel.ExpandObservable: it models a
// registry of a handful of Objects, each owning a fixed set of readable
// resource paths, without pulling in pkg/dm.
type fakeExpander struct{ perObject map[int][]dmpath.Path }

func (f fakeExpander) ExpandObservable(p dmpath.Path) []dmpath.Path {
	if p.Has(1) {
		return []dmpath.Path{p}
	}
	var out []dmpath.Path
	for _, paths := range f.perObject {
		out = append(out, paths...)
	}
	return out
}

func TestAddObservationSamplesBaseline(t *testing.T) {
	path := dmpath.Resource(3, 0, 1)
	tbl := newTestTable(map[string]dmvalue.Value{path.String(): dmvalue.Int(5)})

	now := time.Unix(1000, 0)
	obs, err := tbl.AddObservation(1, []byte{0x01}, path, attr.Attributes{}, 0, 0, now, attr.ServerDefaults{})
	if err != nil {
		t.Fatalf("AddObservation: %v", err)
	}
	if obs.LastSent.Int != 5 {
		t.Fatalf("expected baseline sample 5, got %v", obs.LastSent)
	}
	if !obs.Active {
		t.Fatal("expected active observation")
	}
}

func TestAddObservationRejectsNonReadablePath(t *testing.T) {
	store := attr.NewStore(0, fakeOracle{})
	tbl := NewTable(0, store, fakeContent{readable: false}, fakeValues{v: map[string]dmvalue.Value{}}, nil)
	_, err := tbl.AddObservation(1, []byte{0x01}, dmpath.Resource(3, 0, 1), attr.Attributes{}, 0, 0, time.Now(), attr.ServerDefaults{})
	if err == nil {
		t.Fatal("expected error for unreadable observe target")
	}
}

func TestCancelRemovesObservation(t *testing.T) {
	path := dmpath.Resource(3, 0, 1)
	tbl := newTestTable(map[string]dmvalue.Value{path.String(): dmvalue.Int(5)})
	_, err := tbl.AddObservation(1, []byte{0x01}, path, attr.Attributes{}, 0, 0, time.Now(), attr.ServerDefaults{})
	if err != nil {
		t.Fatalf("AddObservation: %v", err)
	}
	if err := tbl.Cancel(1, []byte{0x01}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := tbl.Cancel(1, []byte{0x01}); err == nil {
		t.Fatal("expected NOT_FOUND on second cancel")
	}
}

func TestRemoveAllObservationsScopesToSSID(t *testing.T) {
	path := dmpath.Resource(3, 0, 1)
	tbl := newTestTable(map[string]dmvalue.Value{path.String(): dmvalue.Int(5)})
	_, _ = tbl.AddObservation(1, []byte{0x01}, path, attr.Attributes{}, 0, 0, time.Now(), attr.ServerDefaults{})
	_, _ = tbl.AddObservation(2, []byte{0x02}, path, attr.Attributes{}, 0, 0, time.Now(), attr.ServerDefaults{})

	tbl.RemoveAllObservations(1)
	all := tbl.All()
	if len(all) != 1 || all[0].SSID() != 2 {
		t.Fatalf("expected only ssid 2 to remain, got %v", all)
	}
}

func TestCompositeObservationRollsBackOnFailure(t *testing.T) {
	good := dmpath.Resource(3, 0, 1)
	bad := dmpath.Resource(3, 0, 2)
	store := attr.NewStore(0, fakeOracle{})
	content := struct{ okPath dmpath.Path }{okPath: good}
	checker := contentCheckerFunc(func(p dmpath.Path) bool {
		return dmpath.Equal(p, content.okPath)
	})
	tbl := NewTable(0, store, checker, fakeValues{v: map[string]dmvalue.Value{good.String(): dmvalue.Int(1)}}, nil)

	_, err := tbl.AddObservationComposite(1, []byte{0x01}, []dmpath.Path{good, bad}, attr.Attributes{}, 0, 0, time.Now(), attr.ServerDefaults{})
	if err == nil {
		t.Fatal("expected error for unreadable member path")
	}
	if len(tbl.All()) != 0 {
		t.Fatal("expected rollback to remove the partially added member")
	}
}

// TestCompositeObservationExpandsRootPerObject is spec §8 E2E-6: an
// Observe-Composite request naming "/" among its paths must observe
// every resource of every registered Object, not insert a single dead
// member at the root path itself (which ReadCurrent can never sample).
func TestCompositeObservationExpandsRootPerObject(t *testing.T) {
	store := attr.NewStore(0, fakeOracle{})
	r1 := dmpath.Resource(3, 0, 1)
	r2 := dmpath.Resource(3, 0, 2)
	r3 := dmpath.Resource(1, 0, 1)
	expander := fakeExpander{perObject: map[int][]dmpath.Path{
		3: {r1, r2},
		1: {r3},
	}}
	values := map[string]dmvalue.Value{
		r1.String(): dmvalue.Int(1),
		r2.String(): dmvalue.Int(2),
		r3.String(): dmvalue.Int(3),
	}
	tbl := NewTable(0, store, fakeContent{readable: true}, fakeValues{v: values}, expander)

	added, err := tbl.AddObservationComposite(1, []byte{0x01}, []dmpath.Path{dmpath.Root()}, attr.Attributes{}, 0, 0, time.Now(), attr.ServerDefaults{})
	if err != nil {
		t.Fatalf("AddObservationComposite: %v", err)
	}
	if len(added) != 3 {
		t.Fatalf("expected root to expand to 3 observations, got %d", len(added))
	}
	for _, obs := range added {
		if dmpath.Equal(obs.Path, dmpath.Root()) {
			t.Fatal("expected no member observation to remain at the root path itself")
		}
		v, ok := values[obs.Path.String()]
		if !ok {
			t.Fatalf("unexpected expanded member path %s", obs.Path.String())
		}
		if obs.LastSent.Int != v.Int {
			t.Fatalf("expected baseline sample %v for %s, got %v", v, obs.Path.String(), obs.LastSent)
		}
	}
}

type contentCheckerFunc func(dmpath.Path) bool

func (f contentCheckerFunc) HasReadableContent(p dmpath.Path) bool { return f(p) }

func TestPumpFiresOnPMaxElapsed(t *testing.T) {
	path := dmpath.Resource(3, 0, 1)
	values := map[string]dmvalue.Value{path.String(): dmvalue.Int(5)}
	tbl := newTestTable(values)

	start := time.Unix(1000, 0)
	pmax := 10
	_, err := tbl.AddObservation(1, []byte{0x01}, path, attr.Attributes{}.WithPMax(pmax), 0, 0, start, attr.ServerDefaults{})
	if err != nil {
		t.Fatalf("AddObservation: %v", err)
	}

	sender := &recordingSender{}
	pump := NewPump(tbl, fakeValues{v: values}, sender, time.Second)

	pump.Tick(start.Add(5 * time.Second))
	if len(sender.sent) != 0 {
		t.Fatal("expected no notification before pmax elapses")
	}

	pump.Tick(start.Add(11 * time.Second))
	if len(sender.sent) != 1 {
		t.Fatalf("expected one notification after pmax elapses, got %d", len(sender.sent))
	}
}

func TestPumpFiresOnValueChangeAndCollapsesRetriggers(t *testing.T) {
	path := dmpath.Resource(3, 0, 1)
	values := map[string]dmvalue.Value{path.String(): dmvalue.Int(5)}
	tbl := newTestTable(values)
	start := time.Unix(1000, 0)
	_, err := tbl.AddObservation(1, []byte{0x01}, path, attr.Attributes{}, 0, 0, start, attr.ServerDefaults{})
	if err != nil {
		t.Fatalf("AddObservation: %v", err)
	}

	sender := &blockingSender{}
	pump := NewPump(tbl, fakeValues{v: values}, sender, time.Second)

	values[path.String()] = dmvalue.Int(6)
	pump.Tick(start.Add(1 * time.Second))
	if sender.calls != 1 {
		t.Fatalf("expected one send attempt, got %d", sender.calls)
	}
	if len(sender.lastMembers) != 1 {
		t.Fatalf("expected exactly one member in the batch, got %d", len(sender.lastMembers))
	}

	obs := tbl.All()[0]
	if !obs.Pending {
		t.Fatal("expected observation to remain pending after an unconfirmed send")
	}
	if obs.LastSent.Int != 5 {
		t.Fatalf("expected last_sent_value unchanged until confirmation, got %v", obs.LastSent.Int)
	}

	// A second value change arrives before the first send confirms; it
	// must collapse into the same already-pending record rather than
	// growing the batch, since at most one notification per observation
	// may be in flight (spec §4.7.5).
	values[path.String()] = dmvalue.Int(7)
	pump.Tick(start.Add(2 * time.Second))
	if sender.calls != 2 {
		t.Fatalf("expected a retry attempt on the next tick, got %d calls", sender.calls)
	}
	if len(sender.lastMembers) != 1 {
		t.Fatalf("expected the retry batch to still carry exactly one member, got %d", len(sender.lastMembers))
	}
}

// TestNotifyChangedSignalsPendingReevaluation is spec §4.7.5/§4.7.6's
// "whenever told of a data model change" trigger: NotifyChanged must
// queue a re-evaluation for the run loop without touching the Table or
// blocking, since real callers invoke it from a dm.Watcher callback
// while the data model's own lock is held.
func TestNotifyChangedSignalsPendingReevaluation(t *testing.T) {
	path := dmpath.Resource(3, 0, 1)
	values := map[string]dmvalue.Value{path.String(): dmvalue.Int(5)}
	tbl := newTestTable(values)
	pump := NewPump(tbl, fakeValues{v: values}, &recordingSender{}, time.Hour)

	pump.NotifyChanged()
	select {
	case <-pump.changedCh:
	default:
		t.Fatal("expected NotifyChanged to signal the pump's change channel")
	}

	// Repeated signals before the first is drained coalesce into one
	// pending re-evaluation rather than blocking or queuing unboundedly.
	pump.NotifyChanged()
	pump.NotifyChanged()
	select {
	case <-pump.changedCh:
	default:
		t.Fatal("expected a pending signal after repeated NotifyChanged calls")
	}
	select {
	case <-pump.changedCh:
		t.Fatal("expected only one coalesced signal to be pending")
	default:
	}
}

type recordingSender struct{ sent []Pending }

func (r *recordingSender) Send(p Pending, now time.Time) error {
	r.sent = append(r.sent, p)
	return nil
}

// blockingSender simulates a notification whose delivery never
// confirms (by returning an error), so the pump must leave the
// observation Pending and retry rather than silently drop it.
type blockingSender struct {
	calls       int
	lastMembers []*Observation
}

func (b *blockingSender) Send(p Pending, now time.Time) error {
	b.calls++
	b.lastMembers = p.Members
	return errSendNeverConfirms
}

var errSendNeverConfirms = &sendError{}

type sendError struct{}

func (*sendError) Error() string { return "send never confirms" }
