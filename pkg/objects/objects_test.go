package objects

import (
	"testing"

	"github.com/cuemby/lwm2mcore/pkg/dm"
	"github.com/cuemby/lwm2mcore/pkg/dmerr"
	"github.com/cuemby/lwm2mcore/pkg/dmpath"
	"github.com/cuemby/lwm2mcore/pkg/dmvalue"
)

// TestBootstrapDeletePreservesBootstrapSecurity is spec §8 E2E-2: two
// Security instances where /0/0/1 == false and /0/1/1 == true, one Server
// instance /1/0, one Device instance /3/0, and one OSCORE instance /21/0
// linked from /0/1/17; after bootstrap-delete on "/", the Security table
// contains only iid=1, the Server table is empty, Device remains with
// iid=0, and OSCORE remains with iid=0.
func TestBootstrapDeletePreservesBootstrapSecurity(t *testing.T) {
	model := dm.New(dm.DefaultLimits())

	sec := NewSecurity()
	secObj := sec.Object()
	sec.Seed(SecurityInstance{IID: 0, BootstrapServer: false, URI: "coap://server.example"})
	sec.Seed(SecurityInstance{
		IID: 1, BootstrapServer: true, URI: "coap://bootstrap.example",
		OSCORELink: dmvalue.ObjLnk{OID: 21, IID: 0}, HasOSCORELink: true,
	})
	if err := model.AddObject(secObj); err != nil {
		t.Fatalf("AddObject(security): %v", err)
	}

	srv := NewServer(nil)
	srvObj := srv.Object()
	srv.Seed(ServerInstance{IID: 0, SSID: 1})
	if err := model.AddObject(srvObj); err != nil {
		t.Fatalf("AddObject(server): %v", err)
	}

	dev := NewDevice(nil)
	devObj := dev.Object()
	if err := model.AddObject(devObj); err != nil {
		t.Fatalf("AddObject(device): %v", err)
	}

	oscoreObj := &dm.Object{
		OID:       21,
		Instances: []*dm.Instance{{IID: 0}},
		Handlers: dm.Handlers{
			InstDelete: func(iid uint16) error { return nil },
		},
	}
	if err := model.AddObject(oscoreObj); err != nil {
		t.Fatalf("AddObject(oscore): %v", err)
	}

	if err := model.Delete(dmpath.Root(), true); err != nil {
		t.Fatalf("bootstrap delete: %v", err)
	}

	if secObj.FindInstance(0) != nil {
		t.Fatal("expected non-bootstrap Security instance 0 to be wiped")
	}
	if secObj.FindInstance(1) == nil {
		t.Fatal("expected bootstrap-server Security instance 1 to survive")
	}
	if len(srvObj.Instances) != 0 {
		t.Fatalf("expected Server table empty, got %d instances", len(srvObj.Instances))
	}
	if devObj.FindInstance(0) == nil {
		t.Fatal("expected Device instance 0 to survive bootstrap-delete")
	}
	if oscoreObj.FindInstance(0) == nil {
		t.Fatal("expected OSCORE instance 0 (linked from the bootstrap server) to survive")
	}
}

// TestBootstrapDiscoverPopulatesSSIDAndURI is spec §4.4.7: a
// non-bootstrap-server Security instance reports its SSID and URI, a
// Server instance reports its SSID, an OSCORE instance reports the SSID
// of the non-bootstrap-server Security instance linking to it, and the
// bootstrap-server Security instance itself reports neither.
func TestBootstrapDiscoverPopulatesSSIDAndURI(t *testing.T) {
	model := dm.New(dm.DefaultLimits())

	sec := NewSecurity()
	secObj := sec.Object()
	sec.Seed(SecurityInstance{IID: 0, BootstrapServer: false, URI: "coap://server.example", ShortServerID: 1})
	sec.Seed(SecurityInstance{
		IID: 1, BootstrapServer: true, URI: "coap://bootstrap.example",
		OSCORELink: dmvalue.ObjLnk{OID: 21, IID: 0}, HasOSCORELink: true,
	})
	sec.Seed(SecurityInstance{
		IID: 2, BootstrapServer: false, URI: "coaps://oscore-server.example", ShortServerID: 2,
		OSCORELink: dmvalue.ObjLnk{OID: 21, IID: 0}, HasOSCORELink: true,
	})
	if err := model.AddObject(secObj); err != nil {
		t.Fatalf("AddObject(security): %v", err)
	}

	srv := NewServer(nil)
	srvObj := srv.Object()
	srv.Seed(ServerInstance{IID: 0, SSID: 1})
	if err := model.AddObject(srvObj); err != nil {
		t.Fatalf("AddObject(server): %v", err)
	}

	oscoreObj := &dm.Object{
		OID:       21,
		Instances: []*dm.Instance{{IID: 0}},
		Handlers: dm.Handlers{
			InstDelete: func(iid uint16) error { return nil },
		},
	}
	if err := model.AddObject(oscoreObj); err != nil {
		t.Fatalf("AddObject(oscore): %v", err)
	}

	op, err := model.BeginBootstrapDiscover(dmpath.Root())
	if err != nil {
		t.Fatalf("BeginBootstrapDiscover: %v", err)
	}
	defer op.End()

	byPath := map[string]dm.BootstrapDiscoverRecord{}
	for {
		r, ok := op.NextRecord()
		if !ok {
			break
		}
		byPath[r.Path.String()] = r
	}

	regular := byPath[dmpath.Instance(0, 0).String()]
	if regular.SSID == nil || *regular.SSID != 1 {
		t.Fatalf("expected security instance 0 to report ssid=1, got %+v", regular)
	}
	if regular.URI == nil || *regular.URI != "coap://server.example" {
		t.Fatalf("expected security instance 0 to report its uri, got %+v", regular)
	}

	bootstrap := byPath[dmpath.Instance(0, 1).String()]
	if bootstrap.SSID != nil || bootstrap.URI != nil {
		t.Fatalf("expected bootstrap-server security instance to report neither ssid nor uri, got %+v", bootstrap)
	}

	server := byPath[dmpath.Instance(1, 0).String()]
	if server.SSID == nil || *server.SSID != 1 {
		t.Fatalf("expected server instance to report ssid=1, got %+v", server)
	}
	if server.URI != nil {
		t.Fatalf("expected server instance to report no uri, got %+v", server)
	}

	oscore := byPath[dmpath.Instance(21, 0).String()]
	if oscore.SSID == nil || *oscore.SSID != 2 {
		t.Fatalf("expected oscore instance to report the linking security instance's ssid=2, got %+v", oscore)
	}
}

// TestBootstrapDeleteWipesAllNonSurvivingInstances guards against
// skipping instances when more than one per object needs deleting: a
// naive range-while-deleting loop over the live instance slice would
// only ever remove every other entry.
func TestBootstrapDeleteWipesAllNonSurvivingInstances(t *testing.T) {
	model := dm.New(dm.DefaultLimits())
	sec := NewSecurity()
	secObj := sec.Object()
	sec.Seed(SecurityInstance{IID: 0, BootstrapServer: false, URI: "coap://a.example"})
	sec.Seed(SecurityInstance{IID: 1, BootstrapServer: false, URI: "coap://b.example"})
	sec.Seed(SecurityInstance{IID: 2, BootstrapServer: true, URI: "coap://bootstrap.example"})
	if err := model.AddObject(secObj); err != nil {
		t.Fatalf("AddObject: %v", err)
	}

	if err := model.Delete(dmpath.Root(), true); err != nil {
		t.Fatalf("bootstrap delete: %v", err)
	}

	if len(secObj.Instances) != 1 || secObj.Instances[0].IID != 2 {
		t.Fatalf("expected only the bootstrap-server instance (iid=2) to survive, got %+v", secObj.Instances)
	}
}

func TestServerTransactionValidateRejectsDuplicateSSID(t *testing.T) {
	model := dm.New(dm.DefaultLimits())
	srv := NewServer(nil)
	srvObj := srv.Object()
	srv.Seed(ServerInstance{IID: 0, SSID: 1})
	srv.Seed(ServerInstance{IID: 1, SSID: 1})
	if err := model.AddObject(srvObj); err != nil {
		t.Fatalf("AddObject: %v", err)
	}

	wo, err := model.BeginWrite(dmpath.Resource(1, 1, ServerRIDLifetime), dm.WritePartialUpdate, false)
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	if err := wo.WriteEntry(dmpath.Resource(1, 1, ServerRIDLifetime), dmvalue.Int(300)); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	err = wo.End()
	pe, ok := dmerr.AsProtocol(err)
	if !ok || pe.Code != dmerr.CodeBadRequest {
		t.Fatalf("expected BAD_REQUEST for duplicate SSID, got %v", err)
	}
}

func TestSecurityTransactionValidateRejectsBadURIScheme(t *testing.T) {
	model := dm.New(dm.DefaultLimits())
	sec := NewSecurity()
	secObj := sec.Object()
	sec.Seed(SecurityInstance{IID: 0})
	if err := model.AddObject(secObj); err != nil {
		t.Fatalf("AddObject: %v", err)
	}

	wo, err := model.BeginWrite(dmpath.Resource(0, 0, SecurityRIDURI), dm.WritePartialUpdate, false)
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	if err := wo.WriteEntry(dmpath.Resource(0, 0, SecurityRIDURI), dmvalue.String("ftp://not-allowed")); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	err = wo.End()
	pe, ok := dmerr.AsProtocol(err)
	if !ok || pe.Code != dmerr.CodeBadRequest {
		t.Fatalf("expected BAD_REQUEST for disallowed URI scheme, got %v", err)
	}
}

func TestDeviceObjectNeverDeleted(t *testing.T) {
	model := dm.New(dm.DefaultLimits())
	dev := NewDevice(nil)
	devObj := dev.Object()
	if err := model.AddObject(devObj); err != nil {
		t.Fatalf("AddObject: %v", err)
	}
	err := model.Delete(dmpath.Instance(3, 0), false)
	pe, ok := dmerr.AsProtocol(err)
	if !ok || pe.Code != dmerr.CodeBadRequest {
		t.Fatalf("expected BAD_REQUEST deleting Device, got %v", err)
	}
	if devObj.FindInstance(0) == nil {
		t.Fatal("expected Device instance to remain after rejected delete")
	}
}
