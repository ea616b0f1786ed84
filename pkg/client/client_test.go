package client

import (
	"context"
	"errors"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/datatype-introspection/pkg/commsutil"
	"github.com/morezero/datatype-introspection/pkg/datatype"
	"github.com/morezero/datatype-introspection/pkg/dispatcher"
	"github.com/morezero/datatype-introspection/pkg/introspection"
	"github.com/morezero/datatype-introspection/pkg/registry"
)

const clientTestPrefix = "client:client_test"

var peerTypes = []datatype.Descriptor{
	{Kind: datatype.KindService, ID: 2, FullName: introspection.ServiceGetDataTypeInfo, Signature: 0x1000},
	{Kind: datatype.KindService, ID: 3, FullName: introspection.ServiceComputeAggregateTypeSignature, Signature: 0x2000},
	{Kind: datatype.KindMessage, ID: 20, FullName: "foo.Bar", Signature: 0xAABBCCDD11223344},
}

func newRegistry(t *testing.T, descs []datatype.Descriptor) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, d := range descs {
		if err := reg.Register(d); err != nil {
			t.Fatalf("%s - Register failed: %v", clientTestPrefix, err)
		}
	}
	reg.Freeze()
	return reg
}

// startPeer runs an embedded NATS server with one node serving introspection
// on subject "introspection.peer.srv".
func startPeer(t *testing.T) (*comms.Conn, *dispatcher.Dispatcher) {
	t.Helper()

	ns, err := commsserver.NewServer(&commsserver.Options{
		Host:   "127.0.0.1",
		Port:   commsserver.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", clientTestPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", clientTestPrefix)
	}

	nc, err := comms.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", clientTestPrefix, err)
	}
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	reg := newRegistry(t, peerTypes)
	disp := dispatcher.NewDispatcher(reg)
	provider := introspection.NewProvider(introspection.NewProviderParams{Types: reg, Status: disp, Registrar: disp})
	if err := provider.Start(); err != nil {
		t.Fatalf("%s - provider start failed: %v", clientTestPrefix, err)
	}

	_, err = nc.Subscribe(commsutil.BuildServiceSubject("peer"), func(msg *comms.Msg) {
		var req dispatcher.ServiceRequest
		resp := dispatcher.InvalidRequest()
		if err := commsutil.DecodePayload(msg.Data, &req); err == nil {
			resp = disp.Dispatch(context.Background(), &req)
		}
		data, _ := commsutil.EncodePayload(resp)
		_ = msg.Respond(data)
	})
	if err != nil {
		t.Fatalf("%s - subscribe failed: %v", clientTestPrefix, err)
	}
	return nc, disp
}

func newClient(nc *comms.Conn) *Client {
	return New(Params{Conn: nc, Subject: commsutil.BuildServiceSubject("peer"), Timeout: 2 * time.Second, Node: "tester"})
}

func TestClient_GetDataTypeInfoByName(t *testing.T) {
	nc, disp := startPeer(t)
	disp.AddPublisher(20)
	c := newClient(nc)

	resp, err := c.GetDataTypeInfoByName(context.Background(), "foo.Bar")
	if err != nil {
		t.Fatalf("%s - GetDataTypeInfoByName failed: %v", clientTestPrefix, err)
	}
	if NotFound(resp) {
		t.Fatalf("%s - foo.Bar reported not found", clientTestPrefix)
	}
	if resp.ID != 20 || resp.Signature != 0xAABBCCDD11223344 {
		t.Errorf("%s - response = %+v", clientTestPrefix, resp)
	}
	if resp.Mask != introspection.FlagKnown|introspection.FlagPublishing {
		t.Errorf("%s - mask = %04b", clientTestPrefix, resp.Mask)
	}
}

func TestClient_GetDataTypeInfo_ServingFlag(t *testing.T) {
	nc, _ := startPeer(t)
	c := newClient(nc)

	resp, err := c.GetDataTypeInfo(context.Background(), datatype.KindService, 2)
	if err != nil {
		t.Fatalf("%s - GetDataTypeInfo failed: %v", clientTestPrefix, err)
	}
	if resp.Mask != introspection.FlagKnown|introspection.FlagServing {
		t.Errorf("%s - mask = %04b, want known|serving", clientTestPrefix, resp.Mask)
	}
}

func TestClient_GetDataTypeInfo_NotFoundIsSilent(t *testing.T) {
	nc, _ := startPeer(t)
	c := newClient(nc)

	resp, err := c.GetDataTypeInfo(context.Background(), datatype.KindService, 200)
	if err != nil {
		t.Fatalf("%s - not-found must not be a transport error: %v", clientTestPrefix, err)
	}
	if !NotFound(resp) {
		t.Errorf("%s - expected not found, got %+v", clientTestPrefix, resp)
	}
	if resp.ID != 200 || resp.Kind != datatype.KindService || resp.Name != "" || resp.Signature != 0 {
		t.Errorf("%s - expected only the echoed query, got %+v", clientTestPrefix, resp)
	}
}

func TestClient_ComputeAggregateTypeSignature(t *testing.T) {
	nc, _ := startPeer(t)
	c := newClient(nc)

	resp, err := c.ComputeAggregateTypeSignature(context.Background(), datatype.KindService, datatype.IDMaskOf(3, 2))
	if err != nil {
		t.Fatalf("%s - ComputeAggregateTypeSignature failed: %v", clientTestPrefix, err)
	}
	want := datatype.Signature(0x1000)
	want.Extend(0x2000)
	if resp.AggregateSignature != want {
		t.Errorf("%s - aggregate = %s, want %s", clientTestPrefix, resp.AggregateSignature, want)
	}
	if resp.MutuallyKnownIDs.Len() != 256 || !resp.MutuallyKnownIDs.Test(2) || resp.MutuallyKnownIDs.Count() != 1 {
		t.Errorf("%s - mask len %d count %d", clientTestPrefix, resp.MutuallyKnownIDs.Len(), resp.MutuallyKnownIDs.Count())
	}
}

func TestClient_Verify(t *testing.T) {
	nc, _ := startPeer(t)
	c := newClient(nc)

	same := newRegistry(t, peerTypes)
	res, err := c.Verify(context.Background(), same, datatype.KindMessage)
	if err != nil {
		t.Fatalf("%s - Verify failed: %v", clientTestPrefix, err)
	}
	if !res.Match {
		t.Errorf("%s - identical catalogs should match: %+v", clientTestPrefix, res)
	}

	different := newRegistry(t, []datatype.Descriptor{
		{Kind: datatype.KindMessage, ID: 20, FullName: "foo.Bar", Signature: 0xAABBCCDD11223345},
	})
	res, err = c.Verify(context.Background(), different, datatype.KindMessage)
	if err != nil {
		t.Fatalf("%s - Verify failed: %v", clientTestPrefix, err)
	}
	if res.Match {
		t.Errorf("%s - differing signatures should not match", clientTestPrefix)
	}

	if _, err := c.Verify(context.Background(), same, datatype.Kind(5)); err == nil {
		t.Errorf("%s - Verify with invalid kind should fail", clientTestPrefix)
	}
}

func TestClient_RemoteError(t *testing.T) {
	nc, disp := startPeer(t)
	disp.UnregisterHandler(introspection.ServiceGetDataTypeInfo)
	c := newClient(nc)

	_, err := c.GetDataTypeInfoByName(context.Background(), "foo.Bar")
	if !errors.Is(err, ErrRemote) {
		t.Errorf("%s - expected ErrRemote, got %v", clientTestPrefix, err)
	}
}

func TestClient_NoResponder(t *testing.T) {
	nc, _ := startPeer(t)
	c := New(Params{Conn: nc, Subject: "introspection.nobody.srv", Timeout: 500 * time.Millisecond})

	if _, err := c.GetDataTypeInfoByName(context.Background(), "foo.Bar"); err == nil {
		t.Errorf("%s - expected error without responder", clientTestPrefix)
	}
}
