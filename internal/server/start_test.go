package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/morezero/datatype-introspection/internal/config"
	"github.com/morezero/datatype-introspection/pkg/client"
	"github.com/morezero/datatype-introspection/pkg/commsutil"
	"github.com/morezero/datatype-introspection/pkg/datatype"
	"github.com/morezero/datatype-introspection/pkg/events"
	"github.com/morezero/datatype-introspection/pkg/introspection"
)

const startTestPrefix = "server:start_test"

func startCOMMS(t *testing.T) string {
	t.Helper()
	ns, err := commsserver.NewServer(&commsserver.Options{
		Host:   "127.0.0.1",
		Port:   commsserver.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("%s - failed to create COMMS server: %v", startTestPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - COMMS server failed to start", startTestPrefix)
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

func nodeConfig(url, node string) *config.Config {
	return &config.Config{
		COMMSURL:           url,
		NodeName:           node,
		AnnounceSubject:    commsutil.SubjectAnnounce,
		AnnounceInterval:   50 * time.Millisecond,
		RequestTimeout:     2 * time.Second,
		CatalogSource:      config.CatalogSourceFile,
		HTTPAddr:           "127.0.0.1:0",
		HealthCheckTimeout: 2 * time.Second,
	}
}

func startNode(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("%s - Start(%s) failed: %v", startTestPrefix, cfg.NodeName, err)
	}
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func TestStart_TwoNodes(t *testing.T) {
	t.Setenv("CATALOG_FILE", "")
	url := startCOMMS(t)

	a := startNode(t, nodeConfig(url, "node-a"))
	startNode(t, nodeConfig(url, "node-b"))

	deadline := time.Now().Add(5 * time.Second)
	for {
		if st, ok := a.Peers().Get("node-b"); ok {
			if !st.Agrees {
				t.Fatalf("%s - nodes with the same catalog should agree: %+v", startTestPrefix, st)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s - node-a never saw node-b", startTestPrefix)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if _, ok := a.Peers().Get("node-a"); ok {
		t.Error("server:start_test - a node must not record itself as a peer")
	}

	nc, err := commsutil.Connect(commsutil.ConnectParams{URL: url, Name: "tester"})
	if err != nil {
		t.Fatalf("%s - connect failed: %v", startTestPrefix, err)
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := client.New(client.Params{Conn: nc, Subject: commsutil.BuildServiceSubject("node-b"), Node: "tester"})

	info, err := c.GetDataTypeInfoByName(ctx, events.AnnouncementType)
	if err != nil {
		t.Fatalf("%s - GetDataTypeInfoByName failed: %v", startTestPrefix, err)
	}
	want := introspection.FlagKnown | introspection.FlagSubscribed | introspection.FlagPublishing
	if info.Mask != want {
		t.Errorf("%s - announcement mask = %d, want %d", startTestPrefix, info.Mask, want)
	}

	info, err = c.GetDataTypeInfo(ctx, datatype.KindService, 3)
	if err != nil {
		t.Fatalf("%s - GetDataTypeInfo failed: %v", startTestPrefix, err)
	}
	if info.Name != introspection.ServiceComputeAggregateTypeSignature || info.Mask != introspection.FlagKnown|introspection.FlagServing {
		t.Errorf("%s - info = %+v", startTestPrefix, info)
	}

	res, err := c.Verify(ctx, a.reg, datatype.KindMessage)
	if err != nil {
		t.Fatalf("%s - Verify failed: %v", startTestPrefix, err)
	}
	if !res.Match {
		t.Errorf("%s - Verify = %+v, want match", startTestPrefix, res)
	}

	resp, err := http.Get("http://" + a.HTTPAddr() + "/health")
	if err != nil {
		t.Fatalf("%s - GET /health failed: %v", startTestPrefix, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("%s - /health status = %d, want 200", startTestPrefix, resp.StatusCode)
	}
}

func TestStart_BadCatalogVersion(t *testing.T) {
	t.Setenv("CATALOG_FILE", "")
	url := startCOMMS(t)

	cfg := nodeConfig(url, "node-v")
	cfg.CatalogVersionConstraint = ">= 99.0.0"
	if _, err := Start(context.Background(), cfg); err == nil {
		t.Fatal("server:start_test - expected error for unsatisfied catalog version")
	}
}

func TestStart_NoCOMMS(t *testing.T) {
	cfg := nodeConfig("nats://127.0.0.1:1", "node-x")
	if _, err := Start(context.Background(), cfg); err == nil {
		t.Fatal("server:start_test - expected error without a COMMS server")
	}
}
