// Package main is the entrypoint for introspect, a CLI that queries a node's
// introspection services over COMMS.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/morezero/datatype-introspection/internal/config"
	"github.com/morezero/datatype-introspection/pkg/bootstrap"
	"github.com/morezero/datatype-introspection/pkg/client"
	"github.com/morezero/datatype-introspection/pkg/commsutil"
	"github.com/morezero/datatype-introspection/pkg/datatype"
	"github.com/morezero/datatype-introspection/pkg/introspection"
	"github.com/morezero/datatype-introspection/pkg/registry"
)

const usage = `Usage: introspect <command>
       introspect info <name>             Describe a data type by full name.
       introspect info <kind> <id>         Describe a data type by kind (service|message) and id.
       introspect aggregate <kind>         Aggregate signature of the node's types of kind.
       introspect verify [catalog-file]    Compare both kinds' aggregates with a local catalog.

The node queried is SERVICE_NAME on COMMS_URL (or INTROSPECTION_SUBJECT when set).
REQUEST_TIMEOUT bounds each request. The local catalog defaults to CATALOG_FILE,
config/catalog.json, then the built-in catalog.
`

// errMismatch makes verify exit non-zero.
var errMismatch = errors.New("catalog mismatch")

// querier is the subset of *client.Client the commands use.
type querier interface {
	GetDataTypeInfo(ctx context.Context, kind datatype.Kind, id datatype.ID) (*introspection.GetDataTypeInfoResponse, error)
	GetDataTypeInfoByName(ctx context.Context, name string) (*introspection.GetDataTypeInfoResponse, error)
	ComputeAggregateTypeSignature(ctx context.Context, kind datatype.Kind, known datatype.IDMask) (*introspection.ComputeAggregateTypeSignatureResponse, error)
	Verify(ctx context.Context, local client.LocalCatalog, kind datatype.Kind) (client.VerifyResult, error)
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Print(usage)
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("introspect: load config: %v", err)
	}
	nc, err := commsutil.Connect(commsutil.ConnectParams{URL: cfg.COMMSURL, Name: "introspect", MaxReconnects: -1})
	if err != nil {
		log.Fatalf("introspect: %v", err)
	}
	defer nc.Close()

	c := client.New(client.Params{
		Conn:    nc,
		Subject: cfg.IntrospectionSubject(),
		Timeout: cfg.RequestTimeout,
		Node:    "introspect",
	})

	err = run(context.Background(), c, args, os.Stdout)
	if errors.Is(err, errMismatch) {
		nc.Close()
		os.Exit(2)
	}
	if err != nil {
		nc.Close()
		log.Fatalf("introspect %s: %v", args[0], err)
	}
}

func run(ctx context.Context, q querier, args []string, w io.Writer) error {
	switch args[0] {
	case "info":
		return runInfo(ctx, q, args[1:], w)
	case "aggregate":
		if len(args) != 2 {
			return fmt.Errorf("usage: introspect aggregate <kind>")
		}
		return runAggregate(ctx, q, args[1], w)
	case "verify":
		file := ""
		if len(args) > 1 {
			file = args[1]
		}
		return runVerify(ctx, q, file, w)
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

func runInfo(ctx context.Context, q querier, args []string, w io.Writer) error {
	var (
		resp *introspection.GetDataTypeInfoResponse
		err  error
	)
	switch len(args) {
	case 1:
		resp, err = q.GetDataTypeInfoByName(ctx, args[0])
	case 2:
		kind, kerr := datatype.ParseKind(args[0])
		if kerr != nil {
			return kerr
		}
		id, ierr := datatype.ParseID(kind, args[1])
		if ierr != nil {
			return ierr
		}
		resp, err = q.GetDataTypeInfo(ctx, kind, id)
	default:
		return fmt.Errorf("usage: introspect info <name> | info <kind> <id>")
	}
	if err != nil {
		return err
	}
	if client.NotFound(resp) {
		return fmt.Errorf("not found: %s", args)
	}
	return printJSON(w, infoView(resp))
}

func runAggregate(ctx context.Context, q querier, rawKind string, w io.Writer) error {
	kind, err := datatype.ParseKind(rawKind)
	if err != nil {
		return err
	}
	cat, err := localCatalog("")
	if err != nil {
		return err
	}
	resp, err := q.ComputeAggregateTypeSignature(ctx, kind, cat.KnownIDs(kind))
	if err != nil {
		return err
	}
	return printJSON(w, map[string]interface{}{
		"kind":               kind.String(),
		"aggregateSignature": resp.AggregateSignature.String(),
		"knownIdCount":       resp.MutuallyKnownIDs.Count(),
	})
}

func runVerify(ctx context.Context, q querier, file string, w io.Writer) error {
	cat, err := localCatalog(file)
	if err != nil {
		return err
	}
	results := make([]client.VerifyResult, 0, 2)
	match := true
	for _, kind := range datatype.Kinds() {
		res, err := q.Verify(ctx, cat, kind)
		if err != nil {
			return err
		}
		match = match && res.Match
		results = append(results, res)
	}
	if err := printJSON(w, results); err != nil {
		return err
	}
	if !match {
		return errMismatch
	}
	return nil
}

// localCatalog loads and freezes a catalog into a registry.
func localCatalog(file string) (*registry.Registry, error) {
	cat, err := bootstrap.LoadCatalog(file)
	if err != nil {
		return nil, err
	}
	reg := registry.New()
	if _, err := reg.LoadFrom(context.Background(), cat); err != nil {
		return nil, err
	}
	reg.Freeze()
	return reg, nil
}

func infoView(resp *introspection.GetDataTypeInfoResponse) map[string]interface{} {
	return map[string]interface{}{
		"name":       resp.Name,
		"kind":       resp.Kind.String(),
		"id":         resp.ID,
		"signature":  resp.Signature.String(),
		"mask":       resp.Mask,
		"subscribed": resp.Mask&introspection.FlagSubscribed != 0,
		"publishing": resp.Mask&introspection.FlagPublishing != 0,
		"serving":    resp.Mask&introspection.FlagServing != 0,
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
