package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"

	"github.com/morezero/datatype-introspection/pkg/datatype"
)

const logPrefix = "bootstrap:loader"

// LoadCatalog loads a catalog from file paths or environment.
// It tries paths in order: first any paths passed in, then CATALOG_FILE env, then defaults.
// An explicit path that exists but does not parse is an error; defaults are skipped.
func LoadCatalog(paths ...string) (*Catalog, error) {
	explicit := make([]string, 0, len(paths)+1)
	for _, p := range paths {
		if p != "" {
			explicit = append(explicit, p)
		}
	}
	if envPath := os.Getenv("CATALOG_FILE"); envPath != "" {
		explicit = append(explicit, envPath)
	}

	for _, p := range explicit {
		cat, err := ReadCatalog(p)
		if err != nil {
			if os.IsNotExist(err) {
				slog.Warn(fmt.Sprintf("%s - Catalog file %s not found", logPrefix, p))
				continue
			}
			return nil, err
		}
		return cat, nil
	}

	for _, p := range []string{"config/catalog.json", "catalog.json"} {
		cat, err := ReadCatalog(p)
		if err != nil {
			if !os.IsNotExist(err) {
				slog.Warn(fmt.Sprintf("%s - Skipping %s: %v", logPrefix, p, err))
			}
			continue
		}
		return cat, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default catalog", logPrefix))
	return DefaultCatalog(), nil
}

// ReadCatalog parses a single catalog file.
func ReadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("%s - failed to parse catalog %s: %w", logPrefix, path, err)
	}
	slog.Info(fmt.Sprintf("%s - Loaded catalog %s@%s from %s (%d types)", logPrefix, cat.Name, cat.Version, path, len(cat.Types)))
	return &cat, nil
}

// CheckVersion verifies the catalog version satisfies a semver constraint.
// An empty constraint accepts any version.
func (c *Catalog) CheckVersion(constraint string) error {
	if constraint == "" {
		return nil
	}
	cons, err := masterminds.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("%s - invalid version constraint %q: %w", logPrefix, constraint, err)
	}
	v, err := masterminds.NewVersion(c.Version)
	if err != nil {
		return fmt.Errorf("%s - catalog %s has invalid version %q: %w", logPrefix, c.Name, c.Version, err)
	}
	if ok, errs := cons.Validate(v); !ok {
		return fmt.Errorf("%s - catalog %s@%s does not satisfy %s: %v", logPrefix, c.Name, c.Version, constraint, errs)
	}
	return nil
}

// Descriptors converts the catalog entries. It implements registry.DescriptorSource.
func (c *Catalog) Descriptors(context.Context) ([]datatype.Descriptor, error) {
	out := make([]datatype.Descriptor, 0, len(c.Types))
	for i, e := range c.Types {
		d, err := e.Descriptor()
		if err != nil {
			return nil, fmt.Errorf("%s - catalog entry %d: %w", logPrefix, i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Descriptor converts a single entry.
func (e CatalogEntry) Descriptor() (datatype.Descriptor, error) {
	kind, err := datatype.ParseKind(e.Kind)
	if err != nil {
		return datatype.Descriptor{}, fmt.Errorf("%s: %w", e.Name, err)
	}

	var sig datatype.Signature
	switch {
	case e.Signature != nil && e.Definition != "":
		computed := datatype.ComputeSignature(NormalizeDefinition(e.Name, e.Definition))
		if computed != *e.Signature {
			return datatype.Descriptor{}, fmt.Errorf("%s: signature %s does not match definition (%s)", e.Name, *e.Signature, computed)
		}
		sig = computed
	case e.Signature != nil:
		sig = *e.Signature
	case e.Definition != "":
		sig = datatype.ComputeSignature(NormalizeDefinition(e.Name, e.Definition))
	default:
		return datatype.Descriptor{}, fmt.Errorf("%s: needs a signature or a definition", e.Name)
	}

	d := datatype.Descriptor{Kind: kind, ID: e.ID, FullName: e.Name, Signature: sig}
	if err := d.Validate(); err != nil {
		return datatype.Descriptor{}, err
	}
	return d, nil
}

// NormalizeDefinition renders the text a signature is computed over: the full
// name, then each definition line with comments and redundant whitespace removed.
func NormalizeDefinition(name, definition string) string {
	lines := []string{name}
	for _, line := range strings.Split(definition, "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		if fields := strings.Fields(line); len(fields) > 0 {
			lines = append(lines, strings.Join(fields, " "))
		}
	}
	return strings.Join(lines, "\n")
}

// DefaultCatalog returns the embedded fallback catalog: the introspection
// services and the catalog announcement message.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Name:        "introspection-default",
		Version:     "1.0.0",
		Description: "Data types every introspection node serves",
		Types: []CatalogEntry{
			{
				Kind: "service",
				ID:   2,
				Name: "protocol.GetDataTypeInfo",
				Definition: `
uint16 id
uint8 kind
uint8[<=80] name
---
uint64 signature
uint16 id
uint8 kind
uint8 mask
uint8[<=80] name`,
			},
			{
				Kind: "service",
				ID:   3,
				Name: "protocol.ComputeAggregateTypeSignature",
				Definition: `
uint8 kind
bool[<=65536] known_ids
---
uint64 aggregate_signature
bool[<=65536] mutually_known_ids`,
			},
			{
				Kind: "message",
				ID:   20,
				Name: "protocol.CatalogAnnouncement",
				Definition: `
uint8[<=64] node
uint64 message_signature
uint64 service_signature
uint16 message_count
uint16 service_count
uint64 timestamp_usec`,
			},
		},
	}
}
