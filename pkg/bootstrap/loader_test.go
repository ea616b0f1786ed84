package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/morezero/datatype-introspection/pkg/datatype"
)

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("bootstrap:loader_test - write failed: %v", err)
	}
	return path
}

func TestDefaultCatalog(t *testing.T) {
	cat := DefaultCatalog()

	if cat.Version != "1.0.0" {
		t.Errorf("bootstrap:loader_test - expected version 1.0.0, got %s", cat.Version)
	}

	descs, err := cat.Descriptors(context.Background())
	if err != nil {
		t.Fatalf("bootstrap:loader_test - Descriptors failed: %v", err)
	}
	if len(descs) != 3 {
		t.Fatalf("bootstrap:loader_test - expected 3 types, got %d", len(descs))
	}

	byName := make(map[string]datatype.Descriptor)
	for _, d := range descs {
		byName[d.FullName] = d
		if d.Signature == 0 {
			t.Errorf("bootstrap:loader_test - %s has zero signature", d.FullName)
		}
	}
	if d := byName["protocol.GetDataTypeInfo"]; d.Kind != datatype.KindService || d.ID != 2 {
		t.Errorf("bootstrap:loader_test - GetDataTypeInfo = %+v", d)
	}
	if d := byName["protocol.ComputeAggregateTypeSignature"]; d.Kind != datatype.KindService || d.ID != 3 {
		t.Errorf("bootstrap:loader_test - ComputeAggregateTypeSignature = %+v", d)
	}
	if d := byName["protocol.CatalogAnnouncement"]; d.Kind != datatype.KindMessage || d.ID != 20 {
		t.Errorf("bootstrap:loader_test - CatalogAnnouncement = %+v", d)
	}
}

func TestLoadCatalog_ExplicitPath(t *testing.T) {
	path := writeCatalog(t, `{
		"name": "test",
		"version": "2.1.0",
		"types": [
			{"kind": "message", "id": 20, "name": "foo.Bar", "signature": "0xAABBCCDD11223344"},
			{"kind": "srv", "id": 9, "name": "foo.Call", "signature": 42}
		]
	}`)

	cat, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("bootstrap:loader_test - LoadCatalog failed: %v", err)
	}
	if cat.Name != "test" {
		t.Errorf("bootstrap:loader_test - Name = %q, want test", cat.Name)
	}
	descs, err := cat.Descriptors(context.Background())
	if err != nil {
		t.Fatalf("bootstrap:loader_test - Descriptors failed: %v", err)
	}
	if descs[0].Signature != 0xAABBCCDD11223344 || descs[0].Kind != datatype.KindMessage {
		t.Errorf("bootstrap:loader_test - first = %+v", descs[0])
	}
	if descs[1].Signature != 42 || descs[1].Kind != datatype.KindService {
		t.Errorf("bootstrap:loader_test - second = %+v", descs[1])
	}
}

func TestLoadCatalog_EnvPath(t *testing.T) {
	path := writeCatalog(t, `{"name": "from-env", "version": "1.0.0", "types": []}`)
	t.Setenv("CATALOG_FILE", path)

	cat, err := LoadCatalog()
	if err != nil {
		t.Fatalf("bootstrap:loader_test - LoadCatalog failed: %v", err)
	}
	if cat.Name != "from-env" {
		t.Errorf("bootstrap:loader_test - Name = %q, want from-env", cat.Name)
	}
}

func TestLoadCatalog_MissingFallsBackToDefault(t *testing.T) {
	t.Setenv("CATALOG_FILE", "")
	cat, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("bootstrap:loader_test - LoadCatalog failed: %v", err)
	}
	if cat.Name != DefaultCatalog().Name {
		t.Errorf("bootstrap:loader_test - expected default catalog, got %q", cat.Name)
	}
}

func TestLoadCatalog_MalformedExplicitFails(t *testing.T) {
	path := writeCatalog(t, `{not json`)
	if _, err := LoadCatalog(path); err == nil {
		t.Error("bootstrap:loader_test - expected parse error")
	}
}

func TestCatalogEntry_Descriptor(t *testing.T) {
	def := "uint8 a  # comment\n\n   uint16   b\n"
	computed := datatype.ComputeSignature(NormalizeDefinition("foo.Bar", def))
	wrong := computed + 1

	tests := []struct {
		name    string
		entry   CatalogEntry
		want    datatype.Signature
		wantErr string
	}{
		{"definition only", CatalogEntry{Kind: "message", ID: 1, Name: "foo.Bar", Definition: def}, computed, ""},
		{"matching signature", CatalogEntry{Kind: "message", ID: 1, Name: "foo.Bar", Definition: def, Signature: &computed}, computed, ""},
		{"mismatched signature", CatalogEntry{Kind: "message", ID: 1, Name: "foo.Bar", Definition: def, Signature: &wrong}, 0, "does not match"},
		{"neither", CatalogEntry{Kind: "message", ID: 1, Name: "foo.Bar"}, 0, "needs a signature"},
		{"bad kind", CatalogEntry{Kind: "topic", ID: 1, Name: "foo.Bar", Definition: def}, 0, "foo.Bar"},
		{"service id too large", CatalogEntry{Kind: "service", ID: 300, Name: "foo.Bar", Definition: def}, 0, "300"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := tt.entry.Descriptor()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("bootstrap:loader_test - err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("bootstrap:loader_test - unexpected error: %v", err)
			}
			if d.Signature != tt.want {
				t.Errorf("bootstrap:loader_test - signature = %s, want %s", d.Signature, tt.want)
			}
		})
	}
}

func TestNormalizeDefinition(t *testing.T) {
	got := NormalizeDefinition("foo.Bar", "# header\nuint8   a # x\n\n\tuint16 b\n---\n")
	want := "foo.Bar\nuint8 a\nuint16 b\n---"
	if got != want {
		t.Errorf("bootstrap:loader_test - NormalizeDefinition = %q, want %q", got, want)
	}
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		version    string
		constraint string
		wantErr    bool
	}{
		{"1.2.0", "", false},
		{"1.2.0", "^1.0.0", false},
		{"1.2.0", ">=1.3.0", true},
		{"2.0.0", "~1.2", true},
		{"not-a-version", "^1.0.0", true},
		{"1.0.0", "!!bad", true},
	}
	for _, tt := range tests {
		cat := &Catalog{Name: "t", Version: tt.version}
		err := cat.CheckVersion(tt.constraint)
		if (err != nil) != tt.wantErr {
			t.Errorf("bootstrap:loader_test - CheckVersion(%s, %q) = %v, wantErr %v", tt.version, tt.constraint, err, tt.wantErr)
		}
	}
}
