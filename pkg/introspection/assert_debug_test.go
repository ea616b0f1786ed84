//go:build introspection_debug

package introspection

import (
	"testing"

	"github.com/morezero/datatype-introspection/pkg/datatype"
)

func TestUsage_UnknownKindPanics(t *testing.T) {
	p := &Provider{status: fakeStatus{}}
	defer func() {
		if recover() == nil {
			t.Error("introspection:assert_debug_test - expected panic for unknown kind")
		}
	}()
	p.usage(datatype.Descriptor{Kind: 9, ID: 1, FullName: "bad.Kind"})
}
