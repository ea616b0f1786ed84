//go:build !introspection_debug

package introspection

import (
	"testing"

	"github.com/morezero/datatype-introspection/pkg/datatype"
)

func TestUsage_UnknownKindIsLogged(t *testing.T) {
	p := &Provider{status: fakeStatus{}}
	if got := p.usage(datatype.Descriptor{Kind: 9, ID: 1, FullName: "bad.Kind"}); got != FlagKnown {
		t.Errorf("introspection:assert_release_test - usage = %d, want FlagKnown", got)
	}
}
